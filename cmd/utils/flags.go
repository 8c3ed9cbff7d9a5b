// Copyright 2015 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package utils contains shared command line flags for vltnode, and the
// setup helpers that turn them into a running node.
package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

// These are all the command line flags vltnode supports, kept in one
// place so every subcommand shares the same names and help text.
var (
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the chain database and miner ledger",
		Value: "./vltdata",
	}
	PortFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Network listening port for peer-to-peer gossip",
		Value: 6000,
	}
	APIPortFlag = &cli.IntFlag{
		Name:  "apiport",
		Usage: "HTTP RPC and websocket listening port (default: port+1)",
		Value: 0,
	}
	BootstrapFlag = &cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "Address of a peer to dial on startup (host:port), may be repeated",
	}
	MineFlag = &cli.BoolFlag{
		Name:  "mine",
		Usage: "Enable in-process mining against the local mempool",
	}
	MinerAddressFlag = &cli.StringFlag{
		Name:  "miner.address",
		Usage: "Address credited with mined block rewards",
	}
	KeyfileFlag = &cli.StringFlag{
		Name:  "keyfile",
		Usage: "Path to the plaintext wallet key file",
		Value: "wallet.key",
	}
	KeyfileEncFlag = &cli.StringFlag{
		Name:  "keyfile.enc",
		Usage: "Path to the passphrase-encrypted wallet key file",
	}
	PassphraseFlag = &cli.StringFlag{
		Name:  "passphrase",
		Usage: "Passphrase unlocking --keyfile.enc",
	}
	ContactsFlag = &cli.StringFlag{
		Name:  "contacts",
		Usage: "Path to the address book file",
		Value: "contacts.json",
	}
	StratumModeFlag = &cli.StringSliceFlag{
		Name:  "stratum.mode",
		Usage: "Payout mode to run a Stratum pool listener for (solo, pps, fpps, pplns), may be repeated",
		Value: cli.NewStringSlice("solo", "pps", "fpps", "pplns"),
	}
	StratumBasePortFlag = &cli.IntFlag{
		Name:  "stratum.baseport",
		Usage: "First of four sequential ports assigned to the Stratum pool listeners (default: port+2000)",
		Value: 0,
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "loglevel",
		Usage: "Minimum log level: trace, debug, info, warn, error",
		Value: "info",
	}
)

// ResolvedAPIPort returns the effective RPC port: the explicit flag
// value if set, otherwise p2pPort+1.
func ResolvedAPIPort(c *cli.Context, p2pPort int) int {
	if v := c.Int(APIPortFlag.Name); v != 0 {
		return v
	}
	return p2pPort + 1
}

// ResolvedStratumBasePort returns the effective first Stratum port:
// the explicit flag value if set, otherwise p2pPort+2000.
func ResolvedStratumBasePort(c *cli.Context, p2pPort int) int {
	if v := c.Int(StratumBasePortFlag.Name); v != 0 {
		return v
	}
	return p2pPort + 2000
}

// Fatalf prints an error to stderr and exits, for unrecoverable
// startup failures.
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(os.Stderr, msg)
	os.Exit(1)
}
