// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// vltnode is the full node binary: it wires together the chain engine,
// leveldb persistence, peer-to-peer gossip, the JSON RPC gateway, and
// an optional set of Stratum mining pool listeners, then runs until
// interrupted.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/chain/pow"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/cmd/utils"
	"github.com/tos-network/vlt/log"
	"github.com/tos-network/vlt/p2pgossip"
	"github.com/tos-network/vlt/rpc"
	"github.com/tos-network/vlt/storage"
	"github.com/tos-network/vlt/stratum"
	"github.com/tos-network/vlt/walletkey"
)

var gitCommit = ""
var gitDate = ""

var app *cli.App

func init() {
	app = &cli.App{
		Name:      "vltnode",
		Usage:     "a VLT full node: chain engine, gossip peer, RPC gateway and Stratum pools",
		Version:   fmt.Sprintf("%s-%s", gitCommit, gitDate),
		Copyright: "Copyright 2026 The vlt Authors",
		Flags: []cli.Flag{
			utils.DataDirFlag,
			utils.PortFlag,
			utils.APIPortFlag,
			utils.BootstrapFlag,
			utils.MineFlag,
			utils.MinerAddressFlag,
			utils.KeyfileFlag,
			utils.KeyfileEncFlag,
			utils.PassphraseFlag,
			utils.ContactsFlag,
			utils.StratumModeFlag,
			utils.StratumBasePortFlag,
			utils.LogLevelFlag,
		},
		Commands: []*cli.Command{
			statusCommand,
		},
		Action: run,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		utils.Fatalf("%v", err)
	}
}

func run(c *cli.Context) error {
	setLogLevel(c.String(utils.LogLevelFlag.Name))

	minerAddress, err := loadOrCreateMinerKey(c)
	if err != nil {
		return err
	}

	dataDir := c.String(utils.DataDirFlag.Name)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("vltnode: creating data directory: %w", err)
	}
	store, err := storage.Open(dataDir + "/chaindata")
	if err != nil {
		return fmt.Errorf("vltnode: opening chain database: %w", err)
	}
	defer store.Close()

	engine := chain.New()
	restored := 0
	if err := store.ReplayAll(func(b *types.Block) error {
		if b.Index == 0 {
			// genesis is already built in-process by chain.New; the
			// persisted copy exists only so address/tx indexes resolve it.
			return nil
		}
		if err := engine.SubmitBlock(b); err != nil {
			return fmt.Errorf("replaying block %d: %w", b.Index, err)
		}
		restored++
		return nil
	}); err != nil {
		log.Warn("vltnode: replay failed, starting from genesis", "err", err)
	}
	if _, ok, err := store.TipHeight(); err == nil && !ok {
		if err := store.PutBlock(engine.Block(0)); err != nil {
			log.Warn("vltnode: persisting genesis block failed", "err", err)
		}
	}
	log.Info("vltnode: chain engine ready", "height", engine.Height(), "restoredBlocks", restored)

	p2pPort := c.Int(utils.PortFlag.Name)
	gossip := p2pgossip.New(fmt.Sprintf(":%d", p2pPort), engine)
	go func() {
		if err := gossip.Listen(); err != nil {
			utils.Fatalf("vltnode: p2p listen: %v", err)
		}
	}()
	for _, addr := range c.StringSlice(utils.BootstrapFlag.Name) {
		if err := gossip.Dial(addr); err != nil {
			log.Warn("vltnode: bootstrap dial failed", "addr", addr, "err", err)
		}
	}
	stop := make(chan struct{})
	go gossip.RunDiscovery(stop)
	go persistNewBlocks(engine, store, restored, stop)

	apiPort := utils.ResolvedAPIPort(c, p2pPort)
	rpcServer := rpc.New(engine, gossip, store)
	go func() {
		addr := fmt.Sprintf(":%d", apiPort)
		log.Info("vltnode: rpc gateway listening", "addr", addr)
		if err := http.ListenAndServe(addr, rpcServer.Handler()); err != nil {
			log.Error("vltnode: rpc gateway stopped", "err", err)
		}
	}()

	basePort := utils.ResolvedStratumBasePort(c, p2pPort)
	modeList := c.StringSlice(utils.StratumModeFlag.Name)
	pools := launchStratumPools(modeList, basePort, engine, store, dataDir, stop)
	log.Info("vltnode: stratum pools running", "count", len(pools), "basePort", basePort)

	if c.Bool(utils.MineFlag.Name) {
		engine.SetMining(true)
	}
	go mineLoop(engine, minerAddress, stop)

	log.Info("vltnode: node started", "miner", minerAddress, "p2pPort", p2pPort, "apiPort", apiPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("vltnode: shutdown signal received, draining")
	close(stop)
	for _, pool := range pools {
		pool.Drain()
	}
	for next := uint64(0); ; next++ {
		b := engine.Block(next)
		if b == nil {
			break
		}
		if err := store.PutBlock(b); err != nil {
			log.Error("vltnode: final block persist failed", "height", next, "err", err)
		}
	}
	log.Info("vltnode: shutdown complete")
	return nil
}

func setLogLevel(name string) {
	switch name {
	case "trace":
		log.SetLevel(log.LvlTrace)
	case "debug":
		log.SetLevel(log.LvlDebug)
	case "warn":
		log.SetLevel(log.LvlWarn)
	case "error":
		log.SetLevel(log.LvlError)
	default:
		log.SetLevel(log.LvlInfo)
	}
}

// loadOrCreateMinerKey resolves the node's signing address: an
// existing --keyfile/--keyfile.enc if present, or a freshly minted
// mnemonic-derived key persisted to --keyfile otherwise. The explicit
// --miner.address flag always wins when set, covering the case where
// rewards should flow to an address this node holds no key for.
func loadOrCreateMinerKey(c *cli.Context) (string, error) {
	if addr := c.String(utils.MinerAddressFlag.Name); addr != "" {
		return addr, nil
	}

	if encPath := c.String(utils.KeyfileEncFlag.Name); encPath != "" {
		if _, err := os.Stat(encPath); err == nil {
			k, err := walletkey.LoadEncrypted(encPath, c.String(utils.PassphraseFlag.Name))
			if err != nil {
				return "", fmt.Errorf("vltnode: loading %s: %w", encPath, err)
			}
			return k.Address, nil
		}
	}

	keyPath := c.String(utils.KeyfileFlag.Name)
	if _, err := os.Stat(keyPath); err == nil {
		k, err := walletkey.LoadPlain(keyPath)
		if err != nil {
			return "", fmt.Errorf("vltnode: loading %s: %w", keyPath, err)
		}
		return k.Address, nil
	}

	k, err := walletkey.NewWithMnemonic()
	if err != nil {
		return "", fmt.Errorf("vltnode: generating wallet key: %w", err)
	}
	if err := walletkey.SavePlain(keyPath, k); err != nil {
		return "", fmt.Errorf("vltnode: saving %s: %w", keyPath, err)
	}
	log.Info("vltnode: generated a new wallet key", "path", keyPath, "address", k.Address)
	return k.Address, nil
}

func launchStratumPools(modes []string, basePort int, engine *chain.Engine, store *storage.Store, dataDir string, stop <-chan struct{}) []*stratum.Pool {
	pools := make([]*stratum.Pool, 0, len(modes))
	for i, m := range modes {
		mode := stratum.PayoutMode(m)
		addr := fmt.Sprintf(":%d", basePort+i)
		keyPath := fmt.Sprintf("%s/pool_key_%s.json", dataDir, m)
		pool := stratum.NewPool(mode, addr, engine, store, keyPath)
		go func() {
			if err := pool.Listen(); err != nil {
				log.Error("vltnode: stratum pool listen failed", "mode", m, "addr", addr, "err", err)
			}
		}()
		go pool.RunNotifier(stop)
		go pool.RunPayoutSweep(stop)
		pools = append(pools, pool)
		log.Info("vltnode: stratum pool listening", "mode", m, "addr", addr)
	}
	return pools
}

// mineLoop repeatedly builds a mining candidate and brute-forces its
// proof of work against the current mempool, submitting each block it
// finds. It is a plain single-threaded solo miner embedded in the node
// process for local/test networks; dedicated hash power is expected to
// attach to one of the Stratum pool listeners instead.
func mineLoop(engine *chain.Engine, minerAddress string, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !engine.Mining() {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		candidate := engine.GetMiningCandidate(minerAddress, uint64(time.Now().Unix()))
		found := false
		for attempt := uint32(0); attempt < 2_000_000; attempt++ {
			candidate.ProofOfWork = attempt
			candidate.Hash = candidate.CalculateHash()
			if pow.MeetsSimplifiedTarget(candidate.Hash, candidate.Difficulty, candidate.ValidatorStake) {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if err := engine.SubmitBlock(candidate); err != nil {
			continue
		}
		log.Info("vltnode: mined block", "height", candidate.Index, "hash", candidate.Hash)
	}
}

// persistNewBlocks watches the engine's height and appends each
// newly-accepted block to the database, covering both self-mined
// blocks and ones accepted from gossip (p2pgossip submits directly to
// the engine and has no store reference of its own).
func persistNewBlocks(engine *chain.Engine, store *storage.Store, fromHeight int, stop <-chan struct{}) {
	next := uint64(fromHeight) + 1
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for next <= engine.Height() {
				b := engine.Block(next)
				if b == nil {
					break
				}
				if err := store.PutBlock(b); err != nil {
					log.Error("vltnode: persisting block failed", "height", next, "err", err)
					break
				}
				next++
			}
		}
	}
}
