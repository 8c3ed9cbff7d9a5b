package main

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/vlt/cmd/utils"
	"github.com/tos-network/vlt/walletkey"
)

func contextWithKeyfile(t *testing.T, keyfile string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(utils.MinerAddressFlag.Name, "", "")
	set.String(utils.KeyfileEncFlag.Name, "", "")
	set.String(utils.PassphraseFlag.Name, "", "")
	set.String(utils.KeyfileFlag.Name, keyfile, "")
	return cli.NewContext(nil, set, nil)
}

func TestLoadOrCreateMinerKeyGeneratesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")
	c := contextWithKeyfile(t, keyPath)

	addr, err := loadOrCreateMinerKey(c)
	require.NoError(t, err)
	require.NotEmpty(t, addr)

	loaded, err := walletkey.LoadPlain(keyPath)
	require.NoError(t, err)
	require.Equal(t, addr, loaded.Address)
}

func TestLoadOrCreateMinerKeyReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")
	c := contextWithKeyfile(t, keyPath)

	first, err := loadOrCreateMinerKey(c)
	require.NoError(t, err)

	second, err := loadOrCreateMinerKey(c)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
