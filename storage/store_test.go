package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "vltdata"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndLoadBlockRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tx := types.Transaction{Type: types.Transfer, Sender: types.System, Receiver: "02abc", Amount: 10, Token: types.NativeToken}
	block := types.NewBlock(0, types.ZeroHash(), []types.Transaction{tx}, 0x1d00ffff, 0, 1700000000)

	require.NoError(t, s.PutBlock(block))
	loaded, ok, err := s.LoadBlock(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Hash, loaded.Hash)

	height, found, err := s.TipHeight()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0), height)
}

func TestAddressIndexTracksSenderAndReceiver(t *testing.T) {
	s := openTestStore(t)
	tx := types.Transaction{Type: types.Transfer, Sender: "02sender", Receiver: "02receiver", Amount: 10, Token: types.NativeToken}
	block := types.NewBlock(0, types.ZeroHash(), []types.Transaction{tx}, 0x1d00ffff, 0, 1700000000)
	require.NoError(t, s.PutBlock(block))

	hashes, err := s.AddressTransactionHashes("02sender")
	require.NoError(t, err)
	require.Equal(t, []string{tx.HashHex()}, hashes)

	hashes, err = s.AddressTransactionHashes("02receiver")
	require.NoError(t, err)
	require.Equal(t, []string{tx.HashHex()}, hashes)
}

func TestPendingTransactionLifecycle(t *testing.T) {
	s := openTestStore(t)
	tx := &types.Transaction{Type: types.Transfer, Sender: "02a", Receiver: "02b", Amount: 1, Token: types.NativeToken, Nonce: 1}
	require.NoError(t, s.PutPendingTransaction(tx))

	pending, err := s.LoadPendingTransactions()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.DeletePendingTransaction(tx.HashHex()))
	pending, err = s.LoadPendingTransactions()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestMinerLedgerEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	amount, err := s.MinerLedgerEntry("pps", "02miner")
	require.NoError(t, err)
	require.Equal(t, uint64(0), amount)

	require.NoError(t, s.PutMinerLedgerEntry("pps", "02miner", 42))
	amount, err = s.MinerLedgerEntry("pps", "02miner")
	require.NoError(t, err)
	require.Equal(t, uint64(42), amount)
}

func TestReplayAllWalksBlocksInOrder(t *testing.T) {
	s := openTestStore(t)
	prev := types.ZeroHash()
	for i := uint64(0); i < 3; i++ {
		b := types.NewBlock(i, prev, nil, 0x1d00ffff, 0, 1700000000+i)
		require.NoError(t, s.PutBlock(b))
		prev = b.Hash
	}

	var seen []uint64
	require.NoError(t, s.ReplayAll(func(b *types.Block) error {
		seen = append(seen, b.Index)
		return nil
	}))
	require.Equal(t, []uint64{0, 1, 2}, seen)
}
