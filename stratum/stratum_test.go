package stratum

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/storage"
)

func openPoolStore(t *testing.T, dir string) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(dir, "pool"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDifficultyOfCountsLeadingZeros(t *testing.T) {
	require.Equal(t, float64(1), difficultyOf("1abc"))
	require.Equal(t, float64(16), difficultyOf("0abc"))
	require.Equal(t, float64(256), difficultyOf("00ab"))
}

func TestPPSCreditsLedgerImmediately(t *testing.T) {
	dir := t.TempDir()
	store := openPoolStore(t, dir)
	e := chain.New()
	p := NewPool(ModePPS, "127.0.0.1:0", e, store, filepath.Join(dir, "pool_key.json"))

	p.recordShare("02miner", 16)
	amount, err := store.MinerLedgerEntry(string(ModePPS), "02miner")
	require.NoError(t, err)
	require.Equal(t, uint64(16*ppsRateAtomicPerShare), amount)
}

func TestSoloPayoutGoesEntirelyToFinder(t *testing.T) {
	dir := t.TempDir()
	store := openPoolStore(t, dir)
	e := chain.New()
	p := NewPool(ModeSolo, "127.0.0.1:0", e, store, filepath.Join(dir, "pool_key.json"))

	block := e.GetMiningCandidate("02finder", 1700000000)
	p.payoutOnBlock(block, "02finder")

	amount, err := store.MinerLedgerEntry(string(ModeSolo), "02finder")
	require.NoError(t, err)
	require.Equal(t, block.Transactions[0].Amount, amount)
}

func TestPPLNSSplitsByShareWeight(t *testing.T) {
	dir := t.TempDir()
	store := openPoolStore(t, dir)
	e := chain.New()
	p := NewPool(ModePPLNS, "127.0.0.1:0", e, store, filepath.Join(dir, "pool_key.json"))

	p.window = []Share{
		{Miner: "02a", Difficulty: 3},
		{Miner: "02b", Difficulty: 1},
	}
	block := e.GetMiningCandidate("02a", 1700000000)
	p.payoutOnBlock(block, "02a")

	amountA, _ := store.MinerLedgerEntry(string(ModePPLNS), "02a")
	amountB, _ := store.MinerLedgerEntry(string(ModePPLNS), "02b")
	require.Greater(t, amountA, amountB)
	require.Equal(t, block.Transactions[0].Amount, amountA+amountB)
}
