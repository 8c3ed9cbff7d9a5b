package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain/pow"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/crypto"
)

func TestGenesisPremine(t *testing.T) {
	e := New()
	require.Equal(t, uint64(0), e.Height())
	require.Equal(t, PremineAtomic, e.State().Balance(PremineAddress, types.NativeToken))
}

func TestBlockRewardHalvesAndExpires(t *testing.T) {
	require.Equal(t, BaseBlockReward, blockReward(0))
	require.Equal(t, BaseBlockReward/2, blockReward(HalvingInterval))
	require.Equal(t, uint64(0), blockReward(HalvingInterval*MaxHalvings))
}

// mine brute-forces a nonce satisfying the candidate's simplified
// leading-zero target, the same proof search a real miner performs.
func mine(t *testing.T, candidate *types.Block) {
	t.Helper()
	for attempt := uint32(0); ; attempt++ {
		candidate.ProofOfWork = attempt
		candidate.Hash = candidate.CalculateHash()
		if pow.MeetsSimplifiedTarget(candidate.Hash, candidate.Difficulty, candidate.ValidatorStake) {
			return
		}
		if attempt > 5_000_000 {
			t.Fatalf("did not find a share within bound")
		}
	}
}

func TestAdmitAndMineTransfer(t *testing.T) {
	e := New()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	fundTx := &types.Transaction{
		Type: types.Transfer, Sender: types.System, Receiver: key.Address(),
		Amount: 10_000_000, Token: types.NativeToken, Timestamp: GenesisTimestamp + 1,
	}
	require.NoError(t, e.AdmitTransaction(fundTx))

	candidate := e.GetMiningCandidate(DevFundAddress, GenesisTimestamp+2)
	mine(t, candidate)
	require.NoError(t, e.SubmitBlock(candidate))
	require.Equal(t, uint64(1), e.Height())
	require.Equal(t, uint64(10_000_000), e.State().Balance(key.Address(), types.NativeToken))

	tx := &types.Transaction{
		Type: types.Transfer, Sender: key.Address(), Receiver: "02bob",
		Amount: 1000, Token: types.NativeToken, Timestamp: GenesisTimestamp + 3, Nonce: 1, Fee: 100_000,
	}
	require.NoError(t, tx.Sign(key))
	require.NoError(t, e.AdmitTransaction(tx))

	candidate2 := e.GetMiningCandidate(DevFundAddress, GenesisTimestamp+4)
	mine(t, candidate2)
	require.NoError(t, e.SubmitBlock(candidate2))
	require.Equal(t, uint64(1000), e.State().Balance("02bob", types.NativeToken))
}

func TestSubmitBlockRejectsWrongPreviousHash(t *testing.T) {
	e := New()
	candidate := e.GetMiningCandidate(DevFundAddress, GenesisTimestamp+2)
	mine(t, candidate)
	candidate.PreviousHash = "not-the-tip"
	candidate.Hash = candidate.CalculateHash()
	require.Error(t, e.SubmitBlock(candidate))
}

func TestPendingCountReflectsAdmission(t *testing.T) {
	e := New()
	require.Equal(t, 0, e.PendingCount())
	tx := &types.Transaction{Type: types.Transfer, Sender: types.System, Receiver: "02x", Amount: 1, Token: types.NativeToken}
	require.NoError(t, e.AdmitTransaction(tx))
	require.Equal(t, 1, e.PendingCount())
}
