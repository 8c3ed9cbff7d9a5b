package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain/types"
)

func mint(s *State, addr, token string, amount uint64) {
	s.credit(addr, token, amount)
}

func TestTransferMovesBalanceAndFee(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 1_000_000)

	tx := &types.Transaction{
		Type: types.Transfer, Sender: "alice", Receiver: "bob",
		Amount: 100_000, Token: types.NativeToken, Fee: 1_000, Nonce: 1,
	}
	require.True(t, Apply(s, tx))
	require.Equal(t, uint64(899_000), s.Balance("alice", types.NativeToken))
	require.Equal(t, uint64(100_000), s.Balance("bob", types.NativeToken))
	require.Equal(t, uint64(1), s.Nonces["alice"])
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 100)
	tx := &types.Transaction{Type: types.Transfer, Sender: "alice", Receiver: "bob", Amount: 1000, Token: types.NativeToken, Fee: 10, Nonce: 1}
	require.False(t, Apply(s, tx))
	require.Equal(t, uint64(100), s.Balance("alice", types.NativeToken))
}

func TestNonceMustBeMonotonic(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 1_000_000)
	tx1 := &types.Transaction{Type: types.Transfer, Sender: "alice", Receiver: "bob", Amount: 1, Token: types.NativeToken, Nonce: 5}
	require.True(t, Apply(s, tx1))

	replay := &types.Transaction{Type: types.Transfer, Sender: "alice", Receiver: "bob", Amount: 1, Token: types.NativeToken, Nonce: 5}
	require.False(t, Apply(s, replay))

	tx2 := &types.Transaction{Type: types.Transfer, Sender: "alice", Receiver: "bob", Amount: 1, Token: types.NativeToken, Nonce: 6}
	require.True(t, Apply(s, tx2))
}

func TestStakeAndUnstakeRoundTrip(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 1_000_000)

	require.True(t, Apply(s, &types.Transaction{Type: types.Stake, Sender: "alice", Amount: 500_000, Nonce: 1}))
	require.Equal(t, uint64(500_000), s.Stakes["alice"])
	require.Equal(t, uint64(500_000), s.Balance("alice", types.NativeToken))

	require.False(t, Apply(s, &types.Transaction{Type: types.Unstake, Sender: "alice", Amount: 600_000, Nonce: 2}))
	require.True(t, Apply(s, &types.Transaction{Type: types.Unstake, Sender: "alice", Amount: 500_000, Nonce: 2}))
	require.Equal(t, uint64(0), s.Stakes["alice"])
	require.Equal(t, uint64(1_000_000), s.Balance("alice", types.NativeToken))
}

func TestIssueTokenRejectsForeignTicker(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 1_000_000)
	mint(s, "bob", types.NativeToken, 1_000_000)

	require.True(t, Apply(s, &types.Transaction{Type: types.IssueToken, Sender: "alice", Token: "FOO", Amount: 1000, Nonce: 1}))
	require.False(t, Apply(s, &types.Transaction{Type: types.IssueToken, Sender: "bob", Token: "FOO", Amount: 1000, Nonce: 1}))
	require.True(t, Apply(s, &types.Transaction{Type: types.IssueToken, Sender: "alice", Token: "FOO", Amount: 500, Nonce: 2}))
	require.Equal(t, uint64(1500), s.Balance("alice", "FOO"))
}

func TestPlaceOrderMatchesAgainstRestingAsk(t *testing.T) {
	s := New()
	mint(s, "seller", "FOO", 100)
	mint(s, "buyer", types.NativeToken, 1_000_000_000)

	ask := &types.Transaction{
		Type: types.PlaceOrder, Sender: "seller", Receiver: types.SentinelDexSell,
		Token: "FOO", Price: types.AtomicUnitsPerCoin, Amount: 50, Timestamp: 1000, Nonce: 1,
	}
	require.True(t, Apply(s, ask))
	require.Equal(t, uint64(50), s.Balance("seller", "FOO"))

	bid := &types.Transaction{
		Type: types.PlaceOrder, Sender: "buyer", Receiver: types.SentinelDexBuy,
		Token: "FOO", Price: types.AtomicUnitsPerCoin, Amount: 30, Timestamp: 1001, Nonce: 1,
	}
	require.True(t, Apply(s, bid))

	require.Equal(t, uint64(30), s.Balance("buyer", "FOO"))
	require.Equal(t, uint64(30), s.Balance("seller", types.NativeToken))
	require.Len(t, s.Asks["FOO"], 1)
	require.Equal(t, uint64(20), s.Orders[s.Asks["FOO"][0]].RemainingAmount)
}

func TestCancelOrderRefundsEscrow(t *testing.T) {
	s := New()
	mint(s, "buyer", types.NativeToken, 1_000_000_000)

	bid := &types.Transaction{
		Type: types.PlaceOrder, Sender: "buyer", Receiver: types.SentinelDexBuy,
		Token: "FOO", Price: types.AtomicUnitsPerCoin, Amount: 10, Timestamp: 1000, Nonce: 1,
	}
	require.True(t, Apply(s, bid))
	before := s.Balance("buyer", types.NativeToken)

	cancel := &types.Transaction{Type: types.CancelOrder, Sender: "buyer", Token: bid.HashHex(), Nonce: 2}
	require.True(t, Apply(s, cancel))
	require.Greater(t, s.Balance("buyer", types.NativeToken), before)
	require.Empty(t, s.Bids["FOO"])
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	s := New()
	mint(s, "lp", "FOO", 1000)
	mint(s, "lp", types.NativeToken, 1000)

	add := &types.Transaction{Type: types.AddLiquidity, Sender: "lp", Token: "FOO/" + types.NativeToken, Amount: 100, Price: 100, Nonce: 1}
	require.True(t, Apply(s, add))
	pool := s.Pools["FOO/"+types.NativeToken]
	require.Equal(t, uint64(100), pool.ReserveA)
	require.Equal(t, uint64(100), pool.TotalShares)

	remove := &types.Transaction{Type: types.RemoveLiquidity, Sender: "lp", Token: "FOO/" + types.NativeToken, Amount: 50, Nonce: 2}
	require.True(t, Apply(s, remove))
	require.Equal(t, uint64(50), pool.ReserveA)
	require.Equal(t, uint64(950), s.Balance("lp", "FOO"))
}

func TestSwapRespectsConstantProduct(t *testing.T) {
	s := New()
	mint(s, "lp", "FOO", 1_000_000)
	mint(s, "lp", types.NativeToken, 1_000_000)
	require.True(t, Apply(s, &types.Transaction{Type: types.AddLiquidity, Sender: "lp", Token: "FOO/" + types.NativeToken, Amount: 1_000_000, Price: 1_000_000, Nonce: 1}))

	mint(s, "trader", "FOO", 1000)
	swap := &types.Transaction{
		Type: types.Swap, Sender: "trader", Receiver: types.SentinelSwapAToB,
		Token: "FOO/" + types.NativeToken, Amount: 1000, Nonce: 1,
	}
	require.True(t, Apply(s, swap))
	require.Greater(t, s.Balance("trader", types.NativeToken), uint64(0))
	require.Less(t, s.Balance("trader", types.NativeToken), uint64(1000))
}

func TestNFTIssueTransferBurn(t *testing.T) {
	s := New()
	mint(s, "artist", types.NativeToken, 1_000_000)

	issue := &types.Transaction{Type: types.IssueNFT, Sender: "artist", Token: "ipfs://a", Nonce: 1}
	require.True(t, Apply(s, issue))
	id := issue.HashHex()
	require.Equal(t, "artist", s.NFTs[id].Owner)

	require.True(t, Apply(s, &types.Transaction{Type: types.TransferNFT, Sender: "artist", Receiver: "collector", Token: id, Nonce: 2}))
	require.Equal(t, "collector", s.NFTs[id].Owner)

	require.False(t, Apply(s, &types.Transaction{Type: types.BurnNFT, Sender: "artist", Token: id, Nonce: 3}))
	require.True(t, Apply(s, &types.Transaction{Type: types.BurnNFT, Sender: "collector", Token: id, Nonce: 1}))
	require.NotContains(t, s.NFTs, id)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	mint(s, "alice", types.NativeToken, 100)
	clone := s.Clone()
	clone.credit("alice", types.NativeToken, 900)
	require.Equal(t, uint64(100), s.Balance("alice", types.NativeToken))
	require.Equal(t, uint64(1000), clone.Balance("alice", types.NativeToken))
}
