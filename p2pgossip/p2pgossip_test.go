package p2pgossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/chain/types"
)

func startNode(t *testing.T, addr string) (*Node, *chain.Engine) {
	t.Helper()
	e := chain.New()
	n := New(addr, e)
	go n.Listen()
	time.Sleep(50 * time.Millisecond)
	return n, e
}

func TestHandshakeRegistersPeer(t *testing.T) {
	_, _ = startNode(t, "127.0.0.1:18601")
	nodeB, _ := startNode(t, "127.0.0.1:18602")

	require.NoError(t, nodeB.Dial("127.0.0.1:18601"))
	time.Sleep(100 * time.Millisecond)

	nodeB.mu.Lock()
	defer nodeB.mu.Unlock()
	require.Len(t, nodeB.peers, 1)
}

func TestBroadcastTransactionPropagates(t *testing.T) {
	nodeA, engineA := startNode(t, "127.0.0.1:18603")
	nodeB, engineB := startNode(t, "127.0.0.1:18604")
	require.NoError(t, nodeB.Dial("127.0.0.1:18603"))
	time.Sleep(100 * time.Millisecond)

	tx := &types.Transaction{Type: types.Transfer, Sender: types.System, Receiver: "02dest", Amount: 10, Token: types.NativeToken}
	require.NoError(t, engineA.AdmitTransaction(tx))
	nodeA.BroadcastTransaction(tx)
	time.Sleep(150 * time.Millisecond)

	require.Equal(t, 1, engineB.PendingCount())
}
