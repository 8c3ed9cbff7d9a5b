package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTx(nonce uint64) Transaction {
	return Transaction{
		Type:      Transfer,
		Sender:    System,
		Receiver:  "02abc",
		Amount:    1000,
		Token:     NativeToken,
		Timestamp: 1700000000,
		Nonce:     nonce,
		Fee:       0,
	}
}

func TestHashDeterminism(t *testing.T) {
	b := NewBlock(1, ZeroHash(), []Transaction{sampleTx(0)}, 0x1d00ffff, 0, 1700000000)
	h1 := b.CalculateHash()
	h2 := b.CalculateHash()
	require.Equal(t, h1, h2)

	mutated := *b
	mutated.ProofOfWork++
	require.NotEqual(t, h1, mutated.CalculateHash())
}

func TestMerkleStability(t *testing.T) {
	txs := []Transaction{sampleTx(0), sampleTx(1), sampleTx(2)}
	root1 := CalculateMerkleRoot(txs)
	root2 := CalculateMerkleRoot(txs)
	require.Equal(t, root1, root2)

	b := NewBlock(1, ZeroHash(), txs, 0x1d00ffff, 0, 1700000000)
	require.Equal(t, root1, b.MerkleRoot)
	require.Equal(t, root1, CalculateMerkleRoot(b.Transactions))
}

func TestMerkleOddCountDuplicatesLast(t *testing.T) {
	txs := []Transaction{sampleTx(0), sampleTx(1), sampleTx(2)}
	odd := CalculateMerkleRoot(txs)
	// Explicitly duplicating the last hash should produce the same root
	// as the implicit odd-count duplication.
	doubled := CalculateMerkleRoot(append(append([]Transaction{}, txs...), txs[2]))
	require.Equal(t, odd, doubled)
}

func TestEmptyMerkleRoot(t *testing.T) {
	require.Equal(t, ZeroHash(), CalculateMerkleRoot(nil))
}

func TestHeaderIsEightyBytes(t *testing.T) {
	b := NewBlock(1, ZeroHash(), []Transaction{sampleTx(0)}, 0x1d00ffff, 0, 1700000000)
	require.Len(t, b.Header(), HeaderSize)
}
