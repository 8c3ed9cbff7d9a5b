package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/crypto"
	"github.com/tos-network/vlt/script"
)

func TestSignAndVerifyDeterminism(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &Transaction{
		Type:      Transfer,
		Sender:    key.Address(),
		Receiver:  "02deadbeef",
		Amount:    100,
		Token:     NativeToken,
		Timestamp: 1700000000,
		Nonce:     1,
		Fee:       100_000,
	}
	require.NoError(t, tx.Sign(key))
	require.True(t, tx.VerifySignature())

	mutated := *tx
	mutated.Amount++
	require.False(t, mutated.VerifySignature())
}

func TestSystemTransactionAlwaysVerifies(t *testing.T) {
	tx := &Transaction{Type: Transfer, Sender: System, Receiver: "02abc", Amount: 1}
	require.True(t, tx.VerifySignature())
}

func TestCoinbaseBlobHashing(t *testing.T) {
	blob := []byte{0xde, 0xad, 0xbe, 0xef}
	tx := &Transaction{
		Sender:   System,
		Receiver: "02abc",
	}
	tx.ScriptSig = tx.ScriptSig.Append(script.Push(blob))

	expected := crypto.DoubleSha256(blob)
	require.Equal(t, expected, tx.Hash())
}

func TestNonCoinbaseSystemFallsBackToFieldHash(t *testing.T) {
	tx1 := &Transaction{Sender: System, Receiver: "02abc", Amount: 5, Timestamp: 10}
	tx2 := &Transaction{Sender: System, Receiver: "02abc", Amount: 5, Timestamp: 10}
	require.Equal(t, tx1.Hash(), tx2.Hash())

	tx3 := &Transaction{Sender: System, Receiver: "02abc", Amount: 6, Timestamp: 10}
	require.NotEqual(t, tx1.Hash(), tx3.Hash())
}

func TestHashChangesWithEveryPreimageField(t *testing.T) {
	base := Transaction{Sender: "sender", Receiver: "receiver", Amount: 1, Timestamp: 2, Token: "VLT", Type: Transfer, Nonce: 3, Fee: 4}
	h0 := base.SigningPreimage()

	variants := []Transaction{base, base, base, base, base, base, base}
	variants[0].Sender = "other"
	variants[1].Receiver = "other"
	variants[2].Amount = 2
	variants[3].Timestamp = 3
	variants[4].Token = "OTHER"
	variants[5].Nonce = 4
	variants[6].Fee = 5

	for i, v := range variants {
		require.NotEqual(t, h0, v.SigningPreimage(), "field %d should change preimage", i)
	}
}
