package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	hash := DoubleSha256([]byte("hello"))
	sig, err := key.Sign(hash)
	require.NoError(t, err)

	require.True(t, Verify(key.Address(), hash, sig))
}

func TestVerifyRejectsMutatedPreimage(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	hash := DoubleSha256([]byte("original"))
	sig, err := key.Sign(hash)
	require.NoError(t, err)

	mutated := DoubleSha256([]byte("mutated"))
	require.False(t, Verify(key.Address(), mutated, sig))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	require.False(t, Verify("not-hex", make([]byte, 32), "also-not-hex"))
	require.False(t, Verify("", nil, ""))
}

func TestIsValidAddress(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	require.True(t, IsValidAddress(key.Address()))
	require.False(t, IsValidAddress("deadbeef"))
}

func TestDoubleSha256(t *testing.T) {
	a := DoubleSha256Hex([]byte("x"))
	b := DoubleSha256Hex([]byte("x"))
	c := DoubleSha256Hex([]byte("y"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
