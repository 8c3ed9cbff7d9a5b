package walletkey

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithMnemonicProducesValidAddress(t *testing.T) {
	k, err := NewWithMnemonic()
	require.NoError(t, err)
	require.NotEmpty(t, k.Mnemonic)
	require.NotEmpty(t, k.Address)
	require.Equal(t, k.PrivateKey.Address(), k.Address)
}

func TestPlainKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.key")

	k, err := NewWithMnemonic()
	require.NoError(t, err)
	require.NoError(t, SavePlain(path, k))

	loaded, err := LoadPlain(path)
	require.NoError(t, err)
	require.Equal(t, k.Address, loaded.Address)
	require.Equal(t, k.PrivateKey.Hex(), loaded.PrivateKey.Hex())
	require.Equal(t, k.Mnemonic, loaded.Mnemonic)
}

func TestEncryptedKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.enc")

	k, err := NewWithMnemonic()
	require.NoError(t, err)
	require.NoError(t, SaveEncrypted(path, k, "correct horse battery staple"))

	loaded, err := LoadEncrypted(path, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, k.Address, loaded.Address)
	require.Equal(t, k.PrivateKey.Hex(), loaded.PrivateKey.Hex())
}

func TestEncryptedKeyRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.enc")

	k, err := NewWithMnemonic()
	require.NoError(t, err)
	require.NoError(t, SaveEncrypted(path, k, "correct horse battery staple"))

	_, err = LoadEncrypted(path, "wrong passphrase")
	require.Error(t, err)
}

func TestContactsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.json")

	missing, err := LoadContacts(path)
	require.NoError(t, err)
	require.Empty(t, missing)

	contacts := []Contact{
		{Name: "alice", Address: "02aaaa"},
		{Name: "bob", Address: "02bbbb"},
	}
	require.NoError(t, SaveContacts(path, contacts))

	loaded, err := LoadContacts(path)
	require.NoError(t, err)
	require.Equal(t, contacts, loaded)
}
