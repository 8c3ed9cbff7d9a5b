// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package walletkey manages a node operator's signing key: a BIP-39
// mnemonic-derived secp256k1 key, stored either as wallet.key
// (plaintext, for disposable/test identities) or wallet.enc (an
// scrypt+nacl/secretbox sealed blob), alongside a contacts.json
// address book. This pares an EVM/ed25519-flexible keystore record
// down to this chain's one signer type.
package walletkey

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/tos-network/vlt/crypto"
)

// Key is a single wallet identity.
type Key struct {
	ID         uuid.UUID `json:"id"`
	Address    string    `json:"address"`
	PrivateKey *crypto.PrivateKey
	Mnemonic   string `json:"mnemonic,omitempty"`
}

// plainKeyJSON is wallet.key's on-disk shape: no encryption, used for
// throwaway local/test identities.
type plainKeyJSON struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
	Mnemonic   string `json:"mnemonic,omitempty"`
}

// encryptedKeyJSON is wallet.enc's on-disk shape.
type encryptedKeyJSON struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Salt    string `json:"salt"`
	Nonce   string `json:"nonce"`
	Cipher  string `json:"cipher"`
}

const (
	scryptN      = 1 << 18
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// NewWithMnemonic generates a fresh 24-word BIP-39 mnemonic and derives
// a key from it.
func NewWithMnemonic() (*Key, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv, err := crypto.PrivateKeyFromHex(hex.EncodeToString(seed[:32]))
	if err != nil {
		return nil, err
	}
	return &Key{ID: uuid.New(), Address: priv.Address(), PrivateKey: priv, Mnemonic: mnemonic}, nil
}

// SavePlain writes wallet.key, an unencrypted JSON record. Intended
// for local development and test networks only.
func SavePlain(path string, k *Key) error {
	raw, err := json.MarshalIndent(plainKeyJSON{
		ID: k.ID.String(), Address: k.Address, PrivateKey: k.PrivateKey.Hex(), Mnemonic: k.Mnemonic,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// LoadPlain reads back a wallet.key file written by SavePlain.
func LoadPlain(path string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pk plainKeyJSON
	if err := json.Unmarshal(raw, &pk); err != nil {
		return nil, err
	}
	priv, err := crypto.PrivateKeyFromHex(pk.PrivateKey)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(pk.ID)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Address: pk.Address, PrivateKey: priv, Mnemonic: pk.Mnemonic}, nil
}

// SaveEncrypted writes wallet.enc, a passphrase-sealed blob: an
// scrypt-stretched key feeding nacl/secretbox (XSalsa20-Poly1305).
func SaveEncrypted(path string, k *Key, passphrase string) error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return err
	}
	var secretKey [32]byte
	copy(secretKey[:], derived)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	plaintext := k.PrivateKey.Hex()
	sealed := secretbox.Seal(nil, []byte(plaintext), &nonce, &secretKey)

	raw, err := json.MarshalIndent(encryptedKeyJSON{
		ID:      k.ID.String(),
		Address: k.Address,
		Salt:    hex.EncodeToString(salt),
		Nonce:   hex.EncodeToString(nonce[:]),
		Cipher:  hex.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// LoadEncrypted decrypts a wallet.enc file with passphrase.
func LoadEncrypted(path, passphrase string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ek encryptedKeyJSON
	if err := json.Unmarshal(raw, &ek); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(ek.Salt)
	if err != nil {
		return nil, err
	}
	nonceBytes, err := hex.DecodeString(ek.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("walletkey: invalid nonce")
	}
	cipherBytes, err := hex.DecodeString(ek.Cipher)
	if err != nil {
		return nil, err
	}

	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, err
	}
	var secretKey [32]byte
	copy(secretKey[:], derived)
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	plaintext, ok := secretbox.Open(nil, cipherBytes, &nonce, &secretKey)
	if !ok {
		return nil, fmt.Errorf("walletkey: wrong passphrase")
	}
	priv, err := crypto.PrivateKeyFromHex(string(plaintext))
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(ek.ID)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Address: ek.Address, PrivateKey: priv}, nil
}

// Contact is one contacts.json address book entry.
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// LoadContacts reads contacts.json, returning an empty slice if the
// file does not exist yet.
func LoadContacts(path string) ([]Contact, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var contacts []Contact
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// SaveContacts overwrites contacts.json with contacts.
func SaveContacts(path string, contacts []Contact) error {
	raw, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}
