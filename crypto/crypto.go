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

// Package crypto wraps the secp256k1 primitives the chain needs: double
// SHA-256 hashing, DER-encoded ECDSA signing/verification, and the hex
// address encoding used for accounts.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sha256 returns the single SHA-256 digest of data.
func Sha256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// DoubleSha256 returns SHA-256(SHA-256(data)), the hash used for block
// headers, transaction identities and merkle nodes.
func DoubleSha256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleSha256Hex is DoubleSha256 rendered as lowercase hex.
func DoubleSha256Hex(data []byte) string {
	return hex.EncodeToString(DoubleSha256(data))
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a 32-byte hex-encoded scalar into a PrivateKey.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes")
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return &PrivateKey{key: key}, nil
}

// Hex renders the private scalar as hex. Callers are responsible for
// keeping this out of logs and wire messages.
func (p *PrivateKey) Hex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// Address returns the hex-encoded 33-byte compressed public key that
// serves as this key's on-chain address.
func (p *PrivateKey) Address() string {
	return hex.EncodeToString(p.key.PubKey().SerializeCompressed())
}

// Sign produces a DER-encoded, hex-rendered ECDSA signature over hash
// (the 32-byte digest of the transaction's canonical signing pre-image).
func (p *PrivateKey) Sign(hash []byte) (string, error) {
	if len(hash) != 32 {
		return "", errors.New("crypto: sign expects a 32-byte digest")
	}
	sig := ecdsa.Sign(p.key, hash)
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex DER signature over hash against a hex-encoded
// compressed public key (the address). It never panics: malformed input
// of any kind yields false.
func Verify(address string, hash []byte, signatureHex string) bool {
	pubKeyBytes, err := hex.DecodeString(address)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return VerifyRaw(pubKeyBytes, hash, sigBytes)
}

// VerifyRaw is Verify over already-decoded bytes, used by the script VM
// where the pubkey/signature arrive as raw stack items rather than hex.
func VerifyRaw(pubKeyBytes, hash, sigBytes []byte) bool {
	if len(hash) != 32 {
		return false
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}

// IsValidAddress reports whether s decodes to a 33-byte compressed
// secp256k1 public key.
func IsValidAddress(s string) bool {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 33 {
		return false
	}
	_, err = btcec.ParsePubKey(raw)
	return err == nil
}
