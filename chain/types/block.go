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

package types

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/tos-network/vlt/crypto"
)

// HeaderVersion is the fixed block header version field.
const HeaderVersion uint32 = 1

// HeaderSize is the exact size in bytes of the Bitcoin-style header:
// version(4) + prev_hash(32) + merkle_root(32) + timestamp(4) + bits(4) + nonce(4).
const HeaderSize = 80

var zeroHash32 = strings.Repeat("0", 64)

// ZeroHash is the genesis previous_hash sentinel: 32 zero bytes, hex.
func ZeroHash() string { return zeroHash32 }

// Block is the 80-byte-header block record.
type Block struct {
	Index          uint64        `json:"index"`
	Timestamp      uint64        `json:"timestamp"`
	PreviousHash   string        `json:"previous_hash"`
	MerkleRoot     string        `json:"merkle_root"`
	Transactions   []Transaction `json:"transactions"`
	ProofOfWork    uint32        `json:"proof_of_work"`
	Difficulty     uint32        `json:"difficulty"`
	Hash           string        `json:"hash"`
	ValidatorStake uint64        `json:"validator_stake"`
}

// NewBlock builds a block with its merkle root and header hash
// populated, so callers never see a block with a stale header hash.
func NewBlock(index uint64, previousHash string, txs []Transaction, difficulty uint32, validatorStake uint64, timestamp uint64) *Block {
	b := &Block{
		Index:          index,
		Timestamp:      timestamp,
		PreviousHash:   previousHash,
		Transactions:   txs,
		Difficulty:     difficulty,
		ValidatorStake: validatorStake,
	}
	b.MerkleRoot = CalculateMerkleRoot(txs)
	b.Hash = b.CalculateHash()
	return b
}

// CalculateMerkleRoot computes the iterative pairwise double-SHA-256
// merkle root over tx hashes, duplicating the last hash on an odd count
// at each level. An empty transaction list roots to 32 zero bytes.
func CalculateMerkleRoot(txs []Transaction) string {
	if len(txs) == 0 {
		return zeroHash32
	}
	level := make([][]byte, len(txs))
	for i := range txs {
		level[i] = txs[i].Hash()
	}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte(nil), level[i]...), level[i+1]...)
			next = append(next, crypto.DoubleSha256(pair))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

// Header serializes the 80-byte Bitcoin-style header:
// version_le32 ∥ prev_hash_le32_reversed ∥ merkle_root ∥ timestamp_le32 ∥ bits_le32 ∥ nonce_le32.
func (b *Block) Header() []byte {
	header := make([]byte, 0, HeaderSize)

	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], HeaderVersion)
	header = append(header, versionBuf[:]...)

	prevBytes := decodeHashOrZero(b.PreviousHash)
	reversed := make([]byte, len(prevBytes))
	for i, v := range prevBytes {
		reversed[len(prevBytes)-1-i] = v
	}
	header = append(header, reversed...)

	header = append(header, decodeHashOrZero(b.MerkleRoot)...)

	var tsBuf [4]byte
	binary.LittleEndian.PutUint32(tsBuf[:], uint32(b.Timestamp))
	header = append(header, tsBuf[:]...)

	var bitsBuf [4]byte
	binary.LittleEndian.PutUint32(bitsBuf[:], b.Difficulty)
	header = append(header, bitsBuf[:]...)

	var nonceBuf [4]byte
	binary.LittleEndian.PutUint32(nonceBuf[:], b.ProofOfWork)
	header = append(header, nonceBuf[:]...)

	return header
}

func decodeHashOrZero(s string) []byte {
	if s == "" {
		return make([]byte, 32)
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return make([]byte, 32)
	}
	return raw
}

// CalculateHash returns the header's double-SHA-256 hex digest.
func (b *Block) CalculateHash() string {
	return crypto.DoubleSha256Hex(b.Header())
}
