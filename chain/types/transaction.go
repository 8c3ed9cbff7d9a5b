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

// Package types defines the wire-level transaction and block records.
// The transaction schema intentionally keeps a flat, overloaded layout
// (token/receiver carry different meanings per variant) for wire
// compatibility with existing chain data; typed accessors live alongside
// the raw fields rather than replacing them.
package types

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/tos-network/vlt/crypto"
	"github.com/tos-network/vlt/script"
)

// TxType is the transaction variant discriminant.
type TxType uint8

const (
	Transfer TxType = iota
	IssueToken
	Stake
	Unstake
	Burn
	PlaceOrder
	CancelOrder
	AddLiquidity
	RemoveLiquidity
	Swap
	IssueNFT
	TransferNFT
	BurnNFT
)

func (t TxType) String() string {
	switch t {
	case Transfer:
		return "Transfer"
	case IssueToken:
		return "IssueToken"
	case Stake:
		return "Stake"
	case Unstake:
		return "Unstake"
	case Burn:
		return "Burn"
	case PlaceOrder:
		return "PlaceOrder"
	case CancelOrder:
		return "CancelOrder"
	case AddLiquidity:
		return "AddLiquidity"
	case RemoveLiquidity:
		return "RemoveLiquidity"
	case Swap:
		return "Swap"
	case IssueNFT:
		return "IssueNFT"
	case TransferNFT:
		return "TransferNFT"
	case BurnNFT:
		return "BurnNFT"
	default:
		return "Unknown"
	}
}

// Sentinel senders/receivers.
const (
	System       = "SYSTEM"
	SentinelBurn = "BURN"
	SentinelStakeSystem = "STAKE_SYSTEM"
	SentinelDexBuy      = "DEX_BUY"
	SentinelDexSell     = "DEX_SELL"
	SentinelDexCancel   = "DEX_CANCEL"
	SentinelSwapAToB    = "SWAP_A_TO_B"

	NativeToken = "VLT"
	// AtomicUnitsPerCoin: 10^8 atomic units per VLT.
	AtomicUnitsPerCoin = 100_000_000
)

// Transaction is the flat, tagged-variant wire record: every variant's
// fields are overloaded onto the same struct so the P2P wire format
// stays a single JSON shape across all thirteen transaction types.
type Transaction struct {
	Type      TxType `json:"tx_type"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    uint64 `json:"amount"`
	Token     string `json:"token"`
	Price     uint64 `json:"price"`
	Timestamp uint64 `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Fee       uint64 `json:"fee"`
	Signature string `json:"signature"`

	ScriptPubKey script.Script `json:"script_pub_key"`
	ScriptSig    script.Script `json:"script_sig"`
}

// SigningPreimage returns the canonical bytes hashed before signing:
// sender ∥ receiver ∥ amount_le64 ∥ timestamp_le64 ∥ token ∥
// type_byte ∥ nonce_le64 ∥ fee_le64. Signature, scripts and price are
// deliberately excluded. Callers must hash this with crypto.DoubleSha256
// before signing or verifying — Sign/VerifySignature never pass it
// through raw, since it is typically far longer than the 32-byte digest
// the signature primitives require.
func (tx *Transaction) SigningPreimage() []byte {
	buf := make([]byte, 0, len(tx.Sender)+len(tx.Receiver)+len(tx.Token)+33)
	buf = append(buf, tx.Sender...)
	buf = append(buf, tx.Receiver...)
	buf = appendUint64LE(buf, tx.Amount)
	buf = appendUint64LE(buf, tx.Timestamp)
	buf = append(buf, tx.Token...)
	buf = append(buf, byte(tx.Type))
	buf = appendUint64LE(buf, tx.Nonce)
	buf = appendUint64LE(buf, tx.Fee)
	return buf
}

// TxTimestamp implements script.SigningContext.
func (tx *Transaction) TxTimestamp() uint64 { return tx.Timestamp }

func appendUint64LE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Hash returns the transaction's identity hash used for merkle leaves,
// the addr_index, and the transactions store key.
//
// For a SYSTEM-sourced transaction whose script_sig is exactly one
// OpPush, the hash is double-SHA-256 of that pushed blob rather than the
// standard serialization — this lets a Stratum-submitted coinbase with
// externally-chosen extranonce bytes hash identically to what the miner
// computed, so the merkle root the pool and the miner derive matches.
// This lets a pool-issued coinbase hash identically for pool and miner
// without either side needing to reconstruct the other's nonce bytes.
func (tx *Transaction) Hash() []byte {
	if tx.Sender == System {
		if len(tx.ScriptSig.Ops) == 1 && tx.ScriptSig.Ops[0].Code == script.OpPush {
			return crypto.DoubleSha256(tx.ScriptSig.Ops[0].Data)
		}
		buf := make([]byte, 0, len(tx.Sender)+len(tx.Receiver)+16)
		buf = append(buf, tx.Sender...)
		buf = append(buf, tx.Receiver...)
		buf = appendUint64LE(buf, tx.Amount)
		buf = appendUint64LE(buf, tx.Timestamp)
		return crypto.DoubleSha256(buf)
	}
	return crypto.DoubleSha256(tx.SigningPreimage())
}

// HashHex is Hash rendered as lowercase hex.
func (tx *Transaction) HashHex() string {
	return hex.EncodeToString(tx.Hash())
}

// Sign populates Signature and ScriptSig from key. Not valid for a
// SYSTEM-sourced transaction (sender == SYSTEM is exempt from signature
// verification).
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	sig, err := key.Sign(crypto.DoubleSha256(tx.SigningPreimage()))
	if err != nil {
		return err
	}
	tx.Signature = sig
	sigBytes, _ := hex.DecodeString(sig)
	pubKeyBytes, _ := hex.DecodeString(key.Address())
	tx.ScriptSig = script.UnlockScript(sigBytes, pubKeyBytes)
	return nil
}

// VerifySignature checks tx.Signature against tx.Sender's public key
// over the canonical pre-image. SYSTEM transactions always verify (they
// carry no signature by construction).
func (tx *Transaction) VerifySignature() bool {
	if tx.Sender == System {
		return true
	}
	return crypto.Verify(tx.Sender, crypto.DoubleSha256(tx.SigningPreimage()), tx.Signature)
}

// VerifyScript runs script_sig then script_pub_key through the script
// VM, falling back to plain signature verification when either script is
// empty (most transactions never populate scripts explicitly).
func (tx *Transaction) VerifyScript() bool {
	if tx.ScriptSig.Empty() || tx.ScriptPubKey.Empty() {
		return tx.VerifySignature()
	}
	return script.Execute(tx.ScriptSig, tx.ScriptPubKey, tx)
}

// OrderSide decodes the overloaded receiver field for PlaceOrder
// transactions.
type OrderSide uint8

const (
	SideBuy OrderSide = iota
	SideSell
)

// Side returns the PlaceOrder side carried in Receiver.
func (tx *Transaction) Side() OrderSide {
	if tx.Receiver == SentinelDexBuy {
		return SideBuy
	}
	return SideSell
}

// PoolID returns the "A/B" pool id carried in Token for AMM variants.
func (tx *Transaction) PoolID() string { return tx.Token }

// OrderID returns the order id carried in Token for CancelOrder.
func (tx *Transaction) OrderID() string { return tx.Token }
