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

// Package script implements the fixed-opcode stack machine that verifies
// a transaction's unlock (script_sig) and lock (script_pub_key) scripts.
// It follows the familiar opcode-dispatch shape (a byte-sized OpCode, a
// stack, an execute loop returning pass/fail) but the opcode set is the
// small P2PKH-style set this chain needs, not a general-purpose VM's.
package script

import (
	"encoding/binary"

	"github.com/tos-network/vlt/crypto"
)

// OpCode identifies one script operation. Push carries its payload
// inline rather than as a following data segment (one opcode = one
// node in the op slice).
type OpCode uint8

const (
	OpPush OpCode = iota
	OpDup
	OpHash256
	OpEqualVerify
	OpCheckSig
	OpCheckLockTimeVerify
)

func (op OpCode) String() string {
	switch op {
	case OpPush:
		return "OP_PUSH"
	case OpDup:
		return "OP_DUP"
	case OpHash256:
		return "OP_HASH256"
	case OpEqualVerify:
		return "OP_EQUALVERIFY"
	case OpCheckSig:
		return "OP_CHECKSIG"
	case OpCheckLockTimeVerify:
		return "OP_CHECKLOCKTIMEVERIFY"
	default:
		return "OP_UNKNOWN"
	}
}

// Op is one instruction: an opcode plus its push data, if any.
type Op struct {
	Code OpCode
	Data []byte
}

// Push appends an OpPush instruction carrying data.
func Push(data []byte) Op { return Op{Code: OpPush, Data: data} }

// Script is an ordered sequence of instructions.
type Script struct {
	Ops []Op
}

// New returns an empty script.
func New() Script { return Script{} }

// Append returns a copy of s with op appended, a builder-style push.
func (s Script) Append(op Op) Script {
	out := make([]Op, len(s.Ops), len(s.Ops)+1)
	copy(out, s.Ops)
	out = append(out, op)
	return Script{Ops: out}
}

// Empty reports whether the script carries no instructions.
func (s Script) Empty() bool { return len(s.Ops) == 0 }

// SigningContext is the subset of a transaction the VM needs: the
// canonical pre-image signatures are verified against, and the
// timestamp CheckLockTimeVerify compares to.
type SigningContext interface {
	SigningPreimage() []byte
	TxTimestamp() uint64
}

// P2PKHLockScript builds the default lock script for receiver's public
// key hash: OP_DUP OP_HASH256 <hash> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKHLockScript(receiverPubKey []byte) Script {
	hash := crypto.DoubleSha256(receiverPubKey)
	return New().
		Append(Op{Code: OpDup}).
		Append(Op{Code: OpHash256}).
		Append(Push(hash)).
		Append(Op{Code: OpEqualVerify}).
		Append(Op{Code: OpCheckSig})
}

// UnlockScript builds the default unlock script: <sig> <pubkey>.
func UnlockScript(signatureDER, pubKey []byte) Script {
	return New().Append(Push(signatureDER)).Append(Push(pubKey))
}

// VM is a simple stack machine. The zero value is ready to use.
type VM struct {
	stack [][]byte
}

func (vm *VM) pop() ([]byte, bool) {
	if len(vm.stack) == 0 {
		return nil, false
	}
	top := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return top, true
}

func (vm *VM) push(v []byte) { vm.stack = append(vm.stack, v) }

func (vm *VM) top() ([]byte, bool) {
	if len(vm.stack) == 0 {
		return nil, false
	}
	return vm.stack[len(vm.stack)-1], true
}

var trueByte = []byte{0x01}
var falseByte = []byte{0x00}

// Execute runs unlock followed by lock against ctx, returning true only
// if no opcode failed and the stack's top item is the single byte 0x01.
// It is the enclosing caller's job to reject the transaction on false —
// this function never retries or recovers mid-script.
func Execute(unlock, lock Script, ctx SigningContext) bool {
	vm := &VM{}
	for _, op := range unlock.Ops {
		if !vm.step(op, ctx) {
			return false
		}
	}
	for _, op := range lock.Ops {
		if !vm.step(op, ctx) {
			return false
		}
	}
	top, ok := vm.top()
	if !ok {
		return false
	}
	return len(top) == 1 && top[0] == trueByte[0]
}

func (vm *VM) step(op Op, ctx SigningContext) bool {
	switch op.Code {
	case OpPush:
		vm.push(op.Data)
		return true

	case OpDup:
		top, ok := vm.top()
		if !ok {
			return false
		}
		vm.push(append([]byte(nil), top...))
		return true

	case OpHash256:
		item, ok := vm.pop()
		if !ok {
			return false
		}
		vm.push(crypto.DoubleSha256(item))
		return true

	case OpEqualVerify:
		a, ok1 := vm.pop()
		b, ok2 := vm.pop()
		if !ok1 || !ok2 {
			return false
		}
		return bytesEqual(a, b)

	case OpCheckSig:
		pubKey, ok1 := vm.pop()
		sig, ok2 := vm.pop()
		if !ok1 || !ok2 {
			return false
		}
		valid := crypto.VerifyRaw(pubKey, crypto.DoubleSha256(ctx.SigningPreimage()), sig)
		if valid {
			vm.push(trueByte)
		} else {
			vm.push(falseByte)
		}
		return true

	case OpCheckLockTimeVerify:
		top, ok := vm.top()
		if !ok || len(top) < 8 {
			return false
		}
		lockTime := binary.BigEndian.Uint64(top[len(top)-8:])
		return ctx.TxTimestamp() >= lockTime

	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

