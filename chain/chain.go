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

// Package chain is the engine that owns the canonical block list, the
// mempool, and the world state derived from them. Candidate assembly,
// block acceptance and fork-choice all run under a single
// coarse-grained lock, serializing chain mutation.
package chain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/vlt/chain/pow"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/state"
)

// Genesis parameters.
const (
	GenesisTimestamp  uint64 = 1_767_077_203
	GenesisDifficulty uint32 = pow.GenesisBits
	PremineAtomic     uint64 = 1_050_000 * types.AtomicUnitsPerCoin

	// PremineAddress and DevFundAddress are fixed, deterministic
	// addresses baked into the genesis block. They are shaped like
	// compressed secp256k1 public keys for wire compatibility but are
	// never used to sign anything.
	PremineAddress = "02" + "11111111111111111111111111111111111111111111111111111111111111"
	DevFundAddress = "02" + "22222222222222222222222222222222222222222222222222222222222222"

	// BaseBlockReward is the block 0 subsidy, halved every HalvingInterval blocks.
	BaseBlockReward uint64 = 50 * types.AtomicUnitsPerCoin
	HalvingInterval uint64 = 105_000
	MaxHalvings     uint64 = 64

	// DevFeeShare/MinerFeeShare split collected transaction fees.
	DevFeeSharePercent   = 20
	MinerFeeSharePercent = 100 - DevFeeSharePercent

	// StakingInflationDivisor: stakers split blockReward(h)/divisor per block.
	StakingInflationDivisor = 10

	// MaxCandidateTransactions caps how many mempool transactions a
	// mining candidate includes.
	MaxCandidateTransactions = 1800

	// MaxBlockTransactions is the hard DoS cap enforced on every
	// incoming block, candidate or not.
	MaxBlockTransactions = 2000

	// MaxFutureDrift bounds how far a block's timestamp may sit ahead
	// of the local clock before it is rejected outright.
	MaxFutureDrift = 7200

	// InflationSlack is the per-block tolerance added on top of
	// blockReward+fees when bounding SYSTEM-sourced issuance, covering
	// integer-division remainders across the staking payout split.
	InflationSlack = 64
)

// ErrInvalidBlock and ErrStateTransition are the
// coarse classes of rejection submit_block can return; callers that
// need the precise reason should consult the error text.
var (
	ErrInvalidBlock    = errors.New("chain: invalid block")
	ErrStateTransition = errors.New("chain: transaction application failed")
)

// Engine owns the chain's blocks, mempool and world state. All exported
// methods are safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	blocks []*types.Block

	// committed is the world state as of the last accepted block;
	// mempoolState is committed plus every currently-pending
	// transaction's effect applied, the node's "what would happen if
	// this block were mined now" view used for RPC reads, order
	// matching and candidate assembly.
	committed    *state.State
	mempoolState *state.State

	pending     []*types.Transaction
	pendingSeen map[string]bool

	mining atomic.Bool
}

// New builds an Engine seeded with the deterministic genesis block.
func New() *Engine {
	e := &Engine{
		committed:   state.New(),
		pendingSeen: make(map[string]bool),
	}
	e.committed.Balances[PremineAddress] = map[string]uint64{types.NativeToken: PremineAtomic}
	genesisTx := types.Transaction{
		Type: types.Transfer, Sender: types.System, Receiver: PremineAddress,
		Amount: PremineAtomic, Token: types.NativeToken, Timestamp: GenesisTimestamp,
	}
	genesis := types.NewBlock(0, types.ZeroHash(), []types.Transaction{genesisTx}, GenesisDifficulty, 0, GenesisTimestamp)
	e.blocks = []*types.Block{genesis}
	e.mempoolState = e.committed.Clone()
	return e
}

// Height returns the index of the current chain tip.
func (e *Engine) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blocks[len(e.blocks)-1].Index
}

// Tip returns the current chain tip block.
func (e *Engine) Tip() *types.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blocks[len(e.blocks)-1]
}

// Block returns the block at index, or nil if out of range.
func (e *Engine) Block(index uint64) *types.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index >= uint64(len(e.blocks)) {
		return nil
	}
	return e.blocks[index]
}

// State returns the mempool-visible "what-if" world state. Callers
// must not mutate the returned value.
func (e *Engine) State() *state.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mempoolState
}

// blockReward implements the halving schedule: BaseBlockReward >> (height / HalvingInterval),
// zero once MaxHalvings have elapsed.
func blockReward(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= MaxHalvings {
		return 0
	}
	return BaseBlockReward >> halvings
}

// requiredTransferFee is the admission-time fee floor for Transfer
// transactions: max(100_000, amount/1000 + pending_count*100_000_000).
func requiredTransferFee(amount uint64, pendingCount int) uint64 {
	floor := uint64(100_000)
	dynamic := amount/1000 + uint64(pendingCount)*100_000_000
	if dynamic > floor {
		return dynamic
	}
	return floor
}

// AdmitTransaction validates tx and, on success, applies it to the
// mempool-visible state immediately and appends it to the pending
// list. This makes the mempool-visible state authoritative: a second
// transaction from the same sender sees the first one's effects.
func (e *Engine) AdmitTransaction(tx *types.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !tx.VerifyScript() {
		return fmt.Errorf("chain: signature verification failed")
	}
	hash := tx.HashHex()
	if e.pendingSeen[hash] {
		return fmt.Errorf("chain: transaction already pending")
	}

	if tx.Type == types.Transfer && tx.Sender != types.System {
		required := requiredTransferFee(tx.Amount, len(e.pending))
		if tx.Fee < required {
			return fmt.Errorf("chain: fee %d below required %d", tx.Fee, required)
		}
	}

	// Since every admitted transaction is applied to mempoolState
	// immediately, a second Transfer spending the same funds simply
	// sees the first one's debit already reflected here: Apply's own
	// balance check below is the double-spend defense, without needing
	// a separate sum-over-pending pass.
	if !state.Apply(e.mempoolState, tx) {
		return fmt.Errorf("chain: transaction rejected by state transition")
	}
	e.pending = append(e.pending, tx)
	e.pendingSeen[hash] = true
	return nil
}

// PendingCount returns the number of currently-admitted mempool transactions.
func (e *Engine) PendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}

// GetMiningCandidate assembles an unmined block template for miner:
// up to MaxCandidateTransactions mempool transactions, a coinbase
// transaction paying the block subsidy plus the miner's share of
// fees, and one inflation transaction per staker.
func (e *Engine) GetMiningCandidate(miner string, now uint64) *types.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()

	height := e.blocks[len(e.blocks)-1].Index + 1
	txs := e.pending
	if len(txs) > MaxCandidateTransactions {
		txs = txs[:MaxCandidateTransactions]
	}

	var totalFees uint64
	for _, tx := range txs {
		totalFees += tx.Fee
	}
	minerFee := totalFees * MinerFeeSharePercent / 100
	devFee := totalFees - minerFee

	systemTxs := make([]types.Transaction, 0, 2+len(e.committed.Stakes))
	systemTxs = append(systemTxs, types.Transaction{
		Type: types.Transfer, Sender: types.System, Receiver: miner,
		Amount: blockReward(height) + minerFee, Token: types.NativeToken, Timestamp: now,
	})
	if devFee > 0 {
		systemTxs = append(systemTxs, types.Transaction{
			Type: types.Transfer, Sender: types.System, Receiver: DevFundAddress,
			Amount: devFee, Token: types.NativeToken, Timestamp: now,
		})
	}

	var totalStaked uint64
	stakers := make([]string, 0, len(e.committed.Stakes))
	for addr, amt := range e.committed.Stakes {
		if amt == 0 {
			continue
		}
		totalStaked += amt
		stakers = append(stakers, addr)
	}
	sort.Strings(stakers)
	if totalStaked > 0 {
		pool := blockReward(height) / StakingInflationDivisor
		for _, addr := range stakers {
			share := pool * e.committed.Stakes[addr] / totalStaked
			if share == 0 {
				continue
			}
			systemTxs = append(systemTxs, types.Transaction{
				Type: types.Transfer, Sender: types.System, Receiver: addr,
				Amount: share, Token: types.NativeToken, Timestamp: now,
			})
		}
	}

	allTxs := make([]types.Transaction, 0, len(systemTxs)+len(txs))
	allTxs = append(allTxs, systemTxs...)
	for _, tx := range txs {
		allTxs = append(allTxs, *tx)
	}

	difficulty := e.nextDifficultyLocked(height)
	validatorStake := e.committed.Stakes[miner]
	return types.NewBlock(height, e.blocks[len(e.blocks)-1].Hash, allTxs, difficulty, validatorStake, now)
}

// nextDifficultyLocked returns the bits the candidate at height must
// satisfy: unchanged except at each RetargetInterval boundary. Caller
// must hold e.mu.
func (e *Engine) nextDifficultyLocked(height uint64) uint32 {
	tip := e.blocks[len(e.blocks)-1]
	if height%pow.RetargetInterval != 0 || height < pow.RetargetInterval {
		return tip.Difficulty
	}
	first := e.blocks[height-pow.RetargetInterval]
	actual := int64(tip.Timestamp) - int64(first.Timestamp)
	return pow.NextDifficulty(tip.Difficulty, actual)
}

// SubmitBlock validates block against the current tip and, on
// success, commits it atomically: every transaction (system and user)
// is replayed against a fresh clone of the committed state, and the
// clone only replaces the live committed state if every single one
// succeeds, so a transaction failing partway through a block can never
// leave the committed state partially mutated.
func (e *Engine) SubmitBlock(block *types.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tip := e.blocks[len(e.blocks)-1]
	if len(block.Transactions) > MaxBlockTransactions {
		return fmt.Errorf("%w: %d transactions exceeds cap %d", ErrInvalidBlock, len(block.Transactions), MaxBlockTransactions)
	}
	if block.Index != tip.Index+1 {
		return fmt.Errorf("%w: index %d does not follow tip %d", ErrInvalidBlock, block.Index, tip.Index)
	}
	if block.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: previous_hash mismatch", ErrInvalidBlock)
	}
	if block.CalculateHash() != block.Hash {
		return fmt.Errorf("%w: hash does not match header contents", ErrInvalidBlock)
	}
	if block.MerkleRoot != types.CalculateMerkleRoot(block.Transactions) {
		return fmt.Errorf("%w: merkle root mismatch", ErrInvalidBlock)
	}
	wantDifficulty := e.nextDifficultyLocked(block.Index)
	if block.Difficulty != wantDifficulty {
		return fmt.Errorf("%w: difficulty %#x want %#x", ErrInvalidBlock, block.Difficulty, wantDifficulty)
	}
	if block.ValidatorStake > e.committed.Stakes[minerOf(block)] {
		return fmt.Errorf("%w: claimed validator stake exceeds known stake", ErrInvalidBlock)
	}
	required := pow.RequiredLeadingZeros(block.Difficulty, block.ValidatorStake)
	if required > 0 && !pow.MeetsSimplifiedTarget(block.Hash, block.Difficulty, block.ValidatorStake) {
		return fmt.Errorf("%w: proof of work does not meet target", ErrInvalidBlock)
	}
	now := uint64(time.Now().Unix())
	if block.Timestamp < tip.Timestamp {
		return fmt.Errorf("%w: timestamp %d precedes tip %d", ErrInvalidBlock, block.Timestamp, tip.Timestamp)
	}
	if block.Timestamp > now+MaxFutureDrift {
		return fmt.Errorf("%w: timestamp %d too far ahead of now %d", ErrInvalidBlock, block.Timestamp, now)
	}

	seen := make(map[string]bool, len(block.Transactions))
	var totalFees, systemIssued uint64
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		hash := tx.HashHex()
		if seen[hash] {
			return fmt.Errorf("%w: duplicate transaction %d (%s)", ErrInvalidBlock, i, hash)
		}
		seen[hash] = true
		if tx.Sender == types.System {
			systemIssued += tx.Amount
			continue
		}
		if !tx.VerifyScript() {
			return fmt.Errorf("%w: transaction %d (%s) failed signature verification", ErrInvalidBlock, i, hash)
		}
		totalFees += tx.Fee
	}
	issuanceBound := blockReward(block.Index) + blockReward(block.Index)/StakingInflationDivisor + totalFees + InflationSlack
	if systemIssued > issuanceBound {
		return fmt.Errorf("%w: system issuance %d exceeds reward+staking+fees+slack bound %d", ErrInvalidBlock, systemIssued, issuanceBound)
	}

	scratch := e.committed.Clone()
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if !state.Apply(scratch, tx) {
			return fmt.Errorf("%w: transaction %d (%s)", ErrStateTransition, i, tx.Type)
		}
	}

	e.committed = scratch
	e.blocks = append(e.blocks, block)
	e.pruneMempoolLocked(block.Transactions)
	return nil
}

// FindTransaction searches the canonical chain for a transaction by
// hash, most-recent block first, returning its containing block's
// index alongside it.
func (e *Engine) FindTransaction(hashHex string) (*types.Transaction, uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := len(e.blocks) - 1; i >= 0; i-- {
		b := e.blocks[i]
		for j := range b.Transactions {
			if b.Transactions[j].HashHex() == hashHex {
				return &b.Transactions[j], b.Index, true
			}
		}
	}
	return nil, 0, false
}

// SetMining toggles whether this node's embedded solo miner loop should
// be actively searching for blocks.
func (e *Engine) SetMining(on bool) { e.mining.Store(on) }

// Mining reports whether the embedded solo miner loop is enabled.
func (e *Engine) Mining() bool { return e.mining.Load() }

// Chain returns the full canonical block list, used to serve chain-sync
// requests from peers that suspect they are on a stale fork.
func (e *Engine) Chain() []*types.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Block, len(e.blocks))
	copy(out, e.blocks)
	return out
}

// AttemptChainReplacement validates candidate as a complete chain from
// genesis and, if it is valid and strictly longer than the current
// chain, replaces the local chain and committed state with it. This is
// the node's fork-choice rule: the longest valid chain wins and ties
// keep the incumbent, so a peer's equal-length fork is never adopted.
func (e *Engine) AttemptChainReplacement(candidate []*types.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(candidate) <= len(e.blocks) {
		return fmt.Errorf("%w: candidate length %d does not exceed current %d", ErrInvalidBlock, len(candidate), len(e.blocks))
	}
	if len(candidate) == 0 || candidate[0].Hash != e.blocks[0].Hash {
		return fmt.Errorf("%w: candidate genesis does not match", ErrInvalidBlock)
	}

	now := uint64(time.Now().Unix())
	scratch := state.New()
	var prev *types.Block
	for i, block := range candidate {
		if uint64(i) != block.Index {
			return fmt.Errorf("%w: block at position %d carries index %d", ErrInvalidBlock, i, block.Index)
		}
		if len(block.Transactions) > MaxBlockTransactions {
			return fmt.Errorf("%w: block %d exceeds transaction cap", ErrInvalidBlock, i)
		}
		if block.CalculateHash() != block.Hash {
			return fmt.Errorf("%w: block %d hash does not match header contents", ErrInvalidBlock, i)
		}
		if block.MerkleRoot != types.CalculateMerkleRoot(block.Transactions) {
			return fmt.Errorf("%w: block %d merkle root mismatch", ErrInvalidBlock, i)
		}
		if prev != nil {
			if block.PreviousHash != prev.Hash {
				return fmt.Errorf("%w: block %d previous_hash mismatch", ErrInvalidBlock, i)
			}
			if block.Timestamp < prev.Timestamp {
				return fmt.Errorf("%w: block %d timestamp precedes parent", ErrInvalidBlock, i)
			}
		}
		if block.Timestamp > now+MaxFutureDrift {
			return fmt.Errorf("%w: block %d timestamp too far ahead of now", ErrInvalidBlock, i)
		}

		seen := make(map[string]bool, len(block.Transactions))
		var totalFees, systemIssued uint64
		for j := range block.Transactions {
			tx := &block.Transactions[j]
			hash := tx.HashHex()
			if seen[hash] {
				return fmt.Errorf("%w: block %d duplicate transaction %d", ErrInvalidBlock, i, j)
			}
			seen[hash] = true
			if tx.Sender == types.System {
				systemIssued += tx.Amount
				continue
			}
			if !tx.VerifyScript() {
				return fmt.Errorf("%w: block %d transaction %d failed signature verification", ErrInvalidBlock, i, j)
			}
			totalFees += tx.Fee
		}
		if i > 0 {
			issuanceBound := blockReward(block.Index) + blockReward(block.Index)/StakingInflationDivisor + totalFees + InflationSlack
			if systemIssued > issuanceBound {
				return fmt.Errorf("%w: block %d system issuance exceeds reward+staking+fees+slack bound", ErrInvalidBlock, i)
			}
		}
		for j := range block.Transactions {
			if !state.Apply(scratch, &block.Transactions[j]) {
				return fmt.Errorf("%w: block %d transaction %d (%s)", ErrStateTransition, i, j, block.Transactions[j].Type)
			}
		}
		prev = block
	}

	var allConfirmed []types.Transaction
	for _, block := range candidate {
		allConfirmed = append(allConfirmed, block.Transactions...)
	}
	e.blocks = append([]*types.Block(nil), candidate...)
	e.committed = scratch
	e.pruneMempoolLocked(allConfirmed)
	return nil
}

// minerOf returns the recipient of a candidate block's first
// (coinbase) transaction, the canonical way to identify who mined it.
func minerOf(block *types.Block) string {
	if len(block.Transactions) == 0 {
		return ""
	}
	return block.Transactions[0].Receiver
}

// pruneMempoolLocked drops now-confirmed transactions from the pending
// list and rebuilds mempoolState from the freshly committed state,
// re-applying whatever remains pending and silently dropping any that
// no longer apply cleanly. Caller must hold e.mu.
func (e *Engine) pruneMempoolLocked(confirmed []types.Transaction) {
	confirmedHashes := make(map[string]bool, len(confirmed))
	for i := range confirmed {
		confirmedHashes[confirmed[i].HashHex()] = true
	}

	remaining := e.pending[:0]
	for _, tx := range e.pending {
		if !confirmedHashes[tx.HashHex()] {
			remaining = append(remaining, tx)
		} else {
			delete(e.pendingSeen, tx.HashHex())
		}
	}
	e.pending = remaining

	fresh := e.committed.Clone()
	survivors := e.pending[:0]
	for _, tx := range e.pending {
		if state.Apply(fresh, tx) {
			survivors = append(survivors, tx)
		} else {
			delete(e.pendingSeen, tx.HashHex())
		}
	}
	e.pending = survivors
	e.mempoolState = fresh
}
