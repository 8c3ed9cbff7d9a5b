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

// Package stratum implements the pool-facing mining protocol: a
// JSON-RPC 1.0, line-delimited session with mining.subscribe,
// mining.authorize and mining.submit from the client and
// mining.notify/mining.set_difficulty from the server, plus
// PPS/PPLNS/SOLO/FPPS payout policies. The job/share-validator split
// follows the usual pool-server shape, generalized to this account
// model's simplified leading-zero proof check instead of raw Bitcoin
// block serialization.
package stratum

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/chain/pow"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/crypto"
	"github.com/tos-network/vlt/log"
	"github.com/tos-network/vlt/script"
	"github.com/tos-network/vlt/storage"
	"github.com/tos-network/vlt/walletkey"
)

// PayoutMode selects how a pool credits its miners.
type PayoutMode string

const (
	ModePPS   PayoutMode = "pps"
	ModePPLNS PayoutMode = "pplns"
	ModeSolo  PayoutMode = "solo"
	ModeFPPS  PayoutMode = "fpps"
)

const (
	// NotifyTick is how often an idle session is nudged with a fresh job.
	NotifyTick = 500 * time.Millisecond
	// PeriodicRefresh forces a brand new job (clean_jobs=true) even if
	// the chain tip hasn't moved, so stale mempool snapshots don't linger.
	PeriodicRefresh = 30 * time.Second

	extraNonce1Size = 4
	extraNonce2Size = 4

	// PPLNSWindow is how many recent shares the PPLNS policy considers
	// when a block is found.
	PPLNSWindow = 10_000

	// PayoutSweepTick is how often PPS/FPPS unpaid balances are swept
	// into real on-chain transfers.
	PayoutSweepTick = 60 * time.Second

	// PayoutThreshold is the accrued-atomic-unit balance a miner must
	// cross under PPS/FPPS before a sweep pays them out.
	PayoutThreshold = 100_000_000

	// poolPayoutFee is the flat fee attached to every pool-issued payout
	// transfer, matching requiredTransferFee's floor.
	poolPayoutFee = 100_000
)

// jsonRPCRequest is a JSON-RPC 1.0 request/notification frame.
type jsonRPCRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// jsonRPCResponse is a JSON-RPC 1.0 response frame.
type jsonRPCResponse struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

// Share is one accepted submission, tracked for PPLNS accounting.
type Share struct {
	Miner      string
	Difficulty float64
	Timestamp  uint64
}

// Job is a mining template handed to sessions via mining.notify. The
// coinbase transaction (Block.Transactions[0]) carries no script_sig
// yet; sessions fill it in from their assigned extranonce1 plus the
// miner-chosen extranonce2 at submit time.
type Job struct {
	ID    string
	Block *types.Block
}

// Session is one miner connection.
type Session struct {
	id          string
	conn        net.Conn
	writer      *bufio.Writer
	mu          sync.Mutex
	authorized  bool
	minerAddr   string
	extraNonce1 string
	difficulty  float64
	currentJob  string
	seen        map[string]bool
}

func (s *Session) sendResult(id interface{}, result interface{}) error {
	return s.write(jsonRPCResponse{ID: id, Result: result})
}

func (s *Session) sendError(id interface{}, msg string) error {
	return s.write(jsonRPCResponse{ID: id, Error: msg})
}

func (s *Session) notify(method string, params []interface{}) error {
	return s.write(jsonRPCRequest{ID: nil, Method: method, Params: params})
}

func (s *Session) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.writer.Write(raw); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Pool runs one payout-mode-specific Stratum listener over a shared
// chain engine.
type Pool struct {
	mode       PayoutMode
	listenAddr string
	engine     *chain.Engine
	store      *storage.Store

	poolKey   *crypto.PrivateKey
	poolNonce atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*Session
	jobs     map[string]*Job
	nextJob  uint64
	window   []Share

	payoutMu   sync.Mutex
	unpaid     map[string]uint64 // PPS/FPPS: accrued, not-yet-swept atomic units per miner
	roundShare map[string]float64 // FPPS: share-difficulty accrued since the last block, for fee splitting

	nextSession atomic.Uint64
}

// NewPool builds a Stratum listener for mode over engine, persisting
// payouts via store. keyPath names the plaintext wallet-key file
// holding the pool's signing key for PPS/FPPS/PPLNS payouts; it is
// created with a fresh key the first time the pool runs.
func NewPool(mode PayoutMode, listenAddr string, engine *chain.Engine, store *storage.Store, keyPath string) *Pool {
	p := &Pool{
		mode:       mode,
		listenAddr: listenAddr,
		engine:     engine,
		store:      store,
		sessions:   make(map[string]*Session),
		jobs:       make(map[string]*Job),
		unpaid:     make(map[string]uint64),
		roundShare: make(map[string]float64),
	}
	key, err := loadOrCreatePoolKey(keyPath)
	if err != nil {
		log.Error("stratum: pool key unavailable, payouts will not be emitted", "mode", mode, "err", err)
		return p
	}
	p.poolKey = key.PrivateKey
	p.poolNonce.Store(engine.State().Nonces[key.Address])
	return p
}

// loadOrCreatePoolKey reads the pool's signing key from path, minting
// and persisting a fresh one the first time it is called.
func loadOrCreatePoolKey(path string) (*walletkey.Key, error) {
	if _, err := os.Stat(path); err == nil {
		return walletkey.LoadPlain(path)
	}
	key, err := walletkey.NewWithMnemonic()
	if err != nil {
		return nil, err
	}
	if err := walletkey.SavePlain(path, key); err != nil {
		return nil, err
	}
	log.Info("stratum: generated a new pool key", "path", path, "address", key.Address)
	return key, nil
}

// Listen accepts connections until the listener errors.
func (p *Pool) Listen() error {
	ln, err := net.Listen("tcp", p.listenAddr)
	if err != nil {
		return fmt.Errorf("stratum: listen %s: %w", p.listenAddr, err)
	}
	log.Info("stratum pool listening", "mode", p.mode, "addr", p.listenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go p.handleConn(conn)
	}
}

// RunNotifier periodically pushes a fresh job to every session: every
// NotifyTick if the chain tip advanced, and unconditionally (with
// clean_jobs) every PeriodicRefresh.
func (p *Pool) RunNotifier(stop <-chan struct{}) {
	tick := time.NewTicker(NotifyTick)
	defer tick.Stop()
	refresh := time.NewTicker(PeriodicRefresh)
	defer refresh.Stop()

	var lastHeight uint64
	for {
		select {
		case <-stop:
			return
		case <-refresh.C:
			p.broadcastJob(true)
		case <-tick.C:
			if h := p.engine.Height(); h != lastHeight {
				lastHeight = h
				p.broadcastJob(true)
			}
		}
	}
}

func (p *Pool) handleConn(conn net.Conn) {
	defer conn.Close()
	sess := &Session{
		id:          fmt.Sprintf("%d", p.nextSession.Add(1)),
		conn:        conn,
		writer:      bufio.NewWriter(conn),
		extraNonce1: randHex(extraNonce1Size),
		difficulty:  1,
		seen:        make(map[string]bool),
	}
	p.mu.Lock()
	p.sessions[sess.id] = sess
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sess.id)
		p.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8*1024), 1<<20)
	for scanner.Scan() {
		var req jsonRPCRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		p.handleRequest(sess, req)
	}
}

func (p *Pool) handleRequest(sess *Session, req jsonRPCRequest) {
	switch req.Method {
	case "mining.subscribe":
		sess.sendResult(req.ID, []interface{}{
			[]interface{}{[]interface{}{"mining.notify", sess.id}},
			sess.extraNonce1,
			extraNonce2Size,
		})
		p.sendJobTo(sess, true)

	case "mining.authorize":
		if len(req.Params) < 1 {
			sess.sendError(req.ID, "missing username")
			return
		}
		username, _ := req.Params[0].(string)
		sess.mu.Lock()
		sess.authorized = true
		sess.minerAddr = username
		sess.mu.Unlock()
		sess.sendResult(req.ID, true)

	case "mining.submit":
		ok, reason := p.handleSubmit(sess, req.Params)
		if !ok {
			sess.sendError(req.ID, reason)
			return
		}
		sess.sendResult(req.ID, true)

	default:
		sess.sendError(req.ID, "unknown method")
	}
}

// handleSubmit validates a (username, job_id, extranonce2, ntime, nonce)
// submission, classifies it as duplicate/valid/block-solving, and on a
// block solution assembles the final block and submits it to the
// chain engine.
func (p *Pool) handleSubmit(sess *Session, params []interface{}) (bool, string) {
	if len(params) < 5 {
		return false, "malformed submit"
	}
	jobID, _ := params[1].(string)
	extraNonce2Hex, _ := params[2].(string)
	ntimeHex, _ := params[3].(string)
	nonceHex, _ := params[4].(string)

	p.mu.Lock()
	job, ok := p.jobs[jobID]
	p.mu.Unlock()
	if !ok {
		return false, "job not found"
	}

	dupKey := extraNonce2Hex + ":" + nonceHex
	sess.mu.Lock()
	if sess.seen[dupKey] {
		sess.mu.Unlock()
		return false, "duplicate share"
	}
	sess.seen[dupKey] = true
	minerAddr := sess.minerAddr
	authorized := sess.authorized
	sess.mu.Unlock()
	if !authorized {
		return false, "not authorized"
	}

	candidate := cloneBlock(job.Block)
	extraNonce2, err := hex.DecodeString(extraNonce2Hex)
	if err != nil {
		return false, "bad extranonce2"
	}
	coinb1, coinb2 := coinbaseSplit(&job.Block.Transactions[0])
	blob := append(append([]byte{}, coinb1...), mustDecodeHex(sess.extraNonce1)...)
	blob = append(append(blob, extraNonce2...), coinb2...)
	candidate.Transactions[0].ScriptSig = script.New().Append(script.Push(blob))
	candidate.Transactions[0].Receiver = minerAddr
	candidate.MerkleRoot = types.CalculateMerkleRoot(candidate.Transactions)

	if ntime, err := strconv.ParseUint(ntimeHex, 16, 64); err == nil {
		candidate.Timestamp = ntime
	}
	if nonce, err := strconv.ParseUint(nonceHex, 16, 32); err == nil {
		candidate.ProofOfWork = uint32(nonce)
	} else {
		return false, "bad nonce"
	}
	candidate.Hash = candidate.CalculateHash()

	shareDifficulty := difficultyOf(candidate.Hash)
	if shareDifficulty < sess.difficulty {
		return false, "share below session difficulty"
	}
	p.recordShare(minerAddr, shareDifficulty)

	if pow.MeetsSimplifiedTarget(candidate.Hash, candidate.Difficulty, candidate.ValidatorStake) {
		if err := p.engine.SubmitBlock(candidate); err != nil {
			log.Warn("stratum: block solution rejected", "err", err)
			return true, ""
		}
		p.payoutOnBlock(candidate, minerAddr)
		p.broadcastJob(true)
	}
	return true, ""
}

// difficultyOf scores a hash by its leading zero hex digits, a coarse
// stand-in for the real target ratio, sufficient for session
// difficulty comparisons and PPLNS share weighting.
func difficultyOf(hashHex string) float64 {
	n := 0
	for n < len(hashHex) && hashHex[n] == '0' {
		n++
	}
	return float64(uint64(1) << uint(n*4))
}

func (p *Pool) recordShare(miner string, difficulty float64) {
	share := Share{Miner: miner, Difficulty: difficulty, Timestamp: uint64(len(p.window))}

	switch p.mode {
	case ModePPS, ModeFPPS:
		// PPS/FPPS credit every share immediately, independent of
		// whether its block is ever found; payoutSweep turns the
		// accrual into a real transfer once it crosses PayoutThreshold.
		earned := uint64(difficulty * ppsRateAtomicPerShare)
		p.creditLedger(miner, earned)
		p.payoutMu.Lock()
		p.unpaid[miner] += earned
		if p.mode == ModeFPPS {
			p.roundShare[miner] += difficulty
		}
		p.payoutMu.Unlock()
	case ModePPLNS:
		p.mu.Lock()
		p.window = append(p.window, share)
		if len(p.window) > PPLNSWindow {
			p.window = p.window[len(p.window)-PPLNSWindow:]
		}
		p.mu.Unlock()
	case ModeSolo:
		// Solo shares are not separately paid; only the block finder earns.
	}
}

// ppsRateAtomicPerShare is the fixed VLT-atomic payout per unit of
// share difficulty under PPS/FPPS, independent of whether the share's
// block is ever found.
const ppsRateAtomicPerShare = 10

func (p *Pool) creditLedger(miner string, amount uint64) {
	if amount == 0 || p.store == nil {
		return
	}
	current, err := p.store.MinerLedgerEntry(string(p.mode), miner)
	if err != nil {
		log.Warn("stratum: ledger read failed", "err", err)
		return
	}
	if err := p.store.PutMinerLedgerEntry(string(p.mode), miner, current+amount); err != nil {
		log.Warn("stratum: ledger write failed", "err", err)
	}
}

// payoutOnBlock applies the PPLNS and SOLO policies once a block is
// actually found, emitting real signed transfers from the pool
// address; PPS/FPPS already accrued per-share in recordShare and are
// paid out by payoutSweep. FPPS additionally splits the block's
// collected fees across this round's contributors.
func (p *Pool) payoutOnBlock(block *types.Block, finder string) {
	reward := block.Transactions[0].Amount
	switch p.mode {
	case ModeSolo:
		p.creditLedger(finder, reward)
		if err := p.payTransfer(finder, reward); err != nil {
			log.Warn("stratum: solo payout failed", "miner", finder, "err", err)
		}
	case ModePPLNS:
		p.mu.Lock()
		window := append([]Share(nil), p.window...)
		p.mu.Unlock()
		var total float64
		byMiner := make(map[string]float64)
		for _, s := range window {
			total += s.Difficulty
			byMiner[s.Miner] += s.Difficulty
		}
		if total == 0 {
			p.creditLedger(finder, reward)
			if err := p.payTransfer(finder, reward); err != nil {
				log.Warn("stratum: pplns payout failed", "miner", finder, "err", err)
			}
			return
		}
		for miner, weight := range byMiner {
			amount := uint64(float64(reward) * weight / total)
			p.creditLedger(miner, amount)
			if err := p.payTransfer(miner, amount); err != nil {
				log.Warn("stratum: pplns payout failed", "miner", miner, "err", err)
			}
		}
	case ModeFPPS:
		var totalFees uint64
		for i := range block.Transactions {
			tx := &block.Transactions[i]
			if tx.Sender != types.System {
				totalFees += tx.Fee
			}
		}
		if totalFees == 0 {
			return
		}
		p.payoutMu.Lock()
		round := p.roundShare
		p.roundShare = make(map[string]float64)
		p.payoutMu.Unlock()
		var total float64
		for _, w := range round {
			total += w
		}
		if total == 0 {
			return
		}
		p.payoutMu.Lock()
		for miner, weight := range round {
			p.unpaid[miner] += uint64(float64(totalFees) * weight / total)
		}
		p.payoutMu.Unlock()
	}
}

// payTransfer constructs, signs and submits a Transfer from the pool's
// own address to receiver, using a strictly-increasing local nonce
// counter seeded from the chain's view of the pool address at startup.
func (p *Pool) payTransfer(receiver string, amount uint64) error {
	if p.poolKey == nil {
		return fmt.Errorf("stratum: pool %s has no signing key loaded", p.mode)
	}
	if amount == 0 {
		return nil
	}
	tx := &types.Transaction{
		Type:      types.Transfer,
		Sender:    p.poolKey.Address(),
		Receiver:  receiver,
		Amount:    amount,
		Token:     types.NativeToken,
		Timestamp: uint64(time.Now().Unix()),
		Nonce:     p.poolNonce.Add(1),
		Fee:       poolPayoutFee,
	}
	if err := tx.Sign(p.poolKey); err != nil {
		return err
	}
	return p.engine.AdmitTransaction(tx)
}

// RunPayoutSweep periodically pays out every PPS/FPPS miner whose
// accrued, unpaid balance has crossed PayoutThreshold.
func (p *Pool) RunPayoutSweep(stop <-chan struct{}) {
	if p.mode != ModePPS && p.mode != ModeFPPS {
		return
	}
	ticker := time.NewTicker(PayoutSweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.sweepPayouts()
		}
	}
}

func (p *Pool) sweepPayouts() {
	p.payoutMu.Lock()
	due := make(map[string]uint64)
	for miner, amount := range p.unpaid {
		if amount >= PayoutThreshold {
			due[miner] = amount
		}
	}
	p.payoutMu.Unlock()

	for miner, amount := range due {
		if err := p.payTransfer(miner, amount); err != nil {
			log.Warn("stratum: payout sweep failed", "miner", miner, "amount", amount, "err", err)
			continue
		}
		p.payoutMu.Lock()
		p.unpaid[miner] -= amount
		p.payoutMu.Unlock()
		log.Info("stratum: swept payout", "mode", p.mode, "miner", miner, "amount", amount)
	}
}

// Drain closes every live session's connection at once. A handleRequest
// call already in progress runs to completion, but a reply it writes
// after the close is not delivered.
func (p *Pool) Drain() {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()
	for _, s := range sessions {
		s.conn.Close()
	}
}

func (p *Pool) broadcastJob(clean bool) {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()
	for _, s := range sessions {
		p.sendJobTo(s, clean)
	}
}

func (p *Pool) sendJobTo(sess *Session, clean bool) {
	sess.mu.Lock()
	miner := sess.minerAddr
	sess.mu.Unlock()
	if miner == "" {
		miner = "02unassigned"
	}

	candidate := p.engine.GetMiningCandidate(miner, nowPlaceholder())
	p.mu.Lock()
	p.nextJob++
	jobID := fmt.Sprintf("%x", p.nextJob)
	p.jobs[jobID] = &Job{ID: jobID, Block: candidate}
	if len(p.jobs) > 16 {
		for k := range p.jobs {
			if k != jobID {
				delete(p.jobs, k)
				break
			}
		}
	}
	p.mu.Unlock()

	sess.mu.Lock()
	sess.currentJob = jobID
	sess.mu.Unlock()

	coinb1, coinb2 := coinbaseSplit(&candidate.Transactions[0])
	sess.notify("mining.notify", []interface{}{
		jobID,
		candidate.PreviousHash,
		hex.EncodeToString(coinb1),
		hex.EncodeToString(coinb2),
		merkleBranch(candidate.Transactions),
		fmt.Sprintf("%08x", types.HeaderVersion),
		fmt.Sprintf("%08x", candidate.Difficulty),
		fmt.Sprintf("%016x", candidate.Timestamp),
		clean,
	})
	sess.notify("mining.set_difficulty", []interface{}{sess.difficulty})
}

// coinbaseSplit returns the coinbase transaction's fixed fields around
// the miner-supplied extranonce: coinb1 precedes it, coinb2 follows.
// This chain's coinbase carries nothing after its script_sig, so
// coinb2 is always empty.
func coinbaseSplit(tx *types.Transaction) (coinb1, coinb2 []byte) {
	var amt, ts [8]byte
	binary.LittleEndian.PutUint64(amt[:], tx.Amount)
	binary.LittleEndian.PutUint64(ts[:], tx.Timestamp)
	coinb1 = append(coinb1, tx.Sender...)
	coinb1 = append(coinb1, tx.Receiver...)
	coinb1 = append(coinb1, amt[:]...)
	coinb1 = append(coinb1, ts[:]...)
	return coinb1, nil
}

// merkleBranch returns the sibling hash at each level from the
// coinbase leaf (index 0) up to the root, hex-encoded, letting a
// session recompute the merkle root after it finishes the coinbase
// hash locally from coinb1/extranonce/coinb2.
func merkleBranch(txs []types.Transaction) []string {
	if len(txs) == 0 {
		return nil
	}
	level := make([][]byte, len(txs))
	for i := range txs {
		level[i] = txs[i].Hash()
	}
	var branch []string
	idx := 0
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		branch = append(branch, hex.EncodeToString(level[idx^1]))
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte(nil), level[i]...), level[i+1]...)
			next = append(next, crypto.DoubleSha256(pair))
		}
		level = next
		idx /= 2
	}
	return branch
}

func cloneBlock(b *types.Block) *types.Block {
	cp := *b
	cp.Transactions = append([]types.Transaction(nil), b.Transactions...)
	return &cp
}

func randHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func mustDecodeHex(s string) []byte {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return raw
}

// nowPlaceholder exists so candidate assembly's timestamp argument has
// a single call site to swap for a real clock source at wiring time.
func nowPlaceholder() uint64 {
	return uint64(time.Now().Unix())
}
