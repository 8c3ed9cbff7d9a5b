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

// Package state holds the account-model world state: balances, nonces,
// stakes, tokens, the order book, AMM pools, NFTs and OHLC candles,
// plus the transaction-application rules that mutate them. It owns no
// locking of its own: the chain engine serializes all access under
// its own lock.
package state

import "github.com/tos-network/vlt/chain/types"

// Order is a resting or partially-filled book entry.
type Order struct {
	ID              string          `json:"id"`
	Creator         string          `json:"creator"`
	Token           string          `json:"token"`
	Side            types.OrderSide `json:"side"`
	Price           uint64          `json:"price"`
	RemainingAmount uint64          `json:"remaining_amount"`
	Timestamp       uint64          `json:"timestamp"`
}

// Pool is a constant-product AMM pool over a "TokenA/TokenB" pair id.
type Pool struct {
	TokenA      string            `json:"token_a"`
	TokenB      string            `json:"token_b"`
	ReserveA    uint64            `json:"reserve_a"`
	ReserveB    uint64            `json:"reserve_b"`
	TotalShares uint64            `json:"total_shares"`
	Shares      map[string]uint64 `json:"shares"`
}

// NFT is a single non-fungible token record.
type NFT struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	URI       string `json:"uri"`
	CreatedAt uint64 `json:"created_at"`
}

// Candle is a one-minute OHLCV bucket.
type Candle struct {
	OpenTime uint64 `json:"open_time"`
	Open     uint64 `json:"open"`
	High     uint64 `json:"high"`
	Low      uint64 `json:"low"`
	Close    uint64 `json:"close"`
	Volume   uint64 `json:"volume"`
}

// candleBucketSeconds is the width of a single OHLC bucket.
const candleBucketSeconds = 60

// State is the full mutable world state.
type State struct {
	Balances map[string]map[string]uint64 `json:"balances"`
	Nonces   map[string]uint64            `json:"nonces"`
	Stakes   map[string]uint64            `json:"stakes"`
	Tokens   map[string]string            `json:"tokens"`

	Orders map[string]*Order  `json:"orders"`
	Bids   map[string][]string `json:"bids"`
	Asks   map[string][]string `json:"asks"`

	Pools map[string]*Pool `json:"pools"`
	NFTs  map[string]*NFT  `json:"nfts"`

	Candles map[string][]*Candle `json:"candles"`
}

// New returns an empty world state.
func New() *State {
	return &State{
		Balances: make(map[string]map[string]uint64),
		Nonces:   make(map[string]uint64),
		Stakes:   make(map[string]uint64),
		Tokens:   make(map[string]string),
		Orders:   make(map[string]*Order),
		Bids:     make(map[string][]string),
		Asks:     make(map[string][]string),
		Pools:    make(map[string]*Pool),
		NFTs:     make(map[string]*NFT),
		Candles:  make(map[string][]*Candle),
	}
}

// Clone deep-copies the state. Used by the chain engine to take a
// snapshot before speculatively applying a block, so a failed block
// never leaves partial mutations behind.
func (s *State) Clone() *State {
	out := New()
	for addr, toks := range s.Balances {
		cp := make(map[string]uint64, len(toks))
		for t, v := range toks {
			cp[t] = v
		}
		out.Balances[addr] = cp
	}
	for k, v := range s.Nonces {
		out.Nonces[k] = v
	}
	for k, v := range s.Stakes {
		out.Stakes[k] = v
	}
	for k, v := range s.Tokens {
		out.Tokens[k] = v
	}
	for id, o := range s.Orders {
		cp := *o
		out.Orders[id] = &cp
	}
	for tok, ids := range s.Bids {
		out.Bids[tok] = append([]string(nil), ids...)
	}
	for tok, ids := range s.Asks {
		out.Asks[tok] = append([]string(nil), ids...)
	}
	for id, p := range s.Pools {
		cp := *p
		cp.Shares = make(map[string]uint64, len(p.Shares))
		for addr, sh := range p.Shares {
			cp.Shares[addr] = sh
		}
		out.Pools[id] = &cp
	}
	for id, n := range s.NFTs {
		cp := *n
		out.NFTs[id] = &cp
	}
	for pair, candles := range s.Candles {
		cp := make([]*Candle, len(candles))
		for i, c := range candles {
			v := *c
			cp[i] = &v
		}
		out.Candles[pair] = cp
	}
	return out
}

// Balance returns addr's balance of token, 0 if absent.
func (s *State) Balance(addr, token string) uint64 {
	toks, ok := s.Balances[addr]
	if !ok {
		return 0
	}
	return toks[token]
}

func (s *State) credit(addr, token string, amount uint64) {
	if amount == 0 {
		return
	}
	toks, ok := s.Balances[addr]
	if !ok {
		toks = make(map[string]uint64)
		s.Balances[addr] = toks
	}
	toks[token] += amount
}

// debit subtracts amount from addr's token balance. Callers must have
// already checked sufficiency; debit never goes negative, it clamps to
// zero, so check-then-mutate call sites are the only safety net.
func (s *State) debit(addr, token string, amount uint64) {
	if amount == 0 {
		return
	}
	toks := s.Balances[addr]
	if toks == nil {
		return
	}
	if toks[token] < amount {
		toks[token] = 0
		return
	}
	toks[token] -= amount
}

func (s *State) recordCandle(pair string, ts, price, volume uint64) {
	if volume == 0 {
		return
	}
	bucket := ts - ts%candleBucketSeconds
	candles := s.Candles[pair]
	if n := len(candles); n > 0 && candles[n-1].OpenTime == bucket {
		c := candles[n-1]
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += volume
		return
	}
	s.Candles[pair] = append(candles, &Candle{
		OpenTime: bucket,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   volume,
	})
}

// isqrt returns floor(sqrt(n)) via Newton's method, used to mint initial
// AMM pool shares the Uniswap-v2 way.
func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
