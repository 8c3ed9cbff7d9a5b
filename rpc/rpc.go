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

// Package rpc exposes the node's JSON command gateway: a single
// POST /rpc endpoint whose body's "command" field selects the
// handler, plus a websocket endpoint whose subscribers receive the
// blocks handed to PublishBlock. No new-transaction notifications are
// sent.
package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/log"
	"github.com/tos-network/vlt/p2pgossip"
	"github.com/tos-network/vlt/storage"
)

// commandRequest is the envelope every POST /rpc body carries.
type commandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

type commandResponse struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server is the RPC gateway bound to one chain engine, gossip node and
// the persistent store backing address/transaction history lookups.
type Server struct {
	engine   *chain.Engine
	gossip   *p2pgossip.Node
	store    *storage.Store
	upgrader websocket.Upgrader

	subsMu sync.Mutex
	subs   map[*websocket.Conn]bool
}

// New builds an RPC server over engine, relaying submitted
// transactions/blocks through gossip if non-nil, and serving
// history/transaction lookups from store if non-nil.
func New(engine *chain.Engine, gossip *p2pgossip.Node, store *storage.Store) *Server {
	return &Server{
		engine:   engine,
		gossip:   gossip,
		store:    store,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:     make(map[*websocket.Conn]bool),
	}
}

// Handler returns the http.Handler to bind to the API listen address,
// with CORS enabled so browser wallets can call it directly.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.POST("/rpc", s.handleCommand)
	router.GET("/ws", s.handleWebsocket)
	return cors.AllowAll().Handler(router)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "malformed request body"})
		return
	}

	result, err := s.dispatch(req.Command, req.Params)
	if err != nil {
		writeJSON(w, http.StatusOK, commandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{OK: true, Result: result})
}

func (s *Server) dispatch(command string, params json.RawMessage) (interface{}, error) {
	switch command {
	case "get_height", "status":
		status := map[string]interface{}{
			"height":        s.engine.Height(),
			"pending_count": s.engine.PendingCount(),
			"mining":        s.engine.Mining(),
		}
		if s.gossip != nil {
			status["peers"] = len(s.gossip.PeerAddrs())
		}
		if command == "get_height" {
			return s.engine.Height(), nil
		}
		return status, nil

	case "get_block", "block":
		var p struct {
			Index uint64 `json:"index"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return s.engine.Block(p.Index), nil

	case "recent_blocks":
		var p struct {
			Count uint64 `json:"count"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Count == 0 || p.Count > s.engine.Height()+1 {
			p.Count = s.engine.Height() + 1
		}
		out := make([]*types.Block, 0, p.Count)
		for h := s.engine.Height(); p.Count > 0; p.Count-- {
			if b := s.engine.Block(h); b != nil {
				out = append(out, b)
			}
			if h == 0 {
				break
			}
			h--
		}
		return out, nil

	case "recent_txs":
		var p struct {
			Count uint64 `json:"count"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Count == 0 {
			p.Count = 20
		}
		out := make([]types.Transaction, 0, p.Count)
		for h := s.engine.Height(); ; h-- {
			b := s.engine.Block(h)
			if b != nil {
				for i := len(b.Transactions) - 1; i >= 0 && uint64(len(out)) < p.Count; i-- {
					out = append(out, b.Transactions[i])
				}
			}
			if h == 0 || uint64(len(out)) >= p.Count {
				break
			}
		}
		return out, nil

	case "transaction":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if tx, height, ok := s.engine.FindTransaction(p.Hash); ok {
			return map[string]interface{}{
				"transaction":   tx,
				"block_index":   height,
				"confirmations": s.engine.Height() - height + 1,
			}, nil
		}
		if s.store != nil {
			if tx, ok, err := s.store.LoadTransaction(p.Hash); err == nil && ok {
				return map[string]interface{}{"transaction": tx}, nil
			}
		}
		return nil, fmt.Errorf("rpc: transaction %s not found", p.Hash)

	case "check_payment":
		var p struct {
			Hash             string `json:"hash"`
			MinConfirmations uint64 `json:"min_confirmations"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		tx, height, ok := s.engine.FindTransaction(p.Hash)
		if !ok {
			return map[string]interface{}{"confirmed": false, "confirmations": 0}, nil
		}
		confirmations := s.engine.Height() - height + 1
		return map[string]interface{}{
			"confirmed":     confirmations >= p.MinConfirmations,
			"confirmations": confirmations,
			"transaction":   tx,
		}, nil

	case "get_balance":
		var p struct {
			Address string `json:"address"`
			Token   string `json:"token"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Token == "" {
			p.Token = types.NativeToken
		}
		return s.engine.State().Balance(p.Address, p.Token), nil

	case "address":
		var p struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		st := s.engine.State()
		return map[string]interface{}{
			"address":  p.Address,
			"balances": st.Balances[p.Address],
			"nonce":    st.Nonces[p.Address],
			"stake":    st.Stakes[p.Address],
		}, nil

	case "assets":
		return s.engine.State().Tokens, nil

	case "history":
		var p struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if s.store == nil {
			return []types.Transaction{}, nil
		}
		hashes, err := s.store.AddressTransactionHashes(p.Address)
		if err != nil {
			return nil, err
		}
		out := make([]*types.Transaction, 0, len(hashes))
		for _, h := range hashes {
			if tx, ok, err := s.store.LoadTransaction(h); err == nil && ok {
				out = append(out, tx)
			}
		}
		return out, nil

	case "peers":
		if s.gossip == nil {
			return []string{}, nil
		}
		return s.gossip.PeerAddrs(), nil

	case "set_mining":
		var p struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		s.engine.SetMining(p.Enabled)
		return p.Enabled, nil

	case "get_orders":
		var p struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		st := s.engine.State()
		bids := make([]interface{}, 0, len(st.Bids[p.Token]))
		for _, id := range st.Bids[p.Token] {
			bids = append(bids, st.Orders[id])
		}
		asks := make([]interface{}, 0, len(st.Asks[p.Token]))
		for _, id := range st.Asks[p.Token] {
			asks = append(asks, st.Orders[id])
		}
		return map[string]interface{}{"bids": bids, "asks": asks}, nil

	case "get_pools":
		return s.engine.State().Pools, nil

	case "get_candles":
		var p struct {
			Pair string `json:"pair"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return s.engine.State().Candles[p.Pair], nil

	case "get_nfts":
		var p struct {
			Owner string `json:"owner"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		st := s.engine.State()
		if p.Owner == "" {
			return st.NFTs, nil
		}
		out := make(map[string]interface{}, len(st.NFTs))
		for id, n := range st.NFTs {
			if n.Owner == p.Owner {
				out[id] = n
			}
		}
		return out, nil

	case "get_mining_candidate":
		var p struct {
			Miner string `json:"miner"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return s.engine.GetMiningCandidate(p.Miner, uint64(time.Now().Unix())), nil

	case "submit_block":
		var block types.Block
		if err := json.Unmarshal(params, &block); err != nil {
			return nil, err
		}
		if err := s.engine.SubmitBlock(&block); err != nil {
			return nil, err
		}
		if s.gossip != nil {
			s.gossip.BroadcastBlock(&block)
		}
		return true, nil

	case "create_transaction", "send_transaction", "broadcast_transaction":
		return s.admitTransaction(params, nil)

	case "issue_asset":
		return s.admitTransaction(params, typePtr(types.IssueToken))

	case "burn_asset":
		return s.admitTransaction(params, typePtr(types.Burn))

	case "stake":
		return s.admitTransaction(params, typePtr(types.Stake))

	case "unstake":
		return s.admitTransaction(params, typePtr(types.Unstake))

	case "place_order":
		return s.admitTransaction(params, typePtr(types.PlaceOrder))

	case "cancel_order":
		return s.admitTransaction(params, typePtr(types.CancelOrder))

	case "pending_count":
		return s.engine.PendingCount(), nil

	default:
		return nil, errUnknownCommand(command)
	}
}

// admitTransaction unmarshals a signed transaction from params, forcing
// its Type to forceType when non-nil (the command itself already
// implies the variant), admits it to the mempool and relays it over
// gossip.
func (s *Server) admitTransaction(params json.RawMessage, forceType *types.TxType) (interface{}, error) {
	var tx types.Transaction
	if err := json.Unmarshal(params, &tx); err != nil {
		return nil, err
	}
	if forceType != nil {
		tx.Type = *forceType
	}
	if err := s.engine.AdmitTransaction(&tx); err != nil {
		return nil, err
	}
	if s.gossip != nil {
		s.gossip.BroadcastTransaction(&tx)
	}
	return tx.HashHex(), nil
}

func typePtr(t types.TxType) *types.TxType { return &t }

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("rpc: websocket upgrade failed", "err", err)
		return
	}
	s.subsMu.Lock()
	s.subs[conn] = true
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// PublishBlock pushes a new-block notification to every websocket subscriber.
func (s *Server) PublishBlock(b *types.Block) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for conn := range s.subs {
		if err := conn.WriteJSON(map[string]interface{}{"event": "new_block", "block": b}); err != nil {
			conn.Close()
			delete(s.subs, conn)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errUnknownCommand string

func (e errUnknownCommand) Error() string { return "rpc: unknown command " + string(e) }
