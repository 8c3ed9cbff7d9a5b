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

// Package p2pgossip is the chain's peer-to-peer transport: plain TCP
// connections exchanging newline-delimited JSON messages. This is
// deliberately not a devp2p/RLPx style stack — the wire protocol here
// is a simple newline-delimited JSON framing chosen for interop
// simplicity over a handshake/discovery machinery rewrite.
package p2pgossip

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/tos-network/vlt/chain"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/log"
)

// seenCacheSize bounds the gossip de-duplication caches: a peer that
// floods distinct hashes can't grow these without bound, unlike the
// mempool/chain, which have their own explicit eviction points.
const seenCacheSize = 4096

// MessageKind discriminates the gossip envelope's payload.
type MessageKind string

const (
	KindHandshake   MessageKind = "handshake"
	KindNewBlock    MessageKind = "new_block"
	KindNewTx       MessageKind = "new_transaction"
	KindGetChain    MessageKind = "get_chain"
	KindChain       MessageKind = "chain"
	KindGetPeers    MessageKind = "get_peers"
	KindPeers       MessageKind = "peers"
)

// Envelope is the single newline-delimited JSON frame exchanged over
// every connection.
type Envelope struct {
	Kind MessageKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// HandshakePayload announces the sender's listen address and height.
type HandshakePayload struct {
	ListenAddr string `json:"listen_addr"`
	Height     uint64 `json:"height"`
}

// DiscoveryTick is how often the node dials its known peers to refresh
// their liveness.
const DiscoveryTick = 60 * time.Second

// MaxStrikes is how many protocol violations a peer tolerates before
// being banned.
const MaxStrikes = 3

// peer tracks one live connection.
type peer struct {
	addr    string
	conn    net.Conn
	writer  *bufio.Writer
	mu      sync.Mutex
	strikes int
}

func (p *peer) send(env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := p.writer.Write(raw); err != nil {
		return err
	}
	if err := p.writer.WriteByte('\n'); err != nil {
		return err
	}
	return p.writer.Flush()
}

// Node is the gossip network endpoint: it listens for inbound peers,
// dials known addresses, and relays new blocks/transactions admitted
// locally to every connected peer.
type Node struct {
	listenAddr string
	engine     *chain.Engine

	mu       sync.Mutex
	peers    map[string]*peer
	banlist  mapset.Set
	seenTxs  *lru.Cache
	seenBlks *lru.Cache
}

// New builds a gossip node bound to listenAddr, relaying admitted
// state through engine.
func New(listenAddr string, engine *chain.Engine) *Node {
	seenTxs, err := lru.New(seenCacheSize)
	if err != nil {
		panic(err)
	}
	seenBlks, err := lru.New(seenCacheSize)
	if err != nil {
		panic(err)
	}
	return &Node{
		listenAddr: listenAddr,
		engine:     engine,
		peers:      make(map[string]*peer),
		banlist:    mapset.NewSet(),
		seenTxs:    seenTxs,
		seenBlks:   seenBlks,
	}
}

// Listen accepts inbound connections until the listener errors or is closed.
func (n *Node) Listen() error {
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("p2pgossip: listen %s: %w", n.listenAddr, err)
	}
	log.Info("p2p listening", "addr", n.listenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go n.handleConn(conn, "")
	}
}

// Dial connects to a bootstrap peer address and begins exchanging
// gossip with it.
func (n *Node) Dial(addr string) error {
	if n.banlist.Contains(addr) {
		return fmt.Errorf("p2pgossip: %s is banned", addr)
	}
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	go n.handleConn(conn, addr)
	return nil
}

func (n *Node) handleConn(conn net.Conn, knownAddr string) {
	defer conn.Close()
	p := &peer{addr: knownAddr, conn: conn, writer: bufio.NewWriter(conn)}

	if err := p.send(Envelope{Kind: KindHandshake, Data: mustJSON(HandshakePayload{
		ListenAddr: n.listenAddr, Height: n.engine.Height(),
	})}); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var env Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			if n.strike(p) {
				return
			}
			continue
		}
		n.dispatch(p, env)
	}
}

// strike records a protocol violation, banning and disconnecting the
// peer once MaxStrikes is reached. Returns true if the peer was banned.
func (n *Node) strike(p *peer) bool {
	p.mu.Lock()
	p.strikes++
	banned := p.strikes >= MaxStrikes
	p.mu.Unlock()
	if banned {
		p.conn.Close()
	}
	if banned && p.addr != "" {
		n.mu.Lock()
		n.banlist.Add(p.addr)
		delete(n.peers, p.addr)
		n.mu.Unlock()
		log.Warn("p2p peer banned", "addr", p.addr)
	}
	return banned
}

func (n *Node) dispatch(p *peer, env Envelope) {
	switch env.Kind {
	case KindHandshake:
		var hs HandshakePayload
		if err := json.Unmarshal(env.Data, &hs); err != nil {
			n.strike(p)
			return
		}
		p.addr = hs.ListenAddr
		n.mu.Lock()
		n.peers[p.addr] = p
		n.mu.Unlock()

	case KindNewTx:
		var tx types.Transaction
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			n.strike(p)
			return
		}
		if n.seenTxs.Contains(tx.HashHex()) {
			return
		}
		n.seenTxs.Add(tx.HashHex())
		if err := n.engine.AdmitTransaction(&tx); err != nil {
			log.Debug("p2p rejected gossiped transaction", "err", err)
			return
		}
		n.Broadcast(env)

	case KindNewBlock:
		var block types.Block
		if err := json.Unmarshal(env.Data, &block); err != nil {
			n.strike(p)
			return
		}
		if n.seenBlks.Contains(block.Hash) {
			return
		}
		n.seenBlks.Add(block.Hash)
		if err := n.engine.SubmitBlock(&block); err != nil {
			log.Debug("p2p rejected gossiped block, requesting peer's chain", "err", err)
			p.send(Envelope{Kind: KindGetChain})
			return
		}
		n.Broadcast(env)

	case KindGetChain:
		p.send(Envelope{Kind: KindChain, Data: mustJSON(n.engine.Chain())})

	case KindChain:
		var chain []*types.Block
		if err := json.Unmarshal(env.Data, &chain); err != nil {
			n.strike(p)
			return
		}
		if err := n.engine.AttemptChainReplacement(chain); err != nil {
			log.Debug("p2p chain replacement rejected", "peer", p.addr, "err", err)
			return
		}
		log.Info("p2p adopted longer chain", "peer", p.addr, "height", n.engine.Height())

	case KindGetPeers:
		n.mu.Lock()
		addrs := make([]string, 0, len(n.peers))
		for addr := range n.peers {
			addrs = append(addrs, addr)
		}
		n.mu.Unlock()
		p.send(Envelope{Kind: KindPeers, Data: mustJSON(addrs)})

	default:
	}
}

// PeerAddrs returns the listen addresses of every currently-connected peer.
func (n *Node) PeerAddrs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	addrs := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Broadcast fans out env to every currently-connected peer concurrently,
// so one slow or stalled peer doesn't delay delivery to the rest.
func (n *Node) Broadcast(env Envelope) {
	n.mu.Lock()
	peers := make([]*peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	var g errgroup.Group
	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := p.send(env); err != nil {
				log.Debug("p2p broadcast failed", "peer", p.addr, "err", err)
			}
			return nil
		})
	}
	g.Wait()
}

// BroadcastTransaction relays a locally-admitted transaction to every peer.
func (n *Node) BroadcastTransaction(tx *types.Transaction) {
	n.seenTxs.Add(tx.HashHex())
	n.Broadcast(Envelope{Kind: KindNewTx, Data: mustJSON(tx)})
}

// BroadcastBlock relays a locally-mined block to every peer.
func (n *Node) BroadcastBlock(b *types.Block) {
	n.seenBlks.Add(b.Hash)
	n.Broadcast(Envelope{Kind: KindNewBlock, Data: mustJSON(b)})
}

// RunDiscovery periodically re-dials known peers, refreshing liveness.
func (n *Node) RunDiscovery(stop <-chan struct{}) {
	ticker := time.NewTicker(DiscoveryTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.mu.Lock()
			addrs := make([]string, 0, len(n.peers))
			for addr := range n.peers {
				addrs = append(addrs, addr)
			}
			n.mu.Unlock()
			for _, addr := range addrs {
				if _, err := net.DialTimeout("tcp", addr, 2*time.Second); err != nil {
					log.Debug("p2p peer unreachable on discovery tick", "addr", addr)
				}
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
