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

// Package storage persists chain data in a single embedded goleveldb
// database. Logical tables ("sub-trees") share the one database via
// key prefixing rather than separate handles.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tos-network/vlt/chain/types"
	"github.com/tos-network/vlt/log"
)

// syncWrites forces an fsync on every commit: a crash right after a
// write returns must never lose that write, since pending transactions
// and confirmed blocks are never re-derived from anywhere else.
var syncWrites = &opt.WriteOptions{Sync: true}

func leveldbRange(prefix []byte) *util.Range {
	return util.BytesPrefix(prefix)
}

// Key prefixes for the logical sub-trees stored in the database.
var (
	prefixBlocks      = []byte("b")
	prefixTransactions = []byte("t")
	prefixAddrIndex   = []byte("a")
	prefixPendingTxs  = []byte("p")
	prefixMinerLedger = []byte("m")
	keyTipHeight      = []byte("meta:height")
)

// Store wraps a goleveldb handle with the chain's logical tables.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func blockKey(index uint64) []byte {
	key := make([]byte, len(prefixBlocks)+8)
	copy(key, prefixBlocks)
	binary.BigEndian.PutUint64(key[len(prefixBlocks):], index)
	return key
}

func txKey(hashHex string) []byte {
	return append(append([]byte{}, prefixTransactions...), hashHex...)
}

func addrIndexKey(address, hashHex string) []byte {
	return append(append(append([]byte{}, prefixAddrIndex...), address...), append([]byte{':'}, hashHex...)...)
}

func pendingKey(hashHex string) []byte {
	return append(append([]byte{}, prefixPendingTxs...), hashHex...)
}

func minerLedgerKey(poolMode, miner string) []byte {
	return append(append(append([]byte{}, prefixMinerLedger...), poolMode+":"...), miner...)
}

// PutBlock persists block and indexes each of its transactions by hash
// and by sender/receiver address.
func (s *Store) PutBlock(b *types.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(blockKey(b.Index), raw)

	heightBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBuf, b.Index)
	batch.Put(keyTipHeight, heightBuf)

	for i := range b.Transactions {
		tx := &b.Transactions[i]
		txRaw, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		hash := tx.HashHex()
		batch.Put(txKey(hash), txRaw)
		batch.Put(addrIndexKey(tx.Sender, hash), []byte{1})
		batch.Put(addrIndexKey(tx.Receiver, hash), []byte{1})
	}
	if err := s.db.Write(batch, syncWrites); err != nil {
		return err
	}
	log.Debug("persisted block", "index", b.Index, "txs", len(b.Transactions))
	return nil
}

// LoadBlock reads back the block at index, or (nil, false) if absent.
func (s *Store) LoadBlock(index uint64) (*types.Block, bool, error) {
	raw, err := s.db.Get(blockKey(index), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var b types.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

// TipHeight returns the highest persisted block index, or (0, false)
// if the database is empty.
func (s *Store) TipHeight() (uint64, bool, error) {
	raw, err := s.db.Get(keyTipHeight, nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// PutPendingTransaction records a mempool-admitted transaction so it
// survives a restart before being confirmed into a block.
func (s *Store) PutPendingTransaction(tx *types.Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Put(pendingKey(tx.HashHex()), raw, syncWrites)
}

// DeletePendingTransaction removes a transaction once it is confirmed.
func (s *Store) DeletePendingTransaction(hashHex string) error {
	return s.db.Delete(pendingKey(hashHex), syncWrites)
}

// LoadPendingTransactions returns every transaction still recorded as
// pending, used to repopulate the mempool on startup.
func (s *Store) LoadPendingTransactions() ([]*types.Transaction, error) {
	iter := s.db.NewIterator(leveldbRange(prefixPendingTxs), nil)
	defer iter.Release()

	var out []*types.Transaction
	for iter.Next() {
		var tx types.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, err
		}
		out = append(out, &tx)
	}
	return out, iter.Error()
}

// LoadTransaction reads back a confirmed transaction by its hash, or
// (nil, false) if it was never indexed by PutBlock.
func (s *Store) LoadTransaction(hashHex string) (*types.Transaction, bool, error) {
	raw, err := s.db.Get(txKey(hashHex), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, false, err
	}
	return &tx, true, nil
}

// AddressTransactionHashes returns every transaction hash touching
// address, from the addr_index sub-tree.
func (s *Store) AddressTransactionHashes(address string) ([]string, error) {
	prefix := append(append([]byte{}, prefixAddrIndex...), address...)
	iter := s.db.NewIterator(leveldbRange(prefix), nil)
	defer iter.Release()

	var hashes []string
	for iter.Next() {
		key := iter.Key()
		idx := len(prefix)
		if idx < len(key) && key[idx] == ':' {
			hashes = append(hashes, string(key[idx+1:]))
		}
	}
	return hashes, iter.Error()
}

// PutMinerLedgerEntry persists a Stratum payout-ledger balance for
// (poolMode, miner).
func (s *Store) PutMinerLedgerEntry(poolMode, miner string, amount uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, amount)
	return s.db.Put(minerLedgerKey(poolMode, miner), buf, syncWrites)
}

// MinerLedgerEntry reads back a payout-ledger balance, 0 if absent.
func (s *Store) MinerLedgerEntry(poolMode, miner string) (uint64, error) {
	raw, err := s.db.Get(minerLedgerKey(poolMode, miner), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// ReplayAll walks every persisted block in order, handing each to fn.
// Used at startup to rebuild the in-memory chain engine from disk.
func (s *Store) ReplayAll(fn func(*types.Block) error) error {
	height, found, err := s.TipHeight()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	for i := uint64(0); i <= height; i++ {
		b, ok, err := s.LoadBlock(i)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("storage: missing block %d below recorded tip %d", i, height)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
