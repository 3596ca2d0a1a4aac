package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tranchefi/storage"
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Manager stages ledger writes over a storage backend. Reads see staged
// writes; Commit flushes them in one atomic batch and Discard drops them.
type Manager struct {
	db     storage.Database
	mu     sync.Mutex
	writes map[string]pendingWrite
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, writes: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the RLP encoding of value under key in the write set.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.writes[string(kvKey(key))] = pendingWrite{value: encoded}
	m.mu.Unlock()
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.read(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key from state once the write set is committed.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	m.writes[string(kvKey(key))] = pendingWrite{deleted: true}
	m.mu.Unlock()
	return nil
}

func (m *Manager) read(hashed []byte) ([]byte, bool, error) {
	m.mu.Lock()
	pending, staged := m.writes[string(hashed)]
	m.mu.Unlock()
	if staged {
		if pending.deleted {
			return nil, false, nil
		}
		return pending.value, true, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, len(data) > 0, nil
}

// Pending reports the number of staged writes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// Commit writes the staged set to storage in key order and clears it. The
// write set is kept when the backend rejects the batch.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.writes))
	for k := range m.writes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare([]byte(keys[i]), []byte(keys[j])) < 0 })

	batch := storage.NewBatch()
	for _, k := range keys {
		w := m.writes[k]
		if w.deleted {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), w.value)
		}
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.writes = make(map[string]pendingWrite)
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.mu.Lock()
	m.writes = make(map[string]pendingWrite)
	m.mu.Unlock()
}
