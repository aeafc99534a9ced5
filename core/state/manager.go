package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fundchain/storage"
)

var errReadOnly = errors.New("state: write attempted in read-only transaction")

// Manager owns the record store. All mutations go through Update, which
// serialises callers touching the same keys and lands their writes as a single
// database batch.
type Manager struct {
	db    storage.Database
	locks *keyedMutex
	// commitMu keeps View readers from observing a batch half-applied by
	// backends whose Write is not isolated.
	commitMu sync.RWMutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, locks: newKeyedMutex()}
}

// Update acquires the named locks, runs fn against a write overlay and commits
// the staged writes only when fn returns nil. Nothing is persisted on error.
// Hooks registered with Txn.OnCommit run after the commit while the locks are
// still held.
func (m *Manager) Update(locks []string, fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	unlock := m.locks.Lock(locks)
	defer unlock()

	txn := newTxn(m.db, false)
	if err := fn(txn); err != nil {
		return err
	}
	if err := m.commit(txn); err != nil {
		return err
	}
	for _, hook := range txn.onCommit {
		hook()
	}
	return nil
}

func (m *Manager) commit(txn *Txn) error {
	if len(txn.writes) == 0 {
		return nil
	}
	batch := txn.batch()
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// View runs fn against a read-only transaction.
func (m *Manager) View(fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.commitMu.RLock()
	defer m.commitMu.RUnlock()
	return fn(newTxn(m.db, true))
}

// Txn is a single operation's view of the store. Reads observe the
// transaction's own staged writes.
type Txn struct {
	db       storage.Database
	writes   map[string][]byte
	readOnly bool
	onCommit []func()
}

func newTxn(db storage.Database, readOnly bool) *Txn {
	return &Txn{db: db, writes: make(map[string][]byte), readOnly: readOnly}
}

// OnCommit registers fn to run once the transaction's writes are durable. It
// never runs for a failed or read-only transaction.
func (t *Txn) OnCommit(fn func()) {
	if fn == nil || t.readOnly {
		return
	}
	t.onCommit = append(t.onCommit, fn)
}

func (t *Txn) batch() *storage.Batch {
	keys := make([]string, 0, len(t.writes))
	for key := range t.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, key := range keys {
		batch.Put([]byte(key), t.writes[key])
	}
	return batch
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (t *Txn) getRaw(key []byte) ([]byte, error) {
	hashed := kvKey(key)
	if data, ok := t.writes[string(hashed)]; ok {
		return data, nil
	}
	data, err := t.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (t *Txn) putRaw(key []byte, data []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[string(kvKey(key))] = append([]byte(nil), data...)
	return nil
}

// KVPut stores the RLP encoding of value under the supplied key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.putRaw(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := t.getRaw(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends value to the byte slice list stored under key. Duplicates
// are ignored so the index stays deterministic.
func (t *Txn) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := t.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if string(existing) == string(value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return t.KVPut(key, list)
}

// KVGetList decodes the list stored under key, returning an empty list when
// absent.
func (t *Txn) KVGetList(key []byte) ([][]byte, error) {
	var list [][]byte
	if _, err := t.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}
