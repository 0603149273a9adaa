package keyValStore

import (
	"bytes"
	"errors"
	"sync"

	"github.com/tidwall/btree"

	"github.com/i5heu/ouroboros-courses/pkg/metrics"
)

type memItem struct {
	key   []byte
	value []byte
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemoryStore is an in-process Store backed by a copy-on-write btree. Update
// works on a copy of the tree and swaps it in only when fn succeeds.
type MemoryStore struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[memItem]
	closed  bool
	metrics *metrics.Metrics
}

func NewMemoryStore(m *metrics.Metrics) *MemoryStore {
	return &MemoryStore{
		tree:    btree.NewBTreeG[memItem](memItemLess),
		metrics: m,
	}
}

func (s *MemoryStore) View(fn func(txn Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTxn{tree: s.tree, metrics: s.metrics})
}

func (s *MemoryStore) Update(fn func(txn Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	txn := &memTxn{tree: s.tree.Copy(), writable: true, metrics: s.metrics}
	if err := fn(txn); err != nil {
		return err
	}
	s.tree = txn.tree
	s.metrics.Write(txn.writes)
	return nil
}

func (s *MemoryStore) GarbageCollection() error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memTxn struct {
	tree     *btree.BTreeG[memItem]
	writable bool
	writes   int
	metrics  *metrics.Metrics
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	t.metrics.Read()
	item, ok := t.tree.Get(memItem{key: key})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(item.value), nil
}

func (t *memTxn) Set(key, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return errors.New("keyValStore: empty key")
	}
	t.writes++
	t.tree.Set(memItem{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.writes++
	t.tree.Delete(memItem{key: key})
	return nil
}

func (t *memTxn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	t.metrics.Read()

	var matched []memItem
	t.tree.Ascend(memItem{key: prefix}, func(item memItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		matched = append(matched, item)
		return true
	})

	for _, item := range matched {
		if err := fn(bytes.Clone(item.key), bytes.Clone(item.value)); err != nil {
			return err
		}
	}
	return nil
}
