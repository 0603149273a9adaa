package keyValStore

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/pkg/metrics"
)

var (
	ErrKeyNotFound = errors.New("keyValStore: key not found")
	ErrReadOnly    = errors.New("keyValStore: write in read-only transaction")
	ErrClosed      = errors.New("keyValStore: store closed")
	// ErrConflict is returned by Update when a concurrent transaction wrote a
	// key this one read. Nothing was written.
	ErrConflict = errors.New("keyValStore: transaction conflict")
)

// Txn is the view of the store inside View or Update. Values returned by Get
// and Iterate are copies and stay valid after the transaction ends.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn for every key with the given prefix in ascending key order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Store is a transactional key/value substrate. Update runs fn atomically: if
// fn returns an error nothing it wrote becomes visible.
type Store interface {
	View(fn func(txn Txn) error) error
	Update(fn func(txn Txn) error) error
	GarbageCollection() error
	Close() error
}

type StoreConfig struct {
	Paths            []string // only the first path is used at the moment
	MinimumFreeSpace int      // in GB
	SyncWrites       bool
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
}

// KeyValStore is the badger backed Store.
type KeyValStore struct {
	config   StoreConfig
	log      *logrus.Entry
	badgerDB *badger.DB
	metrics  *metrics.Metrics
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger.WithField("component", "keyValStore")

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0]).
		WithLogger(log).
		WithLoggingLevel(badger.ERROR)
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	opts.SyncWrites = config.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	if err := displayDiskUsage(log, config.Paths); err != nil {
		log.WithError(err).Warn("could not display disk usage")
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
		metrics:  config.Metrics,
	}, nil
}

func (k *KeyValStore) View(fn func(txn Txn) error) error {
	return k.badgerDB.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn, metrics: k.metrics})
	})
}

func (k *KeyValStore) Update(fn func(txn Txn) error) error {
	bt := &badgerTxn{writable: true, metrics: k.metrics}
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		bt.txn = txn
		return fn(bt)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	if err == nil {
		k.metrics.Write(bt.writes)
	}
	return err
}

func (k *KeyValStore) Close() error {
	if err := k.badgerDB.Sync(); err != nil {
		k.log.WithError(err).Warn("sync before close failed")
	}
	return k.badgerDB.Close()
}

// GarbageCollection flattens the LSM tree and reclaims value log space.
func (k *KeyValStore) GarbageCollection() error {
	start := time.Now()
	defer func() { k.metrics.ObserveGC(time.Since(start).Seconds()) }()

	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	if err := k.badgerDB.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB flattened")

	err := k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}

type badgerTxn struct {
	txn      *badger.Txn
	writable bool
	writes   int
	metrics  *metrics.Metrics
}

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	t.metrics.Read()
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(key, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.writes++
	return t.txn.Set(key, value)
}

func (t *badgerTxn) Delete(key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.writes++
	return t.txn.Delete(key)
}

func (t *badgerTxn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	t.metrics.Read()
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
