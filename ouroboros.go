/*
!! Currently the database is in a very early stage of development and should not be used in production environments. !!
*/
package ouroboros

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/internal/config"
	"github.com/i5heu/ouroboros-courses/internal/keyValStore"
	"github.com/i5heu/ouroboros-courses/pkg/anchor"
	"github.com/i5heu/ouroboros-courses/pkg/courses"
	"github.com/i5heu/ouroboros-courses/pkg/entrystore"
	"github.com/i5heu/ouroboros-courses/pkg/linkindex"
	"github.com/i5heu/ouroboros-courses/pkg/logging"
	"github.com/i5heu/ouroboros-courses/pkg/metrics"
	workerpool "github.com/i5heu/ouroboros-courses/pkg/workerPool"
)

// OuroborosDB is the main database handle. It owns the KV store with the
// entry store and link index built on it. It also owns the course coordinator
// and the background maintenance loops.
type OuroborosDB struct {
	log     *logrus.Logger
	config  Config
	metrics *metrics.Metrics

	kvMu    sync.RWMutex
	kv      keyValStore.Store
	courses *courses.Coordinator
	pool    *workerpool.WorkerPool

	stop       chan struct{}
	background sync.WaitGroup

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

var (
	ErrNotStarted = errors.New("ouroboros: database not started")
	ErrClosed     = errors.New("ouroboros: database closed")
)

// New constructs a database handle. New does not perform I/O or start
// background goroutines. Call Start to initialize subsystems.
func New(conf Config) (*OuroborosDB, error) {
	if conf.Backend == "" {
		conf.Backend = config.BackendBadger
	}
	switch conf.Backend {
	case config.BackendBadger:
		if len(conf.Paths) == 0 {
			return nil, fmt.Errorf("at least one path must be provided in config")
		}
	case config.BackendMemory:
	default:
		return nil, fmt.Errorf("unknown backend %q", conf.Backend)
	}
	if conf.Agent == "" {
		conf.Agent = "local"
	}
	conf.Logger = logging.Or(conf.Logger)

	return &OuroborosDB{
		log:     conf.Logger,
		config:  conf,
		metrics: metrics.New(conf.Registerer),
	}, nil
}

// Start opens the KV store and wires the entry store, link index and course
// coordinator on top of it. Start is safe to call multiple times; only the
// first call has effect.
func (ou *OuroborosDB) Start(ctx context.Context) error {
	var startErr error
	ou.startOnce.Do(func() {
		kv, err := ou.openKV()
		if err != nil {
			startErr = err
			return
		}

		store := entrystore.New(kv, entrystore.Config{
			Compress:             ou.config.Compress,
			CompressionThreshold: ou.config.CompressionThreshold,
			Logger:               ou.log,
			Metrics:              ou.metrics,
		})
		links := linkindex.New(kv, ou.log, ou.metrics)

		coordinator, err := courses.New(ctx, store, links, courses.Config{
			Agent:     ou.config.Agent,
			Relations: ou.config.Relations,
			Journal:   anchor.NewKVJournal(kv),
			Logger:    ou.log,
			Metrics:   ou.metrics,
		})
		if err != nil {
			_ = kv.Close()
			startErr = fmt.Errorf("init courses: %w", err)
			return
		}

		ou.kvMu.Lock()
		ou.kv = kv
		ou.courses = coordinator
		ou.pool = workerpool.NewWorkerPool(workerpool.Config{WorkerCount: ou.config.Workers})
		ou.kvMu.Unlock()

		ou.started.Store(true)

		ou.stop = make(chan struct{})
		ou.every(ou.config.GarbageCollectionInterval, "garbage collection", ou.GarbageCollection)
		ou.every(ou.config.RepairInterval, "repair", func() error {
			_, err := ou.Repair(context.Background())
			return err
		})

		ou.log.WithFields(logrus.Fields{
			"backend": ou.config.Backend,
			"agent":   ou.config.Agent,
		}).Info("OuroborosDB started")
	})
	return startErr
}

func (ou *OuroborosDB) openKV() (keyValStore.Store, error) {
	if ou.config.Backend == config.BackendMemory {
		return keyValStore.NewMemoryStore(ou.metrics), nil
	}

	dataRoot := ou.config.Paths[0]
	kvPath := filepath.Join(dataRoot, "kv")
	if err := os.MkdirAll(kvPath, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", kvPath, err)
	}

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            []string{kvPath},
		MinimumFreeSpace: ou.config.MinimumFreeGB,
		SyncWrites:       ou.config.SyncWrites,
		Logger:           ou.log,
		Metrics:          ou.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init kv: %w", err)
	}
	return kv, nil
}

// Run starts the database, then blocks until ctx is canceled, and finally
// performs a bounded graceful shutdown. It is a convenience for services.
func (ou *OuroborosDB) Run(ctx context.Context) error {
	if err := ou.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ou.Close(shutdownCtx)
}

// Close stops the maintenance loops and closes the KV store. Close is
// idempotent and safe to call multiple times.
func (ou *OuroborosDB) Close(ctx context.Context) error {
	var closeErr error
	ou.closeOnce.Do(func() {
		if ou.stop != nil {
			close(ou.stop)
			done := make(chan struct{})
			go func() {
				ou.background.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				closeErr = fmt.Errorf("wait for maintenance: %w", ctx.Err())
			}
		}

		ou.kvMu.Lock()
		kv := ou.kv
		pool := ou.pool
		ou.kv = nil
		ou.courses = nil
		ou.pool = nil
		ou.kvMu.Unlock()
		if pool != nil {
			pool.Close()
		}
		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close kv: %w", err))
			}
		}

		ou.log.Info("OuroborosDB closed")
	})
	return closeErr
}

// Courses returns the course coordinator.
func (ou *OuroborosDB) Courses() (*courses.Coordinator, error) {
	if !ou.started.Load() {
		return nil, ErrNotStarted
	}

	ou.kvMu.RLock()
	c := ou.courses
	ou.kvMu.RUnlock()
	if c == nil {
		return nil, ErrClosed
	}
	return c, nil
}

// Metrics returns the collectors of this instance.
func (ou *OuroborosDB) Metrics() *metrics.Metrics {
	return ou.metrics
}

// GarbageCollection runs one value log garbage collection.
func (ou *OuroborosDB) GarbageCollection() error {
	kv, err := ou.kvHandle()
	if err != nil {
		return err
	}
	return kv.GarbageCollection()
}

// Repair compacts the latest links of every course and section in the
// catalog on the worker pool.
func (ou *OuroborosDB) Repair(ctx context.Context) (courses.RepairReport, error) {
	if !ou.started.Load() {
		return courses.RepairReport{}, ErrNotStarted
	}

	ou.kvMu.RLock()
	c, pool := ou.courses, ou.pool
	ou.kvMu.RUnlock()
	if c == nil {
		return courses.RepairReport{}, ErrClosed
	}
	return c.RepairAll(ctx, pool)
}

func (ou *OuroborosDB) kvHandle() (keyValStore.Store, error) {
	if !ou.started.Load() {
		return nil, ErrNotStarted
	}

	ou.kvMu.RLock()
	kv := ou.kv
	ou.kvMu.RUnlock()
	if kv == nil {
		return nil, ErrClosed
	}

	return kv, nil
}

// every runs fn each interval until Close. A zero interval disables it.
func (ou *OuroborosDB) every(interval time.Duration, name string, fn func() error) {
	if interval <= 0 {
		return
	}
	ou.background.Add(1)
	go func() {
		defer ou.background.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ou.stop:
				return
			case <-ticker.C:
				if err := fn(); err != nil {
					ou.log.WithError(err).Errorf("%s failed", name)
					continue
				}
				ou.log.Debugf("%s finished", name)
			}
		}
	}()
}
