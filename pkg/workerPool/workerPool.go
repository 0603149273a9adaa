// Package workerpool runs short jobs on a fixed set of goroutines. Jobs are
// grouped in rooms; a room collects the results of its own jobs only.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

var (
	ErrBufferFull = errors.New("workerpool: global buffer is full")
	ErrClosed     = errors.New("workerpool: pool is closed")
)

type Config struct {
	// WorkerCount defaults to three workers per CPU.
	WorkerCount int
	// GlobalBuffer is the number of queued jobs before NewTask fails.
	GlobalBuffer int
}

type WorkerPool struct {
	config    Config
	taskQueue chan func()

	mu     sync.RWMutex
	closed bool
	done   sync.WaitGroup
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}
	wp.done.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}
	return wp
}

// Workers returns the number of running workers.
func (wp *WorkerPool) Workers() int { return wp.config.WorkerCount }

func (wp *WorkerPool) worker() {
	defer wp.done.Done()
	for run := range wp.taskQueue {
		run()
	}
}

// Close stops accepting jobs and waits until queued jobs have finished.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.mu.Unlock()
	wp.done.Wait()
}

func (wp *WorkerPool) submit(ctx context.Context, run func(), block bool) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrClosed
	}
	if !block {
		select {
		case wp.taskQueue <- run:
			return nil
		default:
			return ErrBufferFull
		}
	}
	select {
	case wp.taskQueue <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Room collects results of type T.
type Room[T any] struct {
	wp *WorkerPool
	wg sync.WaitGroup

	mu      sync.Mutex
	results []T
}

func CreateRoom[T any](wp *WorkerPool) *Room[T] {
	return &Room[T]{wp: wp}
}

// NewTaskWaitForFreeSlot queues job, blocking while the global buffer is full.
func (ro *Room[T]) NewTaskWaitForFreeSlot(ctx context.Context, job func() T) error {
	return ro.add(ctx, job, true)
}

// NewTask queues job or returns ErrBufferFull.
func (ro *Room[T]) NewTask(job func() T) error {
	return ro.add(context.Background(), job, false)
}

func (ro *Room[T]) add(ctx context.Context, job func() T, block bool) error {
	ro.wg.Add(1)
	err := ro.wp.submit(ctx, func() {
		defer ro.wg.Done()
		r := job()
		ro.mu.Lock()
		ro.results = append(ro.results, r)
		ro.mu.Unlock()
	}, block)
	if err != nil {
		ro.wg.Done()
	}
	return err
}

// Collect waits for every queued job of the room and returns the results in
// completion order.
func (ro *Room[T]) Collect() []T {
	ro.wg.Wait()
	ro.mu.Lock()
	defer ro.mu.Unlock()
	out := ro.results
	ro.results = nil
	return out
}
