package workerpool

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomCollect(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4, GlobalBuffer: 8})
	defer wp.Close()

	room := CreateRoom[int](wp)
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, room.NewTaskWaitForFreeSlot(context.Background(), func() int { return i * i }))
	}

	got := room.Collect()
	require.Len(t, got, 100)
	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i*i, v)
	}
	assert.Empty(t, room.Collect())
}

func TestRoomsAreSeparate(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 2})
	defer wp.Close()

	a := CreateRoom[string](wp)
	b := CreateRoom[string](wp)
	require.NoError(t, a.NewTask(func() string { return "a" }))
	require.NoError(t, b.NewTask(func() string { return "b" }))
	require.NoError(t, b.NewTask(func() string { return "b" }))

	assert.Equal(t, []string{"a"}, a.Collect())
	assert.Equal(t, []string{"b", "b"}, b.Collect())
}

func TestNewTaskBufferFull(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 1})
	defer wp.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	room := CreateRoom[int](wp)
	require.NoError(t, room.NewTask(func() int {
		close(started)
		<-release
		return 0
	}))
	<-started
	require.NoError(t, room.NewTask(func() int { return 1 }))

	assert.ErrorIs(t, room.NewTask(func() int { return 2 }), ErrBufferFull)

	close(release)
	assert.Len(t, room.Collect(), 2)
}

func TestWaitForFreeSlotHonorsContext(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 1})
	defer wp.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	room := CreateRoom[int](wp)
	require.NoError(t, room.NewTask(func() int {
		close(started)
		<-release
		return 0
	}))
	<-started
	require.NoError(t, room.NewTask(func() int { return 1 }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, room.NewTaskWaitForFreeSlot(ctx, func() int { return 2 }), context.Canceled)

	close(release)
	assert.Len(t, room.Collect(), 2)
}

func TestCloseDrainsQueue(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 2})
	assert.Equal(t, 2, wp.Workers())

	var ran atomic.Int32
	room := CreateRoom[struct{}](wp)
	for i := 0; i < 20; i++ {
		require.NoError(t, room.NewTask(func() struct{} {
			ran.Add(1)
			return struct{}{}
		}))
	}
	wp.Close()
	wp.Close()

	assert.Equal(t, int32(20), ran.Load())
	assert.ErrorIs(t, room.NewTask(func() struct{} { return struct{}{} }), ErrClosed)
}
