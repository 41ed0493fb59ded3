package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshRebuildsAsync(t *testing.T) {
	var version int32
	c := New("spots", time.Hour, func(ctx context.Context) (int32, error) {
		return atomic.AddInt32(&version, 1), nil
	})

	worker := NewWorker(8)
	worker.Start(context.Background())
	defer worker.Stop()

	registry := NewRegistry(worker)
	registry.Register(c)

	// Prime the cache, then signal a refresh the way a refresh service
	// does after persisting.
	_, firstLoad, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.True(t, registry.Refresh("spots"))

	assert.Eventually(t, func() bool {
		value, loadedAt, err := c.Get(context.Background())
		return err == nil && value == 2 && loadedAt.After(firstLoad)
	}, 2*time.Second, 10*time.Millisecond, "worker never rebuilt the cache")
}

func TestRefreshUnknownCache(t *testing.T) {
	worker := NewWorker(8)
	registry := NewRegistry(worker)

	assert.False(t, registry.Refresh("nope"))
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	// Worker not started: nothing drains the queue.
	worker := NewWorker(1)

	ok := worker.Enqueue(Task{Name: "a", Rebuild: func(ctx context.Context) {}})
	assert.True(t, ok)
	ok = worker.Enqueue(Task{Name: "b", Rebuild: func(ctx context.Context) {}})
	assert.False(t, ok)

	stats := worker.Stats()
	assert.EqualValues(t, 1, stats.Enqueued)
	assert.EqualValues(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.Pending)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	worker := NewWorker(8)
	worker.Start(context.Background())
	defer worker.Stop()

	done := make(chan struct{})
	worker.Enqueue(Task{Name: "bad", Rebuild: func(ctx context.Context) { panic("boom") }})
	worker.Enqueue(Task{Name: "good", Rebuild: func(ctx context.Context) { close(done) }})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panicking task")
	}
}

func TestRegisterReplaces(t *testing.T) {
	worker := NewWorker(8)
	worker.Start(context.Background())
	defer worker.Stop()

	registry := NewRegistry(worker)

	var firstBuilds, secondBuilds int32
	first := New("spots", time.Hour, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&firstBuilds, 1)
		return 1, nil
	})
	second := New("spots", time.Hour, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&secondBuilds, 1)
		return 2, nil
	})

	registry.Register(first)
	registry.Register(second)

	require.True(t, registry.Refresh("spots"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&secondBuilds) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&firstBuilds))
}
