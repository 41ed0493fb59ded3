package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/cache"
	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
	"github.com/arunderwood/nextskip-sub005/internal/store"
)

// scriptedClient replays a queue of fetch results; the last one repeats
// once the queue drains.
type scriptedClient struct {
	mu      sync.Mutex
	results []func() ([]domain.Spot, error)
	calls   int
}

func (c *scriptedClient) Source() string          { return "scripted" }
func (c *scriptedClient) Interval() time.Duration { return time.Minute }

func (c *scriptedClient) Fetch(ctx context.Context) ([]domain.Spot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	c.calls++
	return c.results[idx]()
}

// quietOptions keeps retries instant and the breaker out of the way.
func quietOptions() fetch.Options {
	return fetch.Options{
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		FailureRate:    0.99,
		MinRequests:    1000,
	}
}

func serviceSpot(id string, freq float64) domain.Spot {
	return domain.Spot{
		Source:       "scripted",
		SpotID:       id,
		Activator:    "W1AW",
		Reference:    "US-0001",
		FrequencyKHz: freq,
		Mode:         "SSB",
		SpottedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func newServiceStore(t *testing.T) *store.Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "nextskip-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestServiceExecutePersistsAndRebuildsCache(t *testing.T) {
	ctx := context.Background()
	st := newServiceStore(t)

	client := &scriptedClient{results: []func() ([]domain.Spot, error){
		func() ([]domain.Spot, error) {
			return []domain.Spot{serviceSpot("1", 14285), serviceSpot("2", 7032)}, nil
		},
	}}
	resilient := fetch.NewResilient[[]domain.Spot](client, quietOptions(), func() []domain.Spot { return nil })

	worker := cache.NewWorker(8)
	worker.Start(ctx)
	t.Cleanup(worker.Stop)
	registry := cache.NewRegistry(worker)

	spots := cache.New("spots", time.Hour, func(ctx context.Context) ([]domain.Spot, error) {
		return st.RecentSpots(ctx, time.Now().Add(-time.Hour))
	})
	registry.Register(spots)

	// Prime the cache so the refresh has something to invalidate.
	if cached, _, err := spots.Get(ctx); err != nil || len(cached) != 0 {
		t.Fatalf("expected empty prime, got %d spots, err %v", len(cached), err)
	}

	svc := NewService(ServiceOptions[[]domain.Spot]{
		Client:      resilient,
		DisplayName: "Scripted feed",
		Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
			return st.ReplaceSpots(ctx, "scripted", batch, time.Now().Add(-24*time.Hour))
		},
		Caches:    registry,
		CacheName: "spots",
	})

	if err := svc.Execute(ctx); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	count, err := st.SpotCount(ctx, "scripted")
	if err != nil {
		t.Fatalf("SpotCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 persisted spots, got %d", count)
	}

	// The cache catches up asynchronously through the worker.
	waitFor(t, 5*time.Second, func() bool {
		cached, _, err := spots.Get(ctx)
		return err == nil && len(cached) == 2
	})
}

func TestServiceSkipsPersistWhenServingStale(t *testing.T) {
	ctx := context.Background()

	client := &scriptedClient{results: []func() ([]domain.Spot, error){
		func() ([]domain.Spot, error) { return []domain.Spot{serviceSpot("1", 14285)}, nil },
		func() ([]domain.Spot, error) {
			return nil, &fetch.NetworkError{Source: "scripted", Err: errors.New("connection refused")}
		},
	}}
	resilient := fetch.NewResilient[[]domain.Spot](client, quietOptions(), func() []domain.Spot { return nil })

	var persists atomic.Int64
	svc := NewService(ServiceOptions[[]domain.Spot]{
		Client:      resilient,
		DisplayName: "Scripted feed",
		Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
			persists.Add(1)
			return int64(len(batch)), 0, nil
		},
	})

	if err := svc.Execute(ctx); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if persists.Load() != 1 {
		t.Fatalf("expected 1 persist, got %d", persists.Load())
	}

	// The second pass falls back to the last good batch. Persisting it
	// again would re-stamp rows and run retention against old data, so
	// the pass ends quietly instead.
	if err := svc.Execute(ctx); err != nil {
		t.Fatalf("stale Execute failed: %v", err)
	}
	if persists.Load() != 1 {
		t.Errorf("stale pass persisted, total %d", persists.Load())
	}
	if !resilient.ServingStale() {
		t.Error("client should report serving stale")
	}
}

func TestServiceWrapsPersistFailure(t *testing.T) {
	boom := errors.New("disk full")

	client := &scriptedClient{results: []func() ([]domain.Spot, error){
		func() ([]domain.Spot, error) { return []domain.Spot{serviceSpot("1", 14285)}, nil },
	}}
	resilient := fetch.NewResilient[[]domain.Spot](client, quietOptions(), nil)

	svc := NewService(ServiceOptions[[]domain.Spot]{
		Client:      resilient,
		DisplayName: "Scripted feed",
		Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
			return 0, 0, boom
		},
	})

	err := svc.Execute(context.Background())
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected refresh error, got %v", err)
	}
	if rerr.Source != "scripted" {
		t.Errorf("expected scripted attribution, got %s", rerr.Source)
	}
	if !errors.Is(err, boom) {
		t.Error("expected the cause to remain reachable")
	}
}

func TestServiceFetchErrorPassesThrough(t *testing.T) {
	client := &scriptedClient{results: []func() ([]domain.Spot, error){
		func() ([]domain.Spot, error) {
			return nil, &fetch.StatusError{Source: "scripted", Code: 503, Status: "503 Service Unavailable"}
		},
	}}
	// No default: a cold failure must surface as the fetch error itself.
	resilient := fetch.NewResilient[[]domain.Spot](client, quietOptions(), nil)

	svc := NewService(ServiceOptions[[]domain.Spot]{
		Client:      resilient,
		DisplayName: "Scripted feed",
		Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
			t.Error("persist must not run on fetch failure")
			return 0, 0, nil
		},
	})

	err := svc.Execute(context.Background())
	var statusErr *fetch.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		t.Error("fetch errors must not be wrapped as refresh errors")
	}
}

func TestServiceNeedsInitialLoad(t *testing.T) {
	client := &scriptedClient{results: []func() ([]domain.Spot, error){
		func() ([]domain.Spot, error) { return nil, nil },
	}}
	resilient := fetch.NewResilient[[]domain.Spot](client, quietOptions(), nil)

	svc := NewService(ServiceOptions[[]domain.Spot]{Client: resilient})
	if needs, err := svc.NeedsInitialLoad(context.Background()); err != nil || needs {
		t.Errorf("nil check should mean no: %v, %v", needs, err)
	}

	svc = NewService(ServiceOptions[[]domain.Spot]{
		Client:           resilient,
		NeedsInitialLoad: func(ctx context.Context) (bool, error) { return true, nil },
	})
	if needs, _ := svc.NeedsInitialLoad(context.Background()); !needs {
		t.Error("expected the wired check to be consulted")
	}
	if svc.Name() != "scripted" || svc.Interval() != time.Minute {
		t.Errorf("unexpected identity: %s every %v", svc.Name(), svc.Interval())
	}
}
