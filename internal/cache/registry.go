package cache

import (
	"context"
	"sync"

	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// handle is the name-addressed view of a cache the registry needs.
// Only caches from this package can satisfy it.
type handle interface {
	Name() string
	rebuild(ctx context.Context)
}

// Registry maps cache names to caches and routes refresh signals onto
// the rebuild worker. Refresh services know their cache by name only;
// the value type stays private to the reader side.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]handle
	worker *Worker
}

// NewRegistry creates a registry backed by worker.
func NewRegistry(worker *Worker) *Registry {
	return &Registry{
		caches: make(map[string]handle),
		worker: worker,
	}
}

// Register adds a cache under its own name. Registering the same name
// twice replaces the earlier cache.
func (r *Registry) Register(c handle) {
	r.mu.Lock()
	r.caches[c.Name()] = c
	r.mu.Unlock()
	logging.Debug("Cache registered", "cache", c.Name())
}

// Refresh queues an asynchronous rebuild of the named cache. It returns
// false when the name is unknown or the queue is full; either way the
// cache keeps serving its previous value.
func (r *Registry) Refresh(name string) bool {
	r.mu.RLock()
	c, ok := r.caches[name]
	r.mu.RUnlock()
	if !ok {
		logging.Warn("Refresh for unknown cache", "cache", name)
		return false
	}
	return r.worker.Enqueue(Task{Name: name, Rebuild: c.rebuild})
}
