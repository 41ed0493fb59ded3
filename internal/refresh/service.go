// Package refresh keeps the store current. A Service drives one source
// through a fetch-persist-invalidate pass; the Coordinator runs every
// service on its own cadence and pulls cold sources forward on startup.
package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arunderwood/nextskip-sub005/internal/cache"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// PersistFunc writes one fetched batch to the store, returning row
// counts for the outcome log. Implementations own the transaction and
// the retention sweep.
type PersistFunc[T any] func(ctx context.Context, batch T) (saved, deleted int64, err error)

// ServiceOptions wires one source's refresh pass together.
type ServiceOptions[T any] struct {
	// Client fetches the batch, with retries, breaker and fallback.
	Client *fetch.Resilient[T]
	// DisplayName labels the source on the feed-health surface.
	DisplayName string
	// Persist stores the batch.
	Persist PersistFunc[T]
	// Caches and CacheName identify the derived view to nudge after a
	// successful persist. Either may be empty for sources without one.
	Caches    *cache.Registry
	CacheName string
	// NeedsInitialLoad reports whether the store lacks usable data for
	// this source, typically by comparing the newest stored row against
	// the refresh interval. nil means never.
	NeedsInitialLoad func(ctx context.Context) (bool, error)
}

// Service is one source's refresh pass: fetch through the resilient
// client, persist, invalidate the derived cache, one outcome log line.
type Service[T any] struct {
	opts ServiceOptions[T]
}

var _ Task = (*Service[int])(nil)

// NewService builds a refresh service from its wiring.
func NewService[T any](opts ServiceOptions[T]) *Service[T] {
	return &Service[T]{opts: opts}
}

// Name returns the source name, the coordinator's task key.
func (s *Service[T]) Name() string { return s.opts.Client.Source() }

// DisplayName returns the human label for health output.
func (s *Service[T]) DisplayName() string { return s.opts.DisplayName }

// Interval returns the source's refresh cadence.
func (s *Service[T]) Interval() time.Duration { return s.opts.Client.Interval() }

// Status exposes the client's health snapshot.
func (s *Service[T]) Status() fetch.Status { return s.opts.Client.Status() }

// NeedsInitialLoad reports whether the source should be refreshed
// immediately rather than waiting out its first interval.
func (s *Service[T]) NeedsInitialLoad(ctx context.Context) (bool, error) {
	if s.opts.NeedsInitialLoad == nil {
		return false, nil
	}
	return s.opts.NeedsInitialLoad(ctx)
}

// Execute runs one refresh pass. Fetch errors pass through untouched;
// persistence failures come back wrapped in *Error. A fetch that fell
// back to stale data skips the persist entirely: the store already
// holds everything the fallback would write, and the retention sweep
// must not run against data that didn't just arrive.
func (s *Service[T]) Execute(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	started := time.Now()

	batch, err := s.opts.Client.Fetch(ctx)
	if err != nil {
		return err
	}
	if s.opts.Client.ServingStale() {
		logging.Warn("Refresh served fallback data, skipping persist",
			"source", s.Name(), "run_id", runID)
		return nil
	}

	saved, deleted, err := s.opts.Persist(ctx, batch)
	if err != nil {
		return &Error{Source: s.Name(), Err: err}
	}

	if s.opts.Caches != nil && s.opts.CacheName != "" {
		s.opts.Caches.Refresh(s.opts.CacheName)
	}

	logging.Info("Refresh complete",
		"source", s.Name(),
		"run_id", runID,
		"saved", saved,
		"deleted", deleted,
		"took", time.Since(started).Round(time.Millisecond))
	return nil
}
