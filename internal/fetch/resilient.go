package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// Options holds the per-source resilience settings.
type Options struct {
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	FailureRate    float64 // breaker trips at this failure ratio
	MinRequests    uint32  // observations before the ratio applies
	Cooldown       time.Duration
	RatePerMinute  int // outbound budget; 0 disables the limiter
}

// withDefaults fills unset options with workable values.
func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 10 * time.Second
	}
	if o.FailureRate <= 0 || o.FailureRate > 1 {
		o.FailureRate = 0.6
	}
	if o.MinRequests == 0 {
		o.MinRequests = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = time.Minute
	}
	return o
}

// Resilient wraps a source client with, in order: an outbound rate
// limiter, bounded retry with backoff, and a circuit breaker around each
// live attempt. On failure it degrades to the last good value, then to
// the source's declared default. The live call is always attempted first;
// the last-good slot is never a primary path.
//
// Resilient implements Client[T] itself, so callers cannot tell a wrapped
// client from a bare one.
type Resilient[T any] struct {
	client  Client[T]
	def     func() T // nil means no default: errors reach the caller
	opts    Options
	breaker *gobreaker.CircuitBreaker[T]
	limiter *rate.Limiter
	log     *log.Logger

	mu           sync.Mutex
	lastGood     T
	hasLastGood  bool
	lastSuccess  time.Time
	servingStale bool
	lastErr      error

	now func() time.Time
}

// NewResilient wraps client. def supplies the fallback value served when
// every live attempt fails and nothing good was ever fetched; pass nil
// for sources where "no data" must be observable as an error.
func NewResilient[T any](client Client[T], opts Options, def func() T) *Resilient[T] {
	opts = opts.withDefaults()
	r := &Resilient[T]{
		client: client,
		def:    def,
		opts:   opts,
		log:    logging.WithPrefix(client.Source()),
		now:    time.Now,
	}

	r.breaker = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        client.Source(),
		MaxRequests: 1,
		Interval:    5 * time.Minute, // failure ratio evaluated over rolling windows while closed
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= opts.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= opts.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	if opts.RatePerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return r
}

// Source returns the wrapped client's source name.
func (r *Resilient[T]) Source() string { return r.client.Source() }

// Interval returns the wrapped client's refresh cadence.
func (r *Resilient[T]) Interval() time.Duration { return r.client.Interval() }

// Fetch attempts the live call and falls back per the degrade chain.
// The returned error is non-nil only when the call failed and the source
// has neither a prior good value nor a default.
func (r *Resilient[T]) Fetch(ctx context.Context) (T, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, &NetworkError{Source: r.Source(), Err: err}
		}
	}

	val, err := r.retryFetch(ctx)
	if err == nil {
		r.recordSuccess(val)
		return val, nil
	}
	return r.fallback(err)
}

// retryFetch runs attempts under the retry policy. Each attempt passes
// through the breaker so every live failure is tracked; an open circuit
// and non-transient errors stop the retry loop immediately.
func (r *Resilient[T]) retryFetch(ctx context.Context) (T, error) {
	var out T
	attempt := func() error {
		v, err := r.breaker.Execute(func() (T, error) {
			return r.client.Fetch(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if !Transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.BackoffInitial
	b.MaxInterval = r.opts.BackoffMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		r.log.Debug("retrying fetch", "error", err, "next_attempt_in", next)
	})
	return out, err
}

func (r *Resilient[T]) recordSuccess(val T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastGood = val
	r.hasLastGood = true
	r.lastSuccess = r.now()
	r.servingStale = false
	r.lastErr = nil
}

// fallback serves the last good value, then the default. Only when
// neither exists does the causing error escape.
func (r *Resilient[T]) fallback(cause error) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = cause

	if r.hasLastGood {
		r.servingStale = true
		r.log.Warn("fetch failed, serving last good value",
			"error", cause, "age", r.now().Sub(r.lastSuccess))
		return r.lastGood, nil
	}
	if r.def != nil {
		r.servingStale = true
		r.log.Warn("fetch failed with no prior value, serving default", "error", cause)
		return r.def(), nil
	}

	var zero T
	r.log.Error("fetch failed with no fallback", "error", cause)
	return zero, cause
}

// IsStale reports whether the last successful fetch is older than the
// source's refresh interval, or whether no fetch has ever succeeded.
func (r *Resilient[T]) IsStale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSuccess.IsZero() {
		return true
	}
	return r.now().Sub(r.lastSuccess) > r.client.Interval()
}

// DataAge returns the age of the last successful fetch. ok is false when
// no fetch has ever succeeded.
func (r *Resilient[T]) DataAge() (age time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSuccess.IsZero() {
		return 0, false
	}
	return r.now().Sub(r.lastSuccess), true
}

// ServingStale reports whether the most recent Fetch had to fall back.
func (r *Resilient[T]) ServingStale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servingStale
}

// Status is the per-source snapshot the feed-health surface reads.
type Status struct {
	Source       string
	Healthy      bool
	Stale        bool
	ServingStale bool
	Breaker      string
	LastSuccess  time.Time
	DataAge      time.Duration
	HasData      bool
	LastError    string
}

// Status assembles the health snapshot. Healthy means fresh data and a
// closed circuit.
func (r *Resilient[T]) Status() Status {
	breaker := r.breaker.State()

	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Source:       r.client.Source(),
		ServingStale: r.servingStale,
		Breaker:      breaker.String(),
		LastSuccess:  r.lastSuccess,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	if !r.lastSuccess.IsZero() {
		st.HasData = true
		st.DataAge = r.now().Sub(r.lastSuccess)
	}
	st.Stale = !st.HasData || st.DataAge > r.client.Interval()
	st.Healthy = !st.Stale && breaker == gobreaker.StateClosed
	return st
}
