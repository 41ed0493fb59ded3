package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

// scriptClient returns whatever its script says for each successive call.
type scriptClient struct {
	name     string
	interval time.Duration

	mu     sync.Mutex
	calls  int
	script func(call int) ([]string, error)
}

func (c *scriptClient) Fetch(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	fn := c.script
	c.mu.Unlock()
	return fn(n)
}

func (c *scriptClient) Source() string { return c.name }

func (c *scriptClient) Interval() time.Duration { return c.interval }

func (c *scriptClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func fastOpts() Options {
	return Options{
		MaxRetries:     0,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
		FailureRate:    0.5,
		MinRequests:    3,
		Cooldown:       time.Hour, // breaker stays open for the whole test
		RatePerMinute:  0,
	}
}

func TestFetchSuccess(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return []string{"a", "b"}, nil
		},
	}
	r := NewResilient[[]string](client, fastOpts(), nil)

	got, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 values, got %d", len(got))
	}
	if r.ServingStale() {
		t.Error("fresh fetch should not be marked stale")
	}
	if r.IsStale() {
		t.Error("source should be fresh right after a success")
	}
}

func TestFallbackWarmCache(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(call int) ([]string, error) {
			if call == 1 {
				return []string{"good"}, nil
			}
			return nil, &NetworkError{Source: "testsrc", Err: errors.New("down")}
		},
	}
	r := NewResilient[[]string](client, fastOpts(), nil)

	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	got, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fallback must not surface the error, got %v", err)
	}
	if len(got) != 1 || got[0] != "good" {
		t.Errorf("expected last good value, got %v", got)
	}
	if !r.ServingStale() {
		t.Error("serving stale flag should be set after fallback")
	}

	// A later success clears the flag.
	client.mu.Lock()
	client.script = func(int) ([]string, error) { return []string{"fresh"}, nil }
	client.mu.Unlock()
	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatalf("recovery fetch: %v", err)
	}
	if r.ServingStale() {
		t.Error("serving stale flag should clear on success")
	}
}

func TestFallbackColdCacheDefault(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return nil, &NetworkError{Source: "testsrc", Err: errors.New("down")}
		},
	}
	r := NewResilient[[]string](client, fastOpts(), func() []string { return []string{} })

	got, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("default fallback must not surface the error, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected the declared empty default, got %v", got)
	}
	if !r.ServingStale() {
		t.Error("serving stale flag should be set when serving the default")
	}
}

func TestFallbackColdCacheNoDefault(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return nil, &StatusError{Source: "testsrc", Code: 500, Status: "500 Internal Server Error"}
		},
	}
	r := NewResilient[[]string](client, fastOpts(), nil)

	_, err := r.Fetch(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected the typed error to reach the caller, got %T: %v", err, err)
	}
}

func TestDecodeErrorNotRetried(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return nil, &DecodeError{Source: "testsrc", Err: errors.New("bad shape")}
		},
	}
	opts := fastOpts()
	opts.MaxRetries = 3
	r := NewResilient[[]string](client, opts, nil)

	r.Fetch(context.Background())
	if client.callCount() != 1 {
		t.Errorf("decode errors must not be retried, got %d attempts", client.callCount())
	}
}

func TestNetworkErrorRetried(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return nil, &NetworkError{Source: "testsrc", Err: errors.New("timeout")}
		},
	}
	opts := fastOpts()
	opts.MaxRetries = 2
	opts.MinRequests = 100 // keep the breaker out of this test
	r := NewResilient[[]string](client, opts, nil)

	r.Fetch(context.Background())
	if client.callCount() != 3 {
		t.Errorf("expected initial attempt plus 2 retries, got %d attempts", client.callCount())
	}
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script: func(int) ([]string, error) {
			return nil, &NetworkError{Source: "testsrc", Err: errors.New("down")}
		},
	}
	r := NewResilient[[]string](client, fastOpts(), nil)

	// Three failures meet MinRequests=3 at failure rate 1.0 and trip the
	// breaker.
	for i := 0; i < 3; i++ {
		r.Fetch(context.Background())
	}
	attempts := client.callCount()
	if attempts != 3 {
		t.Fatalf("expected 3 live attempts before the trip, got %d", attempts)
	}

	_, err := r.Fetch(context.Background())
	if client.callCount() != attempts {
		t.Error("open circuit must reject without a live attempt")
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}

	st := r.Status()
	if st.Breaker != gobreaker.StateOpen.String() {
		t.Errorf("status should expose the open breaker, got %q", st.Breaker)
	}
	if st.Healthy {
		t.Error("source with an open breaker must not report healthy")
	}
}

func TestFreshnessTracking(t *testing.T) {
	client := &scriptClient{
		name:     "testsrc",
		interval: 5 * time.Minute,
		script:   func(int) ([]string, error) { return []string{"x"}, nil },
	}
	r := NewResilient[[]string](client, fastOpts(), nil)

	if !r.IsStale() {
		t.Error("a source that never succeeded is stale")
	}
	if _, ok := r.DataAge(); ok {
		t.Error("DataAge should report no data before the first success")
	}

	base := time.Now()
	r.now = func() time.Time { return base }
	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	if r.IsStale() {
		t.Error("fresh data reported stale")
	}
	age, ok := r.DataAge()
	if !ok || age != 0 {
		t.Errorf("expected zero age right after success, got %v ok=%v", age, ok)
	}

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	if !r.IsStale() {
		t.Error("data older than the interval should be stale")
	}
	age, _ = r.DataAge()
	if age != 6*time.Minute {
		t.Errorf("expected 6m age, got %v", age)
	}
}

func TestResilientImplementsClient(t *testing.T) {
	client := &scriptClient{name: "testsrc", interval: time.Minute,
		script: func(int) ([]string, error) { return nil, nil }}
	var _ Client[[]string] = NewResilient[[]string](client, fastOpts(), nil)
}
