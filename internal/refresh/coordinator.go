package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arunderwood/nextskip-sub005/internal/fetch"
	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// Task is what the coordinator schedules. *Service[T] satisfies it; the
// indirection keeps the coordinator free of the per-source type
// parameters.
type Task interface {
	Name() string
	DisplayName() string
	Interval() time.Duration
	Execute(ctx context.Context) error
	NeedsInitialLoad(ctx context.Context) (bool, error)
	Status() fetch.Status
}

// SourceHealth is one source's entry on the feed-health surface.
type SourceHealth struct {
	Source       string
	DisplayName  string
	Healthy      bool
	Stale        bool
	ServingStale bool
	Breaker      string
	LastSuccess  time.Time
	DataAge      time.Duration
	HasData      bool
	LastError    string
	NextRun      time.Time
	Refreshable  bool // false for push sources with no schedule
}

// guard serializes runs of one task. Overlap protection has to survive
// force-run reschedules, which replace the cron entry and would reset
// any per-entry chain state, so it lives with the task instead.
type guard struct {
	running atomic.Bool
}

func (g *guard) run(ctx context.Context, t Task) {
	if !g.running.CompareAndSwap(false, true) {
		logging.Debug("Refresh already running, skipping", "source", t.Name())
		return
	}
	defer g.running.Store(false)

	if err := t.Execute(ctx); err != nil {
		logging.Error("Refresh failed", "source", t.Name(), "error", err)
	}
}

// immediateThenEvery fires once almost immediately, then settles into
// the regular interval. Rescheduling with it is how the coordinator
// forces a run without invoking the task inline: execution stays on the
// scheduler goroutine with the guard and recovery chain around it.
type immediateThenEvery struct {
	interval time.Duration
	fired    atomic.Bool
}

func (s *immediateThenEvery) Next(t time.Time) time.Time {
	if s.fired.CompareAndSwap(false, true) {
		return t.Add(time.Second)
	}
	return t.Add(s.interval)
}

type entry struct {
	task  Task
	guard *guard
	id    cron.EntryID
}

// Coordinator owns the refresh schedule. Register every service, then
// Start once; per-source failures are logged and contained, never
// propagated between sources.
type Coordinator struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
}

// NewCoordinator builds an empty coordinator.
func NewCoordinator() *Coordinator {
	cronLog := cron.PrintfLogger(logging.WithPrefix("cron"))
	return &Coordinator{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		entries: make(map[string]*entry),
	}
}

// Register schedules a task on its regular interval. Registering the
// same source twice replaces the earlier schedule.
func (c *Coordinator) Register(t Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[t.Name()]; ok {
		c.cron.Remove(old.id)
	}
	e := &entry{task: t, guard: &guard{}}
	e.id = c.cron.Schedule(cron.Every(t.Interval()), c.job(e))
	c.entries[t.Name()] = e
	logging.Debug("Scheduled refresh", "source", t.Name(), "interval", t.Interval())
}

func (c *Coordinator) job(e *entry) cron.Job {
	return cron.FuncJob(func() {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		e.guard.run(ctx, e.task)
	})
}

// Start begins scheduled execution, then walks every source and pulls
// the cold ones forward: a source whose store has no usable data would
// otherwise serve nothing until its first interval elapsed.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	snapshot := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, e)
	}
	c.mu.Unlock()

	c.cron.Start()

	var g errgroup.Group
	g.SetLimit(4)
	for _, e := range snapshot {
		e := e
		g.Go(func() error {
			needs, err := e.task.NeedsInitialLoad(ctx)
			if err != nil {
				logging.Warn("Cold-start check failed",
					"source", e.task.Name(), "error", err)
				return nil
			}
			if needs {
				logging.Info("No usable data yet, pulling refresh forward",
					"source", e.task.Name())
				c.forceRun(e)
			}
			return nil
		})
	}
	g.Wait()

	logging.Info("Refresh coordinator started", "sources", len(snapshot))
}

// RunNow force-reschedules one source for immediate execution.
func (c *Coordinator) RunNow(name string) error {
	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	c.forceRun(e)
	logging.Info("Manual refresh requested", "source", name)
	return nil
}

// forceRun swaps the entry onto a run-now-then-every schedule. The
// task's guard travels with it, so a run already in flight makes the
// forced one a no-op instead of an overlap.
func (c *Coordinator) forceRun(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cron.Remove(e.id)
	e.id = c.cron.Schedule(&immediateThenEvery{interval: e.task.Interval()}, c.job(e))
}

// Health reports every scheduled source, sorted by name.
func (c *Coordinator) Health() []SourceHealth {
	c.mu.Lock()
	snapshot := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, e)
	}
	c.mu.Unlock()

	out := make([]SourceHealth, 0, len(snapshot))
	for _, e := range snapshot {
		st := e.task.Status()
		h := SourceHealth{
			Source:       st.Source,
			DisplayName:  e.task.DisplayName(),
			Healthy:      st.Healthy,
			Stale:        st.Stale,
			ServingStale: st.ServingStale,
			Breaker:      st.Breaker,
			LastSuccess:  st.LastSuccess,
			DataAge:      st.DataAge,
			HasData:      st.HasData,
			LastError:    st.LastError,
			Refreshable:  true,
		}
		if ce := c.cron.Entry(e.id); ce.Valid() {
			h.NextRun = ce.Next
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Stop halts the schedule and waits for in-flight runs to finish.
func (c *Coordinator) Stop() {
	<-c.cron.Stop().Done()
	logging.Info("Refresh coordinator stopped")
}
