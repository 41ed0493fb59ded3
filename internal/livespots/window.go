// Package livespots ingests the live reception-report stream and keeps
// a rolling in-memory activity window over it. Reports never touch the
// database; the window is the only consumer and rebuilds its rollups on
// demand.
package livespots

import (
	"sort"
	"sync"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

// maxReports bounds the window's memory when the stream runs hot. Old
// reports are pruned by time first; the cap only matters during bursts.
const maxReports = 50000

// Window accumulates reception reports and rolls them up per (band,
// mode). It keeps two window-lengths of history so each rollup can carry
// the preceding window's count as its trend baseline.
type Window struct {
	mu         sync.Mutex
	size       time.Duration
	reports    []domain.PathReport
	lastReport time.Time

	now func() time.Time // for tests
}

// NewWindow creates a rolling window of the given length. size <= 0
// falls back to 15 minutes.
func NewWindow(size time.Duration) *Window {
	if size <= 0 {
		size = 15 * time.Minute
	}
	return &Window{
		size: size,
		now:  time.Now,
	}
}

// Add records one reception report and prunes anything too old to ever
// count again.
func (w *Window) Add(r domain.PathReport) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.reports = append(w.reports, r)
	if r.ReportedAt.After(w.lastReport) {
		w.lastReport = r.ReportedAt
	}

	w.prune(w.now())
}

// prune drops reports older than both windows. Callers hold the lock.
func (w *Window) prune(now time.Time) {
	horizon := now.Add(-2 * w.size)
	keep := w.reports[:0]
	for _, r := range w.reports {
		if r.ReportedAt.After(horizon) {
			keep = append(keep, r)
		}
	}
	w.reports = keep

	if len(w.reports) > maxReports {
		w.reports = w.reports[len(w.reports)-maxReports:]
	}
}

type bandMode struct {
	band domain.Band
	mode string
}

type rollup struct {
	count     int
	reporters map[string]struct{}
	fields    map[string]struct{}
}

// Rollups aggregates the current window per (band, mode), with the
// preceding window's count attached for the trend signal. Channels are
// returned busiest first.
func (w *Window) Rollups() []domain.BandActivity {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	windowStart := now.Add(-w.size)
	prevStart := now.Add(-2 * w.size)

	current := make(map[bandMode]*rollup)
	prev := make(map[bandMode]int)
	for _, r := range w.reports {
		key := bandMode{r.Band, r.Mode}
		switch {
		case r.ReportedAt.After(windowStart):
			agg, ok := current[key]
			if !ok {
				agg = &rollup{
					reporters: make(map[string]struct{}),
					fields:    make(map[string]struct{}),
				}
				current[key] = agg
			}
			agg.count++
			if r.ReceiverCall != "" {
				agg.reporters[r.ReceiverCall] = struct{}{}
			}
			if field := domain.GridField(r.SenderLocator); field != "" {
				agg.fields[field] = struct{}{}
			}
		case r.ReportedAt.After(prevStart):
			prev[key]++
		}
	}

	activities := make([]domain.BandActivity, 0, len(current))
	for key, agg := range current {
		activities = append(activities, domain.BandActivity{
			Band:            key.band,
			Mode:            key.mode,
			WindowStart:     windowStart,
			WindowEnd:       now,
			SpotCount:       agg.count,
			PrevSpotCount:   prev[key],
			UniqueReporters: len(agg.reporters),
			UniqueFields:    len(agg.fields),
		})
	}

	sort.Slice(activities, func(i, j int) bool {
		if activities[i].SpotCount != activities[j].SpotCount {
			return activities[i].SpotCount > activities[j].SpotCount
		}
		if activities[i].Band != activities[j].Band {
			return activities[i].Band < activities[j].Band
		}
		return activities[i].Mode < activities[j].Mode
	})
	return activities
}

// Count returns the number of reports currently held across both
// windows.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.reports)
}

// LastReportAt returns the newest report time seen, or the zero time.
func (w *Window) LastReportAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReport
}
