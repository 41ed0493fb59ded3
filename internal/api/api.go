// Package api is the read surface the dashboard consumes. Every getter
// answers from a cache together with an as-of timestamp and absorbs
// upstream failure into stale-or-empty data; source trouble is visible
// only on the health surface, never as an error from a read.
package api

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/cache"
	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/livespots"
	"github.com/arunderwood/nextskip-sub005/internal/refresh"
	"github.com/arunderwood/nextskip-sub005/internal/sources"
)

// liveStaleAfter is how quiet the live stream may go before it reads as
// stale on the health surface.
const liveStaleAfter = 5 * time.Minute

// LiveStream is the slice of the ingest stream the health surface reads.
type LiveStream interface {
	Connected() bool
	LastMessageAt() time.Time
}

// Deps wires the read surface together. Live and Stream may be nil when
// the live ingest is disabled.
type Deps struct {
	Spots    *cache.Cache[[]domain.Spot]
	Solar    *cache.Cache[domain.SolarIndices]
	Bands    *cache.Cache[[]domain.BandCondition]
	Contests *cache.Cache[[]domain.Contest]
	Showers  *cache.Cache[[]domain.MeteorShower]

	Live        *livespots.Window
	Stream      LiveStream
	Coordinator *refresh.Coordinator
}

// API answers dashboard reads from cached state.
type API struct {
	deps Deps
	now  func() time.Time
}

// New builds the read surface.
func New(deps Deps) *API {
	return &API{deps: deps, now: time.Now}
}

// Spots returns the cached activation spots, newest first.
func (a *API) Spots(ctx context.Context) ([]domain.Spot, time.Time) {
	spots, asOf, err := a.deps.Spots.Get(ctx)
	if err != nil {
		return nil, time.Time{}
	}
	return spots, asOf
}

// Solar returns the merged solar snapshot.
func (a *API) Solar(ctx context.Context) (domain.SolarIndices, time.Time) {
	solar, asOf, err := a.deps.Solar.Get(ctx)
	if err != nil {
		return domain.SolarIndices{}, time.Time{}
	}
	return solar, asOf
}

// BandConditions returns the latest predicted rating per band.
func (a *API) BandConditions(ctx context.Context) ([]domain.BandCondition, time.Time) {
	conds, asOf, err := a.deps.Bands.Get(ctx)
	if err != nil {
		return nil, time.Time{}
	}
	return conds, asOf
}

// Contests returns current and upcoming contests, soonest first.
func (a *API) Contests(ctx context.Context) ([]domain.Contest, time.Time) {
	contests, asOf, err := a.deps.Contests.Get(ctx)
	if err != nil {
		return nil, time.Time{}
	}
	return contests, asOf
}

// MeteorShowers returns current and upcoming showers.
func (a *API) MeteorShowers(ctx context.Context) ([]domain.MeteorShower, time.Time) {
	showers, asOf, err := a.deps.Showers.Get(ctx)
	if err != nil {
		return nil, time.Time{}
	}
	return showers, asOf
}

// Summary condenses the spot list for the dashboard header.
func (a *API) Summary(ctx context.Context) domain.ActivationSummary {
	spots, _ := a.Spots(ctx)
	return domain.Summarize(spots)
}

// Activity returns the live (band, mode) rollups, busiest first. Empty
// when the live stream is disabled.
func (a *API) Activity() []domain.BandActivity {
	if a.deps.Live == nil {
		return nil
	}
	return a.deps.Live.Rollups()
}

// Ranked is one opportunity on the unified dashboard scale.
type Ranked struct {
	Kind      string
	Label     string
	Score     int
	Favorable bool
}

// Ranked flattens every opportunity type into one list ordered by
// score, ties kept in source order. Scores are computed at call time
// against cached data.
func (a *API) Ranked(ctx context.Context) []Ranked {
	now := a.now().UTC()
	var out []Ranked

	add := func(kind, label string, s domain.Scoreable) {
		out = append(out, Ranked{
			Kind:      kind,
			Label:     label,
			Score:     s.Score(now),
			Favorable: s.IsFavorable(now),
		})
	}

	spots, _ := a.Spots(ctx)
	for i := range spots {
		s := &spots[i]
		add("spot", fmt.Sprintf("%s on %s (%s %s)", s.Activator, s.Reference, s.Band(), s.Mode), s)
	}
	if len(spots) > 0 {
		sum := domain.Summarize(spots)
		add("summary", fmt.Sprintf("%d activations on the air", sum.Count), &sum)
	}

	for _, act := range a.Activity() {
		add("band-activity", fmt.Sprintf("%s %s", act.Band, act.Mode), &act)
	}

	if solar, asOf := a.Solar(ctx); !asOf.IsZero() {
		add("solar", fmt.Sprintf("Solar conditions (%s)", solar.Source), &solar)
	}

	contests, _ := a.Contests(ctx)
	for i := range contests {
		add("contest", contests[i].Name, &contests[i])
	}

	showers, _ := a.MeteorShowers(ctx)
	for i := range showers {
		add("meteor-shower", showers[i].Name, &showers[i])
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Health reports every source, scheduled and push, sorted by name.
func (a *API) Health() []refresh.SourceHealth {
	var out []refresh.SourceHealth
	if a.deps.Coordinator != nil {
		out = a.deps.Coordinator.Health()
	}

	if a.deps.Stream != nil {
		h := refresh.SourceHealth{
			Source:      sources.SourceLive,
			DisplayName: "Live path reports",
		}
		if last := a.deps.Stream.LastMessageAt(); !last.IsZero() {
			h.HasData = true
			h.LastSuccess = last
			h.DataAge = a.now().Sub(last)
		}
		h.Stale = !h.HasData || h.DataAge > liveStaleAfter
		h.Healthy = a.deps.Stream.Connected() && !h.Stale
		if !a.deps.Stream.Connected() {
			h.LastError = "not connected"
		}
		out = append(out, h)
		sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	}
	return out
}

// RefreshNow force-runs one source's refresh pass. Push sources have no
// schedule to run, so asking for one is an error.
func (a *API) RefreshNow(source string) error {
	if source == sources.SourceLive {
		return fmt.Errorf("%s is a push source with nothing to reschedule", source)
	}
	if a.deps.Coordinator == nil {
		return fmt.Errorf("no refresh coordinator configured")
	}
	return a.deps.Coordinator.RunNow(source)
}
