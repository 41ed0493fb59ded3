package domain

import "time"

// Spot is one portable-activation sighting from a spot network. A spot is
// re-sighted repeatedly while the activation runs; identity is
// (Source, SpotID) and mutable fields carry the latest sighting.
type Spot struct {
	ID            int64  // internal row id, 0 until persisted
	Source        string // originating network, e.g. "pota" or "sota"
	SpotID        string // the network's own id for this activation
	Activator     string
	Reference     string // park or summit designator
	ReferenceName string
	FrequencyKHz  float64
	Mode          string
	Spotter       string
	Comment       string
	Locator       string // maidenhead grid when the network provides one
	SpottedAt     time.Time
}

// Band derives the band from the spotted frequency.
func (s *Spot) Band() Band {
	return BandForFrequency(s.FrequencyKHz)
}

// Age returns how long ago the spot was last sighted. Negative means the
// network's clock is ahead of ours.
func (s *Spot) Age(now time.Time) time.Duration {
	return now.Sub(s.SpottedAt)
}

// IsFavorable reports whether the spot is still fresh enough to chase.
// The activation is almost certainly over an hour after the last sighting.
func (s *Spot) IsFavorable(now time.Time) bool {
	return s.Age(now) <= time.Hour
}

// Score applies the recency decay curve to the spot's age.
func (s *Spot) Score(now time.Time) int {
	return recencyScore(s.Age(now))
}

// ActivationSummary condenses the current spot list into one entity for
// the dashboard header ("12 activations on the air").
type ActivationSummary struct {
	Count      int
	MostRecent time.Time
	Bands      []Band // distinct bands with at least one activation
}

const (
	summaryPointsPerSpot = 8
	summaryRecencyBonus  = 20
	summaryRecencyWindow = 5 * time.Minute
)

// Summarize builds an ActivationSummary from a spot list.
func Summarize(spots []Spot) ActivationSummary {
	sum := ActivationSummary{Count: len(spots)}
	seen := make(map[Band]bool)
	for i := range spots {
		if spots[i].SpottedAt.After(sum.MostRecent) {
			sum.MostRecent = spots[i].SpottedAt
		}
		if b := spots[i].Band(); b != BandUnknown && !seen[b] {
			seen[b] = true
			sum.Bands = append(sum.Bands, b)
		}
	}
	return sum
}

// IsFavorable reports whether there is anything on the air at all.
func (a *ActivationSummary) IsFavorable(now time.Time) bool {
	return a.Count > 0
}

// Score grows with the activation count, saturating at 100, with a flat
// bonus when the newest sighting is within the recency window.
func (a *ActivationSummary) Score(now time.Time) int {
	score := a.Count * summaryPointsPerSpot
	if a.Count > 0 && now.Sub(a.MostRecent) <= summaryRecencyWindow {
		score += summaryRecencyBonus
	}
	if score > 100 {
		score = 100
	}
	return score
}
