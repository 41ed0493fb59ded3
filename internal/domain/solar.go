package domain

import (
	"strings"
	"time"
)

// SolarIndices is one space-weather snapshot. Numeric fields are pointers
// because the feeds cover different subsets and zero is a real reading for
// several of them (a K index of 0 means a quiet band, not "no data").
type SolarIndices struct {
	ID             int64
	Source         string // single feed name, or "a+b" after a merge
	SolarFlux      *float64
	SunspotNumber  *int
	AIndex         *int
	KIndex         *float64
	XRay           string
	SolarWindSpeed *float64 // km/s
	MeasuredAt     time.Time
}

// MergeSolar combines snapshots field by field. Callers pass snapshots in
// authority order; the first snapshot providing a field wins it. The
// result's Source joins every feed that contributed at least one field,
// and MeasuredAt is the newest contributing timestamp.
func MergeSolar(snapshots ...SolarIndices) SolarIndices {
	var merged SolarIndices
	contributed := make([]string, 0, len(snapshots))

	for _, s := range snapshots {
		used := false
		if merged.SolarFlux == nil && s.SolarFlux != nil {
			merged.SolarFlux = s.SolarFlux
			used = true
		}
		if merged.SunspotNumber == nil && s.SunspotNumber != nil {
			merged.SunspotNumber = s.SunspotNumber
			used = true
		}
		if merged.AIndex == nil && s.AIndex != nil {
			merged.AIndex = s.AIndex
			used = true
		}
		if merged.KIndex == nil && s.KIndex != nil {
			merged.KIndex = s.KIndex
			used = true
		}
		if merged.XRay == "" && s.XRay != "" {
			merged.XRay = s.XRay
			used = true
		}
		if merged.SolarWindSpeed == nil && s.SolarWindSpeed != nil {
			merged.SolarWindSpeed = s.SolarWindSpeed
			used = true
		}
		if used {
			contributed = append(contributed, s.Source)
			if s.MeasuredAt.After(merged.MeasuredAt) {
				merged.MeasuredAt = s.MeasuredAt
			}
		}
	}

	merged.Source = strings.Join(contributed, "+")
	return merged
}

// IsFavorable reports whether HF conditions are workable: geomagnetic
// field not storming and at least modest flux. Missing fields do not
// disqualify, only bad readings do.
func (s *SolarIndices) IsFavorable(now time.Time) bool {
	if s.KIndex != nil && *s.KIndex >= 5 {
		return false
	}
	if s.SolarFlux != nil && *s.SolarFlux < 70 {
		return false
	}
	return true
}

// Score grades the snapshot from solar flux, with a penalty for
// geomagnetic disturbance. Flux tiers: >=200 excellent, 150-200 very
// good, 100-150 fair-to-good, 70-100 marginal, below 70 poor. The K
// penalty ramps from 0 at K=2 to 60 at K=7.
func (s *SolarIndices) Score(now time.Time) int {
	if s.SolarFlux == nil && s.KIndex == nil {
		return 0
	}

	base := 50.0 // neutral when flux is unreported
	if s.SolarFlux != nil {
		sfi := *s.SolarFlux
		switch {
		case sfi >= 200:
			base = 100
		case sfi >= 150:
			base = linearScale(sfi, 150, 200, 80, 100)
		case sfi >= 100:
			base = linearScale(sfi, 100, 150, 50, 80)
		case sfi >= 70:
			base = linearScale(sfi, 70, 100, 20, 50)
		default:
			base = linearScale(sfi, 0, 70, 0, 20)
		}
	}

	penalty := 0.0
	if s.KIndex != nil {
		k := *s.KIndex
		switch {
		case k <= 2:
			penalty = 0
		case k <= 4:
			penalty = linearScale(k, 2, 4, 0, 20)
		case k <= 7:
			penalty = linearScale(k, 4, 7, 20, 60)
		default:
			penalty = 60
		}
	}

	return clampScore(base - penalty)
}

// ConditionRating is a per-band quality label from the condition feed.
type ConditionRating string

const (
	ConditionGood ConditionRating = "Good"
	ConditionFair ConditionRating = "Fair"
	ConditionPoor ConditionRating = "Poor"
)

// NormalizeRating folds the feed's free-text rating into the known set.
// Unrecognized text maps to Poor so a feed change degrades safely.
func NormalizeRating(raw string) ConditionRating {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "good":
		return ConditionGood
	case "fair":
		return ConditionFair
	default:
		return ConditionPoor
	}
}

// BandCondition is the predicted quality of one band for one part of the
// day. One row per band per refresh cycle; reads take the latest per band.
type BandCondition struct {
	ID         int64
	Source     string
	Band       Band
	Day        ConditionRating
	Night      ConditionRating
	RecordedAt time.Time
}

// current picks the day or night rating from the hour of now (UTC).
// The feed's day/night split is coarse; 06-18 UTC counts as day.
func (b *BandCondition) current(now time.Time) ConditionRating {
	h := now.UTC().Hour()
	if h >= 6 && h < 18 {
		return b.Day
	}
	return b.Night
}

// IsFavorable reports whether the band is predicted usable right now.
func (b *BandCondition) IsFavorable(now time.Time) bool {
	return b.current(now) != ConditionPoor
}

// Score maps the current rating to a fixed level per tier.
func (b *BandCondition) Score(now time.Time) int {
	switch b.current(now) {
	case ConditionGood:
		return 90
	case ConditionFair:
		return 55
	default:
		return 15
	}
}
