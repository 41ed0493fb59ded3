// Package domain holds the entity types the dashboard ranks and the
// scoring policies that reduce each of them to a 0-100 opportunity score.
// Scoring is pure: fields plus the caller's clock, no I/O.
package domain

import (
	"math"
	"time"
)

// Scoreable is the contract every opportunity type implements so
// heterogeneous activities can be ranked on one scale.
type Scoreable interface {
	// IsFavorable is the coarse "worth surfacing now" gate. It is its own
	// check per type (count, age, window), never derived from the score.
	IsFavorable(now time.Time) bool

	// Score returns the normalized opportunity score in [0,100].
	Score(now time.Time) int
}

// WindowStatus locates now relative to an event's start/end window.
type WindowStatus string

const (
	StatusUpcoming WindowStatus = "UPCOMING"
	StatusActive   WindowStatus = "ACTIVE"
	StatusEnded    WindowStatus = "ENDED"
)

func statusForWindow(start, end, now time.Time) WindowStatus {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusEnded
	default:
		return StatusActive
	}
}

// clampScore bounds a raw score to [0,100] and rounds to the nearest int.
func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// linearScale maps v in [lo,hi] linearly onto [outLo,outHi].
// Values outside [lo,hi] extrapolate; callers clamp afterwards.
func linearScale(v, lo, hi, outLo, outHi float64) float64 {
	if hi == lo {
		return outLo
	}
	return outLo + (v-lo)/(hi-lo)*(outHi-outLo)
}

// recencyScore is the decay curve shared by spot-like entities.
// Holds at 100 for the first 5 minutes, then 100->80 by 15, 80->20 by 30,
// 20->0 by 60. Future-dated timestamps (upstream clock skew) score 100.
func recencyScore(age time.Duration) int {
	mins := age.Minutes()
	switch {
	case mins < 0:
		return 100
	case mins <= 5:
		return 100
	case mins <= 15:
		return clampScore(linearScale(mins, 5, 15, 100, 80))
	case mins <= 30:
		return clampScore(linearScale(mins, 15, 30, 80, 20))
	case mins <= 60:
		return clampScore(linearScale(mins, 30, 60, 20, 0))
	default:
		return 0
	}
}
