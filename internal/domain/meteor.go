package domain

import "time"

// MeteorShower is an annual shower window relevant to meteor-scatter
// operators. Identity is (Source, Code). ZHR is the zenithal hourly rate
// at peak, the standard strength measure from the almanacs.
type MeteorShower struct {
	ID        int64
	Source    string
	Code      string // IMO three-letter code, e.g. "PER"
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	PeaksAt   time.Time
	ZHR       int
	FetchedAt time.Time
}

// Status reports where now falls relative to the shower's activity window.
func (m *MeteorShower) Status(now time.Time) WindowStatus {
	return statusForWindow(m.StartsAt, m.EndsAt, now)
}

// NearPeak reports whether now is within a day of the peak, when rates
// are high enough for reliable scatter contacts.
func (m *MeteorShower) NearPeak(now time.Time) bool {
	d := now.Sub(m.PeaksAt)
	if d < 0 {
		d = -d
	}
	return d <= 24*time.Hour
}

// IsFavorable reports whether the shower is currently active.
func (m *MeteorShower) IsFavorable(now time.Time) bool {
	return m.Status(now) == StatusActive
}

// Score rates an active shower by its ZHR tier, with a bonus near the
// peak. ZHR tiers: >=100 major (80), 50-100 strong (55->80), 20-50
// moderate (30->55), below 20 minor (10->30). Outside the window: 0.
func (m *MeteorShower) Score(now time.Time) int {
	if m.Status(now) != StatusActive {
		return 0
	}

	zhr := float64(m.ZHR)
	var base float64
	switch {
	case zhr >= 100:
		base = 80
	case zhr >= 50:
		base = linearScale(zhr, 50, 100, 55, 80)
	case zhr >= 20:
		base = linearScale(zhr, 20, 50, 30, 55)
	default:
		base = linearScale(zhr, 0, 20, 10, 30)
	}

	if m.NearPeak(now) {
		base += 20
	}
	return clampScore(base)
}
