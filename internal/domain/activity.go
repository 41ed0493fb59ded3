package domain

import "time"

// PathReport is one reception report from the live spot stream: receiver
// heard sender on a band/mode at a moment. Reports are never persisted;
// they only feed the rolling activity window.
type PathReport struct {
	Band            Band
	Mode            string
	SenderCall      string
	ReceiverCall    string
	SenderLocator   string
	ReceiverLocator string
	SNR             int
	ReportedAt      time.Time
}

// BandActivity is the (band, mode) rollup of the live stream over one
// window, with the preceding window's count kept for the trend signal.
type BandActivity struct {
	Band            Band
	Mode            string
	WindowStart     time.Time
	WindowEnd       time.Time
	SpotCount       int
	PrevSpotCount   int // count over the preceding window of equal length
	UniqueReporters int // distinct receiver callsigns
	UniqueFields    int // distinct maidenhead fields among senders
}

// Weights of the four activity signals. Raw volume dominates; trend
// catches openings as they build; reach and path diversity separate a
// real opening from one loud local.
const (
	weightActivity  = 0.40
	weightTrend     = 0.30
	weightReach     = 0.20
	weightDiversity = 0.10
)

// activitySubScore tiers the raw spot count.
// 100+ spots saturate; 50 spots land mid-scale.
func activitySubScore(count int) float64 {
	c := float64(count)
	switch {
	case c >= 100:
		return 100
	case c >= 50:
		return linearScale(c, 50, 100, 50, 100)
	case c >= 10:
		return linearScale(c, 10, 50, 20, 50)
	default:
		return linearScale(c, 0, 10, 0, 20)
	}
}

// trendSubScore maps the percent change against the previous window.
// Halved activity scores 0, flat 50, doubled 100. A window with no
// history to compare against is treated as flat, unless activity
// appeared from nothing, which is the strongest possible trend.
func trendSubScore(count, prev int) float64 {
	if prev == 0 {
		if count > 0 {
			return 100
		}
		return 50
	}
	pct := (float64(count) - float64(prev)) / float64(prev) * 100
	switch {
	case pct <= -50:
		return 0
	case pct <= 0:
		return linearScale(pct, -50, 0, 0, 50)
	case pct <= 100:
		return linearScale(pct, 0, 100, 50, 100)
	default:
		return 100
	}
}

// reachSubScore tiers the distinct-reporter count.
func reachSubScore(reporters int) float64 {
	r := float64(reporters)
	switch {
	case r >= 50:
		return 100
	case r >= 20:
		return linearScale(r, 20, 50, 60, 100)
	case r >= 5:
		return linearScale(r, 5, 20, 20, 60)
	default:
		return linearScale(r, 0, 5, 0, 20)
	}
}

// diversitySubScore tiers the distinct maidenhead-field count.
func diversitySubScore(fields int) float64 {
	f := float64(fields)
	switch {
	case f >= 20:
		return 100
	case f >= 10:
		return linearScale(f, 10, 20, 60, 100)
	case f >= 3:
		return linearScale(f, 3, 10, 20, 60)
	default:
		return linearScale(f, 0, 3, 0, 20)
	}
}

// IsFavorable reports whether the channel carries enough traffic to be
// worth calling on.
func (b *BandActivity) IsFavorable(now time.Time) bool {
	return b.SpotCount >= 10
}

// Score is the weighted sum of the four normalized signals.
func (b *BandActivity) Score(now time.Time) int {
	raw := weightActivity*activitySubScore(b.SpotCount) +
		weightTrend*trendSubScore(b.SpotCount, b.PrevSpotCount) +
		weightReach*reachSubScore(b.UniqueReporters) +
		weightDiversity*diversitySubScore(b.UniqueFields)
	return clampScore(raw)
}
