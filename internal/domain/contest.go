package domain

import "time"

// Contest is a time-bound operating event from a contest calendar.
// Identity is (Source, Name).
type Contest struct {
	ID        int64
	Source    string
	Name      string
	URL       string
	Modes     string // free text from the calendar, e.g. "CW" or "SSB, RTTY"
	StartsAt  time.Time
	EndsAt    time.Time
	FetchedAt time.Time
}

// Status reports where now falls relative to the contest window.
func (c *Contest) Status(now time.Time) WindowStatus {
	return statusForWindow(c.StartsAt, c.EndsAt, now)
}

// IsFavorable reports whether the contest is running or starts within a
// day, the horizon a dashboard cares about.
func (c *Contest) IsFavorable(now time.Time) bool {
	switch c.Status(now) {
	case StatusActive:
		return true
	case StatusUpcoming:
		return c.StartsAt.Sub(now) <= 24*time.Hour
	default:
		return false
	}
}

// Score peaks while the contest runs and ramps up as the start approaches.
// Active contests hold 90. An upcoming contest climbs 20->70 over the
// final 24 hours before the start; further out it idles at 10. Ended is 0.
func (c *Contest) Score(now time.Time) int {
	switch c.Status(now) {
	case StatusActive:
		return 90
	case StatusUpcoming:
		until := c.StartsAt.Sub(now)
		if until > 24*time.Hour {
			return 10
		}
		hours := until.Hours()
		return clampScore(linearScale(hours, 24, 0, 20, 70))
	default:
		return 0
	}
}
