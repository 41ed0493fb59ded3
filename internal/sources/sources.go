// Package sources implements the upstream feed adapters. Each adapter
// satisfies the fetch client contract for one source: it performs one
// live call, converts the feed's shape into domain entities, and raises
// typed fetch errors so the resilience wrapper can tell transport
// trouble from a misbehaving feed.
package sources

import (
	"errors"
	"net/http"
	"time"
)

// errNoParsableEntries marks a feed that returned entries but none we
// could make sense of: the shape changed, not the network.
var errNoParsableEntries = errors.New("no parsable entries in feed")

// Stable source names. These go on database rows, error values, log
// lines and the feed-health surface, so they never change even if a
// feed's URL does.
const (
	SourcePOTA           = "pota"
	SourceSOTA           = "sota"
	SourceNOAA           = "noaa"
	SourceHamQSL         = "hamqsl"
	SourceBandConditions = "hamqsl-bands"
	SourceContestCal     = "contestcal"
	SourceMeteors        = "meteors"
	SourceLive           = "pskreporter"
)

// SolarAuthority orders the solar feeds for the field-by-field merge:
// the first source providing a field wins it. NOAA measures; HamQSL
// aggregates, so it backfills what NOAA doesn't carry.
var SolarAuthority = []string{SourceNOAA, SourceHamQSL}

// endpoint carries what every HTTP adapter needs.
type endpoint struct {
	hc        *http.Client
	url       string
	interval  time.Duration
	userAgent string
}

// feedTimeLayouts are the timestamp shapes the spot networks emit:
// zoneless ISO-ish timestamps (UTC implied), with or without fractional
// seconds, occasionally with an explicit zone.
var feedTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
}

// parseFeedTime parses a feed timestamp as UTC.
func parseFeedTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range feedTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
