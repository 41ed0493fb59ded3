package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

// almanacShower is one annual shower in the built-in almanac: activity
// window and peak as month/day, rolled into concrete dates per year.
type almanacShower struct {
	code       string
	name       string
	startMonth time.Month
	startDay   int
	endMonth   time.Month
	endDay     int
	peakMonth  time.Month
	peakDay    int
	zhr        int
}

// almanac holds the major annual showers meteor-scatter operators work.
// ZHR values are the customary peak rates.
var almanac = []almanacShower{
	{"QUA", "Quadrantids", time.December, 28, time.January, 12, time.January, 3, 110},
	{"LYR", "Lyrids", time.April, 14, time.April, 30, time.April, 22, 18},
	{"ETA", "Eta Aquariids", time.April, 19, time.May, 28, time.May, 6, 50},
	{"SDA", "Southern Delta Aquariids", time.July, 12, time.August, 23, time.July, 30, 25},
	{"PER", "Perseids", time.July, 17, time.August, 24, time.August, 12, 100},
	{"ORI", "Orionids", time.October, 2, time.November, 7, time.October, 21, 20},
	{"LEO", "Leonids", time.November, 6, time.November, 30, time.November, 17, 15},
	{"GEM", "Geminids", time.December, 4, time.December, 20, time.December, 14, 150},
	{"URS", "Ursids", time.December, 17, time.December, 26, time.December, 22, 10},
}

// materialize rolls the month/day entry into concrete dates for the
// year the window starts in. Windows spanning a year boundary push
// their end and peak into the next year.
func (s almanacShower) materialize(year int, fetchedAt time.Time) domain.MeteorShower {
	endYear := year
	if s.endMonth < s.startMonth {
		endYear++
	}
	peakYear := year
	if s.peakMonth < s.startMonth {
		peakYear++
	}
	return domain.MeteorShower{
		Source:    SourceMeteors,
		Code:      s.code,
		Name:      s.name,
		StartsAt:  time.Date(year, s.startMonth, s.startDay, 0, 0, 0, 0, time.UTC),
		EndsAt:    time.Date(endYear, s.endMonth, s.endDay, 23, 59, 59, 0, time.UTC),
		PeaksAt:   time.Date(peakYear, s.peakMonth, s.peakDay, 12, 0, 0, 0, time.UTC),
		ZHR:       s.zhr,
		FetchedAt: fetchedAt,
	}
}

// MeteorsClient supplies meteor shower windows. With no URL configured
// it materializes the built-in almanac, picking each shower's active or
// next occurrence; with a URL it reads the same shape as JSON, so a
// richer calendar can replace the almanac without code changes.
type MeteorsClient struct {
	endpoint

	now func() time.Time // for tests
}

var _ fetch.Client[[]domain.MeteorShower] = (*MeteorsClient)(nil)

// meteorEntry is the remote feed's wire format, dates as YYYY-MM-DD.
type meteorEntry struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
	Peak  string `json:"peak"`
	ZHR   int    `json:"zhr"`
}

// NewMeteors creates the shower client. url may be empty for the
// built-in almanac.
func NewMeteors(hc *http.Client, url string, interval time.Duration, userAgent string) *MeteorsClient {
	return &MeteorsClient{
		endpoint: endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent},
		now:      time.Now,
	}
}

func (c *MeteorsClient) Source() string          { return SourceMeteors }
func (c *MeteorsClient) Interval() time.Duration { return c.interval }

func (c *MeteorsClient) Fetch(ctx context.Context) ([]domain.MeteorShower, error) {
	if c.url == "" {
		return c.fromAlmanac(), nil
	}
	return c.fromFeed(ctx)
}

// fromAlmanac picks, per shower, the first occurrence that has not
// ended yet: the running one when active, otherwise the next.
func (c *MeteorsClient) fromAlmanac() []domain.MeteorShower {
	now := c.now().UTC()
	showers := make([]domain.MeteorShower, 0, len(almanac))
	for _, entry := range almanac {
		for year := now.Year() - 1; ; year++ {
			shower := entry.materialize(year, now)
			if !shower.EndsAt.Before(now) {
				showers = append(showers, shower)
				break
			}
		}
	}
	return showers
}

func (c *MeteorsClient) fromFeed(ctx context.Context) ([]domain.MeteorShower, error) {
	var raw []meteorEntry
	if err := fetch.GetJSON(ctx, c.hc, SourceMeteors, c.url, c.userAgent, &raw); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	seen := make(map[string]bool, len(raw))
	showers := make([]domain.MeteorShower, 0, len(raw))
	for _, r := range raw {
		if r.Code == "" || seen[r.Code] {
			continue
		}
		start, err1 := time.Parse("2006-01-02", r.Start)
		end, err2 := time.Parse("2006-01-02", r.End)
		peak, err3 := time.Parse("2006-01-02", r.Peak)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		seen[r.Code] = true
		showers = append(showers, domain.MeteorShower{
			Source:    SourceMeteors,
			Code:      r.Code,
			Name:      r.Name,
			StartsAt:  start.UTC(),
			EndsAt:    end.UTC().Add(24*time.Hour - time.Second),
			PeaksAt:   peak.UTC().Add(12 * time.Hour),
			ZHR:       r.ZHR,
			FetchedAt: now,
		})
	}

	if len(raw) > 0 && len(showers) == 0 {
		return nil, &fetch.DecodeError{Source: SourceMeteors, Err: errNoParsableEntries}
	}
	return showers, nil
}
