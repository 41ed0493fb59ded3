package sources

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

// contestWindowRe matches the calendar's description format, e.g.
// "1300Z, Aug 23 to 1300Z, Aug 24". Years are implied.
var contestWindowRe = regexp.MustCompile(
	`(\d{4})Z,\s*([A-Za-z]{3,9})\s*(\d{1,2})\s*(?:to|-)\s*(\d{4})Z,\s*([A-Za-z]{3,9})\s*(\d{1,2})`)

// contestModesRe pulls mode designators out of contest titles.
var contestModesRe = regexp.MustCompile(
	`\b(CW|SSB|RTTY|PSK31|PSK63|PSK|FT8|FT4|DIGITAL|DIGI|PHONE|FM)\b`)

// ContestClient reads the contest calendar RSS feed and turns each item
// into a contest window.
type ContestClient struct {
	endpoint
	parser *gofeed.Parser

	now func() time.Time // for tests
}

var _ fetch.Client[[]domain.Contest] = (*ContestClient)(nil)

// NewContests creates the contest calendar client.
func NewContests(hc *http.Client, url string, interval time.Duration, userAgent string) *ContestClient {
	return &ContestClient{
		endpoint: endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent},
		parser:   gofeed.NewParser(),
		now:      time.Now,
	}
}

func (c *ContestClient) Source() string          { return SourceContestCal }
func (c *ContestClient) Interval() time.Duration { return c.interval }

// Fetch parses the calendar. Items without a recognizable window are
// skipped; a feed with items but no recognizable windows is a decode
// error.
func (c *ContestClient) Fetch(ctx context.Context) ([]domain.Contest, error) {
	body, err := fetch.Get(ctx, c.hc, SourceContestCal, c.url, c.userAgent)
	if err != nil {
		return nil, err
	}
	feed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, &fetch.DecodeError{Source: SourceContestCal, Err: err}
	}

	now := c.now().UTC()
	seen := make(map[string]bool, len(feed.Items))
	contests := make([]domain.Contest, 0, len(feed.Items))
	for _, item := range feed.Items {
		name := strings.TrimSpace(item.Title)
		if name == "" || seen[name] {
			continue
		}
		start, end, ok := parseContestWindow(item.Description, now)
		if !ok {
			continue
		}
		seen[name] = true
		contests = append(contests, domain.Contest{
			Source:    SourceContestCal,
			Name:      name,
			URL:       strings.TrimSpace(item.Link),
			Modes:     modesFromTitle(name),
			StartsAt:  start,
			EndsAt:    end,
			FetchedAt: now,
		})
	}

	if len(feed.Items) > 0 && len(contests) == 0 {
		return nil, &fetch.DecodeError{Source: SourceContestCal, Err: errNoParsableEntries}
	}
	return contests, nil
}

// parseContestWindow resolves the yearless window against now: the
// start lands in the year that keeps it no more than a month in the
// past, and an end month earlier than the start month wraps into the
// next year.
func parseContestWindow(desc string, now time.Time) (start, end time.Time, ok bool) {
	m := contestWindowRe.FindStringSubmatch(desc)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}

	startClock, ok1 := parseClock(m[1])
	startMonth, ok2 := parseMonth(m[2])
	startDay, _ := strconv.Atoi(m[3])
	endClock, ok3 := parseClock(m[4])
	endMonth, ok4 := parseMonth(m[5])
	endDay, _ := strconv.Atoi(m[6])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return time.Time{}, time.Time{}, false
	}

	year := now.Year()
	start = time.Date(year, startMonth, startDay, startClock/100, startClock%100, 0, 0, time.UTC)
	if start.Before(now.AddDate(0, -1, 0)) {
		year++
		start = start.AddDate(1, 0, 0)
	}
	end = time.Date(year, endMonth, endDay, endClock/100, endClock%100, 0, 0, time.UTC)
	if end.Before(start) {
		end = end.AddDate(1, 0, 0)
	}
	return start, end, true
}

func parseClock(hhmm string) (int, bool) {
	v, err := strconv.Atoi(hhmm)
	if err != nil || v/100 > 23 || v%100 > 59 {
		return 0, false
	}
	return v, true
}

func parseMonth(name string) (time.Month, bool) {
	if len(name) < 3 {
		return 0, false
	}
	t, err := time.Parse("Jan", name[:3])
	if err != nil {
		return 0, false
	}
	return t.Month(), true
}

// modesFromTitle extracts the mode designators a contest title carries,
// in title order.
func modesFromTitle(title string) string {
	matches := contestModesRe.FindAllString(strings.ToUpper(title), -1)
	if matches == nil {
		return ""
	}
	seen := make(map[string]bool, len(matches))
	modes := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			modes = append(modes, m)
		}
	}
	return strings.Join(modes, ", ")
}
