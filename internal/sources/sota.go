package sources

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

// SOTAClient fetches recent summit spots from the SOTA API.
type SOTAClient struct {
	endpoint
}

var _ fetch.Client[[]domain.Spot] = (*SOTAClient)(nil)

// sotaSpot is the SOTA wire format. Unlike POTA, frequencies arrive as
// MHz strings and the summit reference is split into association and
// summit code.
type sotaSpot struct {
	ID                int64  `json:"id"`
	TimeStamp         string `json:"timeStamp"`
	Comments          string `json:"comments"`
	Callsign          string `json:"callsign"`
	AssociationCode   string `json:"associationCode"`
	SummitCode        string `json:"summitCode"`
	SummitDetails     string `json:"summitDetails"`
	ActivatorCallsign string `json:"activatorCallsign"`
	Frequency         string `json:"frequency"`
	Mode              string `json:"mode"`
}

// NewSOTA creates the SOTA spot client.
func NewSOTA(hc *http.Client, url string, interval time.Duration, userAgent string) *SOTAClient {
	return &SOTAClient{endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent}}
}

func (c *SOTAClient) Source() string          { return SourceSOTA }
func (c *SOTAClient) Interval() time.Duration { return c.interval }

func (c *SOTAClient) Fetch(ctx context.Context) ([]domain.Spot, error) {
	var raw []sotaSpot
	if err := fetch.GetJSON(ctx, c.hc, SourceSOTA, c.url, c.userAgent, &raw); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Spot, len(raw))
	order := make([]string, 0, len(raw))
	for _, r := range raw {
		spot, ok := c.convert(r)
		if !ok {
			continue
		}
		if _, seen := byID[spot.SpotID]; !seen {
			order = append(order, spot.SpotID)
		}
		byID[spot.SpotID] = spot
	}

	if len(raw) > 0 && len(byID) == 0 {
		return nil, &fetch.DecodeError{Source: SourceSOTA, Err: errNoParsableEntries}
	}

	spots := make([]domain.Spot, 0, len(byID))
	for _, id := range order {
		spots = append(spots, byID[id])
	}
	return spots, nil
}

func (c *SOTAClient) convert(r sotaSpot) (domain.Spot, bool) {
	mhz, err := strconv.ParseFloat(strings.TrimSpace(r.Frequency), 64)
	if err != nil || mhz <= 0 {
		return domain.Spot{}, false
	}
	spottedAt, err := parseFeedTime(r.TimeStamp)
	if err != nil {
		return domain.Spot{}, false
	}

	reference := strings.TrimSpace(r.SummitCode)
	if assoc := strings.TrimSpace(r.AssociationCode); assoc != "" && !strings.Contains(reference, "/") {
		reference = assoc + "/" + reference
	}

	return domain.Spot{
		Source:        SourceSOTA,
		SpotID:        strconv.FormatInt(r.ID, 10),
		Activator:     strings.TrimSpace(r.ActivatorCallsign),
		Reference:     reference,
		ReferenceName: strings.TrimSpace(r.SummitDetails),
		FrequencyKHz:  mhz * 1000,
		Mode:          domain.NormalizeMode(r.Mode),
		Spotter:       strings.TrimSpace(r.Callsign),
		Comment:       strings.TrimSpace(r.Comments),
		SpottedAt:     spottedAt,
	}, true
}
