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

// POTAClient fetches the current activator spots from the POTA API.
type POTAClient struct {
	endpoint
}

var _ fetch.Client[[]domain.Spot] = (*POTAClient)(nil)

// potaSpot is the POTA wire format. Frequencies arrive as kHz strings,
// times as zoneless UTC.
type potaSpot struct {
	SpotID    int64  `json:"spotId"`
	Activator string `json:"activator"`
	Frequency string `json:"frequency"`
	Mode      string `json:"mode"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	SpotTime  string `json:"spotTime"`
	Spotter   string `json:"spotter"`
	Comments  string `json:"comments"`
	Grid6     string `json:"grid6"`
	Grid4     string `json:"grid4"`
}

// NewPOTA creates the POTA spot client.
func NewPOTA(hc *http.Client, url string, interval time.Duration, userAgent string) *POTAClient {
	return &POTAClient{endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent}}
}

func (c *POTAClient) Source() string          { return SourcePOTA }
func (c *POTAClient) Interval() time.Duration { return c.interval }

// Fetch returns the current activations. Individual entries that fail
// to parse are skipped; a batch where nothing parses is a decode error
// because it means the feed changed shape under us.
func (c *POTAClient) Fetch(ctx context.Context) ([]domain.Spot, error) {
	var raw []potaSpot
	if err := fetch.GetJSON(ctx, c.hc, SourcePOTA, c.url, c.userAgent, &raw); err != nil {
		return nil, err
	}

	// The feed occasionally repeats an activation; the last entry is the
	// freshest sighting.
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
		return nil, &fetch.DecodeError{Source: SourcePOTA, Err: errNoParsableEntries}
	}

	spots := make([]domain.Spot, 0, len(byID))
	for _, id := range order {
		spots = append(spots, byID[id])
	}
	return spots, nil
}

func (c *POTAClient) convert(r potaSpot) (domain.Spot, bool) {
	freq, err := strconv.ParseFloat(strings.TrimSpace(r.Frequency), 64)
	if err != nil || freq <= 0 {
		return domain.Spot{}, false
	}
	spottedAt, err := parseFeedTime(r.SpotTime)
	if err != nil {
		return domain.Spot{}, false
	}

	locator := r.Grid6
	if locator == "" {
		locator = r.Grid4
	}

	return domain.Spot{
		Source:        SourcePOTA,
		SpotID:        strconv.FormatInt(r.SpotID, 10),
		Activator:     strings.TrimSpace(r.Activator),
		Reference:     strings.TrimSpace(r.Reference),
		ReferenceName: strings.TrimSpace(r.Name),
		FrequencyKHz:  freq,
		Mode:          domain.NormalizeMode(r.Mode),
		Spotter:       strings.TrimSpace(r.Spotter),
		Comment:       strings.TrimSpace(r.Comments),
		Locator:       strings.TrimSpace(locator),
		SpottedAt:     spottedAt,
	}, true
}
