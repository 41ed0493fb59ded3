package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

// hamqslTimeLayout matches the feed's updated stamp, e.g.
// "20 Aug 2026 1233 GMT". The day may or may not be zero-padded.
const hamqslTimeLayout = "2 Jan 2006 1504 GMT"

// hamqslXML mirrors the solarxml feed. Everything arrives as strings;
// numeric fields are parsed leniently because the feed is aggregated by
// hand and individual fields go missing now and then.
type hamqslXML struct {
	Data hamqslData `xml:"solardata"`
}

type hamqslData struct {
	Updated   string       `xml:"updated"`
	SolarFlux string       `xml:"solarflux"`
	AIndex    string       `xml:"aindex"`
	KIndex    string       `xml:"kindex"`
	XRay      string       `xml:"xray"`
	Sunspots  string       `xml:"sunspots"`
	SolarWind string       `xml:"solarwind"`
	Bands     []hamqslBand `xml:"calculatedconditions>band"`
}

type hamqslBand struct {
	Name   string `xml:"name,attr"`
	Time   string `xml:"time,attr"`
	Rating string `xml:",chardata"`
}

// bandGroups expands the feed's coarse band groupings into the
// individual bands the dashboard tracks.
var bandGroups = map[string][]domain.Band{
	"80m-40m": {"80m", "60m", "40m"},
	"30m-20m": {"30m", "20m"},
	"17m-15m": {"17m", "15m"},
	"12m-10m": {"12m", "10m"},
}

// fetchHamQSL fetches and parses the solarxml feed, attributing any
// failure to source.
func fetchHamQSL(ctx context.Context, hc *http.Client, source, url, userAgent string) (*hamqslData, error) {
	body, err := fetch.Get(ctx, hc, source, url, userAgent)
	if err != nil {
		return nil, err
	}
	var parsed hamqslXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &fetch.DecodeError{Source: source, Err: err}
	}
	return &parsed.Data, nil
}

func (d *hamqslData) updatedAt(source string) (time.Time, error) {
	t, err := time.Parse(hamqslTimeLayout, strings.TrimSpace(d.Updated))
	if err != nil {
		return time.Time{}, &fetch.DecodeError{Source: source, Err: fmt.Errorf("bad updated stamp %q: %w", d.Updated, err)}
	}
	return t.UTC(), nil
}

func atoiPtr(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &v
}

func atofPtr(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

// HamQSLClient reads the aggregated solar indices from the solarxml
// feed. It is the backfill behind NOAA in the authority order and the
// only feed carrying sunspots, A index, X-ray class and wind speed.
type HamQSLClient struct {
	endpoint
}

var _ fetch.Client[domain.SolarIndices] = (*HamQSLClient)(nil)

// NewHamQSL creates the solar indices client.
func NewHamQSL(hc *http.Client, url string, interval time.Duration, userAgent string) *HamQSLClient {
	return &HamQSLClient{endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent}}
}

func (c *HamQSLClient) Source() string          { return SourceHamQSL }
func (c *HamQSLClient) Interval() time.Duration { return c.interval }

func (c *HamQSLClient) Fetch(ctx context.Context) (domain.SolarIndices, error) {
	var zero domain.SolarIndices

	data, err := fetchHamQSL(ctx, c.hc, SourceHamQSL, c.url, c.userAgent)
	if err != nil {
		return zero, err
	}
	measuredAt, err := data.updatedAt(SourceHamQSL)
	if err != nil {
		return zero, err
	}

	reading := domain.SolarIndices{
		Source:         SourceHamQSL,
		SolarFlux:      atofPtr(data.SolarFlux),
		SunspotNumber:  atoiPtr(data.Sunspots),
		AIndex:         atoiPtr(data.AIndex),
		KIndex:         atofPtr(data.KIndex),
		XRay:           strings.TrimSpace(data.XRay),
		SolarWindSpeed: atofPtr(data.SolarWind),
		MeasuredAt:     measuredAt,
	}

	if reading.SolarFlux == nil && reading.SunspotNumber == nil && reading.AIndex == nil &&
		reading.KIndex == nil && reading.XRay == "" && reading.SolarWindSpeed == nil {
		return zero, &fetch.DecodeError{Source: SourceHamQSL, Err: fmt.Errorf("feed carried no solar fields")}
	}
	return reading, nil
}

// BandConditionsClient reads the per-band condition ratings from the
// same solarxml feed. It is a separate source with its own cadence and
// health so a conditions outage doesn't mark the solar numbers bad.
type BandConditionsClient struct {
	endpoint
}

var _ fetch.Client[[]domain.BandCondition] = (*BandConditionsClient)(nil)

// NewBandConditions creates the band conditions client.
func NewBandConditions(hc *http.Client, url string, interval time.Duration, userAgent string) *BandConditionsClient {
	return &BandConditionsClient{endpoint{hc: hc, url: url, interval: interval, userAgent: userAgent}}
}

func (c *BandConditionsClient) Source() string          { return SourceBandConditions }
func (c *BandConditionsClient) Interval() time.Duration { return c.interval }

func (c *BandConditionsClient) Fetch(ctx context.Context) ([]domain.BandCondition, error) {
	data, err := fetchHamQSL(ctx, c.hc, SourceBandConditions, c.url, c.userAgent)
	if err != nil {
		return nil, err
	}
	recordedAt, err := data.updatedAt(SourceBandConditions)
	if err != nil {
		return nil, err
	}

	byBand := make(map[domain.Band]*domain.BandCondition)
	for _, entry := range data.Bands {
		bands, ok := bandGroups[strings.TrimSpace(entry.Name)]
		if !ok {
			continue
		}
		rating := domain.NormalizeRating(entry.Rating)
		for _, band := range bands {
			cond, ok := byBand[band]
			if !ok {
				cond = &domain.BandCondition{
					Source:     SourceBandConditions,
					Band:       band,
					RecordedAt: recordedAt,
				}
				byBand[band] = cond
			}
			switch strings.ToLower(strings.TrimSpace(entry.Time)) {
			case "day":
				cond.Day = rating
			case "night":
				cond.Night = rating
			}
		}
	}

	if len(byBand) == 0 {
		return nil, &fetch.DecodeError{Source: SourceBandConditions, Err: fmt.Errorf("feed carried no band conditions")}
	}

	conds := make([]domain.BandCondition, 0, len(byBand))
	for _, band := range domain.Bands() {
		if cond, ok := byBand[band]; ok {
			conds = append(conds, *cond)
		}
	}
	return conds, nil
}
