package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

// NOAA SWPC product paths, rooted at the configured base URL.
const (
	noaaFluxPath   = "/products/summary/10cm-flux.json"
	noaaKIndexPath = "/products/noaa-planetary-k-index.json"
)

// noaaTimeLayout is the zoneless UTC timestamp SWPC products use.
const noaaTimeLayout = "2006-01-02 15:04:05"

// NOAAClient reads the space-weather indices NOAA SWPC measures
// directly: the 10.7cm solar flux summary and the planetary K index.
// The remaining fields stay nil and are backfilled from the next feed
// in the authority order.
type NOAAClient struct {
	endpoint
}

var _ fetch.Client[domain.SolarIndices] = (*NOAAClient)(nil)

// noaaFlux is the flux summary product: a single object with stringly
// numbers.
type noaaFlux struct {
	Flux      string `json:"Flux"`
	TimeStamp string `json:"TimeStamp"`
}

// NewNOAA creates the NOAA SWPC client. baseURL is the service root;
// the product paths are fixed.
func NewNOAA(hc *http.Client, baseURL string, interval time.Duration, userAgent string) *NOAAClient {
	return &NOAAClient{endpoint{hc: hc, url: strings.TrimSuffix(baseURL, "/"), interval: interval, userAgent: userAgent}}
}

func (c *NOAAClient) Source() string          { return SourceNOAA }
func (c *NOAAClient) Interval() time.Duration { return c.interval }

// Fetch reads both products and combines them into one snapshot stamped
// with the newest measurement time.
func (c *NOAAClient) Fetch(ctx context.Context) (domain.SolarIndices, error) {
	var zero domain.SolarIndices

	var fluxRaw noaaFlux
	if err := fetch.GetJSON(ctx, c.hc, SourceNOAA, c.url+noaaFluxPath, c.userAgent, &fluxRaw); err != nil {
		return zero, err
	}
	flux, err := strconv.ParseFloat(strings.TrimSpace(fluxRaw.Flux), 64)
	if err != nil {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("bad flux value %q: %w", fluxRaw.Flux, err)}
	}
	fluxAt, err := time.Parse(noaaTimeLayout, fluxRaw.TimeStamp)
	if err != nil {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("bad flux timestamp %q: %w", fluxRaw.TimeStamp, err)}
	}

	// The K-index product is a header row plus one row per measurement,
	// all values as strings. The last row is the current one.
	var kRows [][]string
	if err := fetch.GetJSON(ctx, c.hc, SourceNOAA, c.url+noaaKIndexPath, c.userAgent, &kRows); err != nil {
		return zero, err
	}
	if len(kRows) < 2 {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("k-index product has no data rows")}
	}
	last := kRows[len(kRows)-1]
	if len(last) < 2 {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("k-index row has %d columns", len(last))}
	}
	kAt, err := time.Parse(noaaTimeLayout, last[0])
	if err != nil {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("bad k-index timestamp %q: %w", last[0], err)}
	}
	kIndex, err := strconv.ParseFloat(strings.TrimSpace(last[1]), 64)
	if err != nil {
		return zero, &fetch.DecodeError{Source: SourceNOAA, Err: fmt.Errorf("bad k-index value %q: %w", last[1], err)}
	}

	measuredAt := fluxAt.UTC()
	if kAt.After(fluxAt) {
		measuredAt = kAt.UTC()
	}

	return domain.SolarIndices{
		Source:     SourceNOAA,
		SolarFlux:  &flux,
		KIndex:     &kIndex,
		MeasuredAt: measuredAt,
	}, nil
}
