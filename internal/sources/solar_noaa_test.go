package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/fetch"
)

const noaaFluxFixture = `{"Flux": "142", "TimeStamp": "2026-08-20 10:00:00"}`

const noaaKIndexFixture = `[
  ["time_tag", "Kp", "a_running", "station_count"],
  ["2026-08-20 09:00:00.000", "1.67", "6", "8"],
  ["2026-08-20 12:00:00.000", "2.33", "9", "8"]
]`

func newNOAAServer(t *testing.T, flux, kindex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case noaaFluxPath:
			w.Write([]byte(flux))
		case noaaKIndexPath:
			w.Write([]byte(kindex))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestNOAAFetch(t *testing.T) {
	server := newNOAAServer(t, noaaFluxFixture, noaaKIndexFixture)
	defer server.Close()

	client := NewNOAA(server.Client(), server.URL, 10*time.Minute, "test")
	indices, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if indices.Source != SourceNOAA {
		t.Errorf("expected noaa source, got %s", indices.Source)
	}
	if indices.SolarFlux == nil || *indices.SolarFlux != 142 {
		t.Errorf("unexpected flux: %v", indices.SolarFlux)
	}
	// The k-index feed lists a header row plus readings; the newest
	// reading is the last row.
	if indices.KIndex == nil || *indices.KIndex != 2.33 {
		t.Errorf("unexpected k-index: %v", indices.KIndex)
	}
	// NOAA never reports these; they stay empty for the merge step.
	if indices.AIndex != nil || indices.SunspotNumber != nil || indices.XRay != "" || indices.SolarWindSpeed != nil {
		t.Errorf("expected hamqsl-only fields to be empty: %+v", indices)
	}
	// Snapshot time is the newer of the two feeds.
	want := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if !indices.MeasuredAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, indices.MeasuredAt)
	}
}

func TestNOAAFetchBadFluxValue(t *testing.T) {
	server := newNOAAServer(t, `{"Flux": "unknown", "TimeStamp": "2026-08-20 10:00:00"}`, noaaKIndexFixture)
	defer server.Close()

	client := NewNOAA(server.Client(), server.URL, 10*time.Minute, "test")
	_, err := client.Fetch(context.Background())

	var decodeErr *fetch.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if fetch.Transient(err) {
		t.Error("decode errors must not be retried")
	}
}

func TestNOAAFetchHeaderOnlyKIndex(t *testing.T) {
	server := newNOAAServer(t, noaaFluxFixture, `[["time_tag", "Kp"]]`)
	defer server.Close()

	client := NewNOAA(server.Client(), server.URL, 10*time.Minute, "test")
	_, err := client.Fetch(context.Background())

	var decodeErr *fetch.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestNOAAFetchServerDown(t *testing.T) {
	server := newNOAAServer(t, noaaFluxFixture, noaaKIndexFixture)
	client := NewNOAA(server.Client(), server.URL, 10*time.Minute, "test")
	server.Close()

	_, err := client.Fetch(context.Background())
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !fetch.Transient(err) {
		t.Error("network errors should be transient")
	}
}
