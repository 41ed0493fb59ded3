package store

import (
	"context"
	"testing"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func testSolar(source string, measuredAt time.Time) domain.SolarIndices {
	return domain.SolarIndices{
		Source:        source,
		SolarFlux:     fptr(142),
		SunspotNumber: iptr(88),
		AIndex:        iptr(7),
		KIndex:        fptr(2.33),
		XRay:          "B4.2",
		MeasuredAt:    measuredAt,
	}
}

func TestReplaceSolarUpsertsByMeasurement(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	reading := testSolar("noaa", now.Add(-time.Hour))
	saved, _, err := s.ReplaceSolar(ctx, "noaa", []domain.SolarIndices{reading}, time.Time{})
	if err != nil {
		t.Fatalf("ReplaceSolar failed: %v", err)
	}
	if saved != 1 {
		t.Errorf("expected 1 saved, got %d", saved)
	}

	// Same measurement time again with a revised flux: update, not insert.
	reading.SolarFlux = fptr(150)
	if _, _, err := s.ReplaceSolar(ctx, "noaa", []domain.SolarIndices{reading}, time.Time{}); err != nil {
		t.Fatalf("second ReplaceSolar failed: %v", err)
	}

	latest, err := s.LatestSolarPerSource(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("LatestSolarPerSource failed: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("expected 1 source, got %d", len(latest))
	}
	got := latest["noaa"]
	if got.SolarFlux == nil || *got.SolarFlux != 150 {
		t.Errorf("expected revised flux 150, got %v", got.SolarFlux)
	}
	if got.SunspotNumber == nil || *got.SunspotNumber != 88 {
		t.Errorf("sunspot number did not round-trip: %v", got.SunspotNumber)
	}
	if got.SolarWindSpeed != nil {
		t.Errorf("expected nil wind speed, got %v", *got.SolarWindSpeed)
	}
}

func TestLatestSolarPerSource(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	noaa := []domain.SolarIndices{
		testSolar("noaa", now.Add(-3*time.Hour)),
		testSolar("noaa", now.Add(-time.Hour)),
	}
	noaa[1].SolarFlux = fptr(160)
	if _, _, err := s.ReplaceSolar(ctx, "noaa", noaa, time.Time{}); err != nil {
		t.Fatalf("ReplaceSolar noaa failed: %v", err)
	}

	hamqsl := testSolar("hamqsl", now.Add(-2*time.Hour))
	hamqsl.SolarWindSpeed = fptr(412.8)
	if _, _, err := s.ReplaceSolar(ctx, "hamqsl", []domain.SolarIndices{hamqsl}, time.Time{}); err != nil {
		t.Fatalf("ReplaceSolar hamqsl failed: %v", err)
	}

	latest, err := s.LatestSolarPerSource(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("LatestSolarPerSource failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(latest))
	}
	if got := latest["noaa"]; got.SolarFlux == nil || *got.SolarFlux != 160 {
		t.Errorf("expected noaa's newest reading, got %+v", got)
	}
	if got := latest["hamqsl"]; got.SolarWindSpeed == nil || *got.SolarWindSpeed != 412.8 {
		t.Errorf("expected hamqsl wind speed, got %+v", got)
	}

	// A tight window hides aged readings entirely.
	latest, err = s.LatestSolarPerSource(ctx, now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("LatestSolarPerSource failed: %v", err)
	}
	if len(latest) != 1 {
		t.Errorf("expected only noaa inside the window, got %d sources", len(latest))
	}
}

func TestReplaceSolarRetention(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	readings := []domain.SolarIndices{
		testSolar("noaa", now.Add(-72*time.Hour)),
		testSolar("noaa", now.Add(-time.Hour)),
	}
	if _, _, err := s.ReplaceSolar(ctx, "noaa", readings, time.Time{}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, deleted, err := s.ReplaceSolar(ctx, "noaa", nil, now.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("ReplaceSolar sweep failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 swept reading, got %d", deleted)
	}

	newest, err := s.NewestSolar(ctx, "noaa")
	if err != nil {
		t.Fatalf("NewestSolar failed: %v", err)
	}
	if !newest.Equal(now.Add(-time.Hour)) {
		t.Errorf("expected surviving reading, got %v", newest)
	}
}

func TestReplaceBandConditionsIdempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	cycle := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	conds := []domain.BandCondition{
		{Source: "hamqsl", Band: "20m", Day: domain.ConditionGood, Night: domain.ConditionFair, RecordedAt: cycle},
		{Source: "hamqsl", Band: "40m", Day: domain.ConditionFair, Night: domain.ConditionGood, RecordedAt: cycle},
	}

	for i := 0; i < 2; i++ {
		saved, _, err := s.ReplaceBandConditions(ctx, "hamqsl", conds, time.Time{})
		if err != nil {
			t.Fatalf("ReplaceBandConditions run %d failed: %v", i, err)
		}
		if saved != 2 {
			t.Errorf("run %d: expected 2 saved, got %d", i, saved)
		}
	}

	got, err := s.LatestBandConditions(ctx, cycle.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LatestBandConditions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 conditions after repeated cycle, got %d", len(got))
	}
}

func TestLatestBandConditionsPicksNewestPerBand(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	morning := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	noon := morning.Add(3 * time.Hour)

	first := []domain.BandCondition{
		{Source: "hamqsl", Band: "20m", Day: domain.ConditionPoor, Night: domain.ConditionPoor, RecordedAt: morning},
		{Source: "hamqsl", Band: "40m", Day: domain.ConditionFair, Night: domain.ConditionGood, RecordedAt: morning},
	}
	second := []domain.BandCondition{
		{Source: "hamqsl", Band: "20m", Day: domain.ConditionGood, Night: domain.ConditionFair, RecordedAt: noon},
	}

	if _, _, err := s.ReplaceBandConditions(ctx, "hamqsl", first, time.Time{}); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if _, _, err := s.ReplaceBandConditions(ctx, "hamqsl", second, time.Time{}); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	got, err := s.LatestBandConditions(ctx, morning.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LatestBandConditions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bands, got %d", len(got))
	}

	// Frequency order: 40m before 20m.
	if got[0].Band != "40m" || got[1].Band != "20m" {
		t.Errorf("unexpected band order: %s, %s", got[0].Band, got[1].Band)
	}
	if got[1].Day != domain.ConditionGood {
		t.Errorf("expected noon cycle's 20m rating, got %s", got[1].Day)
	}
	if !got[1].RecordedAt.Equal(noon) {
		t.Errorf("expected noon cycle, got %v", got[1].RecordedAt)
	}
}

func TestNewestBandCondition(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	newest, err := s.NewestBandCondition(ctx, "hamqsl")
	if err != nil {
		t.Fatalf("NewestBandCondition failed: %v", err)
	}
	if !newest.IsZero() {
		t.Errorf("expected zero time on empty table, got %v", newest)
	}

	cycle := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	conds := []domain.BandCondition{
		{Source: "hamqsl", Band: "20m", Day: domain.ConditionGood, Night: domain.ConditionFair, RecordedAt: cycle},
	}
	if _, _, err := s.ReplaceBandConditions(ctx, "hamqsl", conds, time.Time{}); err != nil {
		t.Fatalf("ReplaceBandConditions failed: %v", err)
	}

	newest, err = s.NewestBandCondition(ctx, "hamqsl")
	if err != nil {
		t.Fatalf("NewestBandCondition failed: %v", err)
	}
	if !newest.Equal(cycle) {
		t.Errorf("expected cycle time, got %v", newest)
	}
}
