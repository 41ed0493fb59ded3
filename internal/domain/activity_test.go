package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivitySubScoreTiers(t *testing.T) {
	cases := []struct {
		count int
		want  float64
	}{
		{0, 0},
		{5, 10},
		{10, 20},
		{30, 35},
		{50, 50},
		{75, 75},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, activitySubScore(tc.count), 0.01, "count %d", tc.count)
	}
}

func TestTrendSubScore(t *testing.T) {
	cases := []struct {
		name        string
		count, prev int
		want        float64
	}{
		{"collapse", 10, 40, 0},
		{"halved", 20, 40, 0},
		{"down a quarter", 30, 40, 25},
		{"flat", 40, 40, 50},
		{"up half", 60, 40, 75},
		{"doubled", 80, 40, 100},
		{"tripled", 120, 40, 100},
		{"from nothing", 15, 0, 100},
		{"still nothing", 0, 0, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, trendSubScore(tc.count, tc.prev), 0.01)
		})
	}
}

func TestReachAndDiversityTiers(t *testing.T) {
	assert.InDelta(t, 0, reachSubScore(0), 0.01)
	assert.InDelta(t, 20, reachSubScore(5), 0.01)
	assert.InDelta(t, 60, reachSubScore(20), 0.01)
	assert.InDelta(t, 100, reachSubScore(50), 0.01)
	assert.InDelta(t, 100, reachSubScore(200), 0.01)

	assert.InDelta(t, 0, diversitySubScore(0), 0.01)
	assert.InDelta(t, 20, diversitySubScore(3), 0.01)
	assert.InDelta(t, 60, diversitySubScore(10), 0.01)
	assert.InDelta(t, 100, diversitySubScore(20), 0.01)
}

func TestBandActivityScore(t *testing.T) {
	// 75 spots (sub 75), up 50% on 50 (sub 75), 30 reporters (sub 73.33),
	// 12 fields (sub 68): 0.4*75 + 0.3*75 + 0.2*73.33 + 0.1*68 = 73.97.
	act := &BandActivity{
		Band:            "20m",
		Mode:            "FT8",
		SpotCount:       75,
		PrevSpotCount:   50,
		UniqueReporters: 30,
		UniqueFields:    12,
	}
	assert.Equal(t, 74, act.Score(testNow))

	dead := &BandActivity{Band: "160m", Mode: "FT8"}
	assert.Equal(t, 15, dead.Score(testNow)) // trend-neutral floor: 0.3*50

	roaring := &BandActivity{
		Band: "10m", Mode: "FT8",
		SpotCount: 400, PrevSpotCount: 100,
		UniqueReporters: 90, UniqueFields: 30,
	}
	assert.Equal(t, 100, roaring.Score(testNow))
}

func TestBandActivityScoreBounds(t *testing.T) {
	extremes := []*BandActivity{
		{},
		{SpotCount: 1 << 20, PrevSpotCount: 1, UniqueReporters: 1 << 20, UniqueFields: 1 << 20},
		{SpotCount: 0, PrevSpotCount: 1 << 20},
	}
	for _, act := range extremes {
		score := act.Score(testNow)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}

func TestBandActivityIsFavorable(t *testing.T) {
	quiet := &BandActivity{SpotCount: 9}
	busy := &BandActivity{SpotCount: 10}
	assert.False(t, quiet.IsFavorable(testNow))
	assert.True(t, busy.IsFavorable(testNow))
}

func TestBandActivityWindowFields(t *testing.T) {
	start := testNow.Add(-15 * time.Minute)
	act := &BandActivity{Band: "6m", Mode: "CW", WindowStart: start, WindowEnd: testNow}
	assert.Equal(t, 15*time.Minute, act.WindowEnd.Sub(act.WindowStart))
}
