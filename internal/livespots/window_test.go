package livespots

import (
	"testing"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

var windowNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestWindow(size time.Duration) *Window {
	w := NewWindow(size)
	w.now = func() time.Time { return windowNow }
	return w
}

func report(band domain.Band, mode, sender, receiver, senderLoc string, age time.Duration) domain.PathReport {
	return domain.PathReport{
		Band:          band,
		Mode:          mode,
		SenderCall:    sender,
		ReceiverCall:  receiver,
		SenderLocator: senderLoc,
		SNR:           -10,
		ReportedAt:    windowNow.Add(-age),
	}
}

func TestRollupsGroupsByBandAndMode(t *testing.T) {
	w := newTestWindow(15 * time.Minute)

	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31pr", 2*time.Minute))
	w.Add(report("20m", "FT8", "W1AW", "DL1XYZ", "FN31pr", 5*time.Minute))
	w.Add(report("20m", "FT8", "EA4TST", "G4ABC", "IN80mv", 8*time.Minute))
	w.Add(report("40m", "CW", "K2XYZ", "G4ABC", "FN20", 3*time.Minute))

	rollups := w.Rollups()
	if len(rollups) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(rollups))
	}

	// Busiest channel first.
	top := rollups[0]
	if top.Band != "20m" || top.Mode != "FT8" {
		t.Fatalf("expected 20m FT8 first, got %s %s", top.Band, top.Mode)
	}
	if top.SpotCount != 3 {
		t.Errorf("expected 3 reports, got %d", top.SpotCount)
	}
	if top.UniqueReporters != 2 {
		t.Errorf("expected 2 unique reporters, got %d", top.UniqueReporters)
	}
	// FN31 twice and IN80 once: two distinct fields.
	if top.UniqueFields != 2 {
		t.Errorf("expected 2 unique fields, got %d", top.UniqueFields)
	}
	if !top.WindowEnd.Equal(windowNow) {
		t.Errorf("expected window ending now, got %v", top.WindowEnd)
	}

	if rollups[1].Band != "40m" || rollups[1].SpotCount != 1 {
		t.Errorf("unexpected second channel: %+v", rollups[1])
	}
}

func TestRollupsCarriesPreviousWindowCount(t *testing.T) {
	w := newTestWindow(15 * time.Minute)

	// Two reports in the preceding window, three in the current one.
	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 25*time.Minute))
	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 20*time.Minute))
	for _, age := range []int{2, 5, 9} {
		w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", time.Duration(age)*time.Minute))
	}

	rollups := w.Rollups()
	if len(rollups) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(rollups))
	}
	if rollups[0].SpotCount != 3 {
		t.Errorf("expected 3 current reports, got %d", rollups[0].SpotCount)
	}
	if rollups[0].PrevSpotCount != 2 {
		t.Errorf("expected 2 previous reports, got %d", rollups[0].PrevSpotCount)
	}
}

func TestRollupsEmptyWindow(t *testing.T) {
	w := newTestWindow(15 * time.Minute)
	if rollups := w.Rollups(); len(rollups) != 0 {
		t.Errorf("expected no rollups, got %d", len(rollups))
	}
}

func TestWindowPrunesOldReports(t *testing.T) {
	w := newTestWindow(15 * time.Minute)

	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 40*time.Minute))
	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 5*time.Minute))

	// The 40-minute-old report is beyond both windows and gets dropped.
	if count := w.Count(); count != 1 {
		t.Errorf("expected 1 report after prune, got %d", count)
	}
}

func TestRollupsUnknownLocatorDoesNotCount(t *testing.T) {
	w := newTestWindow(15 * time.Minute)

	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "", 2*time.Minute))
	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "99zz", 3*time.Minute))

	rollups := w.Rollups()
	if len(rollups) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(rollups))
	}
	if rollups[0].UniqueFields != 0 {
		t.Errorf("expected no countable fields, got %d", rollups[0].UniqueFields)
	}
}

func TestLastReportAt(t *testing.T) {
	w := newTestWindow(15 * time.Minute)
	if !w.LastReportAt().IsZero() {
		t.Error("expected zero time before any report")
	}

	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 5*time.Minute))
	w.Add(report("20m", "FT8", "W1AW", "G4ABC", "FN31", 10*time.Minute))

	// The newest report time wins even when it arrived first.
	if got := w.LastReportAt(); !got.Equal(windowNow.Add(-5 * time.Minute)) {
		t.Errorf("expected newest report time, got %v", got)
	}
}
