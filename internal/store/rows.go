package store

import (
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

// Row types mirror the table layouts. They are deliberately separate from
// the domain types so column concerns (internal ids, UTC normalization)
// never leak into scoring logic. Conversions are field-for-field; a
// domain value survives a round trip through its row form unchanged.

type spotRow struct {
	ID            int64
	Source        string
	SpotID        string
	Activator     string
	Reference     string
	ReferenceName string
	FrequencyKHz  float64
	Mode          string
	Spotter       string
	Comment       string
	Locator       string
	SpottedAt     time.Time
}

func spotToRow(s domain.Spot) spotRow {
	return spotRow{
		ID:            s.ID,
		Source:        s.Source,
		SpotID:        s.SpotID,
		Activator:     s.Activator,
		Reference:     s.Reference,
		ReferenceName: s.ReferenceName,
		FrequencyKHz:  s.FrequencyKHz,
		Mode:          s.Mode,
		Spotter:       s.Spotter,
		Comment:       s.Comment,
		Locator:       s.Locator,
		SpottedAt:     s.SpottedAt.UTC(),
	}
}

func (r spotRow) toDomain() domain.Spot {
	return domain.Spot{
		ID:            r.ID,
		Source:        r.Source,
		SpotID:        r.SpotID,
		Activator:     r.Activator,
		Reference:     r.Reference,
		ReferenceName: r.ReferenceName,
		FrequencyKHz:  r.FrequencyKHz,
		Mode:          r.Mode,
		Spotter:       r.Spotter,
		Comment:       r.Comment,
		Locator:       r.Locator,
		SpottedAt:     r.SpottedAt.UTC(),
	}
}

type solarRow struct {
	ID             int64
	Source         string
	SolarFlux      *float64
	SunspotNumber  *int
	AIndex         *int
	KIndex         *float64
	XRay           string
	SolarWindSpeed *float64
	MeasuredAt     time.Time
}

func solarToRow(s domain.SolarIndices) solarRow {
	return solarRow{
		ID:             s.ID,
		Source:         s.Source,
		SolarFlux:      s.SolarFlux,
		SunspotNumber:  s.SunspotNumber,
		AIndex:         s.AIndex,
		KIndex:         s.KIndex,
		XRay:           s.XRay,
		SolarWindSpeed: s.SolarWindSpeed,
		MeasuredAt:     s.MeasuredAt.UTC(),
	}
}

func (r solarRow) toDomain() domain.SolarIndices {
	return domain.SolarIndices{
		ID:             r.ID,
		Source:         r.Source,
		SolarFlux:      r.SolarFlux,
		SunspotNumber:  r.SunspotNumber,
		AIndex:         r.AIndex,
		KIndex:         r.KIndex,
		XRay:           r.XRay,
		SolarWindSpeed: r.SolarWindSpeed,
		MeasuredAt:     r.MeasuredAt.UTC(),
	}
}

type bandConditionRow struct {
	ID          int64
	Source      string
	Band        string
	DayRating   string
	NightRating string
	RecordedAt  time.Time
}

func bandConditionToRow(b domain.BandCondition) bandConditionRow {
	return bandConditionRow{
		ID:          b.ID,
		Source:      b.Source,
		Band:        string(b.Band),
		DayRating:   string(b.Day),
		NightRating: string(b.Night),
		RecordedAt:  b.RecordedAt.UTC(),
	}
}

func (r bandConditionRow) toDomain() domain.BandCondition {
	return domain.BandCondition{
		ID:         r.ID,
		Source:     r.Source,
		Band:       domain.Band(r.Band),
		Day:        domain.ConditionRating(r.DayRating),
		Night:      domain.ConditionRating(r.NightRating),
		RecordedAt: r.RecordedAt.UTC(),
	}
}

type contestRow struct {
	ID        int64
	Source    string
	Name      string
	URL       string
	Modes     string
	StartsAt  time.Time
	EndsAt    time.Time
	FetchedAt time.Time
}

func contestToRow(c domain.Contest) contestRow {
	return contestRow{
		ID:        c.ID,
		Source:    c.Source,
		Name:      c.Name,
		URL:       c.URL,
		Modes:     c.Modes,
		StartsAt:  c.StartsAt.UTC(),
		EndsAt:    c.EndsAt.UTC(),
		FetchedAt: c.FetchedAt.UTC(),
	}
}

func (r contestRow) toDomain() domain.Contest {
	return domain.Contest{
		ID:        r.ID,
		Source:    r.Source,
		Name:      r.Name,
		URL:       r.URL,
		Modes:     r.Modes,
		StartsAt:  r.StartsAt.UTC(),
		EndsAt:    r.EndsAt.UTC(),
		FetchedAt: r.FetchedAt.UTC(),
	}
}

type meteorShowerRow struct {
	ID        int64
	Source    string
	Code      string
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	PeaksAt   time.Time
	ZHR       int
	FetchedAt time.Time
}

func meteorShowerToRow(m domain.MeteorShower) meteorShowerRow {
	return meteorShowerRow{
		ID:        m.ID,
		Source:    m.Source,
		Code:      m.Code,
		Name:      m.Name,
		StartsAt:  m.StartsAt.UTC(),
		EndsAt:    m.EndsAt.UTC(),
		PeaksAt:   m.PeaksAt.UTC(),
		ZHR:       m.ZHR,
		FetchedAt: m.FetchedAt.UTC(),
	}
}

func (r meteorShowerRow) toDomain() domain.MeteorShower {
	return domain.MeteorShower{
		ID:        r.ID,
		Source:    r.Source,
		Code:      r.Code,
		Name:      r.Name,
		StartsAt:  r.StartsAt.UTC(),
		EndsAt:    r.EndsAt.UTC(),
		PeaksAt:   r.PeaksAt.UTC(),
		ZHR:       r.ZHR,
		FetchedAt: r.FetchedAt.UTC(),
	}
}
