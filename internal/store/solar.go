package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

// ReplaceSolar upserts one source's space-weather snapshots and sweeps
// that source's readings older than cutoff, in one transaction. Identity
// is (source, measured_at): re-fetching an unchanged reading updates in
// place.
func (s *Store) ReplaceSolar(ctx context.Context, source string, snapshots []domain.SolarIndices, cutoff time.Time) (saved, deleted int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rows := make([]solarRow, len(snapshots))
		measured := make([]time.Time, len(snapshots))
		for i, snap := range snapshots {
			rows[i] = solarToRow(snap)
			rows[i].Source = source
			measured[i] = rows[i].MeasuredAt
		}

		existing, err := lookupSolarIDs(ctx, tx, source, measured)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = existing[timeKey(rows[i].MeasuredAt)]
		}

		saved, err = saveSolarRows(ctx, tx, rows)
		if err != nil {
			return err
		}

		deleted, err = deleteBySourceBefore(ctx, tx, "solar_indices", "measured_at", source, cutoff)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return saved, deleted, nil
}

// timeKey is the map key form of a timestamp. Comparing time.Time
// values directly is unreliable once they have passed through the
// driver, so lookups key on the formatted instant instead.
func timeKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func lookupSolarIDs(ctx context.Context, tx *sql.Tx, source string, measured []time.Time) (map[string]int64, error) {
	existing := make(map[string]int64, len(measured))
	if len(measured) == 0 {
		return existing, nil
	}

	query, args, err := sq.Select("measured_at", "id").
		From("solar_indices").
		Where(sq.Eq{"source": source, "measured_at": measured}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build solar lookup: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up solar readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var at time.Time
		var id int64
		if err := rows.Scan(&at, &id); err != nil {
			return nil, fmt.Errorf("failed to scan solar id: %w", err)
		}
		existing[timeKey(at)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating solar ids: %w", err)
	}
	return existing, nil
}

func saveSolarRows(ctx context.Context, tx *sql.Tx, rows []solarRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO solar_indices (source, solar_flux, sunspot_number, a_index, k_index, xray, solar_wind_speed, measured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare solar insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE solar_indices
		SET solar_flux = ?, sunspot_number = ?, a_index = ?, k_index = ?, xray = ?, solar_wind_speed = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare solar update: %w", err)
	}
	defer update.Close()

	var saved int64
	for _, r := range rows {
		if r.ID > 0 {
			_, err = update.ExecContext(ctx,
				r.SolarFlux, r.SunspotNumber, r.AIndex, r.KIndex, r.XRay, r.SolarWindSpeed, r.ID)
		} else {
			_, err = insert.ExecContext(ctx,
				r.Source, r.SolarFlux, r.SunspotNumber, r.AIndex, r.KIndex, r.XRay,
				r.SolarWindSpeed, r.MeasuredAt)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save solar reading %s@%s: %w", r.Source, r.MeasuredAt, err)
		}
		saved++
	}
	return saved, nil
}

// LatestSolarPerSource returns each source's newest reading at or after
// since, keyed by source name. Callers order the snapshots by authority
// before merging.
func (s *Store) LatestSolarPerSource(ctx context.Context, since time.Time) (map[string]domain.SolarIndices, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, solar_flux, sunspot_number, a_index, k_index, xray, solar_wind_speed, measured_at
		FROM solar_indices
		WHERE measured_at >= ?
		ORDER BY measured_at DESC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query solar readings: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]domain.SolarIndices)
	for rows.Next() {
		var r solarRow
		err := rows.Scan(&r.ID, &r.Source, &r.SolarFlux, &r.SunspotNumber, &r.AIndex,
			&r.KIndex, &r.XRay, &r.SolarWindSpeed, &r.MeasuredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solar reading: %w", err)
		}
		// Rows arrive newest first; the first row seen per source wins.
		if _, ok := latest[r.Source]; !ok {
			latest[r.Source] = r.toDomain()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating solar readings: %w", err)
	}
	return latest, nil
}

// NewestSolar returns the most recent measurement time persisted for
// source, or the zero time.
func (s *Store) NewestSolar(ctx context.Context, source string) (time.Time, error) {
	return s.newestAt(ctx, "solar_indices", "measured_at", source)
}

// ReplaceBandConditions upserts one refresh cycle's per-band ratings and
// sweeps aged cycles, in one transaction. Identity is (source, band,
// recorded_at): an unchanged feed cycle updates in place, a new cycle
// inserts fresh rows and the old cycle ages out.
func (s *Store) ReplaceBandConditions(ctx context.Context, source string, conds []domain.BandCondition, cutoff time.Time) (saved, deleted int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rows := make([]bandConditionRow, len(conds))
		for i, cond := range conds {
			rows[i] = bandConditionToRow(cond)
			rows[i].Source = source
		}

		existing, err := lookupBandConditionIDs(ctx, tx, source, rows)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = existing[bandConditionKey(rows[i])]
		}

		saved, err = saveBandConditionRows(ctx, tx, rows)
		if err != nil {
			return err
		}

		deleted, err = deleteBySourceBefore(ctx, tx, "band_conditions", "recorded_at", source, cutoff)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return saved, deleted, nil
}

func bandConditionKey(r bandConditionRow) string {
	return r.Band + "|" + timeKey(r.RecordedAt)
}

func lookupBandConditionIDs(ctx context.Context, tx *sql.Tx, source string, incoming []bandConditionRow) (map[string]int64, error) {
	existing := make(map[string]int64, len(incoming))
	if len(incoming) == 0 {
		return existing, nil
	}

	bands := make([]string, 0, len(incoming))
	recorded := make([]time.Time, 0, len(incoming))
	seenBand := make(map[string]bool)
	seenAt := make(map[time.Time]bool)
	for _, r := range incoming {
		if !seenBand[r.Band] {
			seenBand[r.Band] = true
			bands = append(bands, r.Band)
		}
		if !seenAt[r.RecordedAt] {
			seenAt[r.RecordedAt] = true
			recorded = append(recorded, r.RecordedAt)
		}
	}

	query, args, err := sq.Select("band", "recorded_at", "id").
		From("band_conditions").
		Where(sq.Eq{"source": source, "band": bands, "recorded_at": recorded}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build band condition lookup: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up band conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r bandConditionRow
		if err := rows.Scan(&r.Band, &r.RecordedAt, &r.ID); err != nil {
			return nil, fmt.Errorf("failed to scan band condition id: %w", err)
		}
		existing[bandConditionKey(r)] = r.ID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating band condition ids: %w", err)
	}
	return existing, nil
}

func saveBandConditionRows(ctx context.Context, tx *sql.Tx, rows []bandConditionRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO band_conditions (source, band, day_rating, night_rating, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare band condition insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE band_conditions SET day_rating = ?, night_rating = ? WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare band condition update: %w", err)
	}
	defer update.Close()

	var saved int64
	for _, r := range rows {
		if r.ID > 0 {
			_, err = update.ExecContext(ctx, r.DayRating, r.NightRating, r.ID)
		} else {
			_, err = insert.ExecContext(ctx, r.Source, r.Band, r.DayRating, r.NightRating, r.RecordedAt)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save band condition %s/%s: %w", r.Source, r.Band, err)
		}
		saved++
	}
	return saved, nil
}

// LatestBandConditions returns the newest rating per band recorded at or
// after since, in frequency order.
func (s *Store) LatestBandConditions(ctx context.Context, since time.Time) ([]domain.BandCondition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, band, day_rating, night_rating, recorded_at
		FROM band_conditions
		WHERE recorded_at >= ?
		ORDER BY recorded_at DESC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query band conditions: %w", err)
	}
	defer rows.Close()

	latest := make(map[domain.Band]domain.BandCondition)
	for rows.Next() {
		var r bandConditionRow
		if err := rows.Scan(&r.ID, &r.Source, &r.Band, &r.DayRating, &r.NightRating, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan band condition: %w", err)
		}
		cond := r.toDomain()
		if _, ok := latest[cond.Band]; !ok {
			latest[cond.Band] = cond
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating band conditions: %w", err)
	}

	// Frequency order keeps the dashboard's band list stable.
	conds := make([]domain.BandCondition, 0, len(latest))
	for _, band := range domain.Bands() {
		if cond, ok := latest[band]; ok {
			conds = append(conds, cond)
		}
	}
	return conds, nil
}

// NewestBandCondition returns the most recent cycle time persisted for
// source, or the zero time.
func (s *Store) NewestBandCondition(ctx context.Context, source string) (time.Time, error) {
	return s.newestAt(ctx, "band_conditions", "recorded_at", source)
}
