package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

// ReplaceContests upserts one calendar's contest batch and sweeps that
// source's contests whose window ended before cutoff, in one
// transaction. Identity is (source, name): a recurring contest keeps one
// row whose window advances with each calendar edition.
func (s *Store) ReplaceContests(ctx context.Context, source string, contests []domain.Contest, cutoff time.Time) (saved, deleted int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rows := make([]contestRow, len(contests))
		names := make([]string, len(contests))
		for i, c := range contests {
			rows[i] = contestToRow(c)
			rows[i].Source = source
			names[i] = rows[i].Name
		}

		existing, err := lookupEventIDs(ctx, tx, "contests", "name", source, names)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = existing[rows[i].Name]
		}

		saved, err = saveContestRows(ctx, tx, rows)
		if err != nil {
			return err
		}

		deleted, err = deleteBySourceBefore(ctx, tx, "contests", "ends_at", source, cutoff)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return saved, deleted, nil
}

// lookupEventIDs is the batched id lookup shared by the window-event
// tables, keyed on their (source, name-or-code) identity.
func lookupEventIDs(ctx context.Context, tx *sql.Tx, table, keyColumn, source string, keys []string) (map[string]int64, error) {
	existing := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	query, args, err := sq.Select(keyColumn, "id").
		From(table).
		Where(sq.Eq{"source": source, keyColumn: keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lookup: %w", table, err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		existing[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s ids: %w", table, err)
	}
	return existing, nil
}

func saveContestRows(ctx context.Context, tx *sql.Tx, rows []contestRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO contests (source, name, url, modes, starts_at, ends_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare contest insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE contests SET url = ?, modes = ?, starts_at = ?, ends_at = ?, fetched_at = ? WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare contest update: %w", err)
	}
	defer update.Close()

	var saved int64
	for _, r := range rows {
		if r.ID > 0 {
			_, err = update.ExecContext(ctx, r.URL, r.Modes, r.StartsAt, r.EndsAt, r.FetchedAt, r.ID)
		} else {
			_, err = insert.ExecContext(ctx, r.Source, r.Name, r.URL, r.Modes, r.StartsAt, r.EndsAt, r.FetchedAt)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save contest %s/%s: %w", r.Source, r.Name, err)
		}
		saved++
	}
	return saved, nil
}

// ContestsEndingAfter returns contests whose window has not ended as of
// since, soonest start first. This covers both running and upcoming
// contests.
func (s *Store) ContestsEndingAfter(ctx context.Context, since time.Time) ([]domain.Contest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, name, url, modes, starts_at, ends_at, fetched_at
		FROM contests
		WHERE ends_at >= ?
		ORDER BY starts_at ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query contests: %w", err)
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		var r contestRow
		err := rows.Scan(&r.ID, &r.Source, &r.Name, &r.URL, &r.Modes, &r.StartsAt, &r.EndsAt, &r.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contests: %w", err)
	}
	return contests, nil
}

// NewestContest returns the most recent ingest time persisted for
// source, or the zero time.
func (s *Store) NewestContest(ctx context.Context, source string) (time.Time, error) {
	return s.newestAt(ctx, "contests", "fetched_at", source)
}

// ReplaceMeteorShowers upserts one almanac's shower batch and sweeps
// that source's showers whose window ended before cutoff, in one
// transaction. Identity is (source, code): each annual shower keeps one
// row whose window rolls forward year to year.
func (s *Store) ReplaceMeteorShowers(ctx context.Context, source string, showers []domain.MeteorShower, cutoff time.Time) (saved, deleted int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rows := make([]meteorShowerRow, len(showers))
		codes := make([]string, len(showers))
		for i, m := range showers {
			rows[i] = meteorShowerToRow(m)
			rows[i].Source = source
			codes[i] = rows[i].Code
		}

		existing, err := lookupEventIDs(ctx, tx, "meteor_showers", "code", source, codes)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = existing[rows[i].Code]
		}

		saved, err = saveMeteorShowerRows(ctx, tx, rows)
		if err != nil {
			return err
		}

		deleted, err = deleteBySourceBefore(ctx, tx, "meteor_showers", "ends_at", source, cutoff)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return saved, deleted, nil
}

func saveMeteorShowerRows(ctx context.Context, tx *sql.Tx, rows []meteorShowerRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO meteor_showers (source, code, name, starts_at, ends_at, peaks_at, zhr, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare shower insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE meteor_showers
		SET name = ?, starts_at = ?, ends_at = ?, peaks_at = ?, zhr = ?, fetched_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare shower update: %w", err)
	}
	defer update.Close()

	var saved int64
	for _, r := range rows {
		if r.ID > 0 {
			_, err = update.ExecContext(ctx, r.Name, r.StartsAt, r.EndsAt, r.PeaksAt, r.ZHR, r.FetchedAt, r.ID)
		} else {
			_, err = insert.ExecContext(ctx, r.Source, r.Code, r.Name, r.StartsAt, r.EndsAt, r.PeaksAt, r.ZHR, r.FetchedAt)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save shower %s/%s: %w", r.Source, r.Code, err)
		}
		saved++
	}
	return saved, nil
}

// ShowersEndingAfter returns meteor showers whose window has not ended
// as of since, soonest start first.
func (s *Store) ShowersEndingAfter(ctx context.Context, since time.Time) ([]domain.MeteorShower, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, code, name, starts_at, ends_at, peaks_at, zhr, fetched_at
		FROM meteor_showers
		WHERE ends_at >= ?
		ORDER BY starts_at ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query meteor showers: %w", err)
	}
	defer rows.Close()

	var showers []domain.MeteorShower
	for rows.Next() {
		var r meteorShowerRow
		err := rows.Scan(&r.ID, &r.Source, &r.Code, &r.Name, &r.StartsAt, &r.EndsAt, &r.PeaksAt, &r.ZHR, &r.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meteor shower: %w", err)
		}
		showers = append(showers, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meteor showers: %w", err)
	}
	return showers, nil
}

// NewestMeteorShower returns the most recent ingest time persisted for
// source, or the zero time.
func (s *Store) NewestMeteorShower(ctx context.Context, source string) (time.Time, error) {
	return s.newestAt(ctx, "meteor_showers", "fetched_at", source)
}
