package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
)

// ReplaceSpots upserts one source's latest spot batch and sweeps that
// source's rows older than cutoff, all inside one transaction.
//
// Identity is (source, spot_id): a re-sighted activation updates its
// existing row in place instead of inserting a duplicate. The sweep is
// scoped to source, so two networks sharing this table never delete each
// other's rows.
func (s *Store) ReplaceSpots(ctx context.Context, source string, spots []domain.Spot, cutoff time.Time) (saved, deleted int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		rows := make([]spotRow, len(spots))
		ids := make([]string, len(spots))
		for i, spot := range spots {
			rows[i] = spotToRow(spot)
			rows[i].Source = source
			ids[i] = rows[i].SpotID
		}

		existing, err := lookupSpotIDs(ctx, tx, source, ids)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = existing[rows[i].SpotID]
		}

		saved, err = saveSpotRows(ctx, tx, rows)
		if err != nil {
			return err
		}

		deleted, err = deleteBySourceBefore(ctx, tx, "spots", "spotted_at", source, cutoff)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return saved, deleted, nil
}

// lookupSpotIDs resolves the internal row ids for one source's incoming
// spot ids in a single query. Only the batch's own keys are fetched,
// never the whole table.
func lookupSpotIDs(ctx context.Context, tx *sql.Tx, source string, spotIDs []string) (map[string]int64, error) {
	existing := make(map[string]int64, len(spotIDs))
	if len(spotIDs) == 0 {
		return existing, nil
	}

	query, args, err := sq.Select("spot_id", "id").
		From("spots").
		Where(sq.Eq{"source": source, "spot_id": spotIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build spot lookup: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up spots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var spotID string
		var id int64
		if err := rows.Scan(&spotID, &id); err != nil {
			return nil, fmt.Errorf("failed to scan spot id: %w", err)
		}
		existing[spotID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spot ids: %w", err)
	}
	return existing, nil
}

// saveSpotRows bulk-saves rows: an assigned id means UPDATE, id zero
// means INSERT.
func saveSpotRows(ctx context.Context, tx *sql.Tx, rows []spotRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO spots (source, spot_id, activator, reference, reference_name, frequency_khz, mode, spotter, comment, locator, spotted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare spot insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE spots
		SET activator = ?, reference = ?, reference_name = ?, frequency_khz = ?, mode = ?, spotter = ?, comment = ?, locator = ?, spotted_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare spot update: %w", err)
	}
	defer update.Close()

	var saved int64
	for _, r := range rows {
		if r.ID > 0 {
			_, err = update.ExecContext(ctx,
				r.Activator, r.Reference, r.ReferenceName, r.FrequencyKHz, r.Mode,
				r.Spotter, r.Comment, r.Locator, r.SpottedAt, r.ID)
		} else {
			_, err = insert.ExecContext(ctx,
				r.Source, r.SpotID, r.Activator, r.Reference, r.ReferenceName,
				r.FrequencyKHz, r.Mode, r.Spotter, r.Comment, r.Locator, r.SpottedAt)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save spot %s/%s: %w", r.Source, r.SpotID, err)
		}
		saved++
	}
	return saved, nil
}

// RecentSpots returns spots from every source sighted at or after since,
// newest first.
func (s *Store) RecentSpots(ctx context.Context, since time.Time) ([]domain.Spot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, spot_id, activator, reference, reference_name, frequency_khz, mode, spotter, comment, locator, spotted_at
		FROM spots
		WHERE spotted_at >= ?
		ORDER BY spotted_at DESC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query spots: %w", err)
	}
	defer rows.Close()

	var spots []domain.Spot
	for rows.Next() {
		var r spotRow
		err := rows.Scan(&r.ID, &r.Source, &r.SpotID, &r.Activator, &r.Reference,
			&r.ReferenceName, &r.FrequencyKHz, &r.Mode, &r.Spotter, &r.Comment,
			&r.Locator, &r.SpottedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		spots = append(spots, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spots: %w", err)
	}
	return spots, nil
}

// NewestSpot returns the most recent sighting time persisted for source,
// or the zero time when the source has no rows.
func (s *Store) NewestSpot(ctx context.Context, source string) (time.Time, error) {
	return s.newestAt(ctx, "spots", "spotted_at", source)
}

// SpotCount returns the number of rows persisted for source.
func (s *Store) SpotCount(ctx context.Context, source string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spots WHERE source = ?", source).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count spots: %w", err)
	}
	return count, nil
}

// deleteBySourceBefore is the retention sweep shared by every table:
// delete source's rows whose timestamp column is older than cutoff.
// The source filter is a hard invariant, not an optimization.
func deleteBySourceBefore(ctx context.Context, tx *sql.Tx, table, column, source string, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE source = ? AND %s < ?", table, column),
		source, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep %s: %w", table, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept %s rows: %w", table, err)
	}
	return deleted, nil
}

// newestAt returns the largest value of a timestamp column for one
// source's rows, or the zero time when the source has none.
func (s *Store) newestAt(ctx context.Context, table, column, source string) (time.Time, error) {
	var newest time.Time
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE source = ? ORDER BY %s DESC LIMIT 1", column, table, column),
		source).Scan(&newest)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query newest %s row: %w", table, err)
	}
	return newest.UTC(), nil
}
