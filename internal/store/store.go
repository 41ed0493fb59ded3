// Package store is the persistence layer: one SQLite table per entity
// type, written by the refresh services and read back by the cache
// loaders.
//
// # Thread Safety
//
// Store is safe for concurrent use. The underlying sql.DB serializes
// access to the database; cross-source writes never touch the same rows
// because every mutation is scoped by source.
//
// # Transactions
//
// Each Replace* method runs its lookup, bulk save, and retention sweep
// inside one transaction via WithTx. Fetching from the network happens
// entirely outside that boundary, so an interrupted refresh leaves the
// store exactly as it was.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store handles persistence of every refreshed entity type.
type Store struct {
	db *sql.DB
}

// Open creates a SQLite store at the given path. The database is created
// if it doesn't exist and the schema is applied automatically.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS spots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		spot_id TEXT NOT NULL,
		activator TEXT NOT NULL,
		reference TEXT,
		reference_name TEXT,
		frequency_khz REAL NOT NULL,
		mode TEXT,
		spotter TEXT,
		comment TEXT,
		locator TEXT,
		spotted_at DATETIME NOT NULL,
		UNIQUE(source, spot_id)
	);

	CREATE INDEX IF NOT EXISTS idx_spots_spotted ON spots(spotted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_spots_source ON spots(source);

	CREATE TABLE IF NOT EXISTS solar_indices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		solar_flux REAL,
		sunspot_number INTEGER,
		a_index INTEGER,
		k_index REAL,
		xray TEXT,
		solar_wind_speed REAL,
		measured_at DATETIME NOT NULL,
		UNIQUE(source, measured_at)
	);

	CREATE INDEX IF NOT EXISTS idx_solar_measured ON solar_indices(measured_at DESC);

	CREATE TABLE IF NOT EXISTS band_conditions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		band TEXT NOT NULL,
		day_rating TEXT NOT NULL,
		night_rating TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		UNIQUE(source, band, recorded_at)
	);

	CREATE INDEX IF NOT EXISTS idx_band_conditions_recorded ON band_conditions(recorded_at DESC);

	CREATE TABLE IF NOT EXISTS contests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT,
		modes TEXT,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		fetched_at DATETIME NOT NULL,
		UNIQUE(source, name)
	);

	CREATE INDEX IF NOT EXISTS idx_contests_ends ON contests(ends_at);

	CREATE TABLE IF NOT EXISTS meteor_showers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		peaks_at DATETIME NOT NULL,
		zhr INTEGER NOT NULL,
		fetched_at DATETIME NOT NULL,
		UNIQUE(source, code)
	);

	CREATE INDEX IF NOT EXISTS idx_meteor_showers_ends ON meteor_showers(ends_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// WithTx runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
//
// Use with caution - prefer using Store methods for common operations.
func (s *Store) DB() *sql.DB {
	return s.db
}
