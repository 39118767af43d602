// Package db provides the shared SQLite handle and schema for relayd.
package db

import (
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DeviceURLKey is the config key holding the device base URL.
const DeviceURLKey = "esp32_url"

// DB wraps the SQLite database connection
type DB struct {
	*sqlx.DB
}

// Open opens the database, initializes the schema and seeds the default
// device URL when it is not configured yet.
func Open(dbPath, defaultDeviceURL string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	if defaultDeviceURL != "" {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO config (key, value) VALUES (?, ?)`,
			DeviceURLKey, defaultDeviceURL,
		); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to seed default config")
		}
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sqlx.DB) error {
	// Schedules - source of truth for the job table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			time TEXT NOT NULL,
			days TEXT NOT NULL DEFAULT '0,1,2,3,4,5,6',
			action TEXT NOT NULL DEFAULT 'on',
			relay INTEGER NOT NULL DEFAULT 1,
			strip INTEGER NOT NULL DEFAULT 1,
			brightness INTEGER NOT NULL DEFAULT 255,
			color TEXT NOT NULL DEFAULT '#ffffff',
			enabled INTEGER NOT NULL DEFAULT 1
		);
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create schedules table")
	}

	// Config - flat key/value device parameters
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create config table")
	}

	// Event ledger - append-only history of fires and device outcomes
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS event_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			schedule_id INTEGER,
			run_id TEXT,
			source TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_ts ON event_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_schedule ON event_ledger(schedule_id, timestamp);
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create event_ledger table")
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
