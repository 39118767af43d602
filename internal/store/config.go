package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

// Config is a persistent key/value store for device parameters.
type Config struct {
	db *sqlx.DB
}

// NewConfig creates a config store on db.
func NewConfig(db *sqlx.DB) *Config {
	return &Config{db: db}
}

// Get returns the value stored under key and whether it exists.
func (c *Config) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM config WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to get config %q", key)
	}
	return value, true, nil
}

// SetMany upserts every key in values within a single transaction.
func (c *Config) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin config transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return errors.Wrapf(err, "failed to store config %q", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit config")
	}
	return nil
}

type configRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// All returns every stored key.
func (c *Config) All(ctx context.Context) (map[string]string, error) {
	var rows []configRow
	if err := c.db.SelectContext(ctx, &rows, `SELECT key, value FROM config ORDER BY key`); err != nil {
		return nil, errors.Wrap(err, "failed to list config")
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
