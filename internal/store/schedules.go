// Package store provides the SQLite-backed schedule and config stores.
package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/dokzlo13/relayd/internal/schedule"
)

// ErrNotFound is returned when a schedule id does not exist.
var ErrNotFound = errors.New("schedule not found")

const scheduleColumns = `id, name, time, days, action, relay, strip, brightness, color, enabled`

// Schedules is the durable CRUD store for schedule records.
// It has no side effects beyond the database write.
type Schedules struct {
	db *sqlx.DB
}

// NewSchedules creates a schedule store on db.
func NewSchedules(db *sqlx.DB) *Schedules {
	return &Schedules{db: db}
}

// Insert stores a new schedule and returns it with its assigned id.
func (s *Schedules) Insert(ctx context.Context, f schedule.Fields) (*schedule.Schedule, error) {
	rec := f.Apply(0)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (name, time, days, action, relay, strip, brightness, color, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Name, rec.Time, rec.Days, string(rec.Action), rec.Relay, rec.Strip, rec.Brightness, rec.Color, rec.Enabled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert schedule")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schedule id")
	}

	return s.Get(ctx, id)
}

// Update replaces every mutable field of schedule id.
// Returns ErrNotFound if id does not exist.
func (s *Schedules) Update(ctx context.Context, id int64, f schedule.Fields) (*schedule.Schedule, error) {
	rec := f.Apply(id)

	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET name = ?, time = ?, days = ?, action = ?, relay = ?, strip = ?,
			brightness = ?, color = ?, enabled = ?
		WHERE id = ?
	`, rec.Name, rec.Time, rec.Days, string(rec.Action), rec.Relay, rec.Strip, rec.Brightness, rec.Color, rec.Enabled, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update schedule %d", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update schedule %d", id)
	}
	if affected == 0 {
		return nil, errors.Wrapf(ErrNotFound, "schedule %d", id)
	}

	return s.Get(ctx, id)
}

// Delete removes schedule id. Deleting a missing id is not an error.
func (s *Schedules) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete schedule %d", id)
	}
	return nil
}

// Get returns schedule id or ErrNotFound.
func (s *Schedules) Get(ctx context.Context, id int64) (*schedule.Schedule, error) {
	var rec schedule.Schedule
	err := s.db.GetContext(ctx, &rec, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "schedule %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get schedule %d", id)
	}
	return &rec, nil
}

// List returns every schedule ordered by time of day.
func (s *Schedules) List(ctx context.Context) ([]schedule.Schedule, error) {
	out := []schedule.Schedule{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+scheduleColumns+` FROM schedules ORDER BY time, id`); err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	return out, nil
}
