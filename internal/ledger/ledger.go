// Package ledger provides an append-only history of job fires and device outcomes.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventScheduleFired   EventType = "schedule_fired"
	EventScheduleMissing EventType = "schedule_missing"
	EventConfigMissing   EventType = "config_missing"
	EventDeviceApplied   EventType = "device_applied"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID         int64          `json:"id"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	ScheduleID int64          `json:"schedule_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type entryRow struct {
	ID         int64          `db:"id"`
	EventType  string         `db:"event_type"`
	Timestamp  int64          `db:"timestamp"`
	ScheduleID sql.NullInt64  `db:"schedule_id"`
	RunID      sql.NullString `db:"run_id"`
	Source     sql.NullString `db:"source"`
	Payload    sql.NullString `db:"payload"`
}

// Ledger provides append-only event logging.
// A nil *Ledger is valid and records nothing.
type Ledger struct {
	db *sqlx.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	if l == nil {
		return nil
	}

	var payloadJSON []byte
	if e.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return errors.Wrap(err, "failed to marshal payload")
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var scheduleID sql.NullInt64
	if e.ScheduleID != 0 {
		scheduleID = sql.NullInt64{Int64: e.ScheduleID, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO event_ledger (event_type, timestamp, schedule_id, run_id, source, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(e.EventType), ts.UTC().Unix(), scheduleID, e.RunID, e.Source, string(payloadJSON))
	if err != nil {
		return errors.Wrap(err, "failed to append ledger entry")
	}
	return nil
}

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if l == nil {
		return nil, nil
	}

	var rows []entryRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, timestamp, schedule_id, run_id, source, payload
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger")
	}
	return toEntries(rows)
}

// ForSchedule returns the newest entries for one schedule.
func (l *Ledger) ForSchedule(ctx context.Context, scheduleID int64, limit int) ([]*Entry, error) {
	if l == nil {
		return nil, nil
	}

	var rows []entryRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, timestamp, schedule_id, run_id, source, payload
		FROM event_ledger
		WHERE schedule_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, scheduleID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ledger for schedule %d", scheduleID)
	}
	return toEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if l == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-retention).UTC().Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up ledger")
	}
	return result.RowsAffected()
}

func toEntries(rows []entryRow) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(rows))
	for _, r := range rows {
		entry := &Entry{
			ID:         r.ID,
			EventType:  EventType(r.EventType),
			Timestamp:  time.Unix(r.Timestamp, 0).UTC(),
			ScheduleID: r.ScheduleID.Int64,
			RunID:      r.RunID.String,
			Source:     r.Source.String,
		}

		if r.Payload.Valid && r.Payload.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(r.Payload.String), &entry.Payload); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal payload")
			}
		}

		entries = append(entries, entry)
	}
	return entries, nil
}
