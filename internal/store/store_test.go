package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayd/internal/db"
	"github.com/dokzlo13/relayd/internal/schedule"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"), "http://192.168.1.100")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func strPtr(s string) *string { return &s }

func flagPtr(b bool) *schedule.Flag {
	f := schedule.Flag(b)
	return &f
}

func TestSchedules_InsertAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(openTestDB(t).DB)

	rec, err := s.Insert(ctx, schedule.Fields{Name: "Morning", Time: "07:15"})
	require.NoError(t, err)

	assert.NotZero(t, rec.ID)
	assert.Equal(t, "Morning", rec.Name)
	assert.Equal(t, schedule.DefaultDays, rec.Days)
	assert.Equal(t, schedule.ActionOn, rec.Action)
	assert.True(t, rec.Relay)
	assert.True(t, rec.Strip)
	assert.Equal(t, 255, rec.Brightness)
	assert.Equal(t, "#ffffff", rec.Color)
	assert.True(t, rec.Enabled)
}

func TestSchedules_UpdateReplacesFields(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(openTestDB(t).DB)

	rec, err := s.Insert(ctx, schedule.Fields{Name: "Evening", Time: "18:30", Color: strPtr("#112233")})
	require.NoError(t, err)

	// Omitted fields fall back to defaults on update too (full replace).
	updated, err := s.Update(ctx, rec.ID, schedule.Fields{
		Name:    "Evening",
		Time:    "19:00",
		Days:    strPtr("5,6"),
		Enabled: flagPtr(false),
	})
	require.NoError(t, err)

	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "19:00", updated.Time)
	assert.Equal(t, "5,6", updated.Days)
	assert.Equal(t, "#ffffff", updated.Color)
	assert.False(t, updated.Enabled)
}

func TestSchedules_UpdateMissing(t *testing.T) {
	s := NewSchedules(openTestDB(t).DB)

	_, err := s.Update(context.Background(), 42, schedule.Fields{Name: "x", Time: "01:00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSchedules_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(openTestDB(t).DB)

	rec, err := s.Insert(ctx, schedule.Fields{Name: "Once", Time: "12:00"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, rec.ID))
	require.NoError(t, s.Delete(ctx, rec.ID))

	_, err = s.Get(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSchedules_ListOrderedByTime(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(openTestDB(t).DB)

	for _, tm := range []string{"21:00", "06:30", "12:15"} {
		_, err := s.Insert(ctx, schedule.Fields{Name: "at " + tm, Time: tm})
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "06:30", list[0].Time)
	assert.Equal(t, "12:15", list[1].Time)
	assert.Equal(t, "21:00", list[2].Time)
}

func TestSchedules_ListOrderedByTimeWithShortHours(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(openTestDB(t).DB)

	for _, tm := range []string{"10:00", "7:05", "9:30"} {
		_, err := s.Insert(ctx, schedule.Fields{Name: "at " + tm, Time: tm})
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "07:05", list[0].Time)
	assert.Equal(t, "09:30", list[1].Time)
	assert.Equal(t, "10:00", list[2].Time)
}

func TestConfig_SeededAndUpserted(t *testing.T) {
	ctx := context.Background()
	c := NewConfig(openTestDB(t).DB)

	url, ok, err := c.Get(ctx, db.DeviceURLKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://192.168.1.100", url)

	require.NoError(t, c.SetMany(ctx, map[string]string{
		db.DeviceURLKey: "http://10.0.0.5",
		"label":         "porch",
	}))

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{db.DeviceURLKey: "http://10.0.0.5", "label": "porch"}, all)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfig_SeedDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.sqlite")

	first, err := db.Open(path, "http://192.168.1.100")
	require.NoError(t, err)
	require.NoError(t, NewConfig(first.DB).SetMany(context.Background(), map[string]string{db.DeviceURLKey: "http://custom"}))
	require.NoError(t, first.Close())

	second, err := db.Open(path, "http://192.168.1.100")
	require.NoError(t, err)
	defer second.Close()

	url, _, err := NewConfig(second.DB).Get(context.Background(), db.DeviceURLKey)
	require.NoError(t, err)
	assert.Equal(t, "http://custom", url)
}

func TestConfig_SetManyRollsBackOnFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO config").WithArgs("k", "v").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	c := NewConfig(sqlx.NewDb(mockDB, "sqlite3"))
	err = c.SetMany(context.Background(), map[string]string{"k": "v"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
