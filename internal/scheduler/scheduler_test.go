package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayd/internal/eventbus"
)

// intervalTrigger fires every d after the given time.
type intervalTrigger struct{ d time.Duration }

func (t intervalTrigger) Next(after time.Time) (time.Time, bool) { return after.Add(t.d), true }
func (t intervalTrigger) String() string                           { return "every " + t.d.String() }

type neverTrigger struct{}

func (neverTrigger) Next(time.Time) (time.Time, bool) { return time.Time{}, false }
func (neverTrigger) String() string                   { return "never" }

func newTestScheduler(t *testing.T) (*Scheduler, chan eventbus.Event) {
	t.Helper()
	bus := eventbus.NewWithConfig(2, 16)
	t.Cleanup(func() { bus.Close(context.Background()) })

	fired := make(chan eventbus.Event, 16)
	bus.Subscribe(eventbus.EventTypeJobFired, func(e eventbus.Event) { fired <- e })
	return New(bus, nil), fired
}

func TestScheduler_AddRejectsDuplicate(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.NoError(t, s.Add(Job{ID: "schedule_1", Trigger: intervalTrigger{time.Hour}}))
	err := s.Add(Job{ID: "schedule_1", Trigger: intervalTrigger{time.Minute}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobExists))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_AddRejectsTriggerWithoutOccurrence(t *testing.T) {
	s, _ := newTestScheduler(t)

	err := s.Add(Job{ID: "never", Trigger: neverTrigger{}})
	assert.True(t, errors.Is(err, ErrNeverFires))
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_RemoveResult(t *testing.T) {
	s, _ := newTestScheduler(t)

	assert.Equal(t, NotFound, s.Remove("schedule_9"))

	require.NoError(t, s.Add(Job{ID: "schedule_9", Trigger: intervalTrigger{time.Hour}}))
	assert.Equal(t, Removed, s.Remove("schedule_9"))
	assert.Equal(t, NotFound, s.Remove("schedule_9"))

	_, ok := s.Get("schedule_9")
	assert.False(t, ok)
}

func TestScheduler_JobsOrderedByNextRun(t *testing.T) {
	s, _ := newTestScheduler(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Add(Job{ID: "c", Trigger: intervalTrigger{3 * time.Hour}}))
	require.NoError(t, s.Add(Job{ID: "a", Trigger: intervalTrigger{time.Hour}}))
	require.NoError(t, s.Add(Job{ID: "b", Trigger: intervalTrigger{2 * time.Hour}}))
	assert.Equal(t, Removed, s.Remove("b"))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, base.Add(time.Hour), jobs[0].NextRun)
	assert.Equal(t, "c", jobs[1].ID)

	assert.Contains(t, s.FormatJobs(time.UTC), "every 1h0m0s")
}

func TestScheduler_FireDueAdvancesAndEmits(t *testing.T) {
	s, fired := newTestScheduler(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Add(Job{ID: "schedule_1", Trigger: intervalTrigger{time.Minute}, Args: map[string]any{"schedule_id": int64(1)}}))
	require.NoError(t, s.Add(Job{ID: "schedule_2", Trigger: intervalTrigger{time.Hour}}))

	s.fireDue(base.Add(90 * time.Second))

	select {
	case e := <-fired:
		assert.Equal(t, "schedule_1", e.Data["job_id"])
		assert.Equal(t, int64(1), e.Data["schedule_id"])
		assert.Equal(t, base.Add(time.Minute), e.Data["run_at"])
	case <-time.After(time.Second):
		t.Fatal("no fire event")
	}

	info, ok := s.Get("schedule_1")
	require.True(t, ok)
	// Advanced from the late wake time, not replaying the missed minute.
	assert.Equal(t, base.Add(150*time.Second), info.NextRun)

	select {
	case e := <-fired:
		t.Fatalf("unexpected fire of %v", e.Data["job_id"])
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_RunFiresRepeatedly(t *testing.T) {
	s, fired := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	require.NoError(t, s.Add(Job{ID: "fast", Trigger: intervalTrigger{20 * time.Millisecond}}))

	for i := 0; i < 3; i++ {
		select {
		case e := <-fired:
			assert.Equal(t, "fast", e.Data["job_id"])
		case <-time.After(2 * time.Second):
			t.Fatalf("fire %d did not happen", i)
		}
	}

	cancel()
	<-done
}

func TestScheduler_ShutdownCancelsPendingFires(t *testing.T) {
	s, fired := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Add(Job{ID: "later", Trigger: intervalTrigger{100 * time.Millisecond}}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	cancel()
	<-done

	select {
	case e := <-fired:
		t.Fatalf("job %v fired after shutdown", e.Data["job_id"])
	case <-time.After(250 * time.Millisecond):
	}
}

func TestScheduler_RemovedJobDoesNotFire(t *testing.T) {
	s, fired := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx) //nolint:errcheck

	require.NoError(t, s.Add(Job{ID: "gone", Trigger: intervalTrigger{80 * time.Millisecond}}))
	assert.Equal(t, Removed, s.Remove("gone"))

	select {
	case e := <-fired:
		t.Fatalf("removed job %v fired", e.Data["job_id"])
	case <-time.After(200 * time.Millisecond):
	}
}
