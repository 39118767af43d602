// Package scheduler provides the timer engine: a table of jobs ordered by next
// fire time and a single dispatcher that hands due jobs to the event bus.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/eventbus"
	"github.com/dokzlo13/relayd/internal/metrics"
)

// ErrJobExists is returned by Add when a job with the same id is registered.
var ErrJobExists = errors.New("job already exists")

// ErrNeverFires is returned by Add when the trigger has no future occurrence.
var ErrNeverFires = errors.New("trigger never fires")

// RemoveResult reports what Remove did.
type RemoveResult int

const (
	NotFound RemoveResult = iota
	Removed
)

func (r RemoveResult) String() string {
	if r == Removed {
		return "removed"
	}
	return "not_found"
}

// Job is a unit registered with the engine. Args travel with every fire event.
type Job struct {
	ID      string
	Trigger Trigger
	Args    map[string]any
}

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	ID      string    `json:"id"`
	Trigger string    `json:"trigger"`
	NextRun time.Time `json:"next_run"`
}

// entry is a job in the heap
type entry struct {
	job   Job
	next  time.Time
	index int
}

// jobHeap orders entries by next fire time
type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].next.Equal(h[j].next) {
		return h[i].job.ID < h[j].job.ID
	}
	return h[i].next.Before(h[j].next)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler owns the job table and the dispatcher loop.
type Scheduler struct {
	mu    sync.Mutex
	jobs  map[string]*entry
	queue jobHeap

	bus     *eventbus.Bus
	metrics *metrics.Recorder
	now     func() time.Time

	reschedule chan struct{}
}

// New creates a scheduler that publishes fires to bus.
func New(bus *eventbus.Bus, rec *metrics.Recorder) *Scheduler {
	return &Scheduler{
		jobs:       make(map[string]*entry),
		bus:        bus,
		metrics:    rec,
		now:        time.Now,
		reschedule: make(chan struct{}, 1),
	}
}

// Add registers a job. It fails with ErrJobExists if the id is taken;
// replacing a job is always remove-then-add.
func (s *Scheduler) Add(job Job) error {
	next, ok := job.Trigger.Next(s.now())
	if !ok {
		return errors.Wrapf(ErrNeverFires, "job %s", job.ID)
	}

	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return errors.Wrapf(ErrJobExists, "job %s", job.ID)
	}
	e := &entry{job: job, next: next}
	s.jobs[job.ID] = e
	heap.Push(&s.queue, e)
	count := len(s.jobs)
	s.mu.Unlock()

	s.metrics.SetActiveJobs(count)

	log.Debug().
		Str("job_id", job.ID).
		Str("trigger", job.Trigger.String()).
		Time("next_run", next).
		Msg("Job registered")

	s.notifyReschedule()
	return nil
}

// Remove unregisters a job.
func (s *Scheduler) Remove(id string) RemoveResult {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		heap.Remove(&s.queue, e.index)
	}
	count := len(s.jobs)
	s.mu.Unlock()

	if !ok {
		return NotFound
	}

	s.metrics.SetActiveJobs(count)
	log.Debug().Str("job_id", id).Msg("Job removed")
	s.notifyReschedule()
	return Removed
}

// Get returns the job registered under id.
func (s *Scheduler) Get(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return infoOf(e), true
}

// Jobs lists registered jobs ordered by next fire time.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, infoOf(e))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func infoOf(e *entry) JobInfo {
	return JobInfo{ID: e.job.ID, Trigger: e.job.Trigger.String(), NextRun: e.next}
}

// notifyReschedule signals the dispatcher to recalculate
func (s *Scheduler) notifyReschedule() {
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

// Run starts the dispatcher loop. It returns when ctx is cancelled; no job
// fires after that.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Int("jobs", s.Len()).Msg("Scheduler started")

	for {
		sleepDuration := time.Hour // default if no jobs
		if next, ok := s.peek(); ok {
			sleepDuration = next.Sub(s.now())
			if sleepDuration < 0 {
				sleepDuration = 0
			}
		}

		log.Debug().
			Dur("sleep_duration", sleepDuration).
			Msg("Scheduler sleeping")

		timer := time.NewTimer(sleepDuration)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopping")
			return nil

		case <-s.reschedule:
			timer.Stop()
			log.Debug().Msg("Job table changed, recomputing")
			continue

		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			s.fireDue(s.now())
		}
	}
}

// peek returns the earliest next fire time
func (s *Scheduler) peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].next, true
}

type firing struct {
	job   Job
	runAt time.Time
}

// fireDue emits every job due at now and advances it to its next occurrence.
func (s *Scheduler) fireDue(now time.Time) {
	var due []firing

	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].next.After(now) {
		e := s.queue[0]
		due = append(due, firing{job: e.job, runAt: e.next})

		// Advance from whichever is later so a late wake never replays a backlog.
		from := e.next
		if now.After(from) {
			from = now
		}
		next, ok := e.job.Trigger.Next(from)
		if !ok {
			heap.Pop(&s.queue)
			delete(s.jobs, e.job.ID)
			log.Warn().Str("job_id", e.job.ID).Msg("Job has no further occurrences, removed")
			continue
		}
		e.next = next
		heap.Fix(&s.queue, e.index)
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.metrics.SetActiveJobs(count)

	for _, f := range due {
		s.emit(f)
	}
}

// emit publishes a fire event; handlers run on the bus workers.
func (s *Scheduler) emit(f firing) {
	log.Info().
		Str("job_id", f.job.ID).
		Time("run_at", f.runAt).
		Msg("Job fired")

	data := make(map[string]interface{}, len(f.job.Args)+2)
	for k, v := range f.job.Args {
		data[k] = v
	}
	data["job_id"] = f.job.ID
	data["run_at"] = f.runAt

	s.metrics.IncJobFire()
	if !s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeJobFired, Data: data}) {
		s.metrics.IncFireDropped()
	}
}

// FormatJobs returns a human-readable table of registered jobs.
func (s *Scheduler) FormatJobs(tz *time.Location) string {
	jobs := s.Jobs()
	if len(jobs) == 0 {
		return "No scheduled jobs"
	}
	if tz == nil {
		tz = time.Local
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Jobs (timezone: %s)\n", tz.String()))
	sb.WriteString(fmt.Sprintf("%-16s %-30s %s\n", "ID", "TRIGGER", "NEXT RUN"))
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	for _, j := range jobs {
		sb.WriteString(fmt.Sprintf("%-16s %-30s %s\n", j.ID, j.Trigger, j.NextRun.In(tz).Format("Mon 2006-01-02 15:04")))
	}
	return sb.String()
}
