package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Trigger computes the fire times of a job.
type Trigger interface {
	// Next returns the first fire time strictly after the given time, or false if none
	Next(after time.Time) (time.Time, bool)

	// String describes the trigger for display
	String() string
}

// WeeklyTrigger fires at a fixed wall-clock time on a set of weekdays, every week.
type WeeklyTrigger struct {
	days   [7]bool // indexed by time.Weekday
	hour   int
	minute int
	loc    *time.Location
}

// NewWeeklyTrigger creates a weekly trigger. Duplicate weekdays collapse;
// a nil location means UTC.
func NewWeeklyTrigger(days []time.Weekday, hour, minute int, loc *time.Location) (*WeeklyTrigger, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid minute: %d", minute)
	}
	if loc == nil {
		loc = time.UTC
	}

	t := &WeeklyTrigger{hour: hour, minute: minute, loc: loc}
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("invalid weekday: %d", d)
		}
		t.days[d] = true
	}
	if len(t.Weekdays()) == 0 {
		return nil, fmt.Errorf("weekly trigger needs at least one day")
	}
	return t, nil
}

// Next returns the next occurrence after the given time.
func (t *WeeklyTrigger) Next(after time.Time) (time.Time, bool) {
	local := after.In(t.loc)

	// Eight days covers "same weekday next week" when today's slot has passed.
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		if !t.days[day.Weekday()] {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), t.hour, t.minute, 0, 0, t.loc)
		if candidate.After(after) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// Weekdays returns the trigger days ordered Monday first.
func (t *WeeklyTrigger) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if t.days[d] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return (out[i]+6)%7 < (out[j]+6)%7
	})
	return out
}

// Hour returns the fire hour.
func (t *WeeklyTrigger) Hour() int { return t.hour }

// Minute returns the fire minute.
func (t *WeeklyTrigger) Minute() int { return t.minute }

// String returns e.g. "18:30 mon,tue,wed".
func (t *WeeklyTrigger) String() string {
	names := make([]string, 0, 7)
	for _, d := range t.Weekdays() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return fmt.Sprintf("%02d:%02d %s", t.hour, t.minute, strings.Join(names, ","))
}
