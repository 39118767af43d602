// Package schedule defines the persisted schedule record and the parsing rules
// for its time, day set and color fields.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is what a schedule does to the device when it fires.
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionOn || a == ActionOff
}

// Defaults applied when a field is omitted on insert or update.
const (
	DefaultDays       = "0,1,2,3,4,5,6"
	DefaultAction     = ActionOn
	DefaultBrightness = 255
	DefaultColor      = "#ffffff"
)

// Schedule is a persisted rule describing when and how to drive the device.
type Schedule struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Time       string `db:"time" json:"time"`
	Days       string `db:"days" json:"days"`
	Action     Action `db:"action" json:"action"`
	Relay      bool   `db:"relay" json:"relay"`
	Strip      bool   `db:"strip" json:"strip"`
	Brightness int    `db:"brightness" json:"brightness"`
	Color      string `db:"color" json:"color"`
	Enabled    bool   `db:"enabled" json:"enabled"`
}

// JobID returns the identifier of the live job derived from schedule id.
func JobID(id int64) string {
	return "schedule_" + strconv.FormatInt(id, 10)
}

// JobID returns the identifier of the live job derived from s.
func (s Schedule) JobID() string {
	return JobID(s.ID)
}

// String returns a short description for logs.
func (s Schedule) String() string {
	return fmt.Sprintf("%s (#%d %s on %s, %s)", s.Name, s.ID, s.Time, s.Days, s.Action)
}

// DayList formats day indices the way they are stored.
func DayList(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
