package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Flag is a boolean that also accepts 0/1 in JSON, matching the
// integer flags stored in the database.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s: expected true, false, 0 or 1", data)
	}
	return nil
}

// Fields is the writable part of a schedule. Nil pointers take the defaults.
type Fields struct {
	Name       string  `json:"name"`
	Time       string  `json:"time"`
	Days       *string `json:"days,omitempty"`
	Action     *Action `json:"action,omitempty"`
	Relay      *Flag   `json:"relay,omitempty"`
	Strip      *Flag   `json:"strip,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	Color      *string `json:"color,omitempty"`
	Enabled    *Flag   `json:"enabled,omitempty"`
}

// Apply builds a schedule record with id from f, filling omitted fields with defaults.
func (f Fields) Apply(id int64) Schedule {
	s := Schedule{
		ID:         id,
		Name:       f.Name,
		Time:       NormalizeClock(f.Time),
		Days:       DefaultDays,
		Action:     DefaultAction,
		Relay:      true,
		Strip:      true,
		Brightness: DefaultBrightness,
		Color:      DefaultColor,
		Enabled:    true,
	}

	if f.Days != nil {
		s.Days = *f.Days
	}
	if f.Action != nil {
		s.Action = *f.Action
	}
	if f.Relay != nil {
		s.Relay = bool(*f.Relay)
	}
	if f.Strip != nil {
		s.Strip = bool(*f.Strip)
	}
	if f.Brightness != nil {
		s.Brightness = *f.Brightness
	}
	if f.Color != nil {
		s.Color = *f.Color
	}
	if f.Enabled != nil {
		s.Enabled = bool(*f.Enabled)
	}
	return s
}

// ValidationError lists the fields of a schedule that failed validation.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Problems))
	for _, k := range []string{"name", "time", "days", "action", "brightness", "color"} {
		if msg, ok := e.Problems[k]; ok {
			keys = append(keys, k+": "+msg)
		}
	}
	return "invalid schedule: " + strings.Join(keys, "; ")
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Validate checks every field of s. It returns a *ValidationError or nil.
func Validate(s Schedule) error {
	problems := make(map[string]string)

	if strings.TrimSpace(s.Name) == "" {
		problems["name"] = "must not be empty"
	}
	if _, _, err := ParseClock(s.Time); err != nil {
		problems["time"] = err.Error()
	}
	if _, err := ParseDays(s.Days); err != nil {
		problems["days"] = err.Error()
	}
	if !s.Action.Valid() {
		problems["action"] = fmt.Sprintf("must be %q or %q", ActionOn, ActionOff)
	}
	if s.Brightness < 0 || s.Brightness > 255 {
		problems["brightness"] = "must be within [0,255]"
	}
	if _, err := ParseColor(s.Color); err != nil {
		problems["color"] = err.Error()
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// MarshalJSON keeps Flag rendering as a plain boolean.
func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}
