package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes in a wall-clock day.
const MinutesPerDay = 24 * 60

// ClockTime is a local wall-clock time of day with minute precision, stored as
// minutes since midnight. It maps to a postgres `time` column.
type ClockTime int

// NewClockTime builds a ClockTime, rejecting out of range components.
func NewClockTime(hour, minute int) (ClockTime, error) {
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour %d out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute %d out of range", minute)
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClockTime is NewClockTime for constants and tests.
func MustClockTime(hour, minute int) ClockTime {
	c, err := NewClockTime(hour, minute)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClockTime parses a strict "HH:mm" string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("invalid time %q: expected HH:mm", s)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockTimeOf returns the wall-clock time of t in t's location.
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) Hour() int {
	return int(c) / 60
}

func (c ClockTime) Minute() int {
	return int(c) % 60
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value renders the postgres time literal.
func (c ClockTime) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute()), nil
}

// Scan accepts the textual forms lib/pq returns for `time` columns.
func (c *ClockTime) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case time.Time:
		*c = ClockTimeOf(v)
		return nil
	default:
		return fmt.Errorf("ClockTime.Scan: unsupported type %T", src)
	}

	if len(s) < 5 || !strings.Contains(s, ":") {
		return fmt.Errorf("ClockTime.Scan: invalid time %q", s)
	}
	parsed, err := ParseClockTime(s[:5])
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
