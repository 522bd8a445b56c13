package models

import (
	"fmt"
	"time"
)

// Days of the week as stored in day_of_week (0 = Sunday).
const (
	Sunday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// OperatingHour is one contiguous open interval of a venue on one day of the week
type OperatingHour struct {
	ID        int64     `db:"id" json:"-"`
	VenueID   int64     `db:"venue_id" json:"-"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	OpenTime  ClockTime `db:"open_time" json:"open_time"`
	CloseTime ClockTime `db:"close_time" json:"close_time"`
}

// TableName returns the database table name
func (OperatingHour) TableName() string {
	return "venue_operating_hours"
}

// NewOperatingHour validates the day before building the interval.
func NewOperatingHour(day int, open, close ClockTime) (OperatingHour, error) {
	if day < Sunday || day > Saturday {
		return OperatingHour{}, fmt.Errorf("day of week must be between 0-6, got %d", day)
	}
	return OperatingHour{DayOfWeek: day, OpenTime: open, CloseTime: close}, nil
}

// CrossesMidnight reports whether the interval closes on the following day.
func (h OperatingHour) CrossesMidnight() bool {
	return h.CloseTime <= h.OpenTime
}

// IsOpenAt reports whether t falls inside the interval. Intervals are half-open:
// the open minute is inside, the close minute is not.
func (h OperatingHour) IsOpenAt(t ClockTime) bool {
	if h.CrossesMidnight() {
		return t >= h.OpenTime || t < h.CloseTime
	}
	return t >= h.OpenTime && t < h.CloseTime
}

// DayOfWeek converts a time.Weekday into the stored representation.
func DayOfWeek(t time.Time) int {
	return int(t.Weekday())
}
