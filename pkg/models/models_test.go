package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatingHour_IsOpenAt(t *testing.T) {
	day := OperatingHour{DayOfWeek: Wednesday, OpenTime: MustClockTime(9, 0), CloseTime: MustClockTime(18, 0)}
	assert.False(t, day.CrossesMidnight())
	assert.True(t, day.IsOpenAt(MustClockTime(9, 0)))
	assert.True(t, day.IsOpenAt(MustClockTime(17, 59)))
	assert.False(t, day.IsOpenAt(MustClockTime(18, 0)))
	assert.False(t, day.IsOpenAt(MustClockTime(8, 59)))

	night := OperatingHour{DayOfWeek: Friday, OpenTime: MustClockTime(22, 0), CloseTime: MustClockTime(2, 0)}
	assert.True(t, night.CrossesMidnight())
	assert.True(t, night.IsOpenAt(MustClockTime(22, 0)))
	assert.True(t, night.IsOpenAt(MustClockTime(23, 30)))
	assert.True(t, night.IsOpenAt(MustClockTime(1, 59)))
	assert.False(t, night.IsOpenAt(MustClockTime(2, 0)))
	assert.False(t, night.IsOpenAt(MustClockTime(12, 0)))

	allDay := OperatingHour{OpenTime: MustClockTime(0, 0), CloseTime: MustClockTime(0, 0)}
	assert.True(t, allDay.IsOpenAt(MustClockTime(13, 0)))
}

func TestOperatingHour_MidnightProperty(t *testing.T) {
	for start := 0; start < MinutesPerDay; start += 37 {
		for end := 0; end <= start; end += 53 {
			h := OperatingHour{OpenTime: ClockTime(start), CloseTime: ClockTime(end)}
			require.True(t, h.IsOpenAt(h.OpenTime), "open %s close %s", h.OpenTime, h.CloseTime)
			if start != end {
				before := ClockTime((end - 1 + MinutesPerDay) % MinutesPerDay)
				require.True(t, h.IsOpenAt(before), "open %s close %s", h.OpenTime, h.CloseTime)
				require.False(t, h.IsOpenAt(h.CloseTime), "open %s close %s", h.OpenTime, h.CloseTime)
			}
		}
	}
}

func TestNewOperatingHour(t *testing.T) {
	_, err := NewOperatingHour(7, MustClockTime(9, 0), MustClockTime(18, 0))
	assert.Error(t, err)

	h, err := NewOperatingHour(Sunday, MustClockTime(9, 0), MustClockTime(18, 0))
	require.NoError(t, err)
	assert.Equal(t, Sunday, h.DayOfWeek)
}

func TestClockTime(t *testing.T) {
	c, err := ParseClockTime("14:05")
	require.NoError(t, err)
	assert.Equal(t, MustClockTime(14, 5), c)
	assert.Equal(t, "14:05", c.String())

	for _, bad := range []string{"", "2pm", "24:00", "9:00", "14:5", "14:05:00"} {
		_, err := ParseClockTime(bad)
		assert.Error(t, err, bad)
	}

	var scanned ClockTime
	require.NoError(t, scanned.Scan([]byte("22:30:00")))
	assert.Equal(t, MustClockTime(22, 30), scanned)
	require.NoError(t, scanned.Scan(time.Date(0, 1, 1, 7, 15, 0, 0, time.UTC)))
	assert.Equal(t, MustClockTime(7, 15), scanned)
	assert.Error(t, scanned.Scan(42))

	v, err := MustClockTime(6, 0).Value()
	require.NoError(t, err)
	assert.Equal(t, "06:00:00", v)
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, JobStatusCompleted, DeriveStatus(10, 0))
	assert.Equal(t, JobStatusCompleted, DeriveStatus(0, 0))
	assert.Equal(t, JobStatusFailed, DeriveStatus(0, 3))
	assert.Equal(t, JobStatusPartialSuccess, DeriveStatus(7, 3))
}

func TestVenueValidate(t *testing.T) {
	rating := 4.5
	v := Venue{PlaceID: "p1", Name: "Cafe", Latitude: 37.5, Longitude: 127, Rating: &rating}
	assert.NoError(t, v.Validate())

	bad := rating + 1
	v.Rating = &bad
	assert.Error(t, v.Validate())

	v.Rating = nil
	v.Latitude = 91
	assert.Error(t, v.Validate())

	v.Latitude = 37.5
	v.Name = ""
	assert.Error(t, v.Validate())
}
