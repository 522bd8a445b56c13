package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/places"
)

// BuildVenue turns a raw record into a venue. The full payload supplies the
// phone, category and rating; the raw columns supply name and coordinates.
func BuildVenue(raw *models.RawPlace) (*models.Venue, error) {
	var place places.Place
	if raw.RawData.Valid && len(raw.RawData.Data) > 0 {
		if err := json.Unmarshal(raw.RawData.Data, &place); err != nil {
			return nil, fmt.Errorf("raw place %s has an unreadable payload: %w", raw.PlaceID, err)
		}
	}

	name := ""
	if raw.DisplayName != nil {
		name = strings.TrimSpace(*raw.DisplayName)
	}
	if name == "" {
		name = strings.TrimSpace(place.Name())
	}
	if name == "" {
		return nil, fmt.Errorf("raw place %s has no name", raw.PlaceID)
	}

	if math.IsNaN(raw.Latitude) || math.IsNaN(raw.Longitude) || (raw.Latitude == 0 && raw.Longitude == 0) {
		return nil, fmt.Errorf("raw place %s has no coordinates", raw.PlaceID)
	}

	venue := &models.Venue{
		PlaceID:   raw.PlaceID,
		Name:      name,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Rating:    place.Rating,
	}

	if raw.FormattedAddress != nil && strings.TrimSpace(*raw.FormattedAddress) != "" {
		addr := strings.TrimSpace(*raw.FormattedAddress)
		venue.Address = &addr
	} else if place.FormattedAddress != "" {
		addr := place.FormattedAddress
		venue.Address = &addr
	}

	if phone := NormalizePhone(place.NationalPhoneNumber); phone != "" {
		venue.Phone = &phone
	}

	if len(place.Types) > 0 && place.Types[0] != "" {
		category := place.Types[0]
		venue.Category = &category
	}

	if err := venue.Validate(); err != nil {
		return nil, err
	}
	return venue, nil
}

// NormalizePhone keeps digits, '+', '-' and spaces and trims the result
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' || r == '-' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseOpeningHours reads an opening hours payload into operating hours.
// Periods without an open day and hour are skipped, as are periods whose close
// is missing or has no hour. A missing minute reads as zero.
func ParseOpeningHours(payload json.RawMessage) ([]models.OperatingHour, error) {
	var oh places.OpeningHours
	if err := json.Unmarshal(payload, &oh); err != nil {
		return nil, fmt.Errorf("unreadable opening hours: %w", err)
	}

	hours := make([]models.OperatingHour, 0, len(oh.Periods))
	for _, p := range oh.Periods {
		if p.Open == nil || p.Open.Day == nil || p.Open.Hour == nil {
			continue
		}
		if p.Close == nil || p.Close.Hour == nil {
			continue
		}

		open, err := clockOf(p.Open)
		if err != nil {
			continue
		}
		closeAt, err := clockOf(p.Close)
		if err != nil {
			continue
		}

		h, err := models.NewOperatingHour(*p.Open.Day, open, closeAt)
		if err != nil {
			continue
		}
		hours = append(hours, h)
	}
	return hours, nil
}

func clockOf(p *places.PeriodPoint) (models.ClockTime, error) {
	minute := 0
	if p.Minute != nil {
		minute = *p.Minute
	}
	return models.NewClockTime(*p.Hour, minute)
}
