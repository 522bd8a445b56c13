package models

import (
	"fmt"
	"time"
)

// Venue is a business location harvested from the places API
type Venue struct {
	ID        int64     `db:"id" json:"id"`
	PlaceID   string    `db:"place_id" json:"place_id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	Category  *string   `db:"category" json:"category,omitempty"`
	Rating    *float64  `db:"rating" json:"rating,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Venue) TableName() string {
	return "venues"
}

// Validate checks the invariants a venue must hold before it is stored.
func (v *Venue) Validate() error {
	if v.PlaceID == "" {
		return fmt.Errorf("venue place id is required")
	}
	if v.Name == "" {
		return fmt.Errorf("venue %s has no name", v.PlaceID)
	}
	if v.Latitude < -90 || v.Latitude > 90 || v.Longitude < -180 || v.Longitude > 180 {
		return fmt.Errorf("venue %s has invalid coordinates (%f, %f)", v.PlaceID, v.Latitude, v.Longitude)
	}
	if v.Rating != nil && (*v.Rating < 0 || *v.Rating > 5) {
		return fmt.Errorf("venue %s has rating %.1f outside 0.0-5.0", v.PlaceID, *v.Rating)
	}
	return nil
}

// VenueDistance is a venue matched by a proximity search.
type VenueDistance struct {
	Venue
	DistanceMeters float64 `db:"distance_meters" json:"distance_meters"`
}

// VenueDetail is a venue with its weekly operating hours.
type VenueDetail struct {
	Venue
	OperatingHours []OperatingHour `json:"operating_hours"`
}
