package models

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/poppy/pkg/database"
)

// RawPlace is one harvested places API result, kept as an audit trail. The
// opening hours payload is stored untouched and parsed only when processed.
type RawPlace struct {
	ID               int64                           `db:"id" json:"id"`
	PlaceID          string                          `db:"place_id" json:"place_id"`
	BatchID          string                          `db:"batch_id" json:"batch_id"`
	DisplayName      *string                         `db:"display_name" json:"display_name,omitempty"`
	FormattedAddress *string                         `db:"formatted_address" json:"formatted_address,omitempty"`
	Latitude         float64                         `db:"latitude" json:"latitude"`
	Longitude        float64                         `db:"longitude" json:"longitude"`
	OpeningHours     database.JSONB[json.RawMessage] `db:"opening_hours" json:"opening_hours"`
	RawData          database.JSONB[json.RawMessage] `db:"raw_data" json:"raw_data"`
	Processed        bool                            `db:"processed" json:"processed"`
	ErrorMessage     *string                         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                       `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (RawPlace) TableName() string {
	return "raw_places"
}

// HasOpeningHours reports whether the harvest carried an opening hours payload.
func (r *RawPlace) HasOpeningHours() bool {
	return r.OpeningHours.Valid && len(r.OpeningHours.Data) > 0 && string(r.OpeningHours.Data) != "null"
}

// RawPlaceCounts summarises the raw store.
type RawPlaceCounts struct {
	Total       int64 `db:"total" json:"total"`
	Unprocessed int64 `db:"unprocessed" json:"unprocessed"`
	Errored     int64 `db:"errored" json:"errored"`
}
