package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a nullable jsonb column onto T.
type JSONB[T any] struct {
	Data  T
	Valid bool
}

func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data, Valid: true}
}

func (p *JSONB[T]) Scan(src any) error {
	var zero T
	switch b := src.(type) {
	case nil:
		p.Data, p.Valid = zero, false
		return nil
	case []byte:
		p.Valid = true
		return json.Unmarshal(b, &p.Data)
	case string:
		p.Valid = true
		return json.Unmarshal([]byte(b), &p.Data)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
}

// Value renders the json as text so lib/pq never sends it as bytea.
func (p JSONB[T]) Value() (driver.Value, error) {
	if !p.Valid {
		return nil, nil
	}
	b, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p JSONB[T]) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}
