package domain

import "fmt"

// Coordinate is a WGS 84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether c lies within the valid latitude/longitude ranges.
func (c Coordinate) Validate() error {
	return ValidateCoordinate(c.Lat, c.Lng)
}

// CoordinateError describes the first out-of-range field of a coordinate.
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid %s value %v", e.Field, e.Value)
}

func (e *CoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// ValidateCoordinate rejects lat outside [-90, 90] or lng outside [-180, 180].
// Latitude is checked first.
func ValidateCoordinate(lat, lng float64) error {
	if !(lat >= -90 && lat <= 90) {
		return &CoordinateError{Field: "latitude", Value: lat}
	}
	if !(lng >= -180 && lng <= 180) {
		return &CoordinateError{Field: "longitude", Value: lng}
	}
	return nil
}
