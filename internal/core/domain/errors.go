package domain

import "errors"

var (
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrNoPlaceNearby      = errors.New("no place found nearby")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")

	// ErrDataUnavailable wraps failures to read places from the store.
	ErrDataUnavailable = errors.New("place data unavailable")
)
