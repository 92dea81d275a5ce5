package domain

import (
	"time"
)

// ImageRef points at an image persisted by an ImageStore. It is produced once
// when the image is stored and is never rebuilt from the URL afterwards.
type ImageRef struct {
	Key string `json:"-"`
	URL string `json:"url"`
}

// Place is a named location registered by an administrator.
type Place struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Location    Coordinate `json:"location"`
	Image       ImageRef   `json:"image"`
	CreatedAt   time.Time  `json:"created_at"`
}

// User is an account able to obtain access tokens.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// DetectionEvent records a successful proximity match.
type DetectionEvent struct {
	PlaceID        string     `json:"place_id"`
	PlaceName      string     `json:"place_name"`
	Query          Coordinate `json:"query"`
	DistanceMeters float64    `json:"distance_m"`
	DetectedAt     time.Time  `json:"detected_at"`
}
