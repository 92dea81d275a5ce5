// Package proximity finds the registered place closest to a query coordinate.
package proximity

import (
	"fmt"
	"math"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/pkg/geospatial"
)

// Config holds the detector's sphere model and match threshold.
type Config struct {
	MaxDistanceMeters float64
	EarthRadiusMeters float64
}

// DefaultConfig matches within 100 m on a sphere of mean Earth radius.
func DefaultConfig() Config {
	return Config{
		MaxDistanceMeters: 100,
		EarthRadiusMeters: geospatial.EarthRadiusMeters,
	}
}

// Validate checks that both values are positive and finite.
func (c Config) Validate() error {
	if !(c.MaxDistanceMeters > 0) || math.IsInf(c.MaxDistanceMeters, 0) {
		return fmt.Errorf("max distance must be positive, got %v", c.MaxDistanceMeters)
	}
	if !(c.EarthRadiusMeters > 0) || math.IsInf(c.EarthRadiusMeters, 0) {
		return fmt.Errorf("earth radius must be positive, got %v", c.EarthRadiusMeters)
	}
	return nil
}

// Result is the outcome of a detection. A nil Place means nothing was in range.
type Result struct {
	Place          *domain.Place
	DistanceMeters float64
}

// Found reports whether a place matched.
func (r Result) Found() bool { return r.Place != nil }

// Detector is stateless and safe for concurrent use.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector from cfg.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("proximity config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// MaxDistance returns the configured match threshold in meters.
func (d *Detector) MaxDistance() float64 { return d.cfg.MaxDistanceMeters }

// Detect returns the nearest candidate within the configured threshold.
func (d *Detector) Detect(query domain.Coordinate, candidates []domain.Place) (Result, error) {
	return d.DetectWithin(query, candidates, d.cfg.MaxDistanceMeters)
}

// DetectWithin scans every candidate once and returns the nearest one if its
// distance is <= maxDistanceMeters. On equal distances the earlier candidate
// wins. The returned Place points into candidates.
func (d *Detector) DetectWithin(query domain.Coordinate, candidates []domain.Place, maxDistanceMeters float64) (Result, error) {
	if err := query.Validate(); err != nil {
		return Result{}, err
	}

	best := -1
	minDist := math.Inf(1)
	for i := range candidates {
		dist := geospatial.Distance(query, candidates[i].Location, d.cfg.EarthRadiusMeters)
		if dist < minDist {
			minDist = dist
			best = i
		}
	}

	if best < 0 || minDist > maxDistanceMeters {
		return Result{}, nil
	}
	return Result{Place: &candidates[best], DistanceMeters: minDist}, nil
}
