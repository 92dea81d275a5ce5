package usecases

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/ports"
	"github.com/samirrijal/placefinder/internal/core/proximity"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/placefinder/internal/core/usecases")

// Match is a successful detection.
type Match struct {
	Place          domain.Place
	DistanceMeters float64
}

// DefaultPublishTimeout bounds how long a detection waits on its event.
const DefaultPublishTimeout = 500 * time.Millisecond

// DetectionService answers "which place am I near".
type DetectionService struct {
	places         ports.PlaceRepository
	detector       *proximity.Detector
	publisher      ports.EventPublisher
	publishTimeout time.Duration
}

// NewDetectionService creates a new DetectionService. publisher may be nil.
func NewDetectionService(places ports.PlaceRepository, detector *proximity.Detector, publisher ports.EventPublisher) *DetectionService {
	return &DetectionService{
		places:         places,
		detector:       detector,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
	}
}

// SetPublishTimeout changes the event publish bound. d <= 0 restores the default.
func (s *DetectionService) SetPublishTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultPublishTimeout
	}
	s.publishTimeout = d
}

// Detect returns the nearest place within the detector's threshold.
// It fails with ErrInvalidCoordinate, ErrNoPlaceNearby or ErrDataUnavailable.
func (s *DetectionService) Detect(ctx context.Context, lat, lng float64) (*Match, error) {
	ctx, span := tracer.Start(ctx, "DetectionService.Detect",
		trace.WithAttributes(attribute.Float64("query.lat", lat), attribute.Float64("query.lng", lng)))
	defer span.End()

	query := domain.Coordinate{Lat: lat, Lng: lng}
	if err := query.Validate(); err != nil {
		metrics.Detections.WithLabelValues("invalid").Inc()
		return nil, err
	}

	start := time.Now()
	candidates, err := s.places.ListAll(ctx)
	if err != nil {
		metrics.Detections.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list places")
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}

	res, err := s.detector.Detect(query, candidates)
	if err != nil {
		metrics.Detections.WithLabelValues("invalid").Inc()
		return nil, err
	}
	metrics.DetectionCandidates.Observe(float64(len(candidates)))
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	log := logging.FromContext(ctx)
	if !res.Found() {
		metrics.Detections.WithLabelValues("not_found").Inc()
		log.Debug("no place within range", "lat", lat, "lng", lng, "candidates", len(candidates))
		return nil, domain.ErrNoPlaceNearby
	}

	metrics.Detections.WithLabelValues("found").Inc()
	span.SetAttributes(attribute.String("place.id", res.Place.ID), attribute.Float64("distance_m", res.DistanceMeters))
	log.Debug("place detected", "place_id", res.Place.ID, "distance_m", res.DistanceMeters)

	if s.publisher != nil {
		s.publishDetection(ctx, &domain.DetectionEvent{
			PlaceID:        res.Place.ID,
			PlaceName:      res.Place.Name,
			Query:          query,
			DistanceMeters: res.DistanceMeters,
			DetectedAt:     time.Now().UTC(),
		})
	}

	return &Match{Place: *res.Place, DistanceMeters: res.DistanceMeters}, nil
}

// publishDetection sends the event under its own short deadline, detached
// from the request deadline. Failures are logged only.
func (s *DetectionService) publishDetection(ctx context.Context, event *domain.DetectionEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.PublishDetection(pubCtx, event); err != nil {
		logging.FromContext(ctx).Warn("publish detection", "error", err)
	}
}

// MaxDistance returns the match threshold in meters.
func (s *DetectionService) MaxDistance() float64 {
	return s.detector.MaxDistance()
}
