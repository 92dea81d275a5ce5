package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/ports"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
	"github.com/samirrijal/placefinder/internal/pkg/validation"
)

const (
	placeListCacheKey = "places:list"
	placeListTTL      = 300
	placeByIDTTL      = 3600
)

var allowedImageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// NewPlace is the input for registering a place.
type NewPlace struct {
	Name        string  `json:"name" validate:"notblank,max=200"`
	Description string  `json:"description" validate:"max=4000"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Validate checks the text fields and the coordinate.
func (p NewPlace) Validate() error {
	if err := validation.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return domain.ValidateCoordinate(p.Lat, p.Lng)
}

// ValidateImageName checks that filename carries a supported image extension.
func ValidateImageName(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExt[ext] {
		return fmt.Errorf("%w: unsupported image type %q", domain.ErrValidation, ext)
	}
	return nil
}

// PlaceService handles place registration and lookup.
type PlaceService struct {
	places    ports.PlaceRepository
	images    ports.ImageStore
	auth      *AuthService
	cache     ports.CacheService
	publisher ports.EventPublisher
}

// NewPlaceService creates a new PlaceService. cache and publisher may be nil.
func NewPlaceService(
	places ports.PlaceRepository,
	images ports.ImageStore,
	auth *AuthService,
	cache ports.CacheService,
	publisher ports.EventPublisher,
) *PlaceService {
	return &PlaceService{places: places, images: images, auth: auth, cache: cache, publisher: publisher}
}

// Register stores the image and inserts the place on behalf of an admin.
// If the insert fails the stored image is removed again.
func (s *PlaceService) Register(ctx context.Context, principal domain.Principal, in NewPlace, imageName string, image io.Reader) (*domain.Place, error) {
	if d := s.auth.Authorize(principal, domain.CapabilityManagePlaces); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, d.Reason)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateImageName(imageName); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "PlaceService.Register", trace.WithAttributes(attribute.String("place.name", in.Name)))
	defer span.End()
	log := logging.FromContext(ctx)

	ref, err := s.images.Save(ctx, imageName, image)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	place := &domain.Place{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Location:    domain.Coordinate{Lat: in.Lat, Lng: in.Lng},
		Image:       ref,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.places.Create(ctx, place); err != nil {
		if derr := s.images.Delete(ctx, ref); derr != nil {
			log.Error("orphaned image after failed insert", "key", ref.Key, "error", derr)
		}
		return nil, fmt.Errorf("create place: %w", err)
	}

	metrics.PlacesRegistered.WithLabelValues("api").Inc()
	log.Info("place registered", "place_id", place.ID, "name", place.Name, "by", principal.Username)

	s.InvalidateList(ctx)
	if s.publisher != nil {
		if err := s.publisher.PublishPlaceRegistered(ctx, place); err != nil {
			log.Warn("publish place registered", "error", err)
		}
	}
	return place, nil
}

// List returns every place, served from cache when possible.
func (s *PlaceService) List(ctx context.Context) ([]domain.Place, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, placeListCacheKey); err == nil {
			var places []domain.Place
			if err := json.Unmarshal(data, &places); err == nil {
				metrics.CacheHits.WithLabelValues("places_list").Inc()
				return places, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("places_list").Inc()
	}

	places, err := s.places.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(places); err == nil {
			_ = s.cache.Set(ctx, placeListCacheKey, data, placeListTTL)
		}
	}
	return places, nil
}

// GetByID returns a single place. Places are never mutated, so the cached copy
// only expires to bound memory.
func (s *PlaceService) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	cacheKey := "places:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var place domain.Place
			if err := json.Unmarshal(data, &place); err == nil {
				metrics.CacheHits.WithLabelValues("place_by_id").Inc()
				return &place, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("place_by_id").Inc()
	}

	place, err := s.places.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(place); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, placeByIDTTL)
		}
	}
	return place, nil
}

// InvalidateList drops the cached place list.
func (s *PlaceService) InvalidateList(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, placeListCacheKey); err != nil {
		logging.FromContext(ctx).Warn("invalidate place list", "error", err)
	}
}
