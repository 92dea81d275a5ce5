package workflows

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/ports"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
)

// RegistrationActivities holds the activity implementations for the
// registration workflow.
type RegistrationActivities struct {
	Places    ports.PlaceRepository
	Images    ports.ImageStore
	Source    afero.Fs
	Publisher ports.EventPublisher
}

// StoreImage copies the source file into the image store.
func (a *RegistrationActivities) StoreImage(ctx context.Context, source string) (StoredImage, error) {
	f, err := a.Source.Open(source)
	if err != nil {
		return StoredImage{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("open image %s: %v", source, err), ErrTypeInvalidPlace, err)
	}
	defer f.Close()

	ref, err := a.Images.Save(ctx, filepath.Base(source), f)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return StoredImage{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidPlace, err)
		}
		return StoredImage{}, fmt.Errorf("store image: %w", err)
	}
	activity.GetLogger(ctx).Info("image stored", "key", ref.Key)
	return StoredImage{Key: ref.Key, URL: ref.URL}, nil
}

// InsertPlace persists the place with the given image. A conflict on the same ID means an earlier
// attempt already succeeded, so the stored row is returned.
func (a *RegistrationActivities) InsertPlace(ctx context.Context, place domain.Place, image StoredImage) (domain.Place, error) {
	place.Image = image.Ref()
	err := a.Places.Create(ctx, &place)
	if errors.Is(err, domain.ErrConflict) {
		existing, gerr := a.Places.GetByID(ctx, place.ID)
		if gerr != nil {
			return domain.Place{}, fmt.Errorf("reload place %s: %w", place.ID, gerr)
		}
		return *existing, nil
	}
	if err != nil {
		return domain.Place{}, fmt.Errorf("insert place: %w", err)
	}
	metrics.PlacesRegistered.WithLabelValues("import").Inc()
	return place, nil
}

// DeleteImage removes a stored image (saga compensation / rollback).
func (a *RegistrationActivities) DeleteImage(ctx context.Context, image StoredImage) error {
	if err := a.Images.Delete(ctx, image.Ref()); err != nil {
		return fmt.Errorf("delete image %s: %w", image.Key, err)
	}
	activity.GetLogger(ctx).Info("image deleted (saga compensation)", "key", image.Key)
	return nil
}

// PublishRegistered announces the place on the event bus.
func (a *RegistrationActivities) PublishRegistered(ctx context.Context, place domain.Place) error {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher.PublishPlaceRegistered(ctx, &place)
}
