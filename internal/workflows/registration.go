package workflows

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/usecases"
)

// ErrTypeInvalidPlace marks registration inputs that can never succeed.
const ErrTypeInvalidPlace = "InvalidPlace"

// RegistrationInput is the input for the place registration workflow.
// ImageSource is a path readable by the worker.
type RegistrationInput struct {
	Name        string
	Description string
	Lat         float64
	Lng         float64
	ImageSource string
}

// StoredImage carries an image reference between activities. domain.ImageRef
// hides its key from JSON, which is how payloads are encoded.
type StoredImage struct {
	Key string
	URL string
}

func (s StoredImage) Ref() domain.ImageRef { return domain.ImageRef{Key: s.Key, URL: s.URL} }

// NewPlace converts the input into the use case form used for validation.
func (in RegistrationInput) NewPlace() usecases.NewPlace {
	return usecases.NewPlace{Name: in.Name, Description: in.Description, Lat: in.Lat, Lng: in.Lng}
}

// PlaceRegistrationWorkflow stores the image, inserts the place and announces
// it. If the insert fails the stored image is deleted (saga compensation).
func PlaceRegistrationWorkflow(ctx workflow.Context, input RegistrationInput) (*domain.Place, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting place registration", "name", input.Name)

	if err := input.NewPlace().Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidPlace, err)
	}
	if err := usecases.ValidateImageName(input.ImageSource); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidPlace, err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidPlace},
		},
	})

	// Step 1: Store the image
	var image StoredImage
	if err := workflow.ExecuteActivity(ctx, "StoreImage", input.ImageSource).Get(ctx, &image); err != nil {
		return nil, err
	}

	// The ID is recorded once so activity retries insert the same row.
	var id string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return uuid.NewString()
	}).Get(&id); err != nil {
		return nil, err
	}

	place := domain.Place{
		ID:          id,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Location:    domain.Coordinate{Lat: input.Lat, Lng: input.Lng},
		Image:       image.Ref(),
		CreatedAt:   workflow.Now(ctx).UTC(),
	}

	// Step 2: Insert the place
	var stored domain.Place
	if err := workflow.ExecuteActivity(ctx, "InsertPlace", place, image).Get(ctx, &stored); err != nil {
		logger.Warn("insert failed, compensating", "error", err)
		// Compensate: delete the image
		if derr := workflow.ExecuteActivity(ctx, "DeleteImage", image).Get(ctx, nil); derr != nil {
			logger.Error("image compensation failed", "key", image.Key, "error", derr)
		}
		return nil, err
	}

	// Step 3: Announce, best-effort
	if err := workflow.ExecuteActivity(ctx, "PublishRegistered", stored).Get(ctx, nil); err != nil {
		logger.Warn("publish failed", "place_id", stored.ID, "error", err)
	}

	logger.Info("Place registered", "place_id", stored.ID)
	return &stored, nil
}
