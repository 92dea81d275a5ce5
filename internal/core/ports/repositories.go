package ports

import (
	"context"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

// PlaceRepository persists places.
type PlaceRepository interface {
	Create(ctx context.Context, place *domain.Place) error
	GetByID(ctx context.Context, id string) (*domain.Place, error)
	// ListAll returns every registered place ordered by creation time.
	ListAll(ctx context.Context) ([]domain.Place, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetRole(ctx context.Context, username string, role domain.Role) error
}
