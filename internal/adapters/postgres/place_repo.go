package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

const placeColumns = `id, name, description, lat, lng, image_key, image_url, created_at`

// PlaceRepo implements ports.PlaceRepository with pgx.
type PlaceRepo struct {
	db *DB
}

// NewPlaceRepo creates a new PlaceRepo.
func NewPlaceRepo(db *DB) *PlaceRepo {
	return &PlaceRepo{db: db}
}

// Create inserts a place. The ID and CreatedAt set by the caller are kept.
func (r *PlaceRepo) Create(ctx context.Context, p *domain.Place) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO places (id, name, description, lat, lng, image_key, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.Description, p.Location.Lat, p.Location.Lng,
		p.Image.Key, p.Image.URL, p.CreatedAt)
	return translate(err)
}

// GetByID returns a place by UUID.
func (r *PlaceRepo) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+placeColumns+` FROM places WHERE id = $1`, id)
	p, err := scanPlace(row)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// ListAll returns every place, oldest first.
func (r *PlaceRepo) ListAll(ctx context.Context) ([]domain.Place, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+placeColumns+` FROM places ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	places := make([]domain.Place, 0)
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		places = append(places, *p)
	}
	return places, rows.Err()
}

func scanPlace(row pgx.Row) (*domain.Place, error) {
	var p domain.Place
	err := row.Scan(
		&p.ID, &p.Name, &p.Description,
		&p.Location.Lat, &p.Location.Lng,
		&p.Image.Key, &p.Image.URL, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
