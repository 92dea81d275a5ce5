package postgres

import (
	"context"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt)
	return translate(err)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r *UserRepo) SetRole(ctx context.Context, username string, role domain.Role) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET role = $2 WHERE username = $1`, username, string(role))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
