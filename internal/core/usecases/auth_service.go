package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/ports"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
	"github.com/samirrijal/placefinder/internal/pkg/validation"
)

// Credentials is the body of register and login requests.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AuthService registers users, issues tokens and answers authorization checks.
type AuthService struct {
	users  ports.UserRepository
	tokens ports.TokenIssuer
}

// NewAuthService creates a new AuthService.
func NewAuthService(users ports.UserRepository, tokens ports.TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register creates a member account and returns an access token for it.
func (s *AuthService) Register(ctx context.Context, creds Credentials) (string, error) {
	if err := validation.Struct(creds); err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     creds.Username,
		PasswordHash: string(hash),
		Role:         domain.RoleMember,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.AuthAttempts.WithLabelValues("register", "conflict").Inc()
			return "", fmt.Errorf("username %q: %w", creds.Username, domain.ErrConflict)
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("register", "ok").Inc()
	logging.FromContext(ctx).Info("user registered", "username", user.Username)
	return s.tokens.Issue(user.Username)
}

// Login verifies the password and returns a fresh access token.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (string, error) {
	user, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.AuthAttempts.WithLabelValues("login", "denied").Inc()
			return "", domain.ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "denied").Inc()
		return "", domain.ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("login", "ok").Inc()
	return s.tokens.Issue(user.Username)
}

// Authenticate resolves a bearer token to the current state of its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	username, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
		}
		return domain.Principal{}, fmt.Errorf("load user: %w", err)
	}
	return domain.Principal{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Authorize reports whether principal holds capability.
func (s *AuthService) Authorize(principal domain.Principal, capability domain.Capability) domain.Decision {
	return principal.Allows(capability)
}

// EnsureAdmin creates username as an admin, or promotes an existing account.
// The password of an existing account is left untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	existing, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Role == domain.RoleAdmin {
			return nil
		}
		if err := s.users.SetRole(ctx, username, domain.RoleAdmin); err != nil {
			return fmt.Errorf("promote %s: %w", username, err)
		}
		logging.FromContext(ctx).Info("user promoted to admin", "username", username)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("load user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logging.FromContext(ctx).Info("bootstrap admin created", "username", username)
	return nil
}
