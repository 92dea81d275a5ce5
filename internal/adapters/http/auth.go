package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/usecases"
)

const principalKey = "principal"

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterHandler creates a member account.
func RegisterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var creds usecases.Credentials
		if err := c.BodyParser(&creds); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		tok, err := deps.Auth.Register(c.UserContext(), creds)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(TokenResponse{AccessToken: tok, TokenType: "Bearer"})
	}
}

// LoginHandler exchanges credentials for an access token.
func LoginHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var creds usecases.Credentials
		if err := c.BodyParser(&creds); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if creds.Username == "" || creds.Password == "" {
			return errBadRequest(c, "username and password are required")
		}
		tok, err := deps.Auth.Login(c.UserContext(), creds)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(TokenResponse{AccessToken: tok, TokenType: "Bearer"})
	}
}

// RequireAuth resolves the bearer token into a principal stored in Locals.
// Requests without a valid token are rejected with 401.
func RequireAuth(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(fiber.HeaderAuthorization)
		scheme, tok, ok := strings.Cut(raw, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return errUnauthorized(c, "missing bearer token")
		}
		p, err := deps.Auth.Authenticate(c.UserContext(), tok)
		if err != nil {
			return writeError(c, err)
		}
		c.Locals(principalKey, p)
		return c.Next()
	}
}

// RequireCapability rejects principals lacking capability with 403.
// It must run after RequireAuth.
func RequireCapability(deps *Dependencies, capability domain.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := principalFrom(c)
		if d := deps.Auth.Authorize(p, capability); !d.Allowed {
			return errForbidden(c, d.Reason)
		}
		return c.Next()
	}
}

func principalFrom(c *fiber.Ctx) domain.Principal {
	p, _ := c.Locals(principalKey).(domain.Principal)
	return p
}
