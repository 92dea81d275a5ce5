package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, invalid_coordinate, not_found, data_unavailable, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errInvalidCoordinate(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "invalid_coordinate", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "data_unavailable", msg)
}

func errUnauthorized(c *fiber.Ctx, msg string) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="placefinder"`)
	return newError(c, fiber.StatusUnauthorized, "unauthorized", msg)
}

func errForbidden(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusForbidden, "forbidden", msg)
}

func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// writeError maps a use case error onto its HTTP response. Unknown errors are
// logged and reported as a generic 500 without leaking their text.
func writeError(c *fiber.Ctx, err error) error {
	var coordErr *domain.CoordinateError
	switch {
	case errors.As(err, &coordErr):
		return errInvalidCoordinate(c, coordErr.Error())
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return errInvalidCoordinate(c, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNoPlaceNearby):
		return errNotFound(c, "no place found nearby")
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "resource not found")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errUnauthorized(c, "invalid username or password")
	case errors.Is(err, domain.ErrUnauthorized):
		return errUnauthorized(c, "missing or invalid token")
	case errors.Is(err, domain.ErrForbidden):
		return errForbidden(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrDataUnavailable):
		logging.FromContext(c.UserContext()).Error("place store unavailable", slog.Any("error", err))
		return errUnavailable(c, "place data is temporarily unavailable")
	default:
		logging.FromContext(c.UserContext()).Error("unhandled error", slog.Any("error", err))
		return errInternal(c, "internal server error")
	}
}
