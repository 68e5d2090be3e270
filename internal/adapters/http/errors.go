package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, conflict, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID := RequestIDFromCtx(c.UserContext())
	if reqID == "" {
		reqID, _ = c.Locals("requestid").(string)
	}
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errUnprocessable returns a 422 error; used for upstream domain
// rejections whose message is shown to the user.
func errUnprocessable(c *fiber.Ctx, msg string) error {
	return newError(c, 422, "unprocessable", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// mapDomainError translates a usecase failure into the right response.
func mapDomainError(c *fiber.Ctx, err error) error {
	var remote *domain.RemoteError
	var invalid validator.ValidationErrors

	switch {
	case errors.Is(err, usecases.ErrSessionNotFound):
		return errNotFound(c, "session not found")
	case errors.Is(err, usecases.ErrPointNotFound):
		return errNotFound(c, "draft point not found")
	case errors.Is(err, usecases.ErrNoCandidateSet),
		errors.Is(err, usecases.ErrCandidateNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, usecases.ErrDraftConflict):
		return errConflict(c, err.Error())
	case errors.Is(err, usecases.ErrSuperseded):
		return errConflict(c, "superseded by a newer click")
	case errors.Is(err, usecases.ErrTooFewPoints),
		errors.Is(err, usecases.ErrNoCRS):
		return errBadRequest(c, err.Error())
	case errors.As(err, &invalid):
		return errBadRequest(c, invalid.Error())
	case errors.As(err, &remote):
		return errUnprocessable(c, remote.Message)
	default:
		return errInternal(c, err.Error())
	}
}
