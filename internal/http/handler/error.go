package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"dropstack/internal/http/middleware"
	"dropstack/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError maps a coordinator error onto a status and code.
// NotFound and Conflict stay distinct so clients can tell "gone" from "stale".
// Validation messages are safe to echo; everything else is replaced by a fixed message
// and the cause is handed to the access log.
func writeServiceError(c *fiber.Ctx, err error) error {
	kind := service.KindOf(err)
	if kind != service.KindValidation {
		c.Locals(middleware.ErrorLocalKey, err.Error())
	}

	switch kind {
	case service.KindNotFound:
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case service.KindConflict:
		return writeError(c, fiber.StatusConflict, "CONFLICT", "document version conflict, reload and retry")
	case service.KindValidation:
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
	case service.KindUploadFailure, service.KindDeletionFailure, service.KindStorage:
		return writeError(c, fiber.StatusBadGateway, "STORAGE_ERROR", "object storage unavailable")
	case service.KindPersistenceFailure:
		return writeError(c, fiber.StatusInternalServerError, "PERSISTENCE_ERROR", "could not persist document metadata")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// validationMessage strips the sentinel prefix and returns the field errors.
func validationMessage(err error) string {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range u.Unwrap() {
			if !errors.Is(e, service.ErrValidation) {
				return e.Error()
			}
		}
	}
	return "invalid request"
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			c.Locals(middleware.ErrorLocalKey, err.Error())
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", "missing or invalid bearer token")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
