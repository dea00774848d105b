package response

import (
	"stockdesk-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Reason     string      `json:"reason,omitempty"`
	IDs        []string    `json:"ids,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

const (
	statusSuccess = "success"
	statusWarning = "warning"
	statusError   = "error"
)

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusOK).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusCreated).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// Unauthorized sends 401 with the same shape as other errors (status "error", error.message).
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict, apperr.KindExhausted:
		return fiber.StatusConflict
	case apperr.KindAlreadyTerminal:
		return fiber.StatusOK
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError renders an engine error. Conflict and AlreadyTerminal go out with
// status "warning" so clients can show them as informational.
func FromError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	code := StatusFor(kind)
	if kind == apperr.KindInternal {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled engine error")
		return Error(c, "Internal Server Error", code, nil)
	}
	status := statusError
	if kind.Soft() {
		status = statusWarning
	}
	return c.Status(code).JSON(ErrorBody{
		Status: status,
		Error: ErrorDetail{
			Message:    err.Error(),
			StatusCode: code,
			Reason:     kind.String(),
			IDs:        apperr.IDsOf(err),
		},
	})
}
