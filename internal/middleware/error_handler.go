package middleware

import (
	"errors"

	"stockdesk-backend/internal/pkg/apperr"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global error handler. Engine errors keep their kind;
// everything else gets the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return response.FromError(c, err)
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return response.Error(c, message, code, nil)
}
