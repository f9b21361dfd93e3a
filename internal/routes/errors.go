package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandler renders every error as {"error": <status text>, "message": <detail>}.
// Errors that are not *fiber.Error become 500s.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		message := err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}

		return c.Status(code).JSON(errorBody{Error: http.StatusText(code), Message: message})
	}
}

// NotFound answers any route nothing else matched.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(http.StatusNotFound, "Route "+c.OriginalURL()+" not found")
}
