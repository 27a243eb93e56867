package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation:             fiber.StatusBadRequest,
	services.KindStateConflict:          fiber.StatusConflict,
	services.KindNotFound:               fiber.StatusNotFound,
	services.KindExternalSubmission:     fiber.StatusBadGateway,
	services.KindReconciliationConflict: fiber.StatusInternalServerError,
	services.KindResolution:             fiber.StatusConflict,
	services.KindBusinessRule:           fiber.StatusUnprocessableEntity,
}

func writeError(c *fiber.Ctx, err error) error {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return c.Status(statusByKind[svcErr.Kind]).JSON(ErrorResponse{
			Error:   string(svcErr.Kind),
			Code:    svcErr.Code,
			Message: err.Error(),
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error:   "http",
			Code:    "HTTP_ERROR",
			Message: fiberErr.Message,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "internal",
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   string(services.KindValidation),
		Code:    services.ErrValidation.Code,
		Message: message,
	})
}
