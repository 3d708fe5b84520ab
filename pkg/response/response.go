// Package response provides the standard API response envelope.
package response

import (
	"errors"

	"calsync_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// Response is the standard API response structure.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK returns a successful response.
func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

// Created returns a 201 created response.
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

// CreatedWithWarning returns 201 with a non-fatal warning, used when the
// local write succeeded but the remote export did not.
func CreatedWithWarning(c *fiber.Ctx, data interface{}, warning string) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data, Warning: warning})
}

// OKWithWarning returns 200 with a non-fatal warning.
func OKWithWarning(c *fiber.Ctx, data interface{}, warning string) error {
	return c.JSON(Response{Success: true, Data: data, Warning: warning})
}

// NoContent returns a 204 no content response.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Error returns an error response.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

// FromError maps an application error onto the response envelope.
func FromError(c *fiber.Ctx, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return Error(c, appErr.HTTPStatus(), appErr.Code, appErr.Message)
	}
	return Error(c, fiber.StatusInternalServerError, apperr.CodeInternalError, "internal error")
}
