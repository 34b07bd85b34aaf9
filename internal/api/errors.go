package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const problemContentType = "application/problem+json"

func problem(c fiber.Ctx, status int, typ, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(typ).
		WithDetail(detail)

	return c.Status(status).JSON(p, problemContentType)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", "missing user identity")
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	logx.Ctx(c.Context()).Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return problem(c, fiber.StatusInternalServerError, "internal_error", errx.UserMessage(errx.KindOf(err)))
}

// handleServiceError maps AppError statuses to problem documents.
func handleServiceError(c fiber.Ctx, err error, what string) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		switch appErr.Status {
		case http.StatusNotFound:
			return notFound(c, what+" not found")
		case http.StatusBadRequest:
			return badRequest(c, appErr.Message)
		}
	}
	return internalError(c, err)
}

// validationDetail flattens validator errors into one line.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}

// errorHandler renders errors that escape handlers, fiber's own included.
func errorHandler(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return problem(c, fe.Code, "http_error", fe.Message)
	}
	return internalError(c, err)
}
