package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

// retryAfterSeconds is advertised with 503 responses.
const retryAfterSeconds = "1"

func mapConversationError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidArguments):
		return badRequest(c, err.Error())
	case errors.Is(err, model.ErrUnauthenticated):
		return unauthorized(c)
	case errors.Is(err, model.ErrUnauthorized):
		return forbidden(c)
	case errors.Is(err, model.ErrNotFound):
		return notFound(c, model.ErrNotFound.Error())
	case errors.Is(err, model.ErrStoreUnavailable):
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
		return serviceUnavailable(c, model.ErrStoreUnavailable.Error())
	case errors.Is(err, model.ErrResolverUnavailable):
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
		return serviceUnavailable(c, model.ErrResolverUnavailable.Error())
	default:
		attrs := append(reqctx.LogAttrs(c.Context()), "path", c.Path(), "error", err)
		slog.ErrorContext(c.Context(), "unhandled messaging error", attrs...)
		return internalError(c)
	}
}
