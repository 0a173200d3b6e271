package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

func ok(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"data": data})
}

func created(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

// fail writes the error envelope. The request id lets a client report a
// failure that can be found in the logs.
func fail(c fiber.Ctx, status int, msg string) error {
	body := fiber.Map{"error": msg}
	if rid := reqctx.RequestIDFromContext(c.Context()); rid != "" {
		body["request_id"] = rid
	}
	return c.Status(status).JSON(body)
}

func badRequest(c fiber.Ctx, msg string) error { return fail(c, fiber.StatusBadRequest, msg) }

func unauthorized(c fiber.Ctx) error { return fail(c, fiber.StatusUnauthorized, "unauthorized") }

func forbidden(c fiber.Ctx) error { return fail(c, fiber.StatusForbidden, "forbidden") }

func notFound(c fiber.Ctx, msg string) error { return fail(c, fiber.StatusNotFound, msg) }

func serviceUnavailable(c fiber.Ctx, msg string) error {
	return fail(c, fiber.StatusServiceUnavailable, msg)
}

func internalError(c fiber.Ctx) error {
	return fail(c, fiber.StatusInternalServerError, "internal server error")
}
