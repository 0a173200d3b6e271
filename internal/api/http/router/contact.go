package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/carelink/internal/api/http/handler"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

func (r *Router) registerContactRoutes(
	api fiber.Router,
	ch *handler.ContactHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	api.Get("/contacts", authRequired, requirePerm(authorize.ResourceContact, authorize.ActionList), ch.List)
}
