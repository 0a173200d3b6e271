package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/carelink/internal/api/http/handler"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

func (r *Router) registerConversationRoutes(
	api fiber.Router,
	ch *handler.ConversationHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	convs := api.Group("/conversations", authRequired)

	convs.Get("/", requirePerm(authorize.ResourceConversation, authorize.ActionList), ch.List)
	convs.Post("/", requirePerm(authorize.ResourceConversation, authorize.ActionCreate), ch.Create)

	c := convs.Group("/:id")
	c.Get("/", requirePerm(authorize.ResourceConversation, authorize.ActionRead), ch.Get)
	c.Get("/messages", requirePerm(authorize.ResourceMessage, authorize.ActionRead), ch.ListMessages)
	c.Post("/messages", requirePerm(authorize.ResourceMessage, authorize.ActionSend), ch.SendMessage)
	c.Post("/read", requirePerm(authorize.ResourceReadState, authorize.ActionManage), ch.MarkRead)
	c.Get("/stream", requirePerm(authorize.ResourceMessage, authorize.ActionRead), ch.Stream)
}
