package handler

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/service/contact"
)

type ContactHandler struct {
	svc contact.Service
}

func NewContactHandler(svc contact.Service) *ContactHandler {
	return &ContactHandler{svc: svc}
}

// GET /contacts?roles=nurse,member&context_type=care_recipient&context_id=<uuid>
func (h *ContactHandler) List(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}

	var req contact.ListRequest
	if raw := c.Query("roles"); raw != "" {
		for _, r := range strings.Split(raw, ",") {
			if r = strings.TrimSpace(r); r != "" {
				req.AllowedRoles = append(req.AllowedRoles, model.Role(r))
			}
		}
	}
	req.ContextType = c.Query("context_type")
	if raw := c.Query("context_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "invalid context_id")
		}
		req.ContextID = &id
	}

	contacts, err := h.svc.List(c.Context(), caller, req)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, contacts)
}
