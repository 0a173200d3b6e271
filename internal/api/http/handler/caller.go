package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

// callerFrom builds the acting user from the claims AuthRequired put on the
// request context.
func callerFrom(c fiber.Ctx) (model.Caller, bool) {
	userID, ok := reqctx.UserIDFromContext(c.Context())
	if !ok {
		return model.Caller{}, false
	}
	tags := reqctx.RolesFromContext(c.Context())
	roles := make([]model.Role, 0, len(tags))
	for _, t := range tags {
		if r := model.Role(t); r.Valid() {
			roles = append(roles, r)
		}
	}
	return model.Caller{UserID: userID, Roles: roles}, true
}

func conversationID(c fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}
