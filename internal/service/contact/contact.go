// Package contact lists the people the current user may start a
// conversation with.
package contact

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type ListRequest struct {
	// AllowedRoles narrows the result further; empty keeps every role the
	// caller may reach.
	AllowedRoles []model.Role
	ContextType  string
	ContextID    *uuid.UUID
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	List(ctx context.Context, caller model.Caller, req ListRequest) ([]contact.Contact, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type contactService struct {
	dir  directory.Directory
	auth authorize.IAuthorization
}

func New(dir directory.Directory, auth authorize.IAuthorization) Service {
	return &contactService{dir: dir, auth: auth}
}

func (s *contactService) List(ctx context.Context, caller model.Caller, req ListRequest) ([]contact.Contact, error) {
	if caller.UserID == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}
	for _, r := range req.AllowedRoles {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", model.ErrInvalidArguments, r)
		}
	}

	var scope *model.ConversationContext
	if req.ContextType != "" || req.ContextID != nil {
		if req.ContextType == "" || req.ContextID == nil {
			return nil, fmt.Errorf("%w: context type and id must be given together", model.ErrInvalidArguments)
		}
		scope = &model.ConversationContext{Type: req.ContextType, ID: *req.ContextID}
	}

	roles := authorize.RolesFor(caller.RoleTags())
	if err := s.auth.MustEnforce(ctx, roles, authorize.DomainMessaging, authorize.ResourceContact, authorize.ActionList); err != nil {
		if errors.Is(err, authorize.ErrForbidden) {
			return nil, fmt.Errorf("%w: may not list contacts", model.ErrUnauthorized)
		}
		return nil, fmt.Errorf("authorize contact list: %w", err)
	}

	reachable, err := authorize.ContactableRoles(ctx, s.auth, caller.RoleTags())
	if err != nil {
		return nil, fmt.Errorf("contactable roles: %w", err)
	}
	// AnyOf treats an empty list as everyone.
	if len(reachable) == 0 {
		return []contact.Contact{}, nil
	}
	visible := make([]model.Role, len(reachable))
	for i, r := range reachable {
		visible[i] = model.Role(r)
	}

	g, err := s.dir.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrResolverUnavailable, err)
	}

	return contact.Resolve(g, contact.Query{
		Caller:  caller.UserID,
		Filter:  contact.All(contact.AnyOf(visible...), contact.AnyOf(req.AllowedRoles...)),
		Context: scope,
	}), nil
}
