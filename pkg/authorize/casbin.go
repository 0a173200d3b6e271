package authorize

import (
	"context"
	"errors"
	"fmt"

	casbin "github.com/casbin/casbin/v2"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidArgs = errors.New("invalid authorization arguments")
)

// IAuthorization is the only thing services/middleware should depend on.
type IAuthorization interface {
	// Enforce answers: "may any of roles act on object inside domain?"
	Enforce(ctx context.Context, roles []Role, domain Domain, object Resource, action Action) (bool, error)

	// MustEnforce is convenience for services: return ErrForbidden if not allowed.
	MustEnforce(ctx context.Context, roles []Role, domain Domain, object Resource, action Action) error

	// Role inheritance (grouping policies): g, role, parent, domain
	AddRoleInheritance(ctx context.Context, role, parent Role, domain Domain) (bool, error)

	// Permission management (policies): p, role, domain, object, action, eft
	AddPermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error)
	RemovePermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error)

	Raw() *casbin.DistributedEnforcer
}

// Authorization is a thin typed wrapper around casbin.Enforcer.
type Authorization struct {
	enforcer       *casbin.DistributedEnforcer
	superAdminRole Role
}

type Option func(*Authorization)

// WithoutSuperadminBypass makes admins go through the policy like everyone
// else.
func WithoutSuperadminBypass() Option {
	return func(a *Authorization) { a.superAdminRole = "" }
}

// NewAuthorization wraps an already-configured Enforcer and loads its
// policies when it has an adapter.
func NewAuthorization(e *casbin.DistributedEnforcer, opts ...Option) (IAuthorization, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: enforcer is nil", ErrInvalidArgs)
	}

	if e.GetAdapter() != nil {
		if err := e.LoadPolicy(); err != nil {
			return nil, err
		}
	}

	a := &Authorization{
		enforcer:       e,
		superAdminRole: RoleAdmin,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewMemoryAuthorization builds an authorization backed by an in-memory
// enforcer seeded with the default policies.
func NewMemoryAuthorization(ctx context.Context, modelPath string, opts ...Option) (IAuthorization, error) {
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewDistributedEnforcer(m)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthorization(e, opts...)
	if err != nil {
		return nil, err
	}
	if err := SeedDefaultPolicies(ctx, auth); err != nil {
		return nil, err
	}
	return auth, nil
}

func (a *Authorization) Raw() *casbin.DistributedEnforcer { return a.enforcer }

func (a *Authorization) Enforce(ctx context.Context, roles []Role, domain Domain, object Resource, action Action) (bool, error) {
	_ = ctx // reserved for tracing/logging later

	if domain == "" || !IsValidDomain(domain) {
		return false, fmt.Errorf("%w: invalid domain: %q", ErrInvalidArgs, domain)
	}
	if object == "" {
		return false, fmt.Errorf("%w: object is empty", ErrInvalidArgs)
	}
	if action == "" {
		return false, fmt.Errorf("%w: action is empty", ErrInvalidArgs)
	}
	if !isKnownResource(object) {
		return false, fmt.Errorf("%w: unknown resource: %q", ErrInvalidArgs, object)
	}
	if _, ok := KnownActions[action]; !ok && action != WildcardAction {
		return false, fmt.Errorf("%w: unknown action: %q", ErrInvalidArgs, action)
	}

	for _, role := range roles {
		if a.superAdminRole != "" && role == a.superAdminRole {
			return true, nil
		}
	}

	for _, role := range roles {
		if role == "" {
			continue
		}
		allowed, err := a.enforcer.Enforce(string(role), string(domain), string(object), string(action))
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

func (a *Authorization) MustEnforce(ctx context.Context, roles []Role, domain Domain, object Resource, action Action) error {
	ok, err := a.Enforce(ctx, roles, domain, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// ---- Grouping (role inheritance) ----

func (a *Authorization) AddRoleInheritance(ctx context.Context, role, parent Role, domain Domain) (bool, error) {
	_ = ctx
	if role == "" || parent == "" {
		return false, fmt.Errorf("%w: empty role/parent", ErrInvalidArgs)
	}
	for _, r := range []Role{role, parent} {
		if _, ok := KnownRoles[r]; !ok {
			return false, fmt.Errorf("%w: unknown role: %q", ErrInvalidArgs, r)
		}
	}
	if domain == "" || !IsValidDomain(domain) {
		return false, fmt.Errorf("%w: invalid domain: %q", ErrInvalidArgs, domain)
	}
	return a.enforcer.AddGroupingPolicy(string(role), string(parent), string(domain))
}

// ---- Permissions (p rules) ----

func (a *Authorization) AddPermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	_ = ctx
	if role == "" || domain == "" || object == "" || action == "" || effect == "" {
		return false, fmt.Errorf("%w: empty permission fields", ErrInvalidArgs)
	}
	if _, ok := KnownRoles[role]; !ok && role != WildcardRole {
		return false, fmt.Errorf("%w: unknown role: %q", ErrInvalidArgs, role)
	}
	if !IsValidDomain(domain) {
		return false, fmt.Errorf("%w: invalid domain: %q", ErrInvalidArgs, domain)
	}
	if !isKnownResource(object) {
		return false, fmt.Errorf("%w: unknown resource: %q", ErrInvalidArgs, object)
	}
	if _, ok := KnownActions[action]; !ok && action != WildcardAction {
		return false, fmt.Errorf("%w: unknown action: %q", ErrInvalidArgs, action)
	}
	if effect != EffectAllow && effect != EffectDeny {
		return false, fmt.Errorf("%w: invalid effect: %q", ErrInvalidArgs, effect)
	}

	// p, sub(role), dom, obj, act, eft
	return a.enforcer.AddPolicy(string(role), string(domain), string(object), string(action), string(effect))
}

func (a *Authorization) RemovePermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	_ = ctx
	if role == "" || domain == "" || object == "" || action == "" || effect == "" {
		return false, fmt.Errorf("%w: empty permission fields", ErrInvalidArgs)
	}
	if !IsValidDomain(domain) {
		return false, fmt.Errorf("%w: invalid domain: %q", ErrInvalidArgs, domain)
	}
	return a.enforcer.RemovePolicy(string(role), string(domain), string(object), string(action), string(effect))
}
