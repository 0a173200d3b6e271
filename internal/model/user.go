package model

import (
	"slices"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleNurse          Role = "nurse"
	RoleMember         Role = "member"
	RoleFamilyCarer    Role = "family_carer"
	RoleFacilityAdmin  Role = "facility_admin"
	RoleCompanyAdmin   Role = "company_admin"
	RoleInsuranceAdmin Role = "insurance_admin"
)

// rolePriority decides which role is shown as a user's primary role when
// they hold several.
var rolePriority = []Role{
	RoleAdmin,
	RoleCompanyAdmin,
	RoleInsuranceAdmin,
	RoleFacilityAdmin,
	RoleNurse,
	RoleFamilyCarer,
	RoleMember,
}

// KnownRoles is the set of role tags the platform issues.
var KnownRoles = map[Role]struct{}{
	RoleAdmin: {}, RoleNurse: {}, RoleMember: {}, RoleFamilyCarer: {},
	RoleFacilityAdmin: {}, RoleCompanyAdmin: {}, RoleInsuranceAdmin: {},
}

func (r Role) Valid() bool {
	_, ok := KnownRoles[r]
	return ok
}

// Profile is the display snapshot owned by the identity collaborator.
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Email       string    `json:"-"`
}

// User is a platform participant as seen by messaging.
type User struct {
	ID      uuid.UUID `json:"id"`
	Profile Profile   `json:"profile"`
	Roles   []Role    `json:"roles"`
}

// PrimaryRole returns the highest-priority role the user holds, or "" when
// the user has none.
func PrimaryRole(roles []Role) Role {
	for _, r := range rolePriority {
		if slices.Contains(roles, r) {
			return r
		}
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return ""
}

// HasAnyRole reports whether roles intersects allowed.
func HasAnyRole(roles []Role, allowed map[Role]struct{}) bool {
	for _, r := range roles {
		if _, ok := allowed[r]; ok {
			return true
		}
	}
	return false
}

// RolePriority ranks r for ordering; lower sorts first and unknown roles
// sort last.
func RolePriority(r Role) int {
	if i := slices.Index(rolePriority, r); i >= 0 {
		return i
	}
	return len(rolePriority)
}

// Caller is the authenticated user an operation acts as.
type Caller struct {
	UserID uuid.UUID
	Roles  []Role
}

// RoleTags returns the caller's roles as bare strings.
func (c Caller) RoleTags() []string {
	out := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		out[i] = string(r)
	}
	return out
}

// RoleTags converts roles to bare strings.
func RoleTags(roles []Role) []string {
	return Caller{Roles: roles}.RoleTags()
}
