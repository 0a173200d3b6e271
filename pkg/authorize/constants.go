package authorize

import (
	"strings"
)

type Action string
type Resource string
type Role string
type Domain string

// ----------------------------
// Actions
// ----------------------------

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionList   Action = "list"
	ActionSend   Action = "send"

	// ActionContact is checked against contact:<role> resources.
	ActionContact Action = "contact"

	ActionManage Action = "manage"
)

const (
	WildcardAction Action = "*"
)

var KnownActions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionList: {}, ActionSend: {},
	ActionContact: {}, ActionManage: {},
}

// ----------------------------
// Resources
// ----------------------------

const (
	WildcardResource Resource = "*"

	ResourceConversation Resource = "conversation"
	ResourceMessage      Resource = "message"
	ResourceReadState    Resource = "read_state"
	ResourceContact      Resource = "contact"
	ResourceToken        Resource = "token"
	ResourceSystem       Resource = "system"
)

// ResourcePrefixContact scopes visibility rules by the target's platform
// role, e.g. contact:nurse.
const ResourcePrefixContact = "contact:"

var KnownResources = map[Resource]struct{}{
	ResourceConversation: {}, ResourceMessage: {}, ResourceReadState: {},
	ResourceContact: {}, ResourceToken: {}, ResourceSystem: {},
}

// ContactResource is the visibility resource for users holding platform role
// target.
func ContactResource(target string) Resource {
	return Resource(ResourcePrefixContact + target)
}

func isKnownResource(r Resource) bool {
	if _, ok := KnownResources[r]; ok || r == WildcardResource {
		return true
	}
	target, ok := strings.CutPrefix(string(r), ResourcePrefixContact)
	if !ok {
		return false
	}
	_, known := PlatformRoles[target]
	return known
}

// ----------------------------
// Roles
// ----------------------------
//
// Policy subjects are platform role tags prefixed with "role:". Tokens carry
// the bare tags; RoleFor maps them.

const (
	RolePrefix = "role:"

	WildcardRole Role = "*"

	RoleAdmin          Role = RolePrefix + "admin"
	RoleNurse          Role = RolePrefix + "nurse"
	RoleMember         Role = RolePrefix + "member"
	RoleFamilyCarer    Role = RolePrefix + "family_carer"
	RoleFacilityAdmin  Role = RolePrefix + "facility_admin"
	RoleCompanyAdmin   Role = RolePrefix + "company_admin"
	RoleInsuranceAdmin Role = RolePrefix + "insurance_admin"
)

var KnownRoles = map[Role]struct{}{
	RoleAdmin:          {},
	RoleNurse:          {},
	RoleMember:         {},
	RoleFamilyCarer:    {},
	RoleFacilityAdmin:  {},
	RoleCompanyAdmin:   {},
	RoleInsuranceAdmin: {},
}

// PlatformRoles is the set of bare role tags issued by the identity
// collaborator.
var PlatformRoles = func() map[string]struct{} {
	out := make(map[string]struct{}, len(KnownRoles))
	for r := range KnownRoles {
		out[r.Platform()] = struct{}{}
	}
	return out
}()

// RoleFor maps a platform role tag to its policy subject.
func RoleFor(platform string) Role {
	return Role(RolePrefix + platform)
}

// Platform strips the subject prefix.
func (r Role) Platform() string {
	return strings.TrimPrefix(string(r), RolePrefix)
}

// RolesFor maps platform tags to policy subjects, dropping unknown tags.
func RolesFor(platform []string) []Role {
	out := make([]Role, 0, len(platform))
	for _, p := range platform {
		r := RoleFor(p)
		if _, ok := KnownRoles[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ----------------------------
// Domains
// ----------------------------

const (
	DomainSys       Domain = "sys"
	DomainMessaging Domain = "messaging"
)

const (
	WildcardDomain Domain = "*"
)

// IsValidDomain checks whether d is a recognised domain string.
func IsValidDomain(d Domain) bool {
	switch d {
	case DomainSys, DomainMessaging, WildcardDomain:
		return true
	default:
		return false
	}
}

// ----------------------------
// Casbin tuple helpers
// ----------------------------

type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// Grouping rows: g, role, parent role, domain
type GroupingPolicy struct {
	Role   Role
	Parent Role
	Domain Domain
}

// Permission rows: p, role, domain, resource, action, eft
type PermissionPolicy struct {
	Subject Role
	Domain  Domain
	Object  Resource
	Action  Action
	Effect  PolicyEffect
}
