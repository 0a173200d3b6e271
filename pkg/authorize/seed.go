package authorize

import (
	"context"
	"fmt"
	"log/slog"
)

// visibility lists, per caller role, the platform roles it may contact.
// Admins bypass the policy entirely.
var visibility = map[Role][]string{
	RoleCompanyAdmin:   {"company_admin", "insurance_admin", "facility_admin", "nurse", "family_carer", "member", "admin"},
	RoleInsuranceAdmin: {"company_admin", "insurance_admin", "nurse", "member", "admin"},
	RoleFacilityAdmin:  {"company_admin", "facility_admin", "nurse", "family_carer", "member", "admin"},
	RoleNurse:          {"company_admin", "insurance_admin", "facility_admin", "nurse", "family_carer", "member", "admin"},
	RoleFamilyCarer:    {"facility_admin", "nurse", "family_carer", "member", "admin"},
	RoleMember:         {"facility_admin", "nurse", "family_carer", "admin"},
}

// DefaultPolicies returns the baseline permission rows.
func DefaultPolicies() []PermissionPolicy {
	var out []PermissionPolicy

	// Admin on the sys domain can mint dev tokens and run maintenance.
	out = append(out,
		PermissionPolicy{RoleAdmin, DomainSys, WildcardResource, WildcardAction, EffectAllow},
	)

	// Every platform role can use messaging as itself.
	for role := range KnownRoles {
		out = append(out,
			PermissionPolicy{role, DomainMessaging, ResourceConversation, ActionCreate, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceConversation, ActionRead, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceConversation, ActionList, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceMessage, ActionSend, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceMessage, ActionRead, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceReadState, ActionManage, EffectAllow},
			PermissionPolicy{role, DomainMessaging, ResourceContact, ActionList, EffectAllow},
		)
	}

	for role, targets := range visibility {
		for _, target := range targets {
			out = append(out, PermissionPolicy{role, DomainMessaging, ContactResource(target), ActionContact, EffectAllow})
		}
	}
	return out
}

// SeedDefaultPolicies sets up the baseline policies. Seeding is idempotent:
// rows that already exist are left alone.
func SeedDefaultPolicies(ctx context.Context, auth IAuthorization) error {
	logger := slog.Default()

	added := 0
	for _, p := range DefaultPolicies() {
		ok, err := auth.AddPermission(ctx, p.Subject, p.Domain, p.Object, p.Action, p.Effect)
		if err != nil {
			return fmt.Errorf("seed policy %s %s %s %s: %w", p.Subject, p.Domain, p.Object, p.Action, err)
		}
		if ok {
			added++
		}
	}

	logger.Info("authorize: policies seeded", "added", added)
	return nil
}
