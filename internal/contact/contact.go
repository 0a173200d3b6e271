// Package contact computes who a user may start a conversation with. It is
// a pure projection over a relationship graph snapshot and never touches a
// store.
package contact

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

// ContextCareRecipient narrows contacts to one member's care team.
const ContextCareRecipient = "care_recipient"

// Graph is a read-only snapshot of users and their care relationships.
type Graph struct {
	Users []model.User

	// NurseMembers maps a nurse to the members assigned to them.
	NurseMembers map[uuid.UUID][]uuid.UUID
	// CarerMembers maps a family carer to the members they are linked to.
	CarerMembers map[uuid.UUID][]uuid.UUID
	// FacilityMembers maps a facility admin to the members of their
	// facility.
	FacilityMembers map[uuid.UUID][]uuid.UUID
}

type Contact struct {
	ID          uuid.UUID    `json:"id"`
	DisplayName string       `json:"display_name"`
	AvatarURL   string       `json:"avatar_url,omitempty"`
	PrimaryRole model.Role   `json:"primary_role"`
	Roles       []model.Role `json:"roles"`
	Annotation  string       `json:"annotation,omitempty"`
}

// RoleFilter decides whether a user holding roles is a candidate. A nil
// filter keeps everyone.
type RoleFilter func(roles []model.Role) bool

// AnyOf keeps users holding at least one of allowed. An empty list keeps
// everyone.
func AnyOf(allowed ...model.Role) RoleFilter {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[model.Role]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(roles []model.Role) bool {
		return model.HasAnyRole(roles, set)
	}
}

// All keeps users accepted by every non-nil filter.
func All(filters ...RoleFilter) RoleFilter {
	var fs []RoleFilter
	for _, f := range filters {
		if f != nil {
			fs = append(fs, f)
		}
	}
	if len(fs) == 0 {
		return nil
	}
	return func(roles []model.Role) bool {
		for _, f := range fs {
			if !f(roles) {
				return false
			}
		}
		return true
	}
}

type Query struct {
	Caller  uuid.UUID
	Filter  RoleFilter
	Context *model.ConversationContext
}

// Resolve lists every other user matching q, annotated with a short
// relationship hint. Contacts are ordered by primary role, then name.
func Resolve(g *Graph, q Query) []Contact {
	if g == nil {
		return []Contact{}
	}

	var scope map[uuid.UUID]struct{}
	if q.Context != nil {
		scope = g.careTeam(*q.Context)
	}

	idx := g.index()
	out := []Contact{}
	for _, u := range g.Users {
		if u.ID == q.Caller {
			continue
		}
		if scope != nil {
			if _, ok := scope[u.ID]; !ok {
				continue
			}
		}
		if q.Filter != nil && !q.Filter(u.Roles) {
			continue
		}
		primary := model.PrimaryRole(u.Roles)
		out = append(out, Contact{
			ID:          u.ID,
			DisplayName: u.Profile.DisplayName,
			AvatarURL:   u.Profile.AvatarURL,
			PrimaryRole: primary,
			Roles:       slices.Clone(u.Roles),
			Annotation:  g.annotate(q.Caller, u.ID, primary, idx),
		})
	}

	slices.SortStableFunc(out, func(a, b Contact) int {
		if c := model.RolePriority(a.PrimaryRole) - model.RolePriority(b.PrimaryRole); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// careTeam returns the ids in scope for a conversation context. Unknown
// context types match nobody.
func (g *Graph) careTeam(c model.ConversationContext) map[uuid.UUID]struct{} {
	scope := make(map[uuid.UUID]struct{})
	if c.Type != ContextCareRecipient {
		return scope
	}

	scope[c.ID] = struct{}{}
	for _, rel := range []map[uuid.UUID][]uuid.UUID{g.NurseMembers, g.CarerMembers, g.FacilityMembers} {
		for staff, members := range rel {
			if slices.Contains(members, c.ID) {
				scope[staff] = struct{}{}
			}
		}
	}
	return scope
}

type index struct {
	names  map[uuid.UUID]string
	nurses map[uuid.UUID]int // member -> assigned nurse count
}

func (g *Graph) index() index {
	idx := index{
		names:  make(map[uuid.UUID]string, len(g.Users)),
		nurses: make(map[uuid.UUID]int),
	}
	for _, u := range g.Users {
		idx.names[u.ID] = u.Profile.DisplayName
	}
	for _, members := range g.NurseMembers {
		for _, m := range members {
			idx.nurses[m]++
		}
	}
	return idx
}

func (g *Graph) annotate(caller, target uuid.UUID, role model.Role, idx index) string {
	switch role {
	case model.RoleNurse:
		n := len(g.NurseMembers[target])
		if slices.Contains(g.NurseMembers[target], caller) {
			return "Your assigned nurse"
		}
		return count(n, "assigned member", "assigned members")
	case model.RoleFamilyCarer:
		members := g.CarerMembers[target]
		switch len(members) {
		case 0:
			return ""
		case 1:
			if name := idx.names[members[0]]; name != "" {
				return "Carer for " + name
			}
		}
		return "Carer for " + count(len(members), "member", "members")
	case model.RoleMember:
		if slices.Contains(g.NurseMembers[caller], target) {
			return "Your assigned member"
		}
		if slices.Contains(g.CarerMembers[caller], target) {
			return "Linked family member"
		}
		if idx.nurses[target] > 0 {
			return "Has assigned nurse"
		}
		return "No assigned nurse"
	case model.RoleFacilityAdmin:
		return count(len(g.FacilityMembers[target]), "resident", "residents")
	case model.RoleAdmin:
		return "Platform administrator"
	case model.RoleCompanyAdmin:
		return "Company administrator"
	case model.RoleInsuranceAdmin:
		return "Insurance administrator"
	}
	return ""
}

func count(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
