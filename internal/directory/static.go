package directory

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/model"
)

var _ Directory = (*Static)(nil)

// Static serves a fixed graph, typically loaded from a YAML fixture for
// development and demos.
type Static struct {
	graph *contact.Graph
}

type staticFile struct {
	Users []struct {
		ID          uuid.UUID    `yaml:"id"`
		DisplayName string       `yaml:"display_name"`
		AvatarURL   string       `yaml:"avatar_url"`
		Email       string       `yaml:"email"`
		Roles       []model.Role `yaml:"roles"`
	} `yaml:"users"`
	NurseAssignments map[uuid.UUID][]uuid.UUID `yaml:"nurse_assignments"`
	CarerLinks       map[uuid.UUID][]uuid.UUID `yaml:"carer_links"`
	FacilityMembers  map[uuid.UUID][]uuid.UUID `yaml:"facility_members"`
}

func NewStatic(g *contact.Graph) *Static {
	if g == nil {
		g = &contact.Graph{}
	}
	return &Static{graph: g}
}

// LoadStatic reads a YAML fixture from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory fixture: %w", err)
	}
	return ParseStatic(data)
}

func ParseStatic(data []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directory fixture: %w", err)
	}

	g := &contact.Graph{
		NurseMembers:    f.NurseAssignments,
		CarerMembers:    f.CarerLinks,
		FacilityMembers: f.FacilityMembers,
	}
	seen := make(map[uuid.UUID]struct{}, len(f.Users))
	for _, u := range f.Users {
		if u.ID == uuid.Nil {
			return nil, fmt.Errorf("parse directory fixture: user %q has no id", u.DisplayName)
		}
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("parse directory fixture: duplicate user %s", u.ID)
		}
		seen[u.ID] = struct{}{}
		for _, r := range u.Roles {
			if !r.Valid() {
				return nil, fmt.Errorf("parse directory fixture: user %s has unknown role %q", u.ID, r)
			}
		}
		g.Users = append(g.Users, model.User{
			ID: u.ID,
			Profile: model.Profile{
				UserID:      u.ID,
				DisplayName: u.DisplayName,
				AvatarURL:   u.AvatarURL,
				Email:       u.Email,
			},
			Roles: u.Roles,
		})
	}
	return &Static{graph: g}, nil
}

func (s *Static) Snapshot(ctx context.Context) (*contact.Graph, error) {
	return s.graph, ctx.Err()
}

func (s *Static) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return usersFromGraph(s.graph, ids), nil
}
