package authorize

import (
	"context"
	"slices"
	"testing"
)

func TestContactableRoles(t *testing.T) {
	auth := newTestAuthorization(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  []string
		want    []string
		wantNot []string
	}{
		{
			name:    "member",
			caller:  []string{"member"},
			want:    []string{"admin", "facility_admin", "family_carer", "nurse"},
			wantNot: []string{"member", "company_admin", "insurance_admin"},
		},
		{
			name:   "admin reaches everyone",
			caller: []string{"admin"},
			want:   []string{"admin", "company_admin", "facility_admin", "family_carer", "insurance_admin", "member", "nurse"},
		},
		{
			name:    "union of roles",
			caller:  []string{"member", "insurance_admin"},
			want:    []string{"insurance_admin", "nurse", "family_carer"},
			wantNot: nil,
		},
		{
			name:    "unknown role reaches nobody",
			caller:  []string{"therapist"},
			wantNot: []string{"admin", "member"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContactableRoles(ctx, auth, tt.caller)
			if err != nil {
				t.Fatalf("ContactableRoles() error = %v", err)
			}
			if !slices.IsSorted(got) {
				t.Errorf("result not sorted: %v", got)
			}
			for _, r := range tt.want {
				if !slices.Contains(got, r) {
					t.Errorf("missing %q in %v", r, got)
				}
			}
			for _, r := range tt.wantNot {
				if slices.Contains(got, r) {
					t.Errorf("unexpected %q in %v", r, got)
				}
			}
		})
	}
}

func TestCanContact(t *testing.T) {
	auth := newTestAuthorization(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller []string
		target []string
		want   bool
	}{
		{"member to nurse", []string{"member"}, []string{"nurse"}, true},
		{"member to member", []string{"member"}, []string{"member"}, false},
		{"member to nurse-member", []string{"member"}, []string{"member", "nurse"}, true},
		{"insurance to family carer", []string{"insurance_admin"}, []string{"family_carer"}, false},
		{"target without roles", []string{"nurse"}, nil, false},
		{"caller without roles", nil, []string{"nurse"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanContact(ctx, auth, tt.caller, tt.target)
			if err != nil {
				t.Fatalf("CanContact() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanContact(%v, %v) = %v, want %v", tt.caller, tt.target, got, tt.want)
			}
		})
	}
}

func TestRolesFor(t *testing.T) {
	got := RolesFor([]string{"nurse", "bogus", "admin"})
	if len(got) != 2 || got[0] != RoleNurse || got[1] != RoleAdmin {
		t.Fatalf("RolesFor() = %v", got)
	}
	if RoleNurse.Platform() != "nurse" {
		t.Fatalf("Platform() = %q", RoleNurse.Platform())
	}
}
