package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type fakeClaims struct {
	id      uuid.UUID
	expired bool
	roles   []string
}

func (f fakeClaims) GetUserID() uuid.UUID     { return f.id }
func (f fakeClaims) GetSessionID() *uuid.UUID { return nil }
func (f fakeClaims) GetTokenType() string     { return "access" }
func (f fakeClaims) IsExpired() bool          { return f.expired }
func (f fakeClaims) GetRoles() []string       { return f.roles }

func TestUserIDFromContext(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		ctx    context.Context
		wantOK bool
	}{
		{"anonymous", context.Background(), false},
		{"valid", WithClaims(context.Background(), fakeClaims{id: id}), true},
		{"expired", WithClaims(context.Background(), fakeClaims{id: id, expired: true}), false},
		{"nil user", WithClaims(context.Background(), fakeClaims{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UserIDFromContext(tt.ctx)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != id {
				t.Fatalf("id = %s, want %s", got, id)
			}
		})
	}
}

func TestRolesFromContext(t *testing.T) {
	ctx := WithClaims(context.Background(), fakeClaims{id: uuid.New(), roles: []string{"nurse"}})
	if got := RolesFromContext(ctx); len(got) != 1 || got[0] != "nurse" {
		t.Fatalf("RolesFromContext() = %v", got)
	}
	if got := RolesFromContext(context.Background()); got != nil {
		t.Fatalf("anonymous roles = %v, want nil", got)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := WithRequestMeta(context.Background(), &RequestMeta{RequestID: "rid-1"})
	if got := RequestIDFromContext(ctx); got != "rid-1" {
		t.Fatalf("RequestIDFromContext() = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context gave %q", got)
	}
}

func TestLogAttrs(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		ctx  context.Context
		want []any
	}{
		{"empty", context.Background(), nil},
		{
			"request only",
			WithRequestMeta(context.Background(), &RequestMeta{RequestID: "r1"}),
			[]any{"request_id", "r1"},
		},
		{
			"stream with caller",
			WithClaims(WithRequestMeta(context.Background(), &RequestMeta{RequestID: "r2", Streaming: true}), fakeClaims{id: id}),
			[]any{"request_id", "r2", "streaming", true, "user_id", id.String()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogAttrs(tt.ctx)
			if len(got) != len(tt.want) {
				t.Fatalf("LogAttrs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("LogAttrs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
