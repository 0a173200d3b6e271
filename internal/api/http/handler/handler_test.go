package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/realtime"
	contactsvc "github.com/Alijeyrad/carelink/internal/service/contact"
	"github.com/Alijeyrad/carelink/internal/service/conversation"
	"github.com/Alijeyrad/carelink/internal/store/memory"
	"github.com/Alijeyrad/carelink/pkg/authorize"
	"github.com/Alijeyrad/carelink/pkg/reqctx"
)

const (
	headerTestUser = "X-Test-User"
	headerTestRole = "X-Test-Role"
)

type testClaims struct {
	id    uuid.UUID
	roles []string
}

func (t testClaims) GetUserID() uuid.UUID     { return t.id }
func (t testClaims) GetSessionID() *uuid.UUID { return nil }
func (t testClaims) GetTokenType() string     { return "access" }
func (t testClaims) IsExpired() bool          { return false }
func (t testClaims) GetRoles() []string       { return t.roles }

// fakeAuth stands in for AuthRequired: it trusts the test headers.
func fakeAuth(c fiber.Ctx) error {
	if id, err := uuid.Parse(c.Get(headerTestUser)); err == nil {
		c.SetContext(reqctx.WithClaims(c.Context(), testClaims{id: id, roles: []string{c.Get(headerTestRole)}}))
	}
	return c.Next()
}

type fixture struct {
	app               *fiber.App
	nurse, mem1, mem2 model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mk := func(name string, role model.Role) model.User {
		id := uuid.New()
		return model.User{ID: id, Profile: model.Profile{UserID: id, DisplayName: name}, Roles: []model.Role{role}}
	}
	f := &fixture{
		nurse: mk("Nurse Ada", model.RoleNurse),
		mem1:  mk("Bea", model.RoleMember),
		mem2:  mk("Cal", model.RoleMember),
	}
	dir := directory.NewStatic(&contact.Graph{
		Users:        []model.User{f.nurse, f.mem1, f.mem2},
		NurseMembers: map[uuid.UUID][]uuid.UUID{f.nurse.ID: {f.mem1.ID, f.mem2.ID}},
	})
	auth, err := authorize.NewMemoryAuthorization(context.Background(), "")
	if err != nil {
		t.Fatalf("NewMemoryAuthorization() error = %v", err)
	}
	hub := realtime.NewHub(realtime.Config{Buffer: 8, ReorderWindow: 4, GapTimeout: time.Second}, nil)
	t.Cleanup(hub.Close)

	svc, err := conversation.New(conversation.Deps{
		Store:     memory.New(),
		Directory: dir,
		Auth:      auth,
		Hub:       hub,
		Bus:       realtime.NewLocalBus(hub),
		Config:    conversation.Config{PageSize: 20, MaxPageSize: 50, MaxGroupSize: 10},
	})
	if err != nil {
		t.Fatalf("conversation.New() error = %v", err)
	}

	ch := NewConversationHandler(svc)
	kh := NewContactHandler(contactsvc.New(dir, auth))

	app := fiber.New()
	app.Use(fakeAuth)
	app.Get("/conversations", ch.List)
	app.Post("/conversations", ch.Create)
	app.Get("/conversations/:id", ch.Get)
	app.Get("/conversations/:id/messages", ch.ListMessages)
	app.Post("/conversations/:id/messages", ch.SendMessage)
	app.Post("/conversations/:id/read", ch.MarkRead)
	app.Get("/contacts", kh.List)
	f.app = app
	return f
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (f *fixture) do(t *testing.T, as *model.User, method, path, body string, headers ...string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if as != nil {
		req.Header.Set(headerTestUser, as.ID.String())
		req.Header.Set(headerTestRole, string(as.Roles[0]))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

func (f *fixture) createDirect(t *testing.T, as *model.User, with uuid.UUID, wantStatus int) model.Conversation {
	t.Helper()
	body := `{"type":"direct","member_ids":["` + with.String() + `"]}`
	status, env := f.do(t, as, http.MethodPost, "/conversations", body)
	if status != wantStatus {
		t.Fatalf("create status = %d (%s), want %d", status, env.Error, wantStatus)
	}
	var conv model.Conversation
	if err := json.Unmarshal(env.Data, &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return conv
}

func TestCreateConversationStatus(t *testing.T) {
	f := newFixture(t)

	first := f.createDirect(t, &f.nurse, f.mem1.ID, http.StatusCreated)
	again := f.createDirect(t, &f.mem1, f.nurse.ID, http.StatusOK)
	if first.ID != again.ID {
		t.Fatalf("dedup returned %s, want %s", again.ID, first.ID)
	}
}

func TestSendMessageIdempotencyHeader(t *testing.T) {
	f := newFixture(t)
	conv := f.createDirect(t, &f.nurse, f.mem1.ID, http.StatusCreated)
	path := "/conversations/" + conv.ID.String() + "/messages"

	status, env := f.do(t, &f.nurse, http.MethodPost, path, `{"body":"hello"}`, HeaderIdempotencyKey, "k-1")
	if status != http.StatusCreated {
		t.Fatalf("first send status = %d (%s)", status, env.Error)
	}
	var first model.Message
	_ = json.Unmarshal(env.Data, &first)

	status, env = f.do(t, &f.nurse, http.MethodPost, path, `{"body":"hello"}`, HeaderIdempotencyKey, "k-1")
	if status != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", status)
	}
	var retry model.Message
	_ = json.Unmarshal(env.Data, &retry)
	if retry.ID != first.ID || retry.Seq != 1 {
		t.Fatalf("retry = %+v, want the original message", retry)
	}

	status, env = f.do(t, &f.mem1, http.MethodGet, path+"?limit=10", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var page model.MessagePage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 1 || page.HasMore {
		t.Fatalf("page = %+v, want one message", page)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)
	conv := f.createDirect(t, &f.nurse, f.mem1.ID, http.StatusCreated)
	convPath := "/conversations/" + conv.ID.String()

	tests := []struct {
		name   string
		as     *model.User
		method string
		path   string
		body   string
		want   int
	}{
		{"anonymous", nil, http.MethodGet, "/conversations", "", http.StatusUnauthorized},
		{"bad id", &f.nurse, http.MethodGet, "/conversations/not-a-uuid", "", http.StatusBadRequest},
		{"unknown conversation", &f.nurse, http.MethodGet, "/conversations/" + uuid.NewString(), "", http.StatusNotFound},
		{"not a participant", &f.mem2, http.MethodGet, convPath, "", http.StatusForbidden},
		{"member to member", &f.mem1, http.MethodPost, "/conversations", `{"type":"direct","member_ids":["` + f.mem2.ID.String() + `"]}`, http.StatusForbidden},
		{"blank body", &f.nurse, http.MethodPost, convPath + "/messages", `{"body":"  "}`, http.StatusBadRequest},
		{"malformed json", &f.nurse, http.MethodPost, convPath + "/messages", `{"body":`, http.StatusBadRequest},
		{"bad cursor", &f.nurse, http.MethodGet, convPath + "/messages?after=bm9wZQ", "", http.StatusBadRequest},
		{"bad context id", &f.nurse, http.MethodGet, "/contacts?context_id=nope", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, env := f.do(t, tt.as, tt.method, tt.path, tt.body); status != tt.want {
				t.Fatalf("status = %d (%s), want %d", status, env.Error, tt.want)
			}
		})
	}
}

func TestMarkReadAndList(t *testing.T) {
	f := newFixture(t)
	conv := f.createDirect(t, &f.nurse, f.mem1.ID, http.StatusCreated)
	f.do(t, &f.nurse, http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", `{"body":"hi"}`)

	status, env := f.do(t, &f.mem1, http.MethodGet, "/conversations", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list []model.ConversationSummary
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].UnreadCount != 1 {
		t.Fatalf("list = %+v, want one unread conversation", list)
	}

	status, env = f.do(t, &f.mem1, http.MethodPost, "/conversations/"+conv.ID.String()+"/read", "")
	if status != http.StatusOK {
		t.Fatalf("read status = %d (%s)", status, env.Error)
	}
	var p model.Participant
	_ = json.Unmarshal(env.Data, &p)
	if p.UnreadCount != 0 || p.LastReadAt == nil {
		t.Fatalf("participant = %+v, want read", p)
	}
}

func TestContactsForNurse(t *testing.T) {
	f := newFixture(t)
	status, env := f.do(t, &f.nurse, http.MethodGet, "/contacts?roles=member", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s)", status, env.Error)
	}
	var got []contact.Contact
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode contacts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("contacts = %d, want 2", len(got))
	}
}
