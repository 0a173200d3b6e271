package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/notify"
	"github.com/Alijeyrad/carelink/internal/realtime"
	"github.com/Alijeyrad/carelink/internal/store/memory"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (r *recordingNotifier) Enqueue(job notify.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return true
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type failingBus struct{}

func (failingBus) Publish(context.Context, realtime.Event) error { return errors.New("backplane down") }
func (failingBus) Close() error                                  { return nil }

type failingDirectory struct{ directory.Directory }

func (failingDirectory) Users(context.Context, []uuid.UUID) (map[uuid.UUID]model.User, error) {
	return nil, errors.New("directory timeout")
}

type env struct {
	svc      Service
	hub      *realtime.Hub
	notifier *recordingNotifier

	nurse, b, c, d, outsider model.Caller
}

func user(id uuid.UUID, name string, role model.Role) model.User {
	return model.User{ID: id, Profile: model.Profile{UserID: id, DisplayName: name}, Roles: []model.Role{role}}
}

func caller(u model.User) model.Caller {
	return model.Caller{UserID: u.ID, Roles: u.Roles}
}

func newEnv(t *testing.T, mutate func(*Deps)) *env {
	t.Helper()

	nurse := user(uuid.New(), "Nurse Ada", model.RoleNurse)
	b := user(uuid.New(), "Bea", model.RoleMember)
	c := user(uuid.New(), "Cal", model.RoleMember)
	d := user(uuid.New(), "Dot", model.RoleMember)
	outsider := user(uuid.New(), "Nurse Eve", model.RoleNurse)

	dir := directory.NewStatic(&contact.Graph{
		Users:        []model.User{nurse, b, c, d, outsider},
		NurseMembers: map[uuid.UUID][]uuid.UUID{nurse.ID: {b.ID, c.ID, d.ID}},
	})
	auth, err := authorize.NewMemoryAuthorization(context.Background(), "")
	if err != nil {
		t.Fatalf("NewMemoryAuthorization() error = %v", err)
	}

	hub := realtime.NewHub(realtime.Config{Buffer: 16, ReorderWindow: 8, GapTimeout: time.Second}, nil)
	t.Cleanup(hub.Close)
	n := &recordingNotifier{}

	deps := Deps{
		Store:     memory.New(),
		Directory: dir,
		Auth:      auth,
		Hub:       hub,
		Bus:       realtime.NewLocalBus(hub),
		Notifier:  n,
		Config:    Config{PageSize: 50, MaxPageSize: 100, MaxGroupSize: 10},
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &env{
		svc: svc, hub: hub, notifier: n,
		nurse: caller(nurse), b: caller(b), c: caller(c), d: caller(d), outsider: caller(outsider),
	}
}

func (e *env) direct(t *testing.T) *model.Conversation {
	t.Helper()
	conv, _, err := e.svc.CreateConversation(context.Background(), e.nurse, CreateInput{MemberIDs: []uuid.UUID{e.b.UserID}})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	return conv
}

func (e *env) unread(t *testing.T, who model.Caller, convID uuid.UUID) int64 {
	t.Helper()
	list, err := e.svc.ListConversations(context.Background(), who)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	for _, s := range list {
		if s.ID == convID {
			return s.UnreadCount
		}
	}
	t.Fatalf("conversation %s not listed for %s", convID, who.UserID)
	return 0
}

func nextEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within 1s")
	}
	return realtime.Event{}
}

func assertNoEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDirectConversationIsSharedByBothSides(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	x, created, err := e.svc.CreateConversation(ctx, e.nurse, CreateInput{MemberIDs: []uuid.UUID{e.b.UserID}, Type: model.ConversationDirect})
	if err != nil || !created {
		t.Fatalf("CreateConversation() = created %v, err %v", created, err)
	}
	if x.Type != model.ConversationDirect || len(x.Participants) != 2 {
		t.Fatalf("conversation = %s with %d participants", x.Type, len(x.Participants))
	}
	for _, p := range x.Participants {
		if p.UnreadCount != 0 {
			t.Errorf("participant %s unread = %d, want 0", p.UserID, p.UnreadCount)
		}
		if p.Profile == nil || p.Profile.DisplayName == "" {
			t.Errorf("participant %s has no profile", p.UserID)
		}
	}

	again, created, err := e.svc.CreateConversation(ctx, e.b, CreateInput{MemberIDs: []uuid.UUID{e.nurse.UserID}, Type: model.ConversationDirect})
	if err != nil {
		t.Fatalf("second CreateConversation() error = %v", err)
	}
	if created || again.ID != x.ID {
		t.Fatalf("second create returned %s (created %v), want existing %s", again.ID, created, x.ID)
	}
}

func TestDirectConversationReachableFromOneWayRole(t *testing.T) {
	insurer := user(uuid.New(), "Ines Insurer", model.RoleInsuranceAdmin)
	member := user(uuid.New(), "Milo", model.RoleMember)
	e := newEnv(t, func(d *Deps) {
		d.Directory = directory.NewStatic(&contact.Graph{Users: []model.User{insurer, member}})
	})
	ctx := context.Background()

	// A member may not open a conversation with an insurance admin.
	_, _, err := e.svc.CreateConversation(ctx, caller(member), CreateInput{MemberIDs: []uuid.UUID{insurer.ID}})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("member first create err = %v, want ErrUnauthorized", err)
	}
	if strings.Contains(err.Error(), "participant") {
		t.Errorf("policy denial reads as a membership failure: %v", err)
	}

	x, created, err := e.svc.CreateConversation(ctx, caller(insurer), CreateInput{MemberIDs: []uuid.UUID{member.ID}})
	if err != nil || !created {
		t.Fatalf("insurer create = created %v, err %v", created, err)
	}

	again, created, err := e.svc.CreateConversation(ctx, caller(member), CreateInput{MemberIDs: []uuid.UUID{insurer.ID}})
	if err != nil {
		t.Fatalf("member create after insurer error = %v", err)
	}
	if created || again.ID != x.ID {
		t.Fatalf("member create returned %s (created %v), want existing %s", again.ID, created, x.ID)
	}
	for _, p := range again.Participants {
		if p.Profile == nil {
			t.Errorf("participant %s has no profile", p.UserID)
		}
	}
}

func TestConcurrentDirectCreatesConverge(t *testing.T) {
	e := newEnv(t, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uuid.UUID]int{}
		created int
		errs    []error
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := e.nurse, e.b
			if i%2 == 1 {
				from, to = e.b, e.nurse
			}
			conv, isNew, err := e.svc.CreateConversation(context.Background(), from, CreateInput{MemberIDs: []uuid.UUID{to.UserID}})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[conv.ID]++
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(ids) != 1 || created != 1 {
		t.Fatalf("got %d distinct conversations, %d creations; want 1 and 1", len(ids), created)
	}
}

func TestSendDeliversCountsAndClearsUnread(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)

	sub, err := e.svc.Subscribe(ctx, e.b, x.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	msg, dup, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: "Hello"})
	if err != nil || dup {
		t.Fatalf("SendMessage() = dup %v, err %v", dup, err)
	}
	if msg.Seq != 1 {
		t.Fatalf("seq = %d, want 1", msg.Seq)
	}

	ev := nextEvent(t, sub)
	if ev.Kind != realtime.EventMessage || ev.Message.Body != "Hello" {
		t.Fatalf("event = %+v, want Hello", ev)
	}
	if got := e.unread(t, e.b, x.ID); got != 1 {
		t.Fatalf("unread(B) = %d, want 1", got)
	}
	if got := e.unread(t, e.nurse, x.ID); got != 0 {
		t.Fatalf("unread(A) = %d, want 0", got)
	}

	page, err := e.svc.FetchMessages(ctx, e.b, x.ID, FetchInput{})
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Body != "Hello" {
		t.Fatalf("page = %+v", page.Messages)
	}

	p, err := e.svc.MarkRead(ctx, e.b, x.ID)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if p.UnreadCount != 0 || p.LastReadAt == nil {
		t.Fatalf("participant after MarkRead = %+v", p)
	}
	if got := e.unread(t, e.b, x.ID); got != 0 {
		t.Fatalf("unread(B) after MarkRead = %d, want 0", got)
	}

	if ev := nextEvent(t, sub); ev.Kind != realtime.EventRead || ev.Read.UserID != e.b.UserID {
		t.Fatalf("event = %+v, want read receipt for B", ev)
	}

	// Nothing left to read: no second receipt.
	if _, err := e.svc.MarkRead(ctx, e.b, x.ID); err != nil {
		t.Fatalf("second MarkRead() error = %v", err)
	}
	assertNoEvent(t, sub)

	if e.notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", e.notifier.count())
	}
}

func TestGroupConversationHasEveryParticipant(t *testing.T) {
	e := newEnv(t, nil)
	title := "Care Team"

	conv, created, err := e.svc.CreateConversation(context.Background(), e.nurse, CreateInput{
		MemberIDs: []uuid.UUID{e.b.UserID, e.c.UserID, e.d.UserID},
		Type:      model.ConversationGroup,
		Title:     &title,
	})
	if err != nil || !created {
		t.Fatalf("CreateConversation() = created %v, err %v", created, err)
	}
	if conv.Type != model.ConversationGroup || len(conv.Participants) != 4 {
		t.Fatalf("conversation = %s with %d participants, want group of 4", conv.Type, len(conv.Participants))
	}
	if conv.Title == nil || *conv.Title != title {
		t.Fatalf("title = %v", conv.Title)
	}

	list, err := e.svc.ListConversations(context.Background(), e.c)
	if err != nil || len(list) != 1 || list[0].DisplayName != title {
		t.Fatalf("ListConversations() = %+v, %v", list, err)
	}
}

func TestNonParticipantCannotSend(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)

	_, _, err := e.svc.SendMessage(ctx, e.outsider, SendInput{ConversationID: x.ID, Body: "hi"})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("SendMessage() error = %v, want ErrUnauthorized", err)
	}

	page, err := e.svc.FetchMessages(ctx, e.nurse, x.ID, FetchInput{})
	if err != nil || len(page.Messages) != 0 {
		t.Fatalf("FetchMessages() = %d messages, %v; want none", len(page.Messages), err)
	}
	if e.unread(t, e.nurse, x.ID) != 0 || e.unread(t, e.b, x.ID) != 0 {
		t.Fatal("unread counters changed after rejected send")
	}
	if e.notifier.count() != 0 {
		t.Fatal("rejected send queued a notification")
	}
}

func TestNonParticipantCannotRead(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)

	if _, err := e.svc.GetConversation(ctx, e.outsider, x.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("GetConversation() error = %v", err)
	}
	if _, err := e.svc.FetchMessages(ctx, e.outsider, x.ID, FetchInput{}); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("FetchMessages() error = %v", err)
	}
	if _, err := e.svc.Subscribe(ctx, e.outsider, x.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("Subscribe() error = %v", err)
	}
	if _, err := e.svc.MarkRead(ctx, e.outsider, x.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("MarkRead() error = %v", err)
	}
	if _, err := e.svc.GetConversation(ctx, e.nurse, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetConversation(unknown) error = %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name   string
		caller model.Caller
		in     CreateInput
		want   error
	}{
		{"no members", e.nurse, CreateInput{}, model.ErrInvalidArguments},
		{"only self", e.nurse, CreateInput{MemberIDs: []uuid.UUID{e.nurse.UserID}}, model.ErrInvalidArguments},
		{"unknown member", e.nurse, CreateInput{MemberIDs: []uuid.UUID{uuid.New()}}, model.ErrInvalidArguments},
		{"member to member", e.b, CreateInput{MemberIDs: []uuid.UUID{e.c.UserID}}, model.ErrUnauthorized},
		{"anonymous", model.Caller{}, CreateInput{MemberIDs: []uuid.UUID{e.b.UserID}}, model.ErrUnauthenticated},
		{"no roles", model.Caller{UserID: uuid.New()}, CreateInput{MemberIDs: []uuid.UUID{e.b.UserID}}, model.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.svc.CreateConversation(context.Background(), tt.caller, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateGroupSizeCap(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Config.MaxGroupSize = 3 })
	_, _, err := e.svc.CreateConversation(context.Background(), e.nurse, CreateInput{
		MemberIDs: []uuid.UUID{e.b.UserID, e.c.UserID, e.d.UserID},
	})
	if !errors.Is(err, model.ErrInvalidArguments) {
		t.Fatalf("error = %v, want ErrInvalidArguments", err)
	}
}

func TestCreateWithDirectoryDown(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Directory = failingDirectory{d.Directory} })

	_, _, err := e.svc.CreateConversation(context.Background(), e.nurse, CreateInput{MemberIDs: []uuid.UUID{e.b.UserID}})
	if !errors.Is(err, model.ErrResolverUnavailable) {
		t.Fatalf("error = %v, want ErrResolverUnavailable", err)
	}
}

func TestSendIsIdempotentPerClientKey(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)

	sub, err := e.svc.Subscribe(ctx, e.b, x.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	key := "client-1"
	first, dup, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: "hi", ClientMessageID: &key})
	if err != nil || dup {
		t.Fatalf("first send = dup %v, err %v", dup, err)
	}
	second, dup, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: "hi", ClientMessageID: &key})
	if err != nil || !dup || second.ID != first.ID {
		t.Fatalf("retry = %v dup %v, err %v; want original", second, dup, err)
	}

	nextEvent(t, sub)
	assertNoEvent(t, sub)
	if got := e.unread(t, e.b, x.ID); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
	if e.notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", e.notifier.count())
	}
}

func TestSendRejectsBlankBody(t *testing.T) {
	e := newEnv(t, nil)
	x := e.direct(t)
	if _, _, err := e.svc.SendMessage(context.Background(), e.nurse, SendInput{ConversationID: x.ID, Body: "  \n"}); !errors.Is(err, model.ErrInvalidArguments) {
		t.Fatalf("error = %v, want ErrInvalidArguments", err)
	}
}

func TestSendSucceedsWhenPublishFails(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Bus = failingBus{} })
	x := e.direct(t)

	msg, _, err := e.svc.SendMessage(context.Background(), e.nurse, SendInput{ConversationID: x.ID, Body: "still stored"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	page, err := e.svc.FetchMessages(context.Background(), e.b, x.ID, FetchInput{})
	if err != nil || len(page.Messages) != 1 || page.Messages[0].ID != msg.ID {
		t.Fatalf("FetchMessages() = %+v, %v", page, err)
	}
}

func bodies(p *model.MessagePage) []string {
	out := make([]string, len(p.Messages))
	for i, m := range p.Messages {
		out[i] = m.Body
	}
	return out
}

func TestFetchPagesForwardAndBackward(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)
	for _, body := range []string{"1", "2", "3", "4", "5"} {
		if _, _, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: body}); err != nil {
			t.Fatalf("SendMessage(%s) error = %v", body, err)
		}
	}

	fetch := func(in FetchInput) *model.MessagePage {
		t.Helper()
		p, err := e.svc.FetchMessages(ctx, e.b, x.ID, in)
		if err != nil {
			t.Fatalf("FetchMessages(%+v) error = %v", in, err)
		}
		return p
	}
	equal := func(got []string, want ...string) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	p1 := fetch(FetchInput{Limit: 2})
	if !equal(bodies(p1), "1", "2") || !p1.HasMore {
		t.Fatalf("page 1 = %v has_more %v", bodies(p1), p1.HasMore)
	}
	p2 := fetch(FetchInput{After: p1.NextCursor, Limit: 2})
	if !equal(bodies(p2), "3", "4") || !p2.HasMore {
		t.Fatalf("page 2 = %v has_more %v", bodies(p2), p2.HasMore)
	}
	again := fetch(FetchInput{After: p1.NextCursor, Limit: 2})
	if !equal(bodies(again), bodies(p2)...) {
		t.Fatalf("same cursor gave %v, then %v", bodies(p2), bodies(again))
	}
	p3 := fetch(FetchInput{After: p2.NextCursor, Limit: 2})
	if !equal(bodies(p3), "5") || p3.HasMore {
		t.Fatalf("page 3 = %v has_more %v", bodies(p3), p3.HasMore)
	}
	tail := fetch(FetchInput{After: p3.NextCursor, Limit: 2})
	if len(tail.Messages) != 0 || tail.NextCursor != p3.NextCursor {
		t.Fatalf("tail = %v next %q, want empty page on the same cursor", bodies(tail), tail.NextCursor)
	}

	back := fetch(FetchInput{Before: p3.PrevCursor, Limit: 2})
	if !equal(bodies(back), "3", "4") || !back.HasMore {
		t.Fatalf("backward page = %v has_more %v", bodies(back), back.HasMore)
	}
	first := fetch(FetchInput{Before: back.PrevCursor, Limit: 2})
	if !equal(bodies(first), "1", "2") || first.HasMore {
		t.Fatalf("oldest page = %v has_more %v", bodies(first), first.HasMore)
	}

	if _, err := e.svc.FetchMessages(ctx, e.b, x.ID, FetchInput{After: "garbage!"}); !errors.Is(err, model.ErrInvalidArguments) {
		t.Fatalf("malformed cursor error = %v", err)
	}
}

func TestSubscriberOnlySeesLaterMessages(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	x := e.direct(t)

	if _, _, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: "before"}); err != nil {
		t.Fatal(err)
	}
	sub, err := e.svc.Subscribe(ctx, e.b, x.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()
	assertNoEvent(t, sub)

	if _, _, err := e.svc.SendMessage(ctx, e.nurse, SendInput{ConversationID: x.ID, Body: "after"}); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, sub); ev.Message == nil || ev.Message.Body != "after" {
		t.Fatalf("event = %+v, want after", ev)
	}

	sub.Close()
	if e.hub.Live() != 0 {
		t.Fatalf("live subscriptions = %d after Close", e.hub.Live())
	}
}

func TestDisplayName(t *testing.T) {
	viewer := uuid.New()
	named := func(n string) model.Participant {
		return model.Participant{UserID: uuid.New(), Profile: &model.Profile{DisplayName: n}}
	}
	title := "Night shift"

	tests := []struct {
		name string
		conv model.Conversation
		want string
	}{
		{"title wins", model.Conversation{Title: &title, Participants: []model.Participant{named("A")}}, "Night shift"},
		{"direct", model.Conversation{Participants: []model.Participant{{UserID: viewer}, named("Ada")}}, "Ada"},
		{"small group", model.Conversation{Participants: []model.Participant{named("A"), named("B"), named("C")}}, "A, B, C"},
		{"large group", model.Conversation{Participants: []model.Participant{named("A"), named("B"), named("C"), named("D")}}, "A, B and 2 others"},
		{"no profiles", model.Conversation{Participants: []model.Participant{{UserID: uuid.New()}}}, "Conversation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(&tt.conv, viewer); got != tt.want {
				t.Fatalf("displayName() = %q, want %q", got, tt.want)
			}
		})
	}
}
