// Package conversation is the messaging facade: every exposed operation acts
// as the authenticated caller, checks policy and membership, then drives the
// store, the realtime bus and the notification queue.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/notify"
	"github.com/Alijeyrad/carelink/internal/realtime"
	"github.com/Alijeyrad/carelink/internal/store"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

const instrumentation = "github.com/Alijeyrad/carelink/internal/service/conversation"

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type CreateInput struct {
	MemberIDs   []uuid.UUID
	Type        model.ConversationType
	Title       *string
	ContextType string
	ContextID   *uuid.UUID
}

type SendInput struct {
	ConversationID  uuid.UUID
	Body            string
	ClientMessageID *string
}

// FetchInput pages a conversation. After and Before are opaque cursors from
// an earlier page; with neither set the page starts at the first message.
type FetchInput struct {
	After  string
	Before string
	Limit  int
}

type Config struct {
	PageSize     int
	MaxPageSize  int
	MaxGroupSize int
}

// Hub is the part of the realtime hub the service needs.
type Hub interface {
	Subscribe(conversationID, userID uuid.UUID) *realtime.Subscription
	Live() int64
}

// Notifier queues out-of-band notifications. Enqueue must not block.
type Notifier interface {
	Enqueue(job notify.Job) bool
}

type Deps struct {
	Store     store.Store
	Directory directory.Directory
	Auth      authorize.IAuthorization
	Hub       Hub
	Bus       realtime.Bus
	Notifier  Notifier // optional
	Config    Config
	Logger    *slog.Logger
	Now       func() time.Time
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	CreateConversation(ctx context.Context, caller model.Caller, in CreateInput) (conv *model.Conversation, created bool, err error)
	ListConversations(ctx context.Context, caller model.Caller) ([]*model.ConversationSummary, error)
	GetConversation(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Conversation, error)
	SendMessage(ctx context.Context, caller model.Caller, in SendInput) (msg *model.Message, duplicate bool, err error)
	FetchMessages(ctx context.Context, caller model.Caller, conversationID uuid.UUID, in FetchInput) (*model.MessagePage, error)
	MarkRead(ctx context.Context, caller model.Caller, conversationID uuid.UUID) (*model.Participant, error)
	Subscribe(ctx context.Context, caller model.Caller, conversationID uuid.UUID) (*realtime.Subscription, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type conversationService struct {
	store    store.Store
	dir      directory.Directory
	auth     authorize.IAuthorization
	hub      Hub
	bus      realtime.Bus
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	tracer  trace.Tracer
	metrics metrics
}

type metrics struct {
	appended metric.Int64Counter
	created  metric.Int64Counter
	dedup    metric.Int64Counter
}

func New(d Deps) (Service, error) {
	if d.Store == nil || d.Directory == nil || d.Auth == nil || d.Hub == nil || d.Bus == nil {
		return nil, fmt.Errorf("%w: conversation service is missing a dependency", model.ErrInvalidArguments)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Config.PageSize <= 0 {
		d.Config.PageSize = 50
	}
	if d.Config.MaxPageSize < d.Config.PageSize {
		d.Config.MaxPageSize = d.Config.PageSize
	}

	s := &conversationService{
		store:    d.Store,
		dir:      d.Directory,
		auth:     d.Auth,
		hub:      d.Hub,
		bus:      d.Bus,
		notifier: d.Notifier,
		cfg:      d.Config,
		logger:   d.Logger,
		now:      d.Now,
		tracer:   otel.Tracer(instrumentation),
	}
	if err := s.initMetrics(otel.Meter(instrumentation)); err != nil {
		return nil, fmt.Errorf("conversation metrics: %w", err)
	}
	return s, nil
}

func (s *conversationService) initMetrics(meter metric.Meter) error {
	var err error
	if s.metrics.appended, err = meter.Int64Counter("messaging_messages_appended_total",
		metric.WithDescription("Messages appended, excluding idempotent retries")); err != nil {
		return err
	}
	if s.metrics.created, err = meter.Int64Counter("messaging_conversations_created_total",
		metric.WithDescription("Conversations created")); err != nil {
		return err
	}
	if s.metrics.dedup, err = meter.Int64Counter("messaging_direct_dedup_total",
		metric.WithDescription("Direct conversation creates answered with an existing conversation")); err != nil {
		return err
	}
	_, err = meter.Int64ObservableUpDownCounter("messaging_live_subscriptions",
		metric.WithDescription("Live realtime subscriptions on this instance"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.hub.Live())
			return nil
		}))
	return err
}

func (s *conversationService) CreateConversation(ctx context.Context, caller model.Caller, in CreateInput) (conv *model.Conversation, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.Create",
		trace.WithAttributes(attribute.Int("conversation.requested_members", len(in.MemberIDs))))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceConversation, authorize.ActionCreate); err != nil {
		return nil, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("generate conversation id: %w", err)
	}
	nc, err := model.CreateRequest{
		Initiator:   caller.UserID,
		MemberIDs:   in.MemberIDs,
		Type:        in.Type,
		Title:       in.Title,
		ContextType: in.ContextType,
		ContextID:   in.ContextID,
	}.Build(id, s.now().UTC(), s.cfg.MaxGroupSize)
	if err != nil {
		return nil, false, err
	}

	// An existing direct conversation is returned to either side without
	// the contact policy, which is not symmetric between roles.
	if nc.PairKey() != nil {
		existing, err := s.store.FindDirect(ctx, nc.Members[0], nc.Members[1])
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("conversation.id", existing.ID.String()), attribute.Bool("conversation.created", false))
			s.metrics.dedup.Add(ctx, 1)
			s.attachProfiles(ctx, existing)
			return existing, false, nil
		case !errors.Is(err, model.ErrNotFound):
			return nil, false, err
		}
	}

	if err := s.checkContactable(ctx, caller, nc.Members); err != nil {
		return nil, false, err
	}

	conv, created, err = s.store.CreateConversation(ctx, nc)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID.String()), attribute.Bool("conversation.created", created))

	if created {
		s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(conv.Type))))
		s.logger.InfoContext(ctx, "conversation created",
			"conversation_id", conv.ID, "type", conv.Type, "participants", len(conv.Participants))
	} else {
		s.metrics.dedup.Add(ctx, 1)
	}

	s.attachProfiles(ctx, conv)
	return conv, created, nil
}

// checkContactable rejects members that are unknown to the directory or
// that the caller's roles may not reach.
func (s *conversationService) checkContactable(ctx context.Context, caller model.Caller, members []uuid.UUID) error {
	others := make([]uuid.UUID, 0, len(members))
	for _, id := range members {
		if id != caller.UserID {
			others = append(others, id)
		}
	}

	users, err := s.dir.Users(ctx, others)
	if err != nil {
		return resolverUnavailable(err)
	}

	callerRoles := caller.RoleTags()
	for _, id := range others {
		u, ok := users[id]
		if !ok {
			return fmt.Errorf("%w: unknown user %s", model.ErrInvalidArguments, id)
		}
		ok, err := authorize.CanContact(ctx, s.auth, callerRoles, model.RoleTags(u.Roles))
		if err != nil {
			return denied(err, authorize.ActionContact, authorize.ResourceContact)
		}
		if !ok {
			return fmt.Errorf("%w: may not contact user %s", model.ErrUnauthorized, id)
		}
	}
	return nil
}

func (s *conversationService) ListConversations(ctx context.Context, caller model.Caller) (out []*model.ConversationSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.List")
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceConversation, authorize.ActionList); err != nil {
		return nil, err
	}

	out, err = s.store.ListConversations(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	convs := make([]*model.Conversation, len(out))
	for i, sum := range out {
		convs[i] = &sum.Conversation
	}
	s.attachProfiles(ctx, convs...)
	for _, sum := range out {
		sum.DisplayName = displayName(&sum.Conversation, caller.UserID)
	}
	span.SetAttributes(attribute.Int("conversation.count", len(out)))
	return out, nil
}

func (s *conversationService) GetConversation(ctx context.Context, caller model.Caller, id uuid.UUID) (conv *model.Conversation, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.Get",
		trace.WithAttributes(attribute.String("conversation.id", id.String())))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceConversation, authorize.ActionRead); err != nil {
		return nil, err
	}
	conv, err = s.participantOf(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	s.attachProfiles(ctx, conv)
	return conv, nil
}

func (s *conversationService) SendMessage(ctx context.Context, caller model.Caller, in SendInput) (msg *model.Message, duplicate bool, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.SendMessage",
		trace.WithAttributes(attribute.String("conversation.id", in.ConversationID.String())))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceMessage, authorize.ActionSend); err != nil {
		return nil, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("generate message id: %w", err)
	}
	nm := model.NewMessage{
		ID:              id,
		ConversationID:  in.ConversationID,
		SenderID:        caller.UserID,
		Body:            in.Body,
		Type:            model.MessageUser,
		ClientMessageID: in.ClientMessageID,
	}
	if err := nm.Validate(); err != nil {
		return nil, false, err
	}

	msg, duplicate, err = s.store.AppendMessage(ctx, nm)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Int64("message.seq", msg.Seq), attribute.Bool("message.duplicate", duplicate))
	if duplicate {
		return msg, true, nil
	}

	s.metrics.appended.Add(ctx, 1)
	s.publish(ctx, realtime.MessageEvent(msg))
	if s.notifier != nil && msg.Type == model.MessageUser {
		job := notify.Job{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			Preview:        msg.Body,
		}
		if !s.notifier.Enqueue(job) {
			s.logger.WarnContext(ctx, "notification queue full, message not notified",
				"conversation_id", msg.ConversationID, "message_id", msg.ID)
		}
	}
	return msg, false, nil
}

func (s *conversationService) FetchMessages(ctx context.Context, caller model.Caller, conversationID uuid.UUID, in FetchInput) (page *model.MessagePage, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.FetchMessages",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceMessage, authorize.ActionRead); err != nil {
		return nil, err
	}

	after, err := model.DecodeCursor(in.After)
	if err != nil {
		return nil, err
	}
	before, err := model.DecodeCursor(in.Before)
	if err != nil {
		return nil, err
	}
	if after > 0 && before > 0 && before <= after {
		return nil, fmt.Errorf("%w: before cursor must follow after cursor", model.ErrInvalidArguments)
	}

	if _, err := s.participantOf(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = s.cfg.PageSize
	case limit > s.cfg.MaxPageSize:
		limit = s.cfg.MaxPageSize
	}

	// One extra row tells whether the page is the last in its direction.
	msgs, err := s.store.FetchMessages(ctx, conversationID, model.Page{After: after, Before: before, Limit: limit + 1})
	if err != nil {
		return nil, err
	}

	backward := before > 0 && after == 0
	page = &model.MessagePage{Messages: msgs}
	if len(msgs) > limit {
		page.HasMore = true
		if backward {
			page.Messages = msgs[len(msgs)-limit:]
		} else {
			page.Messages = msgs[:limit]
		}
	}
	if page.Messages == nil {
		page.Messages = []*model.Message{}
	}

	if n := len(page.Messages); n > 0 {
		page.PrevCursor = model.EncodeCursor(page.Messages[0].Seq)
		page.NextCursor = model.EncodeCursor(page.Messages[n-1].Seq)
	} else {
		// An empty page leaves the caller where it was.
		page.NextCursor = model.EncodeCursor(after)
		page.PrevCursor = model.EncodeCursor(before)
	}
	span.SetAttributes(attribute.Int("message.count", len(page.Messages)))
	return page, nil
}

func (s *conversationService) MarkRead(ctx context.Context, caller model.Caller, conversationID uuid.UUID) (p *model.Participant, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.MarkRead",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceReadState, authorize.ActionManage); err != nil {
		return nil, err
	}

	part, changed, err := s.store.MarkRead(ctx, conversationID, caller.UserID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed && part.LastReadAt != nil {
		s.publish(ctx, realtime.ReadEvent(conversationID, caller.UserID, *part.LastReadAt))
	}
	return &part, nil
}

func (s *conversationService) Subscribe(ctx context.Context, caller model.Caller, conversationID uuid.UUID) (sub *realtime.Subscription, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.Subscribe",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer func() { end(span, err) }()

	if err := s.check(ctx, caller, authorize.ResourceMessage, authorize.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.participantOf(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	// Register before reading last_seq: an append racing with us is either
	// covered by the seed or buffered by the subscription.
	sub = s.hub.Subscribe(conversationID, caller.UserID)
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.Seed(conv.LastSeq)
	span.SetAttributes(attribute.Int64("conversation.last_seq", conv.LastSeq))
	return sub, nil
}

// check runs the API level policy for the caller.
func (s *conversationService) check(ctx context.Context, caller model.Caller, resource authorize.Resource, action authorize.Action) error {
	if caller.UserID == uuid.Nil {
		return model.ErrUnauthenticated
	}
	roles := authorize.RolesFor(caller.RoleTags())
	if err := s.auth.MustEnforce(ctx, roles, authorize.DomainMessaging, resource, action); err != nil {
		return denied(err, action, resource)
	}
	return nil
}

func (s *conversationService) participantOf(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller.UserID) {
		return nil, model.ErrNotParticipant
	}
	return conv, nil
}

// publish fans an event out. The write it describes is already committed,
// so failures are logged and the operation still succeeds; subscribers
// reconcile through FetchMessages.
func (s *conversationService) publish(ctx context.Context, ev realtime.Event) {
	if err := s.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.ErrorContext(ctx, "realtime publish failed",
			"conversation_id", ev.ConversationID, "kind", ev.Kind, "error", err)
	}
}

// attachProfiles fills participant profiles from the directory. Missing
// profiles are left empty; a directory outage degrades to bare ids.
func (s *conversationService) attachProfiles(ctx context.Context, convs ...*model.Conversation) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, c := range convs {
		for _, p := range c.Participants {
			if _, ok := seen[p.UserID]; !ok {
				seen[p.UserID] = struct{}{}
				ids = append(ids, p.UserID)
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	users, err := s.dir.Users(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "participant profiles unavailable", "error", err)
		return
	}
	for _, c := range convs {
		for i := range c.Participants {
			if u, ok := users[c.Participants[i].UserID]; ok {
				prof := u.Profile
				prof.UserID = u.ID
				c.Participants[i].Profile = &prof
			}
		}
	}
}

// displayName is the title for groups that have one, otherwise the names of
// the other participants.
func displayName(c *model.Conversation, viewer uuid.UUID) string {
	if c.Title != nil && *c.Title != "" {
		return *c.Title
	}
	var names []string
	for _, p := range c.Participants {
		if p.UserID == viewer || p.Profile == nil || p.Profile.DisplayName == "" {
			continue
		}
		names = append(names, p.Profile.DisplayName)
	}
	switch {
	case len(names) == 0:
		return "Conversation"
	case len(names) <= 3:
		return strings.Join(names, ", ")
	default:
		return fmt.Sprintf("%s and %d others", strings.Join(names[:2], ", "), len(names)-2)
	}
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
