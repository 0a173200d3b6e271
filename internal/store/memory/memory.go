// Package memory is an in-process implementation of store.Store used by
// tests and single node development setups.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps conversations in maps. The store level lock only guards the
// indexes and is held for map lookups; appends and read-state updates take
// the owning conversation's lock, so unrelated conversations never contend.
type Store struct {
	mu     sync.RWMutex
	convs  map[uuid.UUID]*conversation
	pairs  map[string]uuid.UUID
	byUser map[uuid.UUID][]uuid.UUID

	now func() time.Time
}

type conversation struct {
	mu       sync.Mutex
	conv     model.Conversation
	parts    map[uuid.UUID]*model.Participant
	order    []uuid.UUID
	messages []*model.Message
	byClient map[string]*model.Message
}

type Option func(*Store)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		convs:  make(map[uuid.UUID]*conversation),
		pairs:  make(map[string]uuid.UUID),
		byUser: make(map[uuid.UUID][]uuid.UUID),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateConversation(ctx context.Context, in model.NewConversation) (*model.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := in.PairKey()
	if key != nil {
		if id, ok := s.pairs[*key]; ok {
			c := s.convs[id]
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.snapshot(), false, nil
		}
	}

	c := &conversation{
		conv: model.Conversation{
			ID:        in.ID,
			Type:      in.Type,
			Title:     in.Title,
			Context:   in.Context,
			PairKey:   key,
			CreatedBy: in.CreatedBy,
			CreatedAt: in.CreatedAt,
		},
		parts:    make(map[uuid.UUID]*model.Participant, len(in.Members)),
		byClient: make(map[string]*model.Message),
	}
	for _, uid := range in.Members {
		if _, dup := c.parts[uid]; dup {
			continue
		}
		c.parts[uid] = &model.Participant{
			ConversationID: in.ID,
			UserID:         uid,
			JoinedAt:       in.CreatedAt,
		}
		c.order = append(c.order, uid)
		s.byUser[uid] = append(s.byUser[uid], in.ID)
	}

	s.convs[in.ID] = c
	if key != nil {
		s.pairs[*key] = in.ID
	}
	return c.snapshot(), true, nil
}

func (s *Store) FindDirect(ctx context.Context, a, b uuid.UUID) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.pairs[model.PairKey(a, b)]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	c, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := slices.Clone(s.byUser[userID])
	convs := make([]*conversation, 0, len(ids))
	for _, id := range ids {
		convs = append(convs, s.convs[id])
	}
	s.mu.RUnlock()

	out := make([]*model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		c.mu.Lock()
		sum := &model.ConversationSummary{Conversation: *c.snapshot()}
		if p, ok := c.parts[userID]; ok {
			sum.UnreadCount = p.UnreadCount
			sum.LastReadAt = copyTime(p.LastReadAt)
		}
		c.mu.Unlock()
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].SortKey(), out[j].SortKey()
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, in model.NewMessage) (*model.Message, bool, error) {
	c, err := s.lookup(ctx, in.ConversationID)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.parts[in.SenderID]; !ok {
		return nil, false, model.ErrNotParticipant
	}
	if in.ClientMessageID != nil {
		if prev, ok := c.byClient[*in.ClientMessageID]; ok {
			return copyMessage(prev), true, nil
		}
	}

	createdAt := s.now().UTC()
	if last := c.conv.LastMessageAt; last != nil && createdAt.Before(*last) {
		createdAt = *last
	}

	msg := &model.Message{
		ID:              in.ID,
		ConversationID:  in.ConversationID,
		Seq:             c.conv.LastSeq + 1,
		SenderID:        in.SenderID,
		Body:            in.Body,
		Type:            in.Type,
		ClientMessageID: in.ClientMessageID,
		CreatedAt:       createdAt,
	}

	c.messages = append(c.messages, msg)
	if in.ClientMessageID != nil {
		c.byClient[*in.ClientMessageID] = msg
	}
	c.conv.LastSeq = msg.Seq
	c.conv.LastMessageAt = &createdAt
	c.conv.LastMessage = msg.Snapshot()

	for uid, p := range c.parts {
		if uid != in.SenderID {
			p.UnreadCount++
		}
	}

	return copyMessage(msg), false, nil
}

func (s *Store) FetchMessages(ctx context.Context, conversationID uuid.UUID, page model.Page) ([]*model.Message, error) {
	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// seq n lives at index n-1.
	lo, hi := 0, len(c.messages)
	if page.After > 0 {
		lo = int(min(page.After, int64(hi)))
	}
	if page.Before > 0 {
		hi = int(min(page.Before-1, int64(hi)))
	}
	if lo >= hi {
		return []*model.Message{}, nil
	}

	if page.Limit > 0 && hi-lo > page.Limit {
		if page.Before > 0 && page.After == 0 {
			lo = hi - page.Limit
		} else {
			hi = lo + page.Limit
		}
	}

	out := make([]*model.Message, 0, hi-lo)
	for _, m := range c.messages[lo:hi] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (model.Participant, bool, error) {
	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return model.Participant{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[userID]
	if !ok {
		return model.Participant{}, false, model.ErrNotParticipant
	}
	if p.UnreadCount == 0 && p.LastReadAt != nil {
		return copyParticipant(p), false, nil
	}

	at = at.UTC()
	p.UnreadCount = 0
	p.LastReadAt = &at
	return copyParticipant(p), true, nil
}

func (s *Store) lookup(ctx context.Context, id uuid.UUID) (*conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	c, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return c, nil
}

// snapshot copies the conversation; c.mu must be held.
func (c *conversation) snapshot() *model.Conversation {
	out := c.conv
	out.Title = copyString(c.conv.Title)
	out.PairKey = copyString(c.conv.PairKey)
	out.LastMessageAt = copyTime(c.conv.LastMessageAt)
	if c.conv.Context != nil {
		ctx := *c.conv.Context
		out.Context = &ctx
	}
	if c.conv.LastMessage != nil {
		lm := *c.conv.LastMessage
		out.LastMessage = &lm
	}
	out.Participants = make([]model.Participant, 0, len(c.order))
	for _, uid := range c.order {
		out.Participants = append(out.Participants, copyParticipant(c.parts[uid]))
	}
	return &out
}

func copyParticipant(p *model.Participant) model.Participant {
	out := *p
	out.LastReadAt = copyTime(p.LastReadAt)
	return out
}

func copyMessage(m *model.Message) *model.Message {
	out := *m
	out.ClientMessageID = copyString(m.ClientMessageID)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
