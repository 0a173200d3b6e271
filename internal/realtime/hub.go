package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

type Config struct {
	// Buffer is the per subscriber channel capacity.
	Buffer int
	// ReorderWindow bounds how many out of order messages a subscriber may
	// hold while waiting for a missing seq.
	ReorderWindow int
	// GapTimeout is how long a missing seq may stay missing.
	GapTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Buffer:        64,
		ReorderWindow: 32,
		GapTimeout:    3 * time.Second,
	}
}

// Hub tracks the live subscriptions of this process, keyed by conversation.
// Dispatch never blocks on a subscriber.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[uuid.UUID]map[uint64]*Subscription
	closed bool

	nextID atomic.Uint64
	live   atomic.Int64
}

func NewHub(cfg Config, logger *slog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = def.ReorderWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		topics: make(map[uuid.UUID]map[uint64]*Subscription),
	}
}

// Subscribe registers a subscriber for conversationID. The caller must Seed
// the subscription with the conversation's current last seq once it has
// read it; registering first guarantees nothing committed afterwards is
// missed.
func (h *Hub) Subscribe(conversationID, userID uuid.UUID) *Subscription {
	sub := newSubscription(h, h.nextID.Add(1), conversationID, userID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.mu.Lock()
		sub.terminateLocked(model.ErrSubscriptionDropped)
		sub.mu.Unlock()
		return sub
	}
	topic := h.topics[conversationID]
	if topic == nil {
		topic = make(map[uint64]*Subscription)
		h.topics[conversationID] = topic
	}
	topic[sub.ID] = sub
	h.live.Add(1)
	return sub
}

// Dispatch delivers ev to every subscriber of its conversation.
func (h *Hub) Dispatch(ev Event) {
	h.mu.RLock()
	topic := h.topics[ev.ConversationID]
	subs := make([]*Subscription, 0, len(topic))
	for _, s := range topic {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.deliver(ev) {
			h.remove(s)
			h.logger.Warn("realtime: subscriber dropped",
				"conversation_id", ev.ConversationID, "subscription_id", s.ID, "user_id", s.UserID)
		}
	}
}

// Watching reports whether userID has a live subscription on conversationID.
func (h *Hub) Watching(conversationID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.topics[conversationID] {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Viewer is one user holding a live subscription on one conversation.
type Viewer struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
}

// Viewers lists the distinct conversation and user pairs with a live
// subscription.
func (h *Hub) Viewers() []Viewer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[Viewer]struct{}, len(h.topics))
	out := make([]Viewer, 0, len(h.topics))
	for conv, topic := range h.topics {
		for _, s := range topic {
			v := Viewer{ConversationID: conv, UserID: s.UserID}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Live is the number of registered subscriptions.
func (h *Hub) Live() int64 { return h.live.Load() }

// Close terminates every subscription with model.ErrSubscriptionDropped so
// clients reconnect to another instance.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	topics := h.topics
	h.topics = make(map[uuid.UUID]map[uint64]*Subscription)
	h.mu.Unlock()

	for _, topic := range topics {
		for _, s := range topic {
			s.mu.Lock()
			s.terminateLocked(model.ErrSubscriptionDropped)
			s.mu.Unlock()
			h.live.Add(-1)
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topic := h.topics[s.ConversationID]
	if _, ok := topic[s.ID]; !ok {
		return
	}
	delete(topic, s.ID)
	if len(topic) == 0 {
		delete(h.topics, s.ConversationID)
	}
	h.live.Add(-1)
}
