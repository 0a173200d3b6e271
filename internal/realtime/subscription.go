package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

// Subscription is one live view of a conversation. Message events are
// released in seq order exactly once; anything at or below the seed is
// history and never delivered. A subscriber that cannot keep up, or whose
// stream has a gap that does not fill in time, is terminated and Err
// reports model.ErrSubscriptionDropped.
type Subscription struct {
	ID             uint64
	ConversationID uuid.UUID
	UserID         uuid.UUID

	hub  *Hub
	cfg  Config
	ch   chan Event
	done chan struct{}

	mu      sync.Mutex
	next    int64 // next seq to release; 0 until seeded
	pending map[int64]Event
	gap     *time.Timer
	closed  bool
	err     error
}

func newSubscription(h *Hub, id uint64, conversationID, userID uuid.UUID) *Subscription {
	return &Subscription{
		ID:             id,
		ConversationID: conversationID,
		UserID:         userID,
		hub:            h,
		cfg:            h.cfg,
		ch:             make(chan Event, h.cfg.Buffer),
		done:           make(chan struct{}),
		pending:        make(map[int64]Event),
	}
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is nil after Close and model.ErrSubscriptionDropped after the hub
// terminated the subscription.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Seed sets the last seq the subscriber already has access to through
// history. Messages buffered before seeding are released or discarded
// accordingly. Seeding twice has no effect.
func (s *Subscription) Seed(lastSeq int64) {
	s.mu.Lock()
	if s.closed || s.next != 0 {
		s.mu.Unlock()
		return
	}
	s.next = lastSeq + 1
	for seq := range s.pending {
		if seq < s.next {
			delete(s.pending, seq)
		}
	}
	ok := s.flushLocked()
	s.mu.Unlock()

	if !ok {
		s.hub.remove(s)
	}
}

// Close unsubscribes. It never waits for in-flight publishes.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	s.terminateLocked(nil)
	s.mu.Unlock()
}

// deliver hands ev to the subscriber without blocking. It reports false
// when the subscriber was dropped.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	if ev.Kind != EventMessage {
		return s.emitLocked(ev)
	}

	seq := ev.Seq()
	if s.next != 0 && seq < s.next {
		return true
	}
	if _, dup := s.pending[seq]; dup {
		return true
	}
	if s.next == 0 || seq > s.next {
		if len(s.pending) >= s.cfg.ReorderWindow {
			s.terminateLocked(model.ErrSubscriptionDropped)
			return false
		}
		s.pending[seq] = ev
		if s.next != 0 {
			s.armGapLocked()
		}
		return true
	}

	if !s.emitLocked(ev) {
		return false
	}
	s.next++
	return s.flushLocked()
}

// flushLocked releases the contiguous run of pending messages starting at
// next.
func (s *Subscription) flushLocked() bool {
	for {
		ev, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		if !s.emitLocked(ev) {
			return false
		}
		s.next++
	}

	if len(s.pending) == 0 {
		s.stopGapLocked()
	} else {
		s.armGapLocked()
	}
	return true
}

func (s *Subscription) emitLocked(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		s.terminateLocked(model.ErrSubscriptionDropped)
		return false
	}
}

func (s *Subscription) armGapLocked() {
	if s.gap != nil || s.cfg.GapTimeout <= 0 {
		return
	}
	s.gap = time.AfterFunc(s.cfg.GapTimeout, s.gapExpired)
}

func (s *Subscription) stopGapLocked() {
	if s.gap != nil {
		s.gap.Stop()
		s.gap = nil
	}
}

func (s *Subscription) gapExpired() {
	s.mu.Lock()
	if s.closed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.terminateLocked(model.ErrSubscriptionDropped)
	s.mu.Unlock()

	s.hub.remove(s)
	s.hub.logger.Warn("realtime: subscriber dropped after gap",
		"conversation_id", s.ConversationID, "subscription_id", s.ID)
}

func (s *Subscription) terminateLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.stopGapLocked()
	s.pending = nil
	close(s.ch)
	close(s.done)
}
