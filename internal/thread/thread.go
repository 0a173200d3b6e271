// Package thread is the client side model of one conversation: messages the
// server confirmed, ordered by seq, and messages still in flight, keyed by
// their client message id. The two sets never share storage; a pending
// entry leaves the pending set only through Confirm, Fail then Discard, or
// an applied message carrying its key.
//
// A View is not safe for concurrent use.
package thread

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

var (
	ErrDuplicateKey = errors.New("client message id already pending")
	ErrUnknownKey   = errors.New("no pending message with this client message id")
	ErrWrongThread  = errors.New("message belongs to another conversation")
)

type State string

const (
	StatePending   State = "pending"
	StateFailed    State = "failed"
	StateConfirmed State = "confirmed"
)

// Item is one rendered row.
type Item struct {
	Key       string // client message id, empty for messages from others
	Seq       int64  // 0 while not confirmed
	MessageID uuid.UUID
	SenderID  uuid.UUID
	Body      string
	At        time.Time
	State     State
	Err       error
}

type pending struct {
	key    string
	sender uuid.UUID
	body   string
	at     time.Time
	err    error // set once failed
}

type View struct {
	conversationID uuid.UUID

	confirmed map[int64]*model.Message
	pending   map[string]*pending
	order     []string // pending keys in submission order
}

func New(conversationID uuid.UUID) *View {
	return &View{
		conversationID: conversationID,
		confirmed:      make(map[int64]*model.Message),
		pending:        make(map[string]*pending),
	}
}

// Add records an optimistic message before the append is sent.
func (v *View) Add(key string, sender uuid.UUID, body string, at time.Time) error {
	if key == "" {
		return fmt.Errorf("%w: client message id is required", model.ErrInvalidArguments)
	}
	if _, ok := v.pending[key]; ok {
		return ErrDuplicateKey
	}
	v.pending[key] = &pending{key: key, sender: sender, body: body, at: at}
	v.order = append(v.order, key)
	return nil
}

// Confirm resolves the pending entry key with the stored message. Confirming
// a key that a live event already resolved only records the message.
func (v *View) Confirm(key string, msg *model.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: confirmed message is nil", model.ErrInvalidArguments)
	}
	if msg.ConversationID != v.conversationID {
		return ErrWrongThread
	}
	v.drop(key)
	v.confirmed[msg.Seq] = msg
	return nil
}

// Fail marks the pending entry key as failed. It stays visible until
// Retry or Discard.
func (v *View) Fail(key string, err error) error {
	p, ok := v.pending[key]
	if !ok {
		return ErrUnknownKey
	}
	if err == nil {
		err = errors.New("send failed")
	}
	p.err = err
	return nil
}

// Retry moves a failed entry back to pending and returns its body so the
// caller can resend under the same key.
func (v *View) Retry(key string) (string, error) {
	p, ok := v.pending[key]
	if !ok {
		return "", ErrUnknownKey
	}
	p.err = nil
	return p.body, nil
}

// Discard drops a pending or failed entry.
func (v *View) Discard(key string) error {
	if _, ok := v.pending[key]; !ok {
		return ErrUnknownKey
	}
	v.drop(key)
	return nil
}

// Apply merges messages from a fetch or the live stream. Seqs already known
// are ignored; a message carrying a pending key resolves that entry.
func (v *View) Apply(msgs ...*model.Message) error {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.ConversationID != v.conversationID {
			return ErrWrongThread
		}
		if _, ok := v.confirmed[m.Seq]; ok {
			continue
		}
		v.confirmed[m.Seq] = m
		if m.ClientMessageID != nil {
			v.drop(*m.ClientMessageID)
		}
	}
	return nil
}

// LastSeq is the highest confirmed seq, the after cursor to reconcile from
// after a dropped stream.
func (v *View) LastSeq() int64 {
	var last int64
	for seq := range v.confirmed {
		last = max(last, seq)
	}
	return last
}

// Pending is the number of unresolved entries, failed ones included.
func (v *View) Pending() int { return len(v.pending) }

// Items renders confirmed messages by seq followed by pending entries in
// submission order.
func (v *View) Items() []Item {
	seqs := make([]int64, 0, len(v.confirmed))
	for seq := range v.confirmed {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)

	out := make([]Item, 0, len(seqs)+len(v.order))
	for _, seq := range seqs {
		m := v.confirmed[seq]
		it := Item{
			Seq:       m.Seq,
			MessageID: m.ID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			At:        m.CreatedAt,
			State:     StateConfirmed,
		}
		if m.ClientMessageID != nil {
			it.Key = *m.ClientMessageID
		}
		out = append(out, it)
	}
	for _, key := range v.order {
		p := v.pending[key]
		it := Item{Key: p.key, SenderID: p.sender, Body: p.body, At: p.at, State: StatePending}
		if p.err != nil {
			it.State, it.Err = StateFailed, p.err
		}
		out = append(out, it)
	}
	return out
}

func (v *View) drop(key string) {
	if _, ok := v.pending[key]; !ok {
		return
	}
	delete(v.pending, key)
	v.order = slices.DeleteFunc(v.order, func(k string) bool { return k == key })
}
