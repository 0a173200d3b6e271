// Package store defines the persistence boundary of the messaging core.
//
// Every mutating method is a single atomic operation against the backing
// engine. Implementations must uphold two invariants under concurrent
// callers: a direct conversation exists at most once per unordered pair of
// users, and unread counters never lose an increment.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

// ConversationStore owns conversation and participant rows.
type ConversationStore interface {
	// CreateConversation inserts the conversation and all participant rows.
	// Direct conversations are deduplicated by pair key: when one already
	// exists it is returned with created=false and nothing is written.
	CreateConversation(ctx context.Context, in model.NewConversation) (conv *model.Conversation, created bool, err error)

	// FindDirect returns the direct conversation between a and b, in either
	// order, or model.ErrNotFound.
	FindDirect(ctx context.Context, a, b uuid.UUID) (*model.Conversation, error)

	// GetConversation returns a conversation with its participants, or
	// model.ErrNotFound.
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)

	// ListConversations returns every conversation userID participates in,
	// most recently active first.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error)
}

// MessageStore owns the ordered messages of a conversation.
type MessageStore interface {
	// AppendMessage, in one transaction: checks the sender is a participant
	// (model.ErrUnauthorized otherwise), assigns the next seq, inserts the
	// message, refreshes the conversation's last message snapshot and
	// increments the unread counter of every other participant.
	//
	// When ClientMessageID matches an earlier message of the same
	// conversation, that message is returned with duplicate=true and nothing
	// is written.
	AppendMessage(ctx context.Context, in model.NewMessage) (msg *model.Message, duplicate bool, err error)

	// FetchMessages returns a page of messages in ascending seq order.
	FetchMessages(ctx context.Context, conversationID uuid.UUID, page model.Page) ([]*model.Message, error)
}

// ReadStateStore owns the per participant read state.
type ReadStateStore interface {
	// MarkRead zeroes the participant's unread counter and stamps
	// last_read_at. When nothing is unread and the participant has read
	// before, the call changes nothing and reports changed=false. It returns
	// model.ErrUnauthorized for non participants.
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (p model.Participant, changed bool, err error)
}

type Store interface {
	ConversationStore
	MessageStore
	ReadStateStore

	Close() error
}
