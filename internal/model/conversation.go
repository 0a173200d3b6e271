package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroup
}

// ConversationContext links a conversation to a domain object, e.g. a care
// recipient whose care team is talking.
type ConversationContext struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// LastMessage is the denormalized snapshot kept on the conversation row for
// list rendering.
type LastMessage struct {
	ID       uuid.UUID   `json:"id"`
	Seq      int64       `json:"seq"`
	SenderID uuid.UUID   `json:"sender_id"`
	Body     string      `json:"body"`
	Type     MessageType `json:"type"`
}

type Conversation struct {
	ID            uuid.UUID            `json:"id"`
	Type          ConversationType     `json:"type"`
	Title         *string              `json:"title,omitempty"`
	Context       *ConversationContext `json:"context,omitempty"`
	PairKey       *string              `json:"-"`
	CreatedBy     uuid.UUID            `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
	LastSeq       int64                `json:"last_seq"`
	LastMessageAt *time.Time           `json:"last_message_at,omitempty"`
	LastMessage   *LastMessage         `json:"last_message,omitempty"`
	Participants  []Participant        `json:"participants"`
}

// SortKey is the time used for list ordering: the last message time, or the
// creation time for conversations that were never messaged.
func (c *Conversation) SortKey() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Participant returns the membership row for userID.
func (c *Conversation) Participant(userID uuid.UUID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	_, ok := c.Participant(userID)
	return ok
}

type Participant struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	UnreadCount    int64      `json:"unread_count"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
	Profile        *Profile   `json:"profile,omitempty"`
}

// ConversationSummary is a conversation as listed for one user.
type ConversationSummary struct {
	Conversation
	UnreadCount int64      `json:"unread_count"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
	DisplayName string     `json:"display_name"`
}

// NewConversation is the validated input of a create.
type NewConversation struct {
	ID        uuid.UUID
	Type      ConversationType
	Title     *string
	Context   *ConversationContext
	CreatedBy uuid.UUID
	Members   []uuid.UUID // distinct, includes CreatedBy
	CreatedAt time.Time
}

// PairKey returns the direct-conversation uniqueness key for an unordered
// pair of users: the two ids sorted and joined with ':'.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// CreateRequest is what a caller asks for before reconciliation.
type CreateRequest struct {
	Initiator   uuid.UUID
	MemberIDs   []uuid.UUID
	Type        ConversationType // optional; reconciled against the member count
	Title       *string
	ContextType string
	ContextID   *uuid.UUID
}

// Build reconciles the request into a NewConversation: members are
// de-duplicated, the initiator is added, and the type is derived from the
// distinct participant count. A derived direct/group classification always
// wins over an explicit type.
func (r CreateRequest) Build(id uuid.UUID, now time.Time, maxGroupSize int) (NewConversation, error) {
	if r.Initiator == uuid.Nil {
		return NewConversation{}, fmt.Errorf("%w: initiator is required", ErrInvalidArguments)
	}
	if len(r.MemberIDs) == 0 {
		return NewConversation{}, fmt.Errorf("%w: member list is empty", ErrInvalidArguments)
	}
	if r.Type != "" && !r.Type.Valid() {
		return NewConversation{}, fmt.Errorf("%w: unknown conversation type %q", ErrInvalidArguments, r.Type)
	}

	members := []uuid.UUID{r.Initiator}
	for _, m := range r.MemberIDs {
		if m == uuid.Nil {
			return NewConversation{}, fmt.Errorf("%w: member id is empty", ErrInvalidArguments)
		}
		if !slices.Contains(members, m) {
			members = append(members, m)
		}
	}
	if len(members) < 2 {
		return NewConversation{}, fmt.Errorf("%w: a conversation needs another participant", ErrInvalidArguments)
	}
	if maxGroupSize > 0 && len(members) > maxGroupSize {
		return NewConversation{}, fmt.Errorf("%w: at most %d participants allowed", ErrInvalidArguments, maxGroupSize)
	}

	typ := ConversationGroup
	if len(members) == 2 {
		typ = ConversationDirect
	}

	nc := NewConversation{
		ID:        id,
		Type:      typ,
		CreatedBy: r.Initiator,
		Members:   members,
		CreatedAt: now,
	}

	if r.Title != nil {
		if t := strings.TrimSpace(*r.Title); t != "" && typ == ConversationGroup {
			nc.Title = &t
		}
	}

	if r.ContextType != "" || r.ContextID != nil {
		if r.ContextType == "" || r.ContextID == nil || *r.ContextID == uuid.Nil {
			return NewConversation{}, fmt.Errorf("%w: context type and id must be given together", ErrInvalidArguments)
		}
		nc.Context = &ConversationContext{Type: r.ContextType, ID: *r.ContextID}
	}

	return nc, nil
}

// PairKey returns the uniqueness key for direct conversations and nil for
// groups.
func (n NewConversation) PairKey() *string {
	if n.Type != ConversationDirect || len(n.Members) != 2 {
		return nil
	}
	k := PairKey(n.Members[0], n.Members[1])
	return &k
}
