package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	return t == MessageUser || t == MessageSystem
}

type Message struct {
	ID              uuid.UUID   `json:"id"`
	ConversationID  uuid.UUID   `json:"conversation_id"`
	Seq             int64       `json:"seq"`
	SenderID        uuid.UUID   `json:"sender_id"`
	Body            string      `json:"body"`
	Type            MessageType `json:"type"`
	ClientMessageID *string     `json:"client_message_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Snapshot returns the denormalized form stored on the conversation.
func (m *Message) Snapshot() *LastMessage {
	return &LastMessage{
		ID:       m.ID,
		Seq:      m.Seq,
		SenderID: m.SenderID,
		Body:     m.Body,
		Type:     m.Type,
	}
}

// NewMessage is the validated input of an append. Seq and CreatedAt are
// assigned by the store.
type NewMessage struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	SenderID        uuid.UUID
	Body            string
	Type            MessageType
	ClientMessageID *string
}

// Validate trims the body and checks the append preconditions that do not
// need the store.
func (n *NewMessage) Validate() error {
	n.Body = strings.TrimSpace(n.Body)
	if n.Body == "" {
		return fmt.Errorf("%w: message body is empty", ErrInvalidArguments)
	}
	if n.Type == "" {
		n.Type = MessageUser
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidArguments, n.Type)
	}
	if n.ConversationID == uuid.Nil || n.SenderID == uuid.Nil {
		return fmt.Errorf("%w: conversation and sender are required", ErrInvalidArguments)
	}
	if n.ClientMessageID != nil {
		k := strings.TrimSpace(*n.ClientMessageID)
		switch {
		case k == "":
			n.ClientMessageID = nil
		case len(k) > 128:
			return fmt.Errorf("%w: client message id is too long", ErrInvalidArguments)
		default:
			n.ClientMessageID = &k
		}
	}
	return nil
}

// Page selects a window of a conversation's messages by seq. After and
// Before are exclusive bounds; zero means unbounded. When Before is set the
// page closest to Before is returned, still in ascending order.
type Page struct {
	After  int64
	Before int64
	Limit  int
}

type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	PrevCursor string     `json:"prev_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// EncodeCursor turns a seq into an opaque cursor.
func EncodeCursor(seq int64) string {
	if seq <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte("s" + strconv.FormatInt(seq, 10)))
}

// DecodeCursor is the inverse of EncodeCursor. An empty cursor decodes to 0.
func DecodeCursor(c string) (int64, error) {
	if c == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil || len(raw) < 2 || raw[0] != 's' {
		return 0, fmt.Errorf("%w: malformed cursor", ErrInvalidArguments)
	}
	seq, err := strconv.ParseInt(string(raw[1:]), 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: malformed cursor", ErrInvalidArguments)
	}
	return seq, nil
}
