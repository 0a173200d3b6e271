// Package realtime fans conversation events out to live subscribers.
//
// A Hub holds the subscribers of this process. Events reach the hub through
// a Bus: the local bus dispatches in process, natsbus and redisbus relay
// through a backplane so every instance sees every append.
package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

type EventKind string

const (
	EventMessage EventKind = "message"
	EventRead    EventKind = "read"
)

type ReadReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

// Event is one entry on a conversation stream. Message events carry the
// message seq and are delivered in seq order; read events are delivered as
// they arrive.
type Event struct {
	Kind           EventKind      `json:"kind"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Message        *model.Message `json:"message,omitempty"`
	Read           *ReadReceipt   `json:"read,omitempty"`
}

func MessageEvent(m *model.Message) Event {
	return Event{Kind: EventMessage, ConversationID: m.ConversationID, Message: m}
}

func ReadEvent(conversationID, userID uuid.UUID, at time.Time) Event {
	return Event{
		Kind:           EventRead,
		ConversationID: conversationID,
		Read:           &ReadReceipt{UserID: userID, At: at},
	}
}

// Seq returns the ordering key of a message event and 0 for everything else.
func (e Event) Seq() int64 {
	if e.Kind == EventMessage && e.Message != nil {
		return e.Message.Seq
	}
	return 0
}
