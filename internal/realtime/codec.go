package realtime

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("realtime: cbor encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("realtime: cbor decoder: " + err.Error())
	}
}

// wireEvent is the backplane form of an Event. Integer keys keep the
// payload small; unknown keys are ignored so nodes can be upgraded one at
// a time.
type wireEvent struct {
	Kind           string       `cbor:"1,keyasint"`
	ConversationID uuid.UUID    `cbor:"2,keyasint"`
	Message        *wireMessage `cbor:"3,keyasint,omitempty"`
	ReadUserID     *uuid.UUID   `cbor:"4,keyasint,omitempty"`
	ReadAt         *time.Time   `cbor:"5,keyasint,omitempty"`
}

type wireMessage struct {
	ID              uuid.UUID `cbor:"1,keyasint"`
	Seq             int64     `cbor:"2,keyasint"`
	SenderID        uuid.UUID `cbor:"3,keyasint"`
	Body            string    `cbor:"4,keyasint"`
	Type            string    `cbor:"5,keyasint"`
	ClientMessageID *string   `cbor:"6,keyasint,omitempty"`
	CreatedAt       time.Time `cbor:"7,keyasint"`
}

// Encode serializes an event for the backplane.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Kind: string(ev.Kind), ConversationID: ev.ConversationID}
	if m := ev.Message; m != nil {
		w.Message = &wireMessage{
			ID:              m.ID,
			Seq:             m.Seq,
			SenderID:        m.SenderID,
			Body:            m.Body,
			Type:            string(m.Type),
			ClientMessageID: m.ClientMessageID,
			CreatedAt:       m.CreatedAt,
		}
	}
	if r := ev.Read; r != nil {
		w.ReadUserID = &r.UserID
		w.ReadAt = &r.At
	}
	return encMode.Marshal(w)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	ev := Event{Kind: EventKind(w.Kind), ConversationID: w.ConversationID}
	switch ev.Kind {
	case EventMessage:
		if w.Message == nil {
			return Event{}, fmt.Errorf("decode event: message event without message")
		}
		ev.Message = &model.Message{
			ID:              w.Message.ID,
			ConversationID:  w.ConversationID,
			Seq:             w.Message.Seq,
			SenderID:        w.Message.SenderID,
			Body:            w.Message.Body,
			Type:            model.MessageType(w.Message.Type),
			ClientMessageID: w.Message.ClientMessageID,
			CreatedAt:       w.Message.CreatedAt.UTC(),
		}
	case EventRead:
		if w.ReadUserID == nil || w.ReadAt == nil {
			return Event{}, fmt.Errorf("decode event: read event without receipt")
		}
		ev.Read = &ReadReceipt{UserID: *w.ReadUserID, At: w.ReadAt.UTC()}
	default:
		return Event{}, fmt.Errorf("decode event: unknown kind %q", w.Kind)
	}
	return ev, nil
}
