package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

func TestCodecKeepsOrderingKeyAndTime(t *testing.T) {
	key := "client-7"
	at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	in := MessageEvent(&model.Message{
		ID:              uuid.New(),
		ConversationID:  uuid.New(),
		Seq:             42,
		SenderID:        uuid.New(),
		Body:            "hello",
		Type:            model.MessageUser,
		ClientMessageID: &key,
		CreatedAt:       at,
	})

	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	if out.Seq() != 42 || out.ConversationID != in.ConversationID {
		t.Errorf("got seq=%d conv=%s", out.Seq(), out.ConversationID)
	}
	if !out.Message.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", out.Message.CreatedAt, at)
	}
	if out.Message.ClientMessageID == nil || *out.Message.ClientMessageID != key {
		t.Errorf("client message id lost")
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		ev   wireEvent
	}{
		{"unknown kind", wireEvent{Kind: "typing", ConversationID: uuid.New()}},
		{"message without body", wireEvent{Kind: string(EventMessage), ConversationID: uuid.New()}},
		{"read without receipt", wireEvent{Kind: string(EventRead), ConversationID: uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encMode.Marshal(tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Decode(data); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := Decode([]byte{0xff, 0x00}); err == nil {
		t.Error("expected an error for garbage input")
	}
}
