package email

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBuildNewMessageEmailEscapesContent(t *testing.T) {
	m := BuildNewMessageEmail(NewMessageEmailData{
		To:             "ana@example.com",
		RecipientName:  "Ana",
		SenderName:     "Nurse <Joy>",
		ConversationID: "c-1",
		Preview:        "<script>alert(1)</script>",
		BaseURL:        "https://care.example.com/",
	})

	if len(m.To) != 1 || m.To[0] != "ana@example.com" {
		t.Fatalf("To = %v", m.To)
	}
	if strings.Contains(m.HTMLBody, "<script>") {
		t.Fatal("html body carries unescaped message content")
	}
	if !strings.Contains(m.TextBody, "https://care.example.com/conversations/c-1") {
		t.Fatalf("text body missing link: %q", m.TextBody)
	}
	if _, err := buildMessage("noreply@example.com", m); err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"héllo wörld", 5, "héllo…"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestBuildMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		from string
		msg  Message
	}{
		{"no from", "", Message{Subject: "s", TextBody: "b"}},
		{"no subject", "a@b.c", Message{TextBody: "b"}},
		{"no body", "a@b.c", Message{Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invalid ErrInvalidMessage
			if _, err := buildMessage(tt.from, tt.msg); !errors.As(err, &invalid) {
				t.Fatalf("buildMessage() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestSendWhenDisabled(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var disabled ErrDisabled
	if err := c.Send(context.Background(), Message{}); !errors.As(err, &disabled) {
		t.Fatalf("Send() error = %v, want ErrDisabled", err)
	}
}
