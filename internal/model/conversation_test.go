package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPairKey(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	if PairKey(a, b) != PairKey(b, a) {
		t.Fatalf("PairKey is order dependent: %q vs %q", PairKey(a, b), PairKey(b, a))
	}
	want := a.String() + ":" + b.String()
	if got := PairKey(b, a); got != want {
		t.Errorf("PairKey() = %q, want %q", got, want)
	}
}

func TestCreateRequestBuild(t *testing.T) {
	initiator := uuid.New()
	b, c, d := uuid.New(), uuid.New(), uuid.New()
	title := "  Care Team "
	ctxID := uuid.New()
	now := time.Now()

	tests := []struct {
		name        string
		req         CreateRequest
		maxGroup    int
		wantErr     error
		wantType    ConversationType
		wantMembers int
		wantTitle   string
	}{
		{
			name:    "empty member list",
			req:     CreateRequest{Initiator: initiator},
			wantErr: ErrInvalidArguments,
		},
		{
			name:    "only the initiator",
			req:     CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{initiator}},
			wantErr: ErrInvalidArguments,
		},
		{
			name:        "one recipient is direct",
			req:         CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b}},
			wantType:    ConversationDirect,
			wantMembers: 2,
		},
		{
			name:        "explicit group with one recipient is reconciled to direct",
			req:         CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b}, Type: ConversationGroup, Title: &title},
			wantType:    ConversationDirect,
			wantMembers: 2,
		},
		{
			name:        "duplicates and initiator are collapsed",
			req:         CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b, b, initiator}},
			wantType:    ConversationDirect,
			wantMembers: 2,
		},
		{
			name:        "three recipients is a group",
			req:         CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b, c, d}, Type: ConversationGroup, Title: &title},
			wantType:    ConversationGroup,
			wantMembers: 4,
			wantTitle:   "Care Team",
		},
		{
			name:     "group size cap",
			req:      CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b, c, d}},
			maxGroup: 3,
			wantErr:  ErrInvalidArguments,
		},
		{
			name:    "unknown type",
			req:     CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b}, Type: "broadcast"},
			wantErr: ErrInvalidArguments,
		},
		{
			name:    "context type without id",
			req:     CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b}, ContextType: "care_recipient"},
			wantErr: ErrInvalidArguments,
		},
		{
			name:        "context is kept",
			req:         CreateRequest{Initiator: initiator, MemberIDs: []uuid.UUID{b}, ContextType: "care_recipient", ContextID: &ctxID},
			wantType:    ConversationDirect,
			wantMembers: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc, err := tt.req.Build(uuid.New(), now, tt.maxGroup)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() unexpected error: %v", err)
			}
			if nc.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", nc.Type, tt.wantType)
			}
			if len(nc.Members) != tt.wantMembers {
				t.Errorf("len(Members) = %d, want %d", len(nc.Members), tt.wantMembers)
			}
			if nc.Members[0] != initiator {
				t.Errorf("initiator must be the first member")
			}
			if tt.wantTitle != "" && (nc.Title == nil || *nc.Title != tt.wantTitle) {
				t.Errorf("Title = %v, want %q", nc.Title, tt.wantTitle)
			}
			if nc.Type == ConversationDirect {
				if nc.Title != nil {
					t.Errorf("direct conversations derive their title, got %q", *nc.Title)
				}
				if nc.PairKey() == nil {
					t.Errorf("direct conversation without pair key")
				}
			} else if nc.PairKey() != nil {
				t.Errorf("group conversation must not carry a pair key")
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	for _, seq := range []int64{1, 42, 1 << 40} {
		got, err := DecodeCursor(EncodeCursor(seq))
		if err != nil {
			t.Fatalf("DecodeCursor(EncodeCursor(%d)) error: %v", seq, err)
		}
		if got != seq {
			t.Errorf("round trip = %d, want %d", got, seq)
		}
	}

	if seq, err := DecodeCursor(""); err != nil || seq != 0 {
		t.Errorf("empty cursor = (%d, %v), want (0, nil)", seq, err)
	}
	for _, bad := range []string{"!!", "eA", EncodeCursor(0) + "x"} {
		if _, err := DecodeCursor(bad); !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("DecodeCursor(%q) error = %v, want ErrInvalidArguments", bad, err)
		}
	}
}

func TestNewMessageValidate(t *testing.T) {
	conv, sender := uuid.New(), uuid.New()
	blank := "   "

	m := NewMessage{ConversationID: conv, SenderID: sender, Body: "  hello  ", ClientMessageID: &blank}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if m.Body != "hello" {
		t.Errorf("Body = %q, want trimmed", m.Body)
	}
	if m.Type != MessageUser {
		t.Errorf("Type = %q, want default %q", m.Type, MessageUser)
	}
	if m.ClientMessageID != nil {
		t.Errorf("blank client message id should be dropped")
	}

	empty := NewMessage{ConversationID: conv, SenderID: sender, Body: " \n\t"}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("empty body error = %v, want ErrInvalidArguments", err)
	}
}
