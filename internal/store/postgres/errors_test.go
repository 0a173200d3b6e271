package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/Alijeyrad/carelink/internal/model"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
		keep        error
	}{
		{"nil", nil, false, nil},
		{"bad conn", driver.ErrBadConn, true, nil},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true, nil},
		{"connection failure", &pq.Error{Code: "08006"}, true, nil},
		{"too many connections", &pq.Error{Code: "53300"}, true, nil},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true, nil},
		{"serialization", &pq.Error{Code: "40001"}, true, nil},
		{"syntax error", &pq.Error{Code: "42601"}, false, nil},
		{"not found passes through", model.ErrNotFound, false, model.ErrNotFound},
		{"unauthorized passes through", model.ErrUnauthorized, false, model.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate("op", tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("translate(nil) = %v", got)
				}
				return
			}
			if errors.Is(got, model.ErrStoreUnavailable) != tt.unavailable {
				t.Errorf("unavailable = %v, want %v (%v)", !tt.unavailable, tt.unavailable, got)
			}
			if tt.keep != nil && got != tt.keep {
				t.Errorf("got %v, want %v unchanged", got, tt.keep)
			}
		})
	}
}

func TestSchemaConstraints(t *testing.T) {
	unique := map[string]bool{}
	for _, tbl := range Tables {
		for _, idx := range tbl.Indexes {
			if idx.Unique {
				unique[idx.Name] = true
			}
		}
	}
	for _, name := range []string{
		"conversations_pair_key_key",
		"messages_conversation_seq_key",
		"messages_conversation_client_key",
	} {
		if !unique[name] {
			t.Errorf("missing unique index %s", name)
		}
	}
	if participantsSchema.ForeignKeys[0].RefTable != conversationsSchema {
		t.Error("participants foreign key is not linked")
	}
}
