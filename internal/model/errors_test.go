package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUnauthorizedTexts(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		notWant string
	}{
		{"membership", ErrNotParticipant, "not a participant", ""},
		{"policy denial", fmt.Errorf("%w: may not contact user x", ErrUnauthorized), "may not contact user", "participant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, ErrUnauthorized) {
				t.Fatalf("%v is not ErrUnauthorized", tt.err)
			}
			msg := tt.err.Error()
			if !strings.Contains(msg, tt.want) {
				t.Errorf("%q does not mention %q", msg, tt.want)
			}
			if tt.notWant != "" && strings.Contains(msg, tt.notWant) {
				t.Errorf("%q mentions %q", msg, tt.notWant)
			}
		})
	}
}
