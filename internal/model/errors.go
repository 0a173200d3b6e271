package model

import (
	"errors"
	"fmt"
)

// Messaging error taxonomy. Callers match with errors.Is; adapters wrap these
// with context using fmt.Errorf("...: %w", err).
var (
	ErrInvalidArguments    = errors.New("invalid arguments")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("conversation not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrSubscriptionDropped = errors.New("subscription dropped")
	ErrResolverUnavailable = errors.New("contact resolver unavailable")
)

// ErrNotParticipant is the membership flavour of ErrUnauthorized.
var ErrNotParticipant = fmt.Errorf("%w: not a participant in this conversation", ErrUnauthorized)
