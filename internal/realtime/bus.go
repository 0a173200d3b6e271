package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Bus carries events from the writer to every instance's hub.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Dispatcher receives events from a bus. *Hub implements it.
type Dispatcher interface {
	Dispatch(ev Event)
}

// LocalBus dispatches straight into the process's hub. It is the bus for a
// single instance deployment.
type LocalBus struct {
	d Dispatcher
}

func NewLocalBus(d Dispatcher) *LocalBus {
	return &LocalBus{d: d}
}

func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.d.Dispatch(ev)
	return nil
}

func (b *LocalBus) Close() error { return nil }

// Topic is the backplane subject of a conversation, e.g.
// "carelink.conversation.<id>".
func Topic(prefix, sep string, conversationID uuid.UUID) string {
	return fmt.Sprintf("%s%sconversation%s%s", prefix, sep, sep, conversationID)
}
