// Package natsbus relays conversation events between instances over NATS
// core subjects.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Alijeyrad/carelink/internal/realtime"
)

var _ realtime.Bus = (*Bus)(nil)

type Bus struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
	logger *slog.Logger
}

// New subscribes to every conversation subject under prefix and hands
// decoded events to d. NATS runs the handler serially for the
// subscription, so events from one publisher arrive in publish order.
func New(nc *nats.Conn, prefix string, d realtime.Dispatcher, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{nc: nc, prefix: prefix, logger: logger}

	subject := prefix + ".conversation.*"
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := realtime.Decode(msg.Data)
		if err != nil {
			b.logger.Warn("natsbus: dropping undecodable event", "subject", msg.Subject, "error", err)
			return
		}
		d.Dispatch(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.sub = sub
	return b, nil
}

func (b *Bus) Publish(ctx context.Context, ev realtime.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := realtime.Encode(ev)
	if err != nil {
		return err
	}
	subject := realtime.Topic(b.prefix, ".", ev.ConversationID)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close unsubscribes; the connection itself is owned by the caller.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
