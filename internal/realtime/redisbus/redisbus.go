// Package redisbus relays conversation events between instances over Redis
// Pub/Sub.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Alijeyrad/carelink/internal/realtime"
)

var _ realtime.Bus = (*Bus)(nil)

type Bus struct {
	rdb    redis.UniversalClient
	prefix string
	ps     *redis.PubSub
	done   chan struct{}
	logger *slog.Logger
}

// New pattern-subscribes to every conversation channel under prefix and
// starts relaying decoded events to d until Close.
func New(ctx context.Context, rdb redis.UniversalClient, prefix string, d realtime.Dispatcher, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pattern := prefix + ":conversation:*"
	ps := rdb.PSubscribe(ctx, pattern)
	// Wait for the subscription confirmation so no publish is missed after
	// New returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	b := &Bus{
		rdb:    rdb,
		prefix: prefix,
		ps:     ps,
		done:   make(chan struct{}),
		logger: logger,
	}
	go b.relay(ps.Channel(), d)
	return b, nil
}

func (b *Bus) relay(ch <-chan *redis.Message, d realtime.Dispatcher) {
	defer close(b.done)
	for msg := range ch {
		ev, err := realtime.Decode([]byte(msg.Payload))
		if err != nil {
			b.logger.Warn("redisbus: dropping undecodable event", "channel", msg.Channel, "error", err)
			continue
		}
		d.Dispatch(ev)
	}
}

func (b *Bus) Publish(ctx context.Context, ev realtime.Event) error {
	data, err := realtime.Encode(ev)
	if err != nil {
		return err
	}
	channel := realtime.Topic(b.prefix, ":", ev.ConversationID)
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close stops the relay and waits for it to exit.
func (b *Bus) Close() error {
	err := b.ps.Close()
	<-b.done
	return err
}
