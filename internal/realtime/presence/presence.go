// Package presence shares who is watching which conversation across
// instances. Each instance periodically marks its local viewers in a shared
// store with a TTL; a viewer counts as present while its mark is alive.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Alijeyrad/carelink/internal/realtime"
)

const lookupTimeout = 250 * time.Millisecond

// Local is the process's own view of its subscribers. *realtime.Hub
// implements it.
type Local interface {
	Watching(conversationID, userID uuid.UUID) bool
	Viewers() []realtime.Viewer
}

// Store holds presence marks shared by every instance.
type Store interface {
	Mark(ctx context.Context, keys []string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Tracker answers "is this user watching" for the whole cluster. With a nil
// store it only knows about local subscribers.
type Tracker struct {
	local  Local
	store  Store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func New(local Local, store Store, prefix string, ttl time.Duration, logger *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{local: local, store: store, prefix: prefix, ttl: ttl, logger: logger}
}

func (t *Tracker) key(conversationID, userID uuid.UUID) string {
	return t.prefix + ":presence:" + conversationID.String() + ":" + userID.String()
}

// Watching reports whether userID watches conversationID on this or any
// other instance. A failed shared lookup counts as not watching, which at
// worst sends a redundant notification.
func (t *Tracker) Watching(ctx context.Context, conversationID, userID uuid.UUID) bool {
	if t.local.Watching(conversationID, userID) {
		return true
	}
	if t.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	ok, err := t.store.Exists(ctx, t.key(conversationID, userID))
	if err != nil {
		t.logger.Warn("presence: lookup failed", "conversation_id", conversationID, "user_id", userID, "error", err)
		return false
	}
	return ok
}

// Refresh marks every local viewer as present for one TTL.
func (t *Tracker) Refresh(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	viewers := t.local.Viewers()
	if len(viewers) == 0 {
		return nil
	}
	keys := make([]string, len(viewers))
	for i, v := range viewers {
		keys[i] = t.key(v.ConversationID, v.UserID)
	}
	return t.store.Mark(ctx, keys, t.ttl)
}

// Run refreshes three times per TTL until ctx ends, so a mark outlives one
// missed refresh.
func (t *Tracker) Run(ctx context.Context) {
	if t.store == nil {
		return
	}
	tick := time.NewTicker(t.ttl / 3)
	defer tick.Stop()
	for {
		if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn("presence: refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

var _ Store = (*RedisStore)(nil)

// RedisStore keeps one expiring key per viewer.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Mark(ctx context.Context, keys []string, ttl time.Duration) error {
	pipe := r.rdb.Pipeline()
	for _, k := range keys {
		pipe.Set(ctx, k, 1, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
