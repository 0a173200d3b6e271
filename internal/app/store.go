package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/realtime"
	"github.com/Alijeyrad/carelink/internal/realtime/natsbus"
	"github.com/Alijeyrad/carelink/internal/realtime/presence"
	"github.com/Alijeyrad/carelink/internal/realtime/redisbus"
	"github.com/Alijeyrad/carelink/internal/store"
	"github.com/Alijeyrad/carelink/internal/store/memory"
	"github.com/Alijeyrad/carelink/internal/store/postgres"
	"github.com/Alijeyrad/carelink/pkg/database"
)

// StoreModule provides the messaging store, the directory and the realtime
// fan-out.
var StoreModule = fx.Module("store",
	fx.Provide(ProvideStore),
	fx.Provide(ProvideDirectory),
	fx.Provide(ProvideHub),
	fx.Provide(ProvideBus),
	fx.Provide(ProvidePresence),
)

var errNoDatabase = errors.New("a postgres component is configured but the database is not")

func ProvideStore(lc fx.Lifecycle, cfg *config.Config, db *database.DB) (store.Store, error) {
	var s store.Store
	switch cfg.Messaging.Store {
	case config.StoreMemory:
		slog.Warn("using the in-memory message store; data is lost on restart")
		s = memory.New()
	default:
		if db == nil {
			return nil, errNoDatabase
		}
		if db.Config().AutoMigrate {
			opts := db.Config().MigrateOptions()
			if err := postgres.Migrate(context.Background(), db.GetConnection(), opts...); err != nil {
				return nil, err
			}
		}
		s = postgres.New(db.GetConnection())
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return s.Close() },
	})
	return s, nil
}

func ProvideDirectory(cfg *config.Config, db *database.DB, rdb redis.UniversalClient) (directory.Directory, error) {
	var dir directory.Directory
	switch cfg.Directory.Driver {
	case config.DirectoryStatic:
		static, err := directory.LoadStatic(cfg.Directory.StaticPath)
		if err != nil {
			return nil, err
		}
		dir = static
	case config.DirectoryPostgres:
		if db == nil {
			return nil, errNoDatabase
		}
		dir = directory.NewPostgres(db.GetConnection())
	default:
		return nil, fmt.Errorf("%w: %q", directory.ErrUnknownDriver, cfg.Directory.Driver)
	}

	if rdb != nil && cfg.Directory.CacheTTLSeconds > 0 {
		dir = directory.NewCached(dir, rdb, time.Duration(cfg.Directory.CacheTTLSeconds)*time.Second)
	}
	return dir, nil
}

func ProvideHub(lc fx.Lifecycle, cfg *config.Config) *realtime.Hub {
	m := cfg.Messaging
	hub := realtime.NewHub(realtime.Config{
		Buffer:        m.SubscriberBuffer,
		ReorderWindow: m.ReorderWindow,
		GapTimeout:    time.Duration(m.GapTimeoutMs) * time.Millisecond,
	}, slog.Default())
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

func ProvideBus(lc fx.Lifecycle, cfg *config.Config, hub *realtime.Hub, nc *nats.Conn, rdb redis.UniversalClient) (realtime.Bus, error) {
	var (
		bus realtime.Bus
		err error
	)
	switch cfg.Messaging.Backplane {
	case config.BackplaneNats:
		bus, err = natsbus.New(nc, cfg.Messaging.BackplanePrefix, hub, slog.Default())
	case config.BackplaneRedis:
		if rdb == nil {
			return nil, errors.New("messaging.backplane is redis but redis.addr is empty")
		}
		bus, err = redisbus.New(context.Background(), rdb, cfg.Messaging.BackplanePrefix, hub, slog.Default())
	default:
		bus = realtime.NewLocalBus(hub)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("realtime backplane ready", "backplane", cfg.Messaging.Backplane)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return bus.Close() },
	})
	return bus, nil
}

// ProvidePresence shares live viewers through Redis when the fan-out spans
// instances. With the local backplane, or without Redis, it only sees this
// process's subscribers.
func ProvidePresence(lc fx.Lifecycle, cfg *config.Config, hub *realtime.Hub, rdb redis.UniversalClient) *presence.Tracker {
	ttl := time.Duration(cfg.Messaging.PresenceTTLSeconds) * time.Second
	if cfg.Messaging.Backplane == config.BackplaneLocal || rdb == nil {
		if cfg.Messaging.Backplane != config.BackplaneLocal {
			slog.Warn("presence is local only; viewers on other instances may be notified as offline",
				"backplane", cfg.Messaging.Backplane)
		}
		return presence.New(hub, nil, cfg.Messaging.BackplanePrefix, ttl, slog.Default())
	}

	tr := presence.New(hub, presence.NewRedisStore(rdb), cfg.Messaging.BackplanePrefix, ttl, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				tr.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
	return tr
}
