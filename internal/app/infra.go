package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/pkg/authorize"
	"github.com/Alijeyrad/carelink/pkg/database"
	"github.com/Alijeyrad/carelink/pkg/email"
	"github.com/Alijeyrad/carelink/pkg/observability"
	pasetotoken "github.com/Alijeyrad/carelink/pkg/paseto"
	redispkg "github.com/Alijeyrad/carelink/pkg/redis"
)

// InfraModule provides all infrastructure dependencies. Optional
// infrastructure that is not configured is provided as nil.
var InfraModule = fx.Module("infra",
	fx.Provide(ProvideDatabase),
	fx.Provide(ProvideRedis),
	fx.Provide(ProvideAuthorization),
	fx.Provide(ProvideEmailClient),
	fx.Provide(ProvideOTel),
	fx.Provide(ProvideNatsClient),
	fx.Provide(ProvidePasetoManager),
)

func ProvideDatabase(lc fx.Lifecycle, cfg *config.Config) (*database.DB, error) {
	if !cfg.NeedsDatabase() {
		return nil, nil
	}
	db, err := database.New(database.FromCentralConfig(cfg.Database))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing main database connection")
			return db.Close()
		},
	})
	return db, nil
}

func ProvideRedis(lc fx.Lifecycle, cfg *config.Config) (redis.UniversalClient, error) {
	rdb, err := redispkg.NewRedisFromCentral(context.Background(), cfg.Redis)
	if errors.Is(err, redispkg.ErrDisabled) {
		slog.Info("redis not configured")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing Redis connection")
			return rdb.Close()
		},
	})
	return rdb, nil
}

func ProvideAuthorization(lc fx.Lifecycle, cfg *config.Config) (authorize.IAuthorization, error) {
	acfg := authorize.FromCentralConfig(cfg.Authorization)

	var (
		base authorize.IAuthorization
		err  error
	)
	if acfg.Persist {
		dsn := database.NewDSN(cfg.CasbinDatabase)
		enforcer, cleanup, err := authorize.NewEnforcer(context.Background(), acfg.CasbinModelPath, dsn)
		if err != nil {
			return nil, err
		}
		base, err = authorize.NewAuthorization(enforcer, acfg.Options()...)
		if err != nil {
			cleanup(context.Background())
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				slog.Debug("cleaning up Casbin enforcer")
				cleanup(ctx)
				return nil
			},
		})
	} else {
		base, err = authorize.NewMemoryAuthorization(context.Background(), acfg.CasbinModelPath, acfg.Options()...)
		if err != nil {
			return nil, err
		}
	}

	if acfg.EnableAudit {
		return authorize.NewAuditedAuthorization(base, slog.Default()), nil
	}
	return base, nil
}

func ProvideEmailClient(cfg *config.Config) (*email.Client, error) {
	return email.NewFromCentral(cfg.Email)
}

func ProvideNatsClient(lc fx.Lifecycle, cfg *config.Config) (*nats.Conn, error) {
	if cfg.Messaging.Backplane != config.BackplaneNats {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL, nats.Name("carelink"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("draining NATS connection")
			return nc.Drain()
		},
	})
	return nc, nil
}

func ProvideOTel(lc fx.Lifecycle, cfg *config.Config) (*observability.Provider, error) {
	if !cfg.Observability.Enabled {
		return nil, nil
	}
	provider, err := observability.InitTelemetry(context.Background(),
		observability.FromCentralConfig(cfg.Observability, cfg.Server.Environment))
	if err != nil {
		return nil, err
	}
	slog.Info("observability initialized",
		"tracing", cfg.Observability.Tracing.Enabled,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("shutting down observability providers")
			return provider.Shutdown(ctx)
		},
	})
	return provider, nil
}

func ProvidePasetoManager(cfg *config.Config) (*pasetotoken.Manager, error) {
	return pasetotoken.NewPasetoManager(cfg)
}
