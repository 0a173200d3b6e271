package app

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/notify"
	"github.com/Alijeyrad/carelink/internal/realtime/presence"
	"github.com/Alijeyrad/carelink/internal/store"
	"github.com/Alijeyrad/carelink/pkg/email"
)

// WorkerModule runs the background notification workers.
var WorkerModule = fx.Module("workers",
	fx.Provide(ProvideNotifier),
)

// ProvideNotifier returns nil when offline notifications are switched off
// or there is no mail transport to send them with.
func ProvideNotifier(
	lc fx.Lifecycle,
	cfg *config.Config,
	s store.Store,
	dir directory.Directory,
	watcher *presence.Tracker,
	mail *email.Client,
) *notify.Dispatcher {
	if !cfg.Notifications.Enabled {
		return nil
	}
	if mail == nil || !mail.Enabled() {
		slog.Warn("notifications enabled but email is not; offline notifications are off")
		return nil
	}

	mcfg := email.FromCentralConfig(cfg.Email)
	handler := notify.NewOfflineEmail(s, dir, watcher, mail, notify.EmailConfig{
		AppName:      mcfg.AppName,
		BaseURL:      cfg.Notifications.BaseURL,
		PrimaryColor: mcfg.PrimaryColor,
	})

	n := cfg.Notifications
	d := notify.NewDispatcher(handler, n.Workers, n.QueueSize, slog.Default())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Start()
			slog.Info("notification workers started", "workers", n.Workers, "queue", n.QueueSize)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Stop(ctx)
		},
	})
	return d
}
