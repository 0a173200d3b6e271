package app

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/directory"
	"github.com/Alijeyrad/carelink/internal/notify"
	"github.com/Alijeyrad/carelink/internal/realtime"
	"github.com/Alijeyrad/carelink/internal/service/contact"
	"github.com/Alijeyrad/carelink/internal/service/conversation"
	"github.com/Alijeyrad/carelink/internal/store"
	"github.com/Alijeyrad/carelink/pkg/authorize"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideConversationService,
		ProvideContactService,
	),
)

type ConversationParams struct {
	fx.In

	Cfg       *config.Config
	Store     store.Store
	Directory directory.Directory
	Auth      authorize.IAuthorization
	Hub       *realtime.Hub
	Bus       realtime.Bus
	Notifier  *notify.Dispatcher `optional:"true"`
}

func ProvideConversationService(p ConversationParams) (conversation.Service, error) {
	m := p.Cfg.Messaging
	d := conversation.Deps{
		Store:     p.Store,
		Directory: p.Directory,
		Auth:      p.Auth,
		Hub:       p.Hub,
		Bus:       p.Bus,
		Config: conversation.Config{
			PageSize:     m.PageSize,
			MaxPageSize:  m.MaxPageSize,
			MaxGroupSize: m.MaxGroupSize,
		},
		Logger: slog.Default(),
	}
	// A nil *Dispatcher must not end up inside the interface.
	if p.Notifier != nil {
		d.Notifier = p.Notifier
	}
	return conversation.New(d)
}

func ProvideContactService(dir directory.Directory, auth authorize.IAuthorization) contact.Service {
	return contact.New(dir, auth)
}
