package router

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/api/http/handler"
	"github.com/Alijeyrad/carelink/internal/api/http/middleware"
	"github.com/Alijeyrad/carelink/internal/service/contact"
	"github.com/Alijeyrad/carelink/internal/service/conversation"
	"github.com/Alijeyrad/carelink/pkg/authorize"
	"github.com/Alijeyrad/carelink/pkg/database"
	"github.com/Alijeyrad/carelink/pkg/observability"
	pasetotoken "github.com/Alijeyrad/carelink/pkg/paseto"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg             *config.Config
	Redis           redis.UniversalClient `optional:"true"`
	Auth            authorize.IAuthorization
	PasetoMgr       *pasetotoken.Manager
	ConversationSvc conversation.Service
	ContactSvc      contact.Service
	DB              *database.DB            `optional:"true"`
	OTel            *observability.Provider `optional:"true"`
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

func (r *Router) Register(app *fiber.App) {
	// 1. Health & Metrics
	r.registerSystemRoutes(app)

	// 2. Initialize Middlewares
	authRequired := middleware.AuthRequired(r.p.PasetoMgr, r.p.Redis)

	requirePerm := func(res authorize.Resource, act authorize.Action) fiber.Handler {
		return middleware.RequirePermission(r.p.Auth, res, act)
	}

	// 3. Initialize Handlers
	conversationH := handler.NewConversationHandler(r.p.ConversationSvc)
	contactH := handler.NewContactHandler(r.p.ContactSvc)

	api := app.Group("/api/v1")

	// 4. Delegate to sub-files
	r.registerConversationRoutes(api, conversationH, authRequired, requirePerm)
	r.registerContactRoutes(api, contactH, authRequired, requirePerm)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			if !authorize.IsPolicyHealthy() {
				return false
			}
			return r.p.DB == nil || r.p.DB.Ping(c.Context()) == nil
		},
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.OTel != nil && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, r.p.OTel.MetricsHandler())
	}
}
