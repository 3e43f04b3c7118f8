package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"umbrella-admin/internal/config"
	"umbrella-admin/internal/handler"
	"umbrella-admin/internal/metrics"
	"umbrella-admin/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Unit   *handler.UnitHandler
	Entity *handler.EntityHandler
	Audit  *handler.AuditHandler
	// Report serves the aggregated exports; nil disables /reports.
	Report *handler.ReportHandler
	// Health checks the backing store; nil reports healthy.
	Health func(ctx context.Context) error
	// Live is the websocket feed; nil disables the route.
	Live http.Handler
	// Metrics serves the Prometheus registry; nil disables /metrics.
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTP
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	if h.HTTPMetrics != nil {
		r.Use(h.HTTPMetrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", handler.Health(h.Health))
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		// websocket upgrades need the raw connection, so no timeout wrapper
		if h.Live != nil {
			api.With(authMiddleware.RequireAuth, authMiddleware.RequireSuperuser).Method(http.MethodGet, "/ws", h.Live)
		}

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(cfg.RequestTimeout))

			api.Route("/auth", func(auth chi.Router) {
				auth.Post("/login", h.Auth.Login)
				auth.Post("/refresh", h.Auth.Refresh)
				auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
			})

			api.Group(func(api chi.Router) {
				api.Use(authMiddleware.RequireAuth)

				api.Get("/units", h.Unit.List)
				api.Get("/units/check-name", h.Unit.CheckName)
				api.With(authMiddleware.RequireSuperuser).Post("/units", h.Unit.Create)

				api.With(authMiddleware.RequireSuperuser).Get("/audit", h.Audit.List)

				if h.Report != nil {
					api.Get("/reports/subventions/{yearID}", h.Report.SubventionYear)
				}

				api.Get("/kinds", h.Entity.Kinds)
				api.Route("/objects/{kind}", func(obj chi.Router) {
					obj.Get("/", h.Entity.List)
					obj.Post("/", h.Entity.Create)
					obj.Get("/deleted", h.Entity.ListDeleted)
					obj.Get("/related", h.Entity.ListRelated)
					obj.Get("/export", h.Entity.Export)
					obj.Get("/{id}", h.Entity.Show)
					obj.Put("/{id}", h.Entity.Update)
					obj.Delete("/{id}", h.Entity.Delete)
					obj.Get("/{id}/delete", h.Entity.Delete)
					obj.Post("/{id}/restore", h.Entity.Restore)
					obj.Get("/{id}/status", h.Entity.PreviewStatus)
					obj.Post("/{id}/status", h.Entity.SwitchStatus)
					obj.Post("/{id}/contact", h.Entity.Contact)
				})
			})
		})
	})

	return r
}
