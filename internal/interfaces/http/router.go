package http

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/handler"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/middleware"
	"github.com/dreschagin/dashboard-extractor/pkg/config"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// Handlers - обработчики маршрутов. Metrics может быть nil.
type Handlers struct {
	State     *handler.StateHandler
	Snapshots *handler.SnapshotHandler
	Records   *handler.RecordsHandler
	Artifacts *handler.ArtifactsHandler
	WebSocket *handler.WebSocketHandler
	Auth      *handler.AuthAPIHandler
	Metrics   *metrics.Metrics
}

// Router настраивает маршруты приложения
type Router struct {
	handlers  Handlers
	security  config.SecurityConfig
	rateLimit config.RateLimitConfig
	logger    *logger.Logger
}

func NewRouter(
	handlers Handlers,
	security config.SecurityConfig,
	rateLimit config.RateLimitConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		handlers:  handlers,
		security:  security,
		rateLimit: rateLimit,
		logger:    logger,
	}
}

// Setup собирает chi router со всеми маршрутами и middleware.
func (rt *Router) Setup() http.Handler {
	h := rt.handlers

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(rt.logger))
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	r.Use(middleware.Logger(rt.logger))

	authCfg := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	if h.Metrics != nil {
		authCfg.OnReject = h.Metrics.AuthFailures.Inc
	}
	requireAuth := middleware.Auth(authCfg, rt.logger)

	// пробы и /metrics без авторизации и лимитов
	r.Get("/healthz", h.State.Healthz)
	r.Get("/readyz", h.State.Readyz)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rt.rateLimit.Enabled {
			var onDrop func()
			if h.Metrics != nil {
				onDrop = h.Metrics.RateLimitDropped.Inc
			}
			limiter := middleware.NewIPRateLimiter(rt.rateLimit.RPS, rt.rateLimit.Burst)
			trusted, err := middleware.ParseTrustedProxies(rt.rateLimit.TrustedProxies)
			if err != nil {
				rt.logger.Warn("Ignoring trusted proxies", "error", err.Error())
			}
			limiter.TrustProxies(trusted)
			r.Use(middleware.RateLimit(limiter, onDrop))
		}

		if h.Auth != nil {
			r.Post("/api/v1/auth/login", h.Auth.Login)
			r.Post("/api/v1/auth/logout", h.Auth.Logout)
			r.Get("/api/v1/auth/status", h.Auth.Status)
		}

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/debug_screenshot", h.Snapshots.ServeDebug)
			r.Get("/snapshot", h.Snapshots.ServeSnapshot)
			if h.WebSocket != nil {
				r.Get("/ws", h.WebSocket.HandleConnection)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.Compression)

				r.Get("/data", h.State.GetData)
				r.Route("/api/v1", func(r chi.Router) {
					r.Get("/status", h.State.GetStatus)
					r.Get("/records", h.Records.List)
					r.Get("/records/summary", h.Records.Summary)
					r.Get("/artifacts", h.Artifacts.List)
				})
			})
		})

		// статика открыта: страница сама запрашивает токен
		r.Group(func(r chi.Router) {
			r.Use(middleware.Compression)
			r.Handle("/*", http.FileServerFS(StaticFS()))
		})
	})

	return r
}

// StaticFS - встроенные файлы страницы без префикса static/.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to initialize embedded static assets: " + err.Error())
	}
	return sub
}
