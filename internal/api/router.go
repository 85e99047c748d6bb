package api

import (
	"net/http"

	"github.com/ashureev/yar/internal/engine"
	"github.com/ashureev/yar/internal/identity"
	"github.com/ashureev/yar/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds what the HTTP surface needs.
type RouterConfig struct {
	Engine *engine.Engine
	Self   *identity.Self
	// FrontendURL is the allowed browser origin. Empty allows any.
	FrontendURL string
	IsDev       bool
	// Frontend serves everything the API does not. Nil disables it.
	Frontend http.Handler
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) chi.Router {
	base := NewHandler(cfg.Engine)

	origins := []string{"*"}
	if cfg.FrontendURL != "" && !cfg.IsDev {
		origins = []string{cfg.FrontendURL}
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins, identity.SessionHeaderName))
	r.Use(identity.Middleware(cfg.Self))

	NewHealthHandler(base).RegisterHealth(r)
	NewSessionHandler(base, cfg.Self).RegisterRoutes(r)
	NewChannelHandler(base).RegisterRoutes(r)
	NewStreamHandler(base, cfg.FrontendURL, cfg.IsDev).RegisterRoutes(r)
	NewMonitorHandler(base).RegisterRoutes(r)

	if cfg.Frontend != nil {
		r.Handle("/*", cfg.Frontend)
	}
	return r
}
