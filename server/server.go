// Package server assembles the HTTP router: global middleware, the public
// service routes, the /api routes and the SPA fallback.
//
// Services and handlers are created here and their dependencies injected by hand,
// the manual dependency injection common in Go. main only decides which stores
// back them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/transportuni/chatbot-api/auth"
	"github.com/transportuni/chatbot-api/chat"
	"github.com/transportuni/chatbot-api/config"
	"github.com/transportuni/chatbot-api/dashboard"
	"github.com/transportuni/chatbot-api/metrics"
	"github.com/transportuni/chatbot-api/users"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Deps are the collaborators the router is built from. Redis, Metrics,
// HealthCheck and Now are optional.
type Deps struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Accounts auth.AccountStore
	Admin    users.AdminStore
	Chat     chat.Store
	Stats    dashboard.StatsStore

	Redis       *redis.Client
	Metrics     *metrics.Metrics
	HealthCheck func(ctx context.Context) error
	Now         func() time.Time
}

// Server owns the router and the http.Server serving it.
type Server struct {
	router  chi.Router
	srv     *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New wires the services and handlers and builds the router.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Config.Auth == nil || deps.Config.Server == nil || deps.Config.RateLimit == nil {
		return nil, errors.New("server: auth, rate limit and server configuration are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	var tokenOpts []auth.TokenOption
	var chatOpts []chat.Option
	if deps.Now != nil {
		tokenOpts = append(tokenOpts, auth.WithClock(deps.Now))
		chatOpts = append(chatOpts, chat.WithClock(deps.Now))
	}

	tokens, err := auth.NewTokenService(deps.Config.Auth, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	resolver := auth.NewResolver(deps.Accounts, deps.Config.Auth.LookupTimeout)
	paths := auth.PathPolicyFromLists(deps.Config.Auth.PublicExact, deps.Config.Auth.PublicPrefix)
	authenticator := auth.NewAuthenticator(tokens, resolver, paths, logger,
		auth.WithOutcomeObserver(m.ObserveAuthOutcome))

	authService, err := auth.NewService(deps.Accounts, auth.NewPasswordHasher(deps.Config.Auth.BcryptCost), tokens, resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	s := &Server{logger: logger, metrics: m}
	r := chi.NewRouter()

	// Chi requires all middleware to be registered before any routes.
	// The authenticator runs last so it sees the request id and the real client IP,
	// and a panic inside it is still caught by the recoverer.

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(m.Middleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(authenticator.Middleware)

	health := healthHandler(deps.HealthCheck)
	r.Get("/health", health)
	r.Handle("/metrics", m.Handler())
	mountDocs(r)

	var limiter *auth.RateLimiter
	if deps.Redis != nil {
		limiter = auth.NewRateLimiter(deps.Redis, deps.Config.RateLimit.Limit, deps.Config.RateLimit.Window, logger)
	}

	authHandlers := auth.NewHandlers(authService)
	chatHandlers := chat.NewHandlers(chat.NewService(deps.Chat, logger, chatOpts...))
	dashboardHandlers := dashboard.NewHandlers(dashboard.NewService(deps.Stats, logger))
	userHandlers := users.NewUserHandlers(users.NewUserService(deps.Admin, logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/", bannerHandler())
		r.Get("/health", health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if limiter != nil {
					r.Use(limiter.Middleware)
				}
				r.Post("/register", authHandlers.HandleRegister())
				r.Post("/login", authHandlers.HandleLogin())
				r.Post("/login/json", authHandlers.HandleLoginJSON())
			})
			r.Post("/refresh", authHandlers.HandleRefresh())
			r.Get("/me", authHandlers.HandleMe())
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/save", chatHandlers.HandleSave())
			r.Get("/history", chatHandlers.HandleHistory())
			r.Delete("/history", chatHandlers.HandlePurge())
			r.Get("/history/{id}", chatHandlers.HandleGet())
			r.Delete("/history/{id}", chatHandlers.HandleDelete())
		})

		r.Get("/dashboard", dashboardHandlers.HandleStats())
		r.Patch("/users/{username}/status", userHandlers.HandleUpdateStatus())

		r.NotFound(apiNotFound)
		r.MethodNotAllowed(apiMethodNotAllowed)
	})

	if dir := deps.Config.Server.FrontendDir; dir != "" {
		r.Handle("/*", spaHandler(dir))
	} else {
		r.Get("/", bannerHandler())
		r.NotFound(apiNotFound)
	}

	s.router = r
	s.srv = &http.Server{
		Addr:         ":" + deps.Config.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully, letting
// in-flight requests finish within shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
