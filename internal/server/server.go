// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and it owns the long-lived resources (database, Redis client).
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New creates:
//	  sqlite.DB ─┬→ UserDB ─→ AuthService, UserService
//	             ├→ ItemDB ─→ ItemService, LikeService
//	             └→ LikeDB ─→ LikeService
//	  redis      ──→ cache.Redis (or cache.Nop) ─→ ItemService, LikeService
//	  services   ──→ handlers ─→ routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/cache"
	"github.com/sakif/item-atlas/internal/config"
	"github.com/sakif/item-atlas/internal/handler"
	"github.com/sakif/item-atlas/internal/metrics"
	"github.com/sakif/item-atlas/internal/middleware"
	sqliteRepo "github.com/sakif/item-atlas/internal/repository/sqlite"
	"github.com/sakif/item-atlas/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the Redis client. Start closes
// both on shutdown; Close does the same for callers that never Start.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client // nil when no cache is configured
	metrics *metrics.Metrics
}

// New creates a Server from cfg. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	if !isMemoryPath(cfg.Database.Path) {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// likeCounts returns the Redis-backed cache when redis.addr is set, the
// no-op cache otherwise. An unreachable Redis at startup is only a warning:
// the cache falls back to counting on every error.
func (s *Server) likeCounts() cache.LikeCounts {
	if s.config.Redis.Addr == "" {
		s.logger.Info("like-count cache disabled (redis.addr empty)")
		return cache.Nop{}
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.config.Redis.Addr,
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis unreachable, like counts will be recounted until it is back",
			slog.String("addr", s.config.Redis.Addr),
			slog.String("error", err.Error()),
		)
	}

	return cache.NewRedis(s.redis, s.config.Cache.LikeCountTTL)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                    → liveness (database ping)
//	GET    /metrics                    → Prometheus scrape
//	GET    /auth/discord/login         → redirect to Discord       (if configured)
//	GET    /auth/discord/callback      → OAuth callback            (if configured)
//	POST   /auth/logout                → clear the session cookie
//	GET    /api/items                  → list        (optional auth)
//	GET    /api/items/filters          → filter dims (optional auth)
//	GET    /api/items/{id}             → one item    (optional auth)
//	GET    /api/items/{id}/likes       → like state  (optional auth)
//	GET    /api/session                → caller's session          (auth)
//	POST   /api/items                  → create item               (auth)
//	DELETE /api/items/{id}             → delete item and its likes (auth)
//	POST   /api/items/{id}/like        → like                      (auth)
//	DELETE /api/items/{id}/like        → unlike                    (auth)
//	GET    /api/users                  → list users                (auth)
//	PUT    /api/users/{id}/role        → change a role             (auth)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (the logger prints it)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger / Metrics: one log line and one observation per request
// 5. CORS, only when origins are configured
//
// "(auth)" routes only reject anonymous callers early. Role checks live in
// the services, which every route goes through.
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	if origins := s.config.Server.CORSOrigins; len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Services ===
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	counts := s.likeCounts()

	authService := service.NewAuthService(s.db.Users(), tokens, s.metrics, s.logger)
	itemService := service.NewItemService(s.db.Items(), counts, s.logger)
	likeService := service.NewLikeService(s.db.Items(), s.db.Likes(), counts, s.metrics, s.logger)
	userService := service.NewUserService(s.db.Users(), s.logger)

	// === Handlers ===
	var provider handler.IdentityProvider
	if s.config.DiscordEnabled() {
		provider = auth.NewDiscordProvider(
			s.config.Discord.ClientID,
			s.config.Discord.ClientSecret,
			s.config.Discord.CallbackURL,
		)
	}
	authHandler := handler.NewAuthHandler(provider, authService, s.config.Auth.CookieSecure, s.logger)
	itemHandler := handler.NewItemHandler(itemService, likeService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)

	// === Operational Routes ===
	s.router.Get("/healthz", handler.HealthHandler(s.db))
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Auth Routes ===
	s.router.Route("/auth", func(r chi.Router) {
		if provider != nil {
			r.Get("/discord/login", authHandler.HandleDiscordLogin)
			r.Get("/discord/callback", authHandler.HandleDiscordCallback)
		} else {
			s.logger.Warn("discord.client_id/client_secret not set, sign-in is disabled")
		}
		r.Post("/logout", authHandler.HandleLogout)
	})

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		// Public reads: anonymous callers browse, signed-in callers also get
		// hasLiked flags and their own pending items.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(authService))
			r.Get("/items", itemHandler.HandleList)
			r.Get("/items/filters", itemHandler.HandleFilters)
			r.Get("/items/{id}", itemHandler.HandleGet)
			r.Get("/items/{id}/likes", itemHandler.HandleLikes)
		})

		// Signed-in routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService))
			r.Get("/session", authHandler.HandleSession)
			r.Post("/items", itemHandler.HandleCreate)
			r.Delete("/items/{id}", itemHandler.HandleDelete)
			r.Post("/items/{id}/like", itemHandler.HandleLike)
			r.Delete("/items/{id}/like", itemHandler.HandleUnlike)
			r.Get("/users", userHandler.HandleList)
			r.Put("/users/{id}/role", userHandler.HandleSetRole)
		})
	})

	return nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database (flushes WAL, releases file lock) and Redis
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.BaseURL),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func isMemoryPath(p string) bool {
	return p == ":memory:" || strings.HasPrefix(p, "file:")
}
