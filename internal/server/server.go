// Package server is the composition root: it opens the store, builds the
// Discord client and services, and mounts every route on one chi router.
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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/insignia/internal/auth"
	"github.com/sakif/insignia/internal/config"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/handler"
	"github.com/sakif/insignia/internal/middleware"
	"github.com/sakif/insignia/internal/repository"
	"github.com/sakif/insignia/internal/repository/postgres"
	sqliteRepo "github.com/sakif/insignia/internal/repository/sqlite"
	"github.com/sakif/insignia/internal/service"
)

// store is what the server needs from either backend.
type store interface {
	repository.IdentityRepository
	repository.GuildRepository
	handler.Pinger
}

// Server owns the router and the store connection.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	store     store
	closeDB   func()
	discordHC *http.Client
}

// New opens the store and wires every route. httpClient is used for all
// outbound Discord calls and may be nil.
func New(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*Server, error) {
	st, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		store:     st,
		closeDB:   closeDB,
		discordHC: httpClient,
	}

	if err := s.setupRoutes(); err != nil {
		closeDB()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore picks Postgres when DATABASE_URL is set and SQLite otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		db := postgres.New(pool)
		if err := db.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating postgres: %w", err)
		}
		logger.Info("using postgres store")
		return db, pool.Close, nil
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return db, func() { db.Close() }, nil
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store.
func (s *Server) Close() {
	s.closeDB()
}

// setupRoutes mounts:
//
//	GET  /                                  landing page
//	GET  /login                             redirect to Discord consent
//	GET  /callback                          OAuth callback
//	GET  /healthz                           store liveness
//	GET  /metrics                           Prometheus
//	GET  /download/{token}                  one-time CSV download
//	/api/*                                  operator routes, X-API-KEY required
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)

	client := discord.NewClient(discord.Config{
		BaseURL:      s.config.APIBaseURL,
		Version:      s.config.APIVersion,
		BotToken:     s.config.BotToken,
		ClientID:     s.config.ClientID,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}, s.discordHC, s.logger)
	provider := auth.NewDiscordProvider(s.config.ClientID, s.config.ClientSecret, s.config.RedirectURI, s.config.APIBaseURL, client)

	var users repository.IdentityRepository = s.store
	if s.config.TokenEncryptionKey != "" {
		sealer, err := auth.NewTokenSealer(s.config.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("token sealer: %w", err)
		}
		users = repository.Sealed(s.store, sealer, s.logger)
	}

	tokens, err := auth.NewTokenService(s.config.ExportTokenSecret)
	if err != nil {
		return fmt.Errorf("export token service: %w", err)
	}

	pages, err := handler.NewPages(s.logger)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	loginURL := s.config.PublicBaseURL + "/login"
	authHandler := handler.NewAuthHandler(provider, service.NewAuthService(provider, users, s.logger), pages, s.logger)
	guildHandler := handler.NewGuildHandler(service.NewGuildService(client, s.store, loginURL, s.logger), s.logger)
	dragHandler := handler.NewDragHandler(service.NewDragService(users, provider, client, s.config.DragWorkers, s.logger), s.logger)
	exportHandler := handler.NewExportHandler(
		service.NewExportService(users, tokens, s.config.ExportDir, s.config.ExportTokenTTL, s.config.PublicBaseURL, s.logger),
		s.logger,
	)

	s.router.Get("/", pages.HandleIndex)
	s.router.Get("/login", authHandler.HandleLogin)
	s.router.Get("/callback", authHandler.HandleCallback)
	s.router.Get("/healthz", handler.HandleHealth(s.store, s.logger))
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/download/{token}", exportHandler.HandleDownload)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAPIKey(s.config.APISecret, handler.WriteError))
		r.Get("/guilds", guildHandler.HandleList)
		r.Post("/guilds", guildHandler.HandleRegister)
		r.Get("/check_guild/{guild_id}", guildHandler.HandleCheckGuild)
		r.Get("/check_role/{guild_id}/{role_id}", guildHandler.HandleCheckRole)
		r.Post("/send_verify_prompt", guildHandler.HandleSendVerifyPrompt)
		r.Post("/drag_users", dragHandler.HandleDrag)
		r.Post("/export_users", exportHandler.HandleExport)
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Drags over many users can take a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicBaseURL),
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
