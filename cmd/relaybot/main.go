// whisper-relay - anonymous direct message relay bot
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/whisper-relay/internal/api"
	"github.com/ashureev/whisper-relay/internal/bot"
	"github.com/ashureev/whisper-relay/internal/cache"
	"github.com/ashureev/whisper-relay/internal/config"
	"github.com/ashureev/whisper-relay/internal/conversation"
	"github.com/ashureev/whisper-relay/internal/directory"
	"github.com/ashureev/whisper-relay/internal/identity"
	"github.com/ashureev/whisper-relay/internal/metrics"
	"github.com/ashureev/whisper-relay/internal/middleware"
	"github.com/ashureev/whisper-relay/internal/relay"
	"github.com/ashureev/whisper-relay/internal/store"
	"github.com/ashureev/whisper-relay/internal/telegram"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if envErr != nil {
		slog.Info("No .env file found, using environment variables")
	}
	slog.Info("Starting relay", "mode", cfg.Mode, "store", cfg.StoreDriver, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize user store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("User store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("User store connected")

	if len(cfg.AdminIDs) > 0 {
		n, err := bot.PromoteAdmins(ctx, repo, cfg.AdminIDs)
		if err != nil {
			slog.Error("Failed to promote admins", "error", err)
			os.Exit(1)
		}
		slog.Info("Admin bootstrap complete", "configured", len(cfg.AdminIDs), "promoted", n)
	}

	dirCache, err := openCache(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize directory cache", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := dirCache.Close(); closeErr != nil {
			slog.Error("Failed to close directory cache", "error", closeErr)
		}
	}()

	client, err := telegram.New(cfg.BotToken)
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	m := metrics.New()
	sessions := conversation.NewStore(m)
	machine := conversation.NewMachine(sessions, client, repo, relay.New(client, m), m)
	router := bot.NewRouter(
		identity.NewResolver(repo, client, m),
		machine,
		directory.New(repo, dirCache, client, cfg.DirectoryCacheTTL, m),
		repo,
		client,
		m,
	)

	conversation.StartSweeper(ctx, sessions, cfg.SessionIdleTTL, cfg.SweepInterval)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	api.NewHandler(repo, sessions).RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	if cfg.Mode == config.ModeWebhook {
		r.With(middleware.PathSecret("secret", cfg.WebhookSecret)).
			Post("/webhook/{secret}", telegram.NewWebhookHandler(client, router).ServeHTTP)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	updatesDone, err := startUpdates(ctx, cfg, client, router)
	if err != nil {
		slog.Error("Failed to start receiving updates", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	select {
	case <-updatesDone:
	case <-shutdownCtx.Done():
		slog.Warn("Timed out waiting for in-flight updates")
	}

	slog.Info("Relay stopped successfully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		slog.Warn("Using in-memory user store; users are lost on restart")
		return store.NewMemory(), nil
	default:
		return store.NewSQLite(cfg.DBPath)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		c := cache.NewMemory()
		c.StartJanitor(ctx, time.Minute)
		return c, nil
	}
	c, err := cache.NewRedis(ctx, cfg.RedisURL, "whisper-relay:")
	if err != nil {
		return nil, err
	}
	slog.Info("Directory cache backed by Redis")
	return c, nil
}

// startUpdates begins webhook or long-poll delivery. Polling runs in the
// background until ctx is cancelled; the returned channel closes once it
// has drained.
func startUpdates(ctx context.Context, cfg *config.Config, client *telegram.Client, d telegram.Dispatcher) (<-chan struct{}, error) {
	done := make(chan struct{})

	if cfg.Mode == config.ModeWebhook {
		if err := client.SetWebhook(cfg.WebhookEndpoint()); err != nil {
			return nil, err
		}
		slog.Info("Webhook registered")
		close(done)
		return done, nil
	}

	if err := client.DeleteWebhook(); err != nil {
		return nil, fmt.Errorf("prepare long polling: %w", err)
	}
	go func() {
		defer close(done)
		if err := telegram.NewPoller(client, d, cfg.PollTimeout).Run(ctx); err != nil {
			slog.Error("Poller stopped", "error", err)
		}
	}()
	return done, nil
}
