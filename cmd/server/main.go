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

	"github.com/welldanyogia/webrana-confchat/internal/api"
	"github.com/welldanyogia/webrana-confchat/internal/api/handlers"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/auth"
	"github.com/welldanyogia/webrana-confchat/internal/cache"
	"github.com/welldanyogia/webrana-confchat/internal/config"
	"github.com/welldanyogia/webrana-confchat/internal/database"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/metrics"
	"github.com/welldanyogia/webrana-confchat/internal/notify"
	"github.com/welldanyogia/webrana-confchat/internal/repository"
	"github.com/welldanyogia/webrana-confchat/internal/services"
	"github.com/welldanyogia/webrana-confchat/internal/storage"
	"github.com/welldanyogia/webrana-confchat/internal/websocket"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup logger
	log, logCloser, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("Starting ConfChat server...")
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize file storage
	fileStorage, err := storage.NewLocalStorage(cfg.AttachmentStoragePath)
	if err != nil {
		return fmt.Errorf("failed to initialize attachment storage: %w", err)
	}

	m := metrics.New()
	secLogger := logger.NewSecurityLogger(log)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	var paperRepo repository.PaperRepository = repository.NewPaperRepository(db)

	healthChecks := map[string]handlers.Pinger{}
	if cfg.RedisAddr != "" {
		paperCache, err := cache.NewRedisPaperCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PaperCacheTTL)
		if err != nil {
			// The cache only saves lookups, so run without it
			log.Warn("paper cache unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer paperCache.Close()
			paperRepo = cache.NewCachedPaperRepository(paperRepo, paperCache, m, log)
			healthChecks["redis"] = paperCache
		}
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(log, m)
	go hub.Run(ctx)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTPAddr != "" {
		notifier = notify.NewEmailNotifier(notify.EmailConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			StartTLS: cfg.SMTPStartTLS,
		}, log, m)
	}

	chat := services.NewChat(services.ChatServiceConfig{
		ChatRepo:  chatRepo,
		PaperRepo: paperRepo,
		UserRepo:  userRepo,
		Storage:   fileStorage,
		Push:      hub,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    log,
	})

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRequests), cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx)

	origins := websocket.ParseOrigins(cfg.AllowedOrigins)

	// Initialize HTTP server
	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		ChatService:    chat,
		Tokens:         auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		Hub:            hub,
		Upgrader:       websocket.NewSecureUpgrader(origins, secLogger),
		Metrics:        m,
		SecLogger:      secLogger,
		Logger:         log,
		AllowedOrigins: origins,
		Production:     cfg.IsProduction(),
		RateLimiter:    limiter,
		HealthChecks:   healthChecks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.Int("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	// Let queued e-mail notifications finish
	chat.Wait()

	slog.Info("Server stopped")
	return nil
}
