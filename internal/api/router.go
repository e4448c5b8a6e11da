package api

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/handlers"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/metrics"
	"github.com/welldanyogia/webrana-confchat/internal/services"
	"github.com/welldanyogia/webrana-confchat/internal/websocket"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB          *gorm.DB
	ChatService services.ChatService
	Tokens      middleware.TokenValidator
	Hub         *websocket.Hub
	Upgrader    gorillaws.Upgrader
	Metrics     *metrics.Metrics
	SecLogger   *logger.SecurityLogger
	Logger      *slog.Logger

	// Security configuration
	AllowedOrigins []string                 // Allowed CORS origins
	Production     bool                     // Drops "*" from AllowedOrigins
	RateLimiter    *middleware.IPRateLimiter // nil disables rate limiting

	// Optional dependencies reported by /health
	HealthChecks map[string]handlers.Pinger
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SecLogger == nil {
		cfg.SecLogger = logger.NewSecurityLogger(cfg.Logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.HTTPErrorHandler

	// Middleware (applied in order)
	// 1. Recover from panics
	e.Use(middleware.Recover())

	// 2. Correlate log lines of one request
	e.Use(middleware.RequestID())

	// 3. Security headers (applied to all responses)
	e.Use(middleware.SecureHeaders())

	// 4. CORS
	e.Use(middleware.SecureCORS(cfg.AllowedOrigins, cfg.Production))

	// 5. Request metrics, before anything that can short-circuit
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}

	// 6. Rate limiting
	if cfg.RateLimiter != nil {
		e.Use(middleware.RateLimiter(cfg.RateLimiter, cfg.SecLogger))
	}

	// 7. Bound request bodies to a full attachment selection
	e.Use(middleware.BodyLimit())

	// 8. Request logging
	e.Use(middleware.RequestLogger(cfg.Logger))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.HealthChecks)
	chatHandler := handlers.NewChatHandler(cfg.ChatService, cfg.SecLogger)
	paperHandler := handlers.NewPaperHandler(cfg.ChatService, cfg.SecLogger)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics.Handler()))
	}

	// API routes
	api := e.Group("/api")
	api.Use(middleware.JWTAuth(cfg.Tokens, cfg.SecLogger))

	// Chat routes
	chat := api.Group("/chat")
	chat.GET("/unread-counts", chatHandler.UnreadCounts)
	chat.GET("/papers/:paperId/messages", chatHandler.ListMessages)
	chat.POST("/papers/:paperId/messages", chatHandler.SendMessage)

	// Attachment routes (nested under messages)
	attachments := chat.Group("/papers/:paperId/messages/:messageId/attachments")
	attachments.GET("/:index/view", chatHandler.ViewAttachment)
	attachments.GET("/:index/download", chatHandler.DownloadAttachment)

	// Push hints
	if cfg.Hub != nil {
		wsHandler := handlers.NewWebSocketHandler(cfg.Hub, cfg.Upgrader, cfg.Logger)
		chat.GET("/ws", wsHandler.Connect)
	}

	// Paper routes
	api.GET("/papers/:paperId", paperHandler.Get)

	return e
}
