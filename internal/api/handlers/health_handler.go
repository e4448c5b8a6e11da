package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// healthCheckTimeout bounds each dependency ping
const healthCheckTimeout = 2 * time.Second

// Pinger is an optional dependency checked by /health, such as the paper cache
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check HTTP requests
type HealthHandler struct {
	db       *gorm.DB
	optional map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler. Optional dependencies only
// degrade health; the database decides readiness.
func NewHealthHandler(db *gorm.DB, optional map[string]Pinger) *HealthHandler {
	return &HealthHandler{db: db, optional: optional}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// ReadyResponse is the body of GET /ready
type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Health handles GET /health. A database failure makes the service
// unhealthy; a failing optional dependency only degrades it.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Services: map[string]string{"database": "healthy"}}

	if err := h.pingDatabase(ctx); err != nil {
		resp.Services["database"] = "unhealthy"
		resp.Status = "unhealthy"
	}

	for name, dep := range h.optional {
		resp.Services[name] = "healthy"
		if err := dep.Ping(ctx); err != nil {
			resp.Services[name] = "unhealthy"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// Ready handles GET /ready. Only the database gates readiness.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	if err := h.pingDatabase(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Reason: "database ping failed"})
	}
	return c.JSON(http.StatusOK, ReadyResponse{Status: "ready"})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
