package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
)

// MaxRequestBytes bounds a send request: every attachment at the size
// limit plus room for the text body and multipart framing
const MaxRequestBytes = attachment.MaxFiles*attachment.MaxFileSize + 1<<20

// RequestLogger returns a middleware that logs HTTP requests
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if viewer := Viewer(c); viewer != nil {
				attrs = append(attrs, slog.String("user_id", viewer.ID))
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}

// RequestID tags every request with an X-Request-Id
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestID()
}

// BodyLimit rejects request bodies above MaxRequestBytes with 413
func BodyLimit() echo.MiddlewareFunc {
	return middleware.BodyLimit(fmt.Sprintf("%dB", MaxRequestBytes))
}

// Recover returns a middleware that recovers from panics
func Recover() echo.MiddlewareFunc {
	return middleware.Recover()
}
