// Package middleware provides HTTP middleware for the conference chat API.
package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/auth"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// viewerKey is the echo context key holding the authenticated user
const viewerKey = "viewer"

// TokenQueryParam carries the bearer token on websocket upgrades, where
// browsers cannot set an Authorization header
const TokenQueryParam = "token"

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWTAuth requires a valid bearer token and stores the viewer on the
// context. Health endpoints are skipped.
func JWTAuth(tokens TokenValidator, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()

			if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/ready") {
				return next(c)
			}

			token := bearerToken(c)
			if token == "" {
				secLogger.AuthFailure(c.RealIP(), path, "missing token")
				return response.Unauthorized(c, "missing authorization header")
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				reason := "invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					reason = "expired token"
				}
				secLogger.AuthFailure(c.RealIP(), path, reason)
				return response.Unauthorized(c, reason)
			}

			c.Set(viewerKey, claims.User())
			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header, or from the
// query string of a websocket upgrade
func bearerToken(c echo.Context) string {
	req := c.Request()

	if header := req.Header.Get(echo.HeaderAuthorization); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
		return ""
	}

	if strings.EqualFold(req.Header.Get(echo.HeaderUpgrade), "websocket") {
		return c.QueryParam(TokenQueryParam)
	}
	return ""
}

// Viewer returns the authenticated user, nil outside JWTAuth
func Viewer(c echo.Context) *models.User {
	user, _ := c.Get(viewerKey).(*models.User)
	return user
}

// SetViewer stores the authenticated user on the context
func SetViewer(c echo.Context, user *models.User) {
	c.Set(viewerKey, user)
}
