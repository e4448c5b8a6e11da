package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// defaultOrigin is used when no origins are configured
const defaultOrigin = "http://localhost:3000"

// SecureCORS returns CORS middleware for the configured origins.
// A wildcard origin is dropped in production.
func SecureCORS(allowedOrigins []string, production bool) echo.MiddlewareFunc {
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "" || (production && origin == "*") {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{defaultOrigin}
	}

	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders:    []string{echo.HeaderContentDisposition},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
