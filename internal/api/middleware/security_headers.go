package middleware

import (
	"github.com/labstack/echo/v4"
)

// apiContentSecurityPolicy allows nothing beyond displaying an image or PDF
// attachment; JSON responses need no resources at all
const apiContentSecurityPolicy = "default-src 'none'; img-src 'self'; object-src 'self'; frame-ancestors 'none'"

const hstsPolicy = "max-age=31536000; includeSubDomains"

// secureHeaders is written on every response, errors included
var secureHeaders = [][2]string{
	{echo.HeaderXFrameOptions, "DENY"},
	// Attachments must be rendered as the type they were verified as
	{echo.HeaderXContentTypeOptions, "nosniff"},
	{echo.HeaderContentSecurityPolicy, apiContentSecurityPolicy},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{echo.HeaderReferrerPolicy, "no-referrer"},
	// Conversations and tokens stay out of shared caches
	{echo.HeaderCacheControl, "no-store"},
}

// SecureHeaders hardens chat API responses. HSTS is only sent over TLS.
func SecureHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range secureHeaders {
				h.Set(kv[0], kv[1])
			}
			if c.Scheme() == "https" {
				h.Set(echo.HeaderStrictTransportSecurity, hstsPolicy)
			}
			return next(c)
		}
	}
}
