package logger

import (
	"log/slog"
	"time"
)

// SecurityLogger records security-relevant events of the chat API at warn
// level. Credentials, attachment contents and message bodies are never
// passed to it.
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a SecurityLogger writing through logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With(slog.String("component", "security")),
	}
}

// NewSecurityLoggerWithHandler creates a SecurityLogger with its own handler
func NewSecurityLoggerWithHandler(handler slog.Handler) *SecurityLogger {
	return &SecurityLogger{logger: slog.New(handler)}
}

// event writes one record tagged with eventType and the client address
func (s *SecurityLogger) event(msg, eventType, ip string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+3)
	args = append(args,
		slog.String("event_type", eventType),
		slog.String("ip", ip),
		slog.Time("timestamp", time.Now().UTC()),
	)
	for _, a := range attrs {
		args = append(args, a)
	}
	s.logger.Warn(msg, args...)
}

// AuthFailure logs a rejected or missing bearer token
func (s *SecurityLogger) AuthFailure(ip, path, reason string) {
	s.event("authentication_failure", "auth_failure", ip,
		slog.String("path", path),
		slog.String("reason", reason),
	)
}

// AccessDenied logs a viewer asking for a conversation they cannot see
func (s *SecurityLogger) AccessDenied(ip, userID, paperID string) {
	s.event("conversation_access_denied", "access_denied", ip,
		slog.String("user_id", userID),
		slog.String("paper_id", paperID),
	)
}

// RateLimitExceeded logs a client throttled by the per-IP limiter
func (s *SecurityLogger) RateLimitExceeded(ip, path string) {
	s.event("rate_limit_exceeded", "rate_limit", ip, slog.String("path", path))
}

// PathTraversalAttempt logs a stored attachment path that resolved outside
// the storage root
func (s *SecurityLogger) PathTraversalAttempt(ip, userID, path string) {
	s.event("path_traversal_attempt", "path_traversal", ip,
		slog.String("user_id", userID),
		slog.String("path", path),
	)
}

// InvalidOrigin logs a push connection refused for its Origin header
func (s *SecurityLogger) InvalidOrigin(ip, origin string) {
	s.event("invalid_origin", "invalid_origin", ip, slog.String("origin", origin))
}

// BlockedFileUpload logs an attachment the server refused. Only the name
// is recorded.
func (s *SecurityLogger) BlockedFileUpload(ip, userID, filename, reason string) {
	s.event("blocked_file_upload", "blocked_upload", ip,
		slog.String("user_id", userID),
		slog.String("filename", filename),
		slog.String("reason", reason),
	)
}
