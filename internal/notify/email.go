// Package notify e-mails the other side of a conversation when a new chat
// message is posted.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/webrana-confchat/internal/metrics"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// DefaultSendTimeout bounds one notification delivery
const DefaultSendTimeout = 15 * time.Second

// MessagePosted describes a new message for notification purposes
type MessagePosted struct {
	Paper           *models.Paper
	Sender          *models.User
	Recipients      []models.User
	Body            string
	AttachmentCount int
}

// Notifier is told about every accepted chat message
type Notifier interface {
	MessagePosted(ctx context.Context, event MessagePosted) error
}

// Noop discards notifications. Used when SMTP is not configured.
type Noop struct{}

// MessagePosted implements Notifier
func (Noop) MessagePosted(context.Context, MessagePosted) error { return nil }

// EmailConfig holds SMTP submission settings
type EmailConfig struct {
	Addr     string
	From     string
	Username string
	Password string
	Timeout  time.Duration
	// StartTLS upgrades the connection before authenticating. The server
	// must offer it.
	StartTLS  bool
	TLSConfig *tls.Config
}

// EmailNotifier delivers notifications over SMTP
type EmailNotifier struct {
	cfg     EmailConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEmailNotifier creates an EmailNotifier
func NewEmailNotifier(cfg EmailConfig, logger *slog.Logger, m *metrics.Metrics) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{cfg: cfg, logger: logger, metrics: m}
}

// MessagePosted e-mails every recipient that has an address
func (n *EmailNotifier) MessagePosted(ctx context.Context, event MessagePosted) error {
	builder := enmime.Builder().
		From("Conference Chat", n.cfg.From).
		Subject(subjectFor(event)).
		Date(time.Now()).
		Text([]byte(textFor(event)))

	count := 0
	for _, r := range event.Recipients {
		if r.Email == "" {
			continue
		}
		builder = builder.To(r.Name, r.Email)
		count++
	}
	if count == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := builder.Send(&smtpSender{ctx: ctx, cfg: n.cfg})

	n.metrics.ObserveNotification(err)
	if err != nil {
		n.logger.Warn("failed to send chat notification",
			slog.String("paper_id", event.Paper.ID),
			slog.Int("recipients", count),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}

	n.logger.Info("chat notification sent",
		slog.String("paper_id", event.Paper.ID),
		slog.Int("recipients", count),
	)
	return nil
}

func subjectFor(event MessagePosted) string {
	return fmt.Sprintf("New message about \"%s\"", event.Paper.Title)
}

func textFor(event MessagePosted) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sent a new message about your paper \"%s\".\n\n", event.Sender.Name, event.Paper.Title)
	if body := strings.TrimSpace(event.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	if event.AttachmentCount == 1 {
		b.WriteString("1 file attached.\n\n")
	} else if event.AttachmentCount > 1 {
		fmt.Fprintf(&b, "%d files attached.\n\n", event.AttachmentCount)
	}
	b.WriteString("Open the conference site to reply.\n")
	return b.String()
}

// smtpSender implements enmime.Sender with a go-smtp client. The whole
// submission, dial included, ends when ctx does.
type smtpSender struct {
	ctx context.Context
	cfg EmailConfig
}

// Send submits one message
func (s *smtpSender) Send(reversePath string, recipients []string, msg []byte) error {
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(s.ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Addr, err)
	}

	if deadline, ok := s.ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(s.ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := s.client(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	c.CommandTimeout = s.cfg.Timeout
	c.SubmissionTimeout = s.cfg.Timeout

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.SendMail(reversePath, recipients, bytes.NewReader(msg)); err != nil {
		return err
	}
	return c.Quit()
}

func (s *smtpSender) client(conn net.Conn) (*smtp.Client, error) {
	if !s.cfg.StartTLS {
		return smtp.NewClient(conn), nil
	}

	tlsConfig := &tls.Config{}
	if s.cfg.TLSConfig != nil {
		tlsConfig = s.cfg.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName, _, _ = net.SplitHostPort(s.cfg.Addr)
	}
	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return c, nil
}
