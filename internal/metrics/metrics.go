// Package metrics exposes Prometheus instrumentation for the chat server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	MessagesSent       *prometheus.CounterVec
	AttachmentsStored  *prometheus.CounterVec
	AttachmentBytes    prometheus.Histogram
	UploadsRejected    *prometheus.CounterVec
	ReadAcknowledged   prometheus.Counter
	WebsocketClients   prometheus.Gauge
	PushHintsSent      prometheus.Counter
	NotificationsSent  *prometheus.CounterVec
	PaperCacheRequests *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confchat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_messages_sent_total",
				Help: "Chat messages accepted, by sender role",
			},
			[]string{"role"},
		),
		AttachmentsStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_attachments_stored_total",
				Help: "Attachments stored, by file type",
			},
			[]string{"file_type"},
		),
		AttachmentBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "confchat_attachment_size_bytes",
				Help:    "Size of stored attachments",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		UploadsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_uploads_rejected_total",
				Help: "Attachments refused by server-side validation, by reason",
			},
			[]string{"reason"},
		),
		ReadAcknowledged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "confchat_read_acknowledged_total",
				Help: "Message list fetches that advanced a read watermark",
			},
		),
		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "confchat_websocket_clients",
				Help: "Connected push hint clients",
			},
		),
		PushHintsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "confchat_push_hints_sent_total",
				Help: "unread_changed hints delivered to websocket clients",
			},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_email_notifications_total",
				Help: "E-mail notifications attempted, by result",
			},
			[]string{"result"},
		),
		PaperCacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confchat_paper_cache_requests_total",
				Help: "Paper cache lookups, by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency per matched route
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)

			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, route, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// ObserveMessage records an accepted message and its attachments
func (m *Metrics) ObserveMessage(role string, fileTypes []string, sizes []int64) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(role).Inc()
	for i, ft := range fileTypes {
		m.AttachmentsStored.WithLabelValues(ft).Inc()
		if i < len(sizes) {
			m.AttachmentBytes.Observe(float64(sizes[i]))
		}
	}
}

// ObserveRejectedUpload records an attachment refused by the server
func (m *Metrics) ObserveRejectedUpload(reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

// ObserveReadAcknowledged records a watermark advance
func (m *Metrics) ObserveReadAcknowledged() {
	if m == nil {
		return
	}
	m.ReadAcknowledged.Inc()
}

// ObserveNotification records an e-mail notification attempt
func (m *Metrics) ObserveNotification(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsSent.WithLabelValues(result).Inc()
}

// ObserveCache records a paper cache hit or miss
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PaperCacheRequests.WithLabelValues(result).Inc()
}
