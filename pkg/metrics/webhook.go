package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records outcomes of provider webhook deliveries.
type WebhookMetrics struct {
	processed  *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events handled to completion.",
	}, []string{"provider", "type"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook deliveries skipped as already processed.",
	}, []string{"provider", "type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events that ended in an error.",
	}, []string{"provider", "type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_event_duration_seconds",
		Help:    "Time spent handling a webhook event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "type"})
	reg.MustRegister(processed, duplicates, failures, duration)
	return &WebhookMetrics{
		processed:  processed,
		duplicates: duplicates,
		failures:   failures,
		duration:   duration,
	}
}

// IncProcessed marks a processed event of the given type.
func (w *WebhookMetrics) IncProcessed(provider, eventType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncDuplicate marks a delivery skipped by the idempotency guard.
func (w *WebhookMetrics) IncDuplicate(provider, eventType string) {
	if w == nil || w.duplicates == nil {
		return
	}
	w.duplicates.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncFailure marks an event whose handler returned an error.
func (w *WebhookMetrics) IncFailure(provider, eventType string) {
	if w == nil || w.failures == nil {
		return
	}
	w.failures.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// ObserveDuration records how long the handler ran.
func (w *WebhookMetrics) ObserveDuration(provider, eventType string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Observe(duration.Seconds())
}
