// Package metrics объявляет прометеевские метрики сервиса биллинга.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки события, значения метки outcome.
const (
	OutcomeApplied           = "applied"
	OutcomeIgnored           = "ignored"
	OutcomeMissingIdentity   = "missing_identity"
	OutcomeUnknownCustomer   = "unknown_customer"
	OutcomeAmbiguousCustomer = "ambiguous_customer"
	OutcomeError             = "error"
)

var (
	// EventsProcessed считает обработанные события вебхука по типу и исходу.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_events_processed_total",
		Help: "Processed billing webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration — длительность обработки запроса вебхука.
	WebhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_webhook_duration_seconds",
		Help:    "Webhook request handling duration.",
		Buckets: prometheus.DefBuckets,
	})
)
