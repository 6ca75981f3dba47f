package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled HTTP requests by route and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_requests_total",
		Help: "Handled HTTP requests by route and status code.",
	}, []string{"route", "status"})

	// SessionsCreatedTotal counts upstream conversations created.
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_sessions_created_total",
		Help: "Upstream conversations created on first credential use.",
	})

	// StreamEventsTotal counts downstream events written to clients.
	StreamEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_stream_events_total",
		Help: "Downstream streaming events written to clients.",
	})

	// TranslationFaultsTotal counts upstream events that could not be
	// translated cleanly and were degraded into diagnostic events.
	TranslationFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_translation_faults_total",
		Help: "Upstream events degraded into diagnostic downstream events.",
	})
)
