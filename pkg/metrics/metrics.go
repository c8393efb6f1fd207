// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsIngested counts readings accepted by the ingestion pipeline
	ReadingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vw_readings_ingested_total",
		Help: "Physiological readings accepted by the ingestion pipeline.",
	}, []string{"kind"})

	// AlertsCreated counts alerts persisted by the alert store
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vw_alerts_created_total",
		Help: "Alerts created, labelled by severity.",
	}, []string{"severity"})

	// EscalationsStarted counts escalation sequences that passed the dedupe gate
	EscalationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vw_escalations_started_total",
		Help: "Emergency escalation sequences started.",
	})

	// EscalationsDeduped counts escalation triggers collapsed by the dedupe key
	EscalationsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vw_escalations_deduped_total",
		Help: "Escalation triggers suppressed as duplicates.",
	})

	// NotificationFailures counts per-contact delivery failures
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vw_notification_failures_total",
		Help: "Contact notifications that exhausted their retries.",
	})

	// BroadcastDropped counts events dropped for slow or absent subscribers
	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vw_broadcast_dropped_total",
		Help: "Broadcast events dropped instead of blocking a publisher.",
	})
)
