package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/broadcast"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/classifier"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/metrics"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// IngestService is the reading ingestion pipeline: classify, persist,
// broadcast, and escalate critical outcomes. Nothing downstream of
// classification may abort the intake of a reading.
type IngestService struct {
	alerts     *AlertService
	escalation *EscalationService
	hub        *broadcast.Hub
}

// NewIngestService creates a new ingestion pipeline
func NewIngestService(alerts *AlertService, escalation *EscalationService, hub *broadcast.Hub) *IngestService {
	return &IngestService{
		alerts:     alerts,
		escalation: escalation,
		hub:        hub,
	}
}

// Ingest classifies a reading and drives the alerting pipeline.
// It returns the created alert, or nil when the reading is normal.
// A persistence failure is surfaced to the caller but is not fatal to
// the reading's own intake.
func (s *IngestService) Ingest(ctx context.Context, reading models.Reading) (*models.Alert, error) {
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = time.Now()
	}
	if reading.Source == "" {
		reading.Source = models.SourceSensor
	}
	metrics.ReadingsIngested.WithLabelValues(string(reading.Kind)).Inc()

	outcome, ok := classifier.Classify(reading)
	if !ok {
		return nil, nil
	}

	alert, err := s.alerts.CreateAlert(ctx, outcome, reading)
	if err != nil {
		logrus.Errorf("Failed to persist alert for subject %s: %v", reading.SubjectID, err)
		return nil, err
	}

	s.hub.Publish(alert.SubjectID, models.Event{
		Type:  models.EventAlert,
		Alert: alert,
	})

	if alert.Severity == models.SeverityCritical {
		var heartRate *int
		if reading.Kind == models.ReadingHeartRate {
			hr := reading.HeartRate
			heartRate = &hr
		}
		// Escalation runs off the ingestion path. The dedupe key (the
		// alert id) keeps upstream retries from double-escalating.
		go func() {
			if _, err := s.escalation.EscalateAlert(context.Background(), alert, heartRate); err != nil {
				logrus.Warnf("Escalation for alert %s did not run: %v", alert.ID, err)
			}
		}()
	}

	return alert, nil
}
