package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/metrics"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

// AlertService owns alert persistence and every lifecycle transition.
// Alerts are append-only history: they are created once, mutated only
// through MarkRead/Resolve, and never deleted.
type AlertService struct {
	tpClient    timeplus.TimeplusClient
	alertStream string

	// Per-alert-id write serialization so concurrent duplicate
	// read/resolve calls stay idempotent. Entries are refcounted and
	// pruned once uncontended, so the map does not grow with alert
	// history.
	lockMu sync.Mutex
	locks  map[string]*alertLock
}

// alertLock is a refcounted per-alert mutex entry
type alertLock struct {
	mu   sync.Mutex
	refs int
}

// NewAlertService creates a new alert service
func NewAlertService(tpClient timeplus.TimeplusClient) *AlertService {
	return &AlertService{
		tpClient:    tpClient,
		alertStream: timeplus.AlertsStream,
		locks:       make(map[string]*alertLock),
	}
}

// alertData is the structured payload stored in the alert's data column
type alertData struct {
	Recommendations []string        `json:"recommendations,omitempty"`
	Reading         *models.Reading `json:"reading,omitempty"`
}

// CreateAlert persists a new alert for a classified reading. The alert
// starts unread and unresolved. A store failure surfaces as a
// PersistenceError which the ingestion pipeline logs without aborting
// reading intake.
func (s *AlertService) CreateAlert(ctx context.Context, outcome *models.Outcome, reading models.Reading) (*models.Alert, error) {
	data, err := json.Marshal(alertData{
		Recommendations: outcome.Recommendations,
		Reading:         &reading,
	})
	if err != nil {
		return nil, &models.PersistenceError{Op: "encode alert data", Err: err}
	}

	alert := &models.Alert{
		ID:             uuid.New().String(),
		SubjectID:      reading.SubjectID,
		AlertType:      outcome.AlertType,
		Severity:       outcome.Severity,
		Message:        outcome.Message,
		TriggeredValue: outcome.TriggeredValue,
		ThresholdValue: outcome.ThresholdValue,
		Data:           string(data),
		IsRead:         false,
		CreatedAt:      time.Now(),
	}

	if err := s.persistAlert(ctx, alert); err != nil {
		return nil, &models.PersistenceError{Op: "create alert", Err: err}
	}

	metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()
	logrus.Infof("Created %s alert %s (%s) for subject %s", alert.Severity, alert.ID, alert.AlertType, alert.SubjectID)
	return alert, nil
}

// GetAlert returns an alert by id
func (s *AlertService) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE id = '%s' LIMIT 1",
		s.alertStream, escape(id))

	results, err := s.tpClient.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %s: %w", id, err)
	}
	if len(results) == 0 {
		return nil, models.ErrAlertNotFound
	}
	return mapToAlert(results[0]), nil
}

// MarkRead sets is_read on an alert. Marking an already-read alert is a
// no-op success.
func (s *AlertService) MarkRead(ctx context.Context, id string) error {
	unlock := s.lockAlert(id)
	defer unlock()

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.IsRead {
		return nil
	}

	alert.IsRead = true
	if err := s.persistAlert(ctx, alert); err != nil {
		return &models.PersistenceError{Op: "mark alert read", Err: err}
	}
	return nil
}

// Resolve sets resolved_at to now if it is currently null. Re-resolving
// a resolved alert leaves the original resolved_at untouched and
// returns success: resolved_at is monotonic.
func (s *AlertService) Resolve(ctx context.Context, id string) error {
	unlock := s.lockAlert(id)
	defer unlock()

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.ResolvedAt != nil {
		return nil
	}

	now := time.Now()
	alert.ResolvedAt = &now
	if err := s.persistAlert(ctx, alert); err != nil {
		return &models.PersistenceError{Op: "resolve alert", Err: err}
	}
	logrus.Infof("Resolved alert %s for subject %s", alert.ID, alert.SubjectID)
	return nil
}

// ListAlerts returns every alert for a subject, newest first
func (s *AlertService) ListAlerts(ctx context.Context, subjectID string) ([]*models.Alert, error) {
	return s.queryAlerts(ctx, fmt.Sprintf("subject_id = '%s'", escape(subjectID)))
}

// ListActive returns the subject's alerts that are not yet resolved.
// An alert is active iff resolved_at is null.
func (s *AlertService) ListActive(ctx context.Context, subjectID string) ([]*models.Alert, error) {
	return s.queryAlerts(ctx, fmt.Sprintf(
		"subject_id = '%s' AND resolved_at IS NULL", escape(subjectID)))
}

// ListCritical returns the subject's unresolved critical alerts
func (s *AlertService) ListCritical(ctx context.Context, subjectID string) ([]*models.Alert, error) {
	return s.queryAlerts(ctx, fmt.Sprintf(
		"subject_id = '%s' AND severity = '%s' AND resolved_at IS NULL",
		escape(subjectID), models.SeverityCritical))
}

// CountUnread returns how many of the subject's alerts are unread
func (s *AlertService) CountUnread(ctx context.Context, subjectID string) (int, error) {
	query := fmt.Sprintf("SELECT count() AS unread FROM table(%s) WHERE subject_id = '%s' AND is_read = false",
		s.alertStream, escape(subjectID))

	results, err := s.tpClient.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return getInt(results[0], "unread"), nil
}

func (s *AlertService) queryAlerts(ctx context.Context, whereClause string) ([]*models.Alert, error) {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE %s ORDER BY created_at DESC LIMIT 1000",
		s.alertStream, whereClause)

	results, err := s.tpClient.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	alerts := make([]*models.Alert, 0, len(results))
	for _, result := range results {
		alerts = append(alerts, mapToAlert(result))
	}
	return alerts, nil
}

// persistAlert upserts the full alert row. The alerts stream is mutable
// and keyed by id, so an insert with an existing id replaces the row.
func (s *AlertService) persistAlert(ctx context.Context, alert *models.Alert) error {
	columns := []string{
		"id", "subject_id", "alert_type", "severity", "message",
		"triggered_value", "threshold_value", "data", "is_read",
		"created_at", "resolved_at",
	}
	values := []interface{}{
		alert.ID, alert.SubjectID, string(alert.AlertType), string(alert.Severity), alert.Message,
		int32(alert.TriggeredValue), int32(alert.ThresholdValue), alert.Data, alert.IsRead,
		alert.CreatedAt, alert.ResolvedAt,
	}
	return s.tpClient.InsertIntoStream(ctx, s.alertStream, columns, values)
}

// lockAlert serializes lifecycle writes for one alert id. The returned
// func releases the lock and drops the map entry once no other caller
// holds or awaits it.
func (s *AlertService) lockAlert(id string) func() {
	s.lockMu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &alertLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.lockMu.Unlock()
	}
}

func mapToAlert(data map[string]interface{}) *models.Alert {
	return &models.Alert{
		ID:             getString(data, "id"),
		SubjectID:      getString(data, "subject_id"),
		AlertType:      models.AlertType(getString(data, "alert_type")),
		Severity:       models.Severity(getString(data, "severity")),
		Message:        getString(data, "message"),
		TriggeredValue: getInt(data, "triggered_value"),
		ThresholdValue: getInt(data, "threshold_value"),
		Data:           getString(data, "data"),
		IsRead:         getBool(data, "is_read"),
		CreatedAt:      getTime(data, "created_at"),
		ResolvedAt:     getTimePtr(data, "resolved_at"),
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
