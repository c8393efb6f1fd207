package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/broadcast"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/location"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/metrics"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/notify"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

const dedupeKeyPrefix = "vw:escalation:"

// EscalationOptions tunes an escalation service
type EscalationOptions struct {
	Countdown       time.Duration // panic-button grace period before the sequence starts
	LocationTimeout time.Duration // bound on the location capture step
	DedupeTTL       time.Duration // retention of processed dedupe keys
}

// EscalationService orchestrates the critical-severity workflow:
// dedupe, location capture, emergency-event persistence, contact
// notification and channel broadcast. Each step is best-effort; once
// the sequence starts it runs to completion.
type EscalationService struct {
	tpClient timeplus.TimeplusClient
	redis    *redis.Client
	hub      *broadcast.Hub
	provider location.Provider
	notifier notify.Notifier
	contacts []models.Contact
	opts     EscalationOptions

	// Pending panic-button countdowns by token. Cancellation is only
	// possible while the countdown is still running.
	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc
}

// NewEscalationService creates a new escalation coordinator
func NewEscalationService(
	tpClient timeplus.TimeplusClient,
	redisClient *redis.Client,
	hub *broadcast.Hub,
	provider location.Provider,
	notifier notify.Notifier,
	contacts []models.Contact,
	opts EscalationOptions,
) *EscalationService {
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = 10 * time.Second
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = time.Hour
	}
	return &EscalationService{
		tpClient: tpClient,
		redis:    redisClient,
		hub:      hub,
		provider: provider,
		notifier: notifier,
		contacts: contacts,
		opts:     opts,
		pending:  make(map[string]context.CancelFunc),
	}
}

// EscalateAlert runs the escalation sequence for a critical classifier
// outcome. The triggering alert's id is the dedupe key, so an upstream
// retry of the same outcome escalates at most once.
func (s *EscalationService) EscalateAlert(ctx context.Context, alert *models.Alert, heartRate *int) (*models.EmergencyEvent, error) {
	return s.runEscalation(ctx, alert.SubjectID, alert.ID, alert.ID, heartRate)
}

// TriggerEmergency starts a panic-button escalation after a cancellable
// countdown. It returns immediately with the escalation token; the
// sequence itself runs in the background once the countdown elapses.
// Cancelling during the countdown aborts with no side effects.
func (s *EscalationService) TriggerEmergency(subjectID string, heartRate *int) string {
	token := uuid.New().String()

	countdownCtx, cancel := context.WithCancel(context.Background())
	s.pendingMu.Lock()
	s.pending[token] = cancel
	s.pendingMu.Unlock()

	go func() {
		defer cancel()

		if s.opts.Countdown > 0 {
			timer := time.NewTimer(s.opts.Countdown)
			defer timer.Stop()
			select {
			case <-countdownCtx.Done():
				logrus.Infof("Emergency trigger %s for subject %s cancelled during countdown", token, subjectID)
				return
			case <-timer.C:
			}
		}

		// Claim the token before the sequence starts. Once claimed,
		// CancelEmergency reports failure: the escalation window is
		// countdown-only, never mid-sequence.
		if !s.takePending(token) {
			logrus.Infof("Emergency trigger %s for subject %s cancelled during countdown", token, subjectID)
			return
		}

		// From here the sequence is not abortable, so it runs on a
		// fresh context.
		if _, err := s.runEscalation(context.Background(), subjectID, token, "", heartRate); err != nil &&
			!errors.Is(err, models.ErrDuplicateEscalation) {
			logrus.Errorf("Panic escalation %s for subject %s failed: %v", token, subjectID, err)
		}
	}()

	logrus.Infof("Emergency trigger %s armed for subject %s (countdown %s)", token, subjectID, s.opts.Countdown)
	return token
}

// CancelEmergency aborts a pending panic-button countdown. It returns
// false when the token is unknown or the sequence already started.
func (s *EscalationService) CancelEmergency(token string) bool {
	s.pendingMu.Lock()
	cancel, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	s.pendingMu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// takePending claims a countdown token for dispatch. It loses to a
// concurrent CancelEmergency that already removed the token.
func (s *EscalationService) takePending(token string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, ok := s.pending[token]; !ok {
		return false
	}
	delete(s.pending, token)
	return true
}

// runEscalation executes the escalation sequence. Location capture,
// persistence, notification and broadcast are each best-effort: a
// failed step is logged and recorded but never suppresses the rest.
func (s *EscalationService) runEscalation(ctx context.Context, subjectID, dedupeKey, alertID string, heartRate *int) (*models.EmergencyEvent, error) {
	if duplicate := s.checkDedupe(ctx, dedupeKey); duplicate {
		metrics.EscalationsDeduped.Inc()
		logrus.Infof("Skipping duplicate escalation for dedupe key %s", dedupeKey)
		return nil, models.ErrDuplicateEscalation
	}
	metrics.EscalationsStarted.Inc()

	event := &models.EmergencyEvent{
		ID:          uuid.New().String(),
		AlertID:     alertID,
		SubjectID:   subjectID,
		DedupeKey:   dedupeKey,
		TriggeredAt: time.Now(),
		HeartRate:   heartRate,
		CreatedAt:   time.Now(),
	}

	// Location capture is bounded and optional: a missing fix must
	// never suppress a critical escalation.
	locCtx, cancel := context.WithTimeout(ctx, s.opts.LocationTimeout)
	loc, err := s.provider.GetCurrentLocation(locCtx, subjectID)
	cancel()
	if err != nil {
		logrus.Warnf("Location capture failed for subject %s, escalating without location: %v", subjectID, err)
	} else {
		event.Location = loc
	}

	persisted := true
	if err := s.persistEvent(ctx, event); err != nil {
		persisted = false
		logrus.Errorf("Failed to persist emergency event %s: %v", event.ID, err)
	}

	s.notifyContacts(ctx, event)

	// Record per-contact delivery failures on the stored event. The
	// notification outcome is informational, not a rollback trigger.
	if persisted && len(event.ContactFailed) > 0 {
		if err := s.persistEvent(ctx, event); err != nil {
			logrus.Errorf("Failed to record contact failures on event %s: %v", event.ID, err)
		}
	}

	s.hub.Publish(subjectID, models.Event{
		Type:      models.EventEmergency,
		Emergency: event,
		Audio:     "siren",
	})

	logrus.Infof("Escalation complete for subject %s (event %s, location captured: %t, contacts failed: %d)",
		subjectID, event.ID, event.Location != nil, len(event.ContactFailed))
	return event, nil
}

// checkDedupe claims the dedupe key. A Redis outage degrades to
// escalating anyway: a duplicate notification beats a suppressed
// critical alert.
func (s *EscalationService) checkDedupe(ctx context.Context, dedupeKey string) bool {
	ok, err := s.redis.SetNX(ctx, dedupeKeyPrefix+dedupeKey, time.Now().Format(time.RFC3339), s.opts.DedupeTTL).Result()
	if err != nil {
		logrus.Warnf("Dedupe check failed for key %s, escalating anyway: %v", dedupeKey, err)
		return false
	}
	return !ok
}

func (s *EscalationService) notifyContacts(ctx context.Context, event *models.EmergencyEvent) {
	summary := buildSummary(event)
	locationLink := ""
	if event.Location != nil {
		locationLink = event.Location.MapsURL()
	}

	for _, contact := range s.contacts {
		if err := s.notifier.Notify(ctx, contact, summary, locationLink); err != nil {
			metrics.NotificationFailures.Inc()
			logrus.Errorf("Notification to %s (%s) failed: %v", contact.Name, contact.Role, err)
			event.ContactFailed = append(event.ContactFailed, contact.Name)
		}
	}
}

// buildSummary renders the human-readable emergency message sent to
// every contact.
func buildSummary(event *models.EmergencyEvent) string {
	pulse := "unavailable"
	if event.HeartRate != nil {
		pulse = fmt.Sprintf("%d bpm", *event.HeartRate)
	}
	locationText := "location unavailable"
	if event.Location != nil {
		locationText = event.Location.MapsURL()
	}
	return fmt.Sprintf(
		"EMERGENCY: subject %s needs immediate assistance. Time: %s. Pulse: %s. Location: %s.",
		event.SubjectID,
		event.TriggeredAt.Format(time.RFC1123),
		pulse,
		locationText,
	)
}

// ListEmergencies returns the subject's emergency events, newest first
func (s *EscalationService) ListEmergencies(ctx context.Context, subjectID string) ([]*models.EmergencyEvent, error) {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE subject_id = '%s' ORDER BY triggered_at DESC LIMIT 1000",
		timeplus.EmergencyEventsStream, escape(subjectID))

	results, err := s.tpClient.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency events: %w", err)
	}

	events := make([]*models.EmergencyEvent, 0, len(results))
	for _, row := range results {
		events = append(events, mapToEmergencyEvent(row))
	}
	return events, nil
}

func mapToEmergencyEvent(data map[string]interface{}) *models.EmergencyEvent {
	event := &models.EmergencyEvent{
		ID:          getString(data, "id"),
		AlertID:     getString(data, "alert_id"),
		SubjectID:   getString(data, "subject_id"),
		DedupeKey:   getString(data, "dedupe_key"),
		TriggeredAt: getTime(data, "triggered_at"),
		HeartRate:   getIntPtr(data, "heart_rate"),
		CreatedAt:   getTime(data, "created_at"),
	}

	if lat := getFloatPtr(data, "latitude"); lat != nil {
		event.Location = &models.Location{
			Latitude:  *lat,
			Longitude: getFloat(data, "longitude"),
			Accuracy:  getFloat(data, "accuracy"),
		}
		if capturedAt := getTimePtr(data, "location_captured_at"); capturedAt != nil {
			event.Location.CapturedAt = *capturedAt
		}
	}

	if raw := getString(data, "contact_failed"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &event.ContactFailed); err != nil {
			logrus.Warnf("Malformed contact_failed payload on event %s: %v", event.ID, err)
		}
	}
	return event
}

// persistEvent upserts the emergency event. The stream is mutable and
// keyed by dedupe_key, which also collapses duplicates at the storage
// layer.
func (s *EscalationService) persistEvent(ctx context.Context, event *models.EmergencyEvent) error {
	contactFailed, err := json.Marshal(event.ContactFailed)
	if err != nil {
		return &models.PersistenceError{Op: "encode emergency event", Err: err}
	}

	columns := []string{
		"id", "alert_id", "subject_id", "dedupe_key", "triggered_at",
		"heart_rate", "latitude", "longitude", "accuracy",
		"location_captured_at", "contact_failed", "created_at",
	}

	var hr interface{}
	if event.HeartRate != nil {
		hr = int32(*event.HeartRate)
	}
	var lat, lng, acc interface{}
	var capturedAt interface{}
	if event.Location != nil {
		lat = event.Location.Latitude
		lng = event.Location.Longitude
		acc = event.Location.Accuracy
		capturedAt = event.Location.CapturedAt
	}

	values := []interface{}{
		event.ID, event.AlertID, event.SubjectID, event.DedupeKey, event.TriggeredAt,
		hr, lat, lng, acc,
		capturedAt, string(contactFailed), event.CreatedAt,
	}

	if err := s.tpClient.InsertIntoStream(ctx, timeplus.EmergencyEventsStream, columns, values); err != nil {
		return &models.PersistenceError{Op: "persist emergency event", Err: err}
	}
	return nil
}
