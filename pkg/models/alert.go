package models

import (
	"time"
)

// Severity represents the ordinal importance of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType is the closed taxonomy of conditions the classifier can report
type AlertType string

const (
	AlertSevereBradycardia      AlertType = "severe_bradycardia"
	AlertBradycardia            AlertType = "bradycardia"
	AlertLowHeartRate           AlertType = "low_heart_rate"
	AlertSevereTachycardia      AlertType = "severe_tachycardia"
	AlertTachycardia            AlertType = "tachycardia"
	AlertHighHeartRate          AlertType = "high_heart_rate"
	AlertHypertensiveEmergency  AlertType = "hypertensive_emergency"
	AlertHypertensiveCrisis     AlertType = "hypertensive_crisis"
	AlertSevereHypertension     AlertType = "severe_hypertension"
	AlertHighBloodPressure      AlertType = "high_blood_pressure"
	AlertSevereHypotension      AlertType = "severe_hypotension"
	AlertLowBloodPressure       AlertType = "low_blood_pressure"
)

// Outcome is the result of classifying a single reading.
// It is a derived value and is never persisted on its own.
type Outcome struct {
	AlertType       AlertType `json:"alertType"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	TriggeredValue  int       `json:"triggeredValue"`
	ThresholdValue  int       `json:"thresholdValue"`
	Recommendations []string  `json:"recommendations"`
}

// Alert is a persisted alert instance with its lifecycle fields.
// resolved_at is monotonic: once set it is never cleared.
type Alert struct {
	ID             string     `json:"id"`
	SubjectID      string     `json:"subjectId"`
	AlertType      AlertType  `json:"alertType"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	TriggeredValue int        `json:"triggeredValue"`
	ThresholdValue int        `json:"thresholdValue"`
	Data           string     `json:"data"` // JSON string: classification details, recommendations, optional location
	IsRead         bool       `json:"isRead"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Active reports whether the alert still needs attention
func (a *Alert) Active() bool {
	return a.ResolvedAt == nil
}

// EventType distinguishes the payloads broadcast on a subject channel
type EventType string

const (
	EventAlert     EventType = "alert"
	EventEmergency EventType = "emergency"
)

// Event is the envelope fanned out to channel subscribers. Delivery is
// best-effort; the alert store remains the durability source of truth.
type Event struct {
	Type        EventType       `json:"type"`
	SubjectID   string          `json:"subjectId"`
	Alert       *Alert          `json:"alert,omitempty"`
	Emergency   *EmergencyEvent `json:"emergency,omitempty"`
	Audio       string          `json:"audio,omitempty"` // client-side tone hint, e.g. "siren"
	PublishedAt time.Time       `json:"publishedAt"`
}

// IngestRequest is the request payload for submitting a reading
type IngestRequest struct {
	Kind      ReadingKind   `json:"kind"`
	HeartRate int           `json:"heartRate,omitempty"`
	Systolic  int           `json:"systolic,omitempty"`
	Diastolic int           `json:"diastolic,omitempty"`
	Source    ReadingSource `json:"source,omitempty"`
}

// TriggerEmergencyRequest is the request payload for the panic trigger
type TriggerEmergencyRequest struct {
	HeartRate *int `json:"heartRate,omitempty"`
}
