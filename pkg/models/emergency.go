package models

import (
	"fmt"
	"time"
)

// Location is a geolocation fix captured during escalation
type Location struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"` // meters
	CapturedAt time.Time `json:"capturedAt"`
}

// MapsURL returns a maps deep link for the fix
func (l *Location) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%f,%f", l.Latitude, l.Longitude)
}

// EmergencyEvent records one escalation. Immutable once created except
// for the contact_failed flags recorded after notification delivery.
type EmergencyEvent struct {
	ID            string    `json:"id"`
	AlertID       string    `json:"alertId,omitempty"` // empty for panic-button escalations
	SubjectID     string    `json:"subjectId"`
	DedupeKey     string    `json:"dedupeKey"`
	TriggeredAt   time.Time `json:"triggeredAt"`
	HeartRate     *int      `json:"heartRate,omitempty"` // last known snapshot, if any
	Location      *Location `json:"location,omitempty"`
	ContactFailed []string  `json:"contactFailed,omitempty"` // contacts notification could not reach
	CreatedAt     time.Time `json:"createdAt"`
}

// ContactRole distinguishes the configured emergency contacts
type ContactRole string

const (
	RoleFamily ContactRole = "family"
	RoleDoctor ContactRole = "doctor"
)

// Contact is a configured notification target for emergency escalations
type Contact struct {
	Name       string      `mapstructure:"name" json:"name"`
	Role       ContactRole `mapstructure:"role" json:"role"`
	WebhookURL string      `mapstructure:"webhookUrl" json:"webhookUrl"`
}
