package models

import (
	"time"
)

// ReadingKind identifies which vital sign a reading carries
type ReadingKind string

const (
	ReadingHeartRate     ReadingKind = "heart_rate"
	ReadingBloodPressure ReadingKind = "blood_pressure"
)

// ReadingSource identifies where a reading came from
type ReadingSource string

const (
	SourceSensor ReadingSource = "sensor"
	SourceManual ReadingSource = "manual"
)

// Reading is a single physiological measurement for a subject.
// Readings are immutable once created.
type Reading struct {
	SubjectID  string        `json:"subjectId"`
	Kind       ReadingKind   `json:"kind"`
	HeartRate  int           `json:"heartRate,omitempty"` // bpm, heart_rate readings only
	Systolic   int           `json:"systolic,omitempty"`  // mmHg, blood_pressure readings only
	Diastolic  int           `json:"diastolic,omitempty"` // mmHg, blood_pressure readings only
	CapturedAt time.Time     `json:"capturedAt"`
	Source     ReadingSource `json:"source"`
}
