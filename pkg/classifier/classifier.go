// Package classifier evaluates physiological readings against the
// severity rulebook. Classification is deterministic, stateless and
// safe to call concurrently for unrelated readings.
package classifier

import (
	"fmt"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// Physiologically plausible input bounds. Anything outside maps to
// "no alert" rather than an error: the classifier is total over its
// numeric input.
const (
	minPlausibleHeartRate = 1
	maxPlausibleHeartRate = 400
	minPlausiblePressure  = 1
	maxPlausiblePressure  = 400
)

// Classify evaluates a reading and returns the matched outcome, or
// (nil, false) when the reading is normal or not classifiable.
func Classify(reading models.Reading) (*models.Outcome, bool) {
	switch reading.Kind {
	case models.ReadingHeartRate:
		return classifyHeartRate(reading.HeartRate)
	case models.ReadingBloodPressure:
		return classifyBloodPressure(reading.Systolic, reading.Diastolic)
	default:
		return nil, false
	}
}

// classifyHeartRate walks the heart-rate rulebook in order. The ranges
// overlap intentionally: first match wins.
func classifyHeartRate(bpm int) (*models.Outcome, bool) {
	if bpm < minPlausibleHeartRate || bpm > maxPlausibleHeartRate {
		return nil, false
	}

	var (
		alertType models.AlertType
		severity  models.Severity
		message   string
		threshold int
	)

	switch {
	case bpm < 40:
		alertType = models.AlertSevereBradycardia
		severity = models.SeverityCritical
		message = fmt.Sprintf("Heart rate critically low: %d bpm", bpm)
		threshold = 40
	case bpm < 50:
		alertType = models.AlertBradycardia
		severity = models.SeverityHigh
		message = fmt.Sprintf("Heart rate very low: %d bpm", bpm)
		threshold = 50
	case bpm < 60:
		alertType = models.AlertLowHeartRate
		severity = models.SeverityMedium
		message = fmt.Sprintf("Heart rate low: %d bpm", bpm)
		threshold = 60
	case bpm > 180:
		alertType = models.AlertSevereTachycardia
		severity = models.SeverityCritical
		message = fmt.Sprintf("Heart rate critically high: %d bpm", bpm)
		threshold = 180
	case bpm > 150:
		alertType = models.AlertTachycardia
		severity = models.SeverityHigh
		message = fmt.Sprintf("Heart rate very high: %d bpm", bpm)
		threshold = 150
	case bpm > 120:
		alertType = models.AlertHighHeartRate
		severity = models.SeverityMedium
		message = fmt.Sprintf("Heart rate high: %d bpm", bpm)
		threshold = 120
	default:
		// 60-120 inclusive is the no-alert band
		return nil, false
	}

	return &models.Outcome{
		AlertType:       alertType,
		Severity:        severity,
		Message:         message,
		TriggeredValue:  bpm,
		ThresholdValue:  threshold,
		Recommendations: Recommendations(severity),
	}, true
}

// classifyBloodPressure walks the blood-pressure rulebook in order.
// Each tier fires on either the systolic or the diastolic breach.
func classifyBloodPressure(systolic, diastolic int) (*models.Outcome, bool) {
	if systolic < minPlausiblePressure || systolic > maxPlausiblePressure ||
		diastolic < minPlausiblePressure || diastolic > maxPlausiblePressure {
		return nil, false
	}

	var (
		alertType models.AlertType
		severity  models.Severity
		message   string
		triggered int
		threshold int
	)

	switch {
	case systolic >= 200 || diastolic >= 130:
		alertType = models.AlertHypertensiveEmergency
		severity = models.SeverityCritical
		message = fmt.Sprintf("Hypertensive emergency: %d/%d mmHg", systolic, diastolic)
		triggered, threshold = breach(systolic, diastolic, 200, 130)
	case systolic >= 180 || diastolic >= 120:
		alertType = models.AlertHypertensiveCrisis
		severity = models.SeverityCritical
		message = fmt.Sprintf("Hypertensive crisis: %d/%d mmHg", systolic, diastolic)
		triggered, threshold = breach(systolic, diastolic, 180, 120)
	case systolic >= 160 || diastolic >= 100:
		alertType = models.AlertSevereHypertension
		severity = models.SeverityHigh
		message = fmt.Sprintf("Severe hypertension: %d/%d mmHg", systolic, diastolic)
		triggered, threshold = breach(systolic, diastolic, 160, 100)
	case systolic >= 140 || diastolic >= 90:
		alertType = models.AlertHighBloodPressure
		severity = models.SeverityMedium
		message = fmt.Sprintf("Blood pressure high: %d/%d mmHg", systolic, diastolic)
		triggered, threshold = breach(systolic, diastolic, 140, 90)
	case systolic < 80 || diastolic < 50:
		alertType = models.AlertSevereHypotension
		severity = models.SeverityHigh
		message = fmt.Sprintf("Blood pressure very low: %d/%d mmHg", systolic, diastolic)
		if systolic < 80 {
			triggered, threshold = systolic, 80
		} else {
			triggered, threshold = diastolic, 50
		}
	case systolic < 90 || diastolic < 60:
		alertType = models.AlertLowBloodPressure
		severity = models.SeverityMedium
		message = fmt.Sprintf("Blood pressure low: %d/%d mmHg", systolic, diastolic)
		if systolic < 90 {
			triggered, threshold = systolic, 90
		} else {
			triggered, threshold = diastolic, 60
		}
	default:
		return nil, false
	}

	return &models.Outcome{
		AlertType:       alertType,
		Severity:        severity,
		Message:         message,
		TriggeredValue:  triggered,
		ThresholdValue:  threshold,
		Recommendations: Recommendations(severity),
	}, true
}

// breach picks which side of an OR tier fired, preferring systolic
func breach(systolic, diastolic, sysThreshold, diaThreshold int) (triggered, threshold int) {
	if systolic >= sysThreshold {
		return systolic, sysThreshold
	}
	return diastolic, diaThreshold
}
