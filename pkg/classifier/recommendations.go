package classifier

import (
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// Severity-keyed guidance attached to every classified outcome.
// These lists are data, not control flow, and may be localized.
var recommendationsBySeverity = map[models.Severity][]string{
	models.SeverityCritical: {
		"Seek emergency care immediately",
		"Remain still and do not exert yourself",
		"Keep your phone within reach until help arrives",
	},
	models.SeverityHigh: {
		"Contact your attending clinician today",
		"Sit down and rest until the reading normalizes",
		"Repeat the measurement in 15 minutes",
	},
	models.SeverityMedium: {
		"Repeat the measurement after resting",
		"Avoid caffeine and strenuous activity",
		"Mention this reading at your next appointment",
	},
	models.SeverityLow: {
		"Keep monitoring as usual",
	},
}

// Recommendations returns a copy of the guidance list for a severity.
// Callers may annotate their copy without affecting the rulebook.
func Recommendations(severity models.Severity) []string {
	base := recommendationsBySeverity[severity]
	out := make([]string, len(base))
	copy(out, base)
	return out
}
