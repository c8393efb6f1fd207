package timeplus

// Stream names
const (
	// AlertsStream is the mutable stream that stores alerts, keyed by alert id
	AlertsStream = "vw_alerts"

	// EmergencyEventsStream is the mutable stream that stores emergency
	// events, keyed by dedupe_key so repeated escalation triggers for the
	// same underlying event collapse at the storage layer too
	EmergencyEventsStream = "vw_emergency_events"
)

// GetAlertsSchema returns the schema for the alerts stream
func GetAlertsSchema() []Column {
	return []Column{
		{Name: "id", Type: "string"},
		{Name: "subject_id", Type: "string"},
		{Name: "alert_type", Type: "string"},
		{Name: "severity", Type: "string"},
		{Name: "message", Type: "string"},
		{Name: "triggered_value", Type: "int32"},
		{Name: "threshold_value", Type: "int32"},
		{Name: "data", Type: "string"}, // JSON string of classification details
		{Name: "is_read", Type: "bool"},
		{Name: "created_at", Type: "datetime64"},
		{Name: "resolved_at", Type: "datetime64", Nullable: true},
	}
}

// GetAlertsPrimaryKey returns the primary key columns of the alerts stream
func GetAlertsPrimaryKey() []string {
	return []string{"id"}
}

// GetEmergencyEventsSchema returns the schema for the emergency events stream
func GetEmergencyEventsSchema() []Column {
	return []Column{
		{Name: "id", Type: "string"},
		{Name: "alert_id", Type: "string"}, // empty for panic-button escalations
		{Name: "subject_id", Type: "string"},
		{Name: "dedupe_key", Type: "string"},
		{Name: "triggered_at", Type: "datetime64"},
		{Name: "heart_rate", Type: "int32", Nullable: true},
		{Name: "latitude", Type: "float64", Nullable: true},
		{Name: "longitude", Type: "float64", Nullable: true},
		{Name: "accuracy", Type: "float64", Nullable: true},
		{Name: "location_captured_at", Type: "datetime64", Nullable: true},
		{Name: "contact_failed", Type: "string"}, // JSON array of contact names
		{Name: "created_at", Type: "datetime64"},
	}
}

// GetEmergencyEventsPrimaryKey returns the primary key columns of the
// emergency events stream
func GetEmergencyEventsPrimaryKey() []string {
	return []string{"dedupe_key"}
}
