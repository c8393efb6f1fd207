package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/services"
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	ingest     *services.IngestService
	alerts     *services.AlertService
	escalation *services.EscalationService
	stream     *StreamHandler
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(ingest *services.IngestService, alerts *services.AlertService, escalation *services.EscalationService, stream *StreamHandler) *APIHandler {
	return &APIHandler{
		ingest:     ingest,
		alerts:     alerts,
		escalation: escalation,
		stream:     stream,
	}
}

// IngestReading accepts a physiological reading for a subject and
// returns the created alert, or 204 when the reading is normal.
func (h *APIHandler) IngestReading(c echo.Context) error {
	subjectID := c.Param("id")

	var req models.IngestRequest
	if err := c.Bind(&req); err != nil {
		logrus.Errorf("Error binding ingest request: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}
	if req.Kind != models.ReadingHeartRate && req.Kind != models.ReadingBloodPressure {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "kind must be heart_rate or blood_pressure"})
	}

	reading := models.Reading{
		SubjectID:  subjectID,
		Kind:       req.Kind,
		HeartRate:  req.HeartRate,
		Systolic:   req.Systolic,
		Diastolic:  req.Diastolic,
		CapturedAt: time.Now(),
		Source:     req.Source,
	}
	if reading.Source == "" {
		reading.Source = models.SourceManual
	}

	alert, err := h.ingest.Ingest(c.Request().Context(), reading)
	if err != nil {
		// The reading itself was accepted; only the alert write failed.
		logrus.Errorf("Error ingesting reading for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusAccepted, map[string]string{
			"warning": "reading accepted but alert persistence is degraded",
		})
	}
	if alert == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, alert)
}

// GetAlert returns an alert by ID
func (h *APIHandler) GetAlert(c echo.Context) error {
	id := c.Param("id")
	alert, err := h.alerts.GetAlert(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error getting alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alert"})
	}
	return c.JSON(http.StatusOK, alert)
}

// ListAlerts returns all alerts for a subject, newest first
func (h *APIHandler) ListAlerts(c echo.Context) error {
	subjectID := c.Param("id")
	alerts, err := h.alerts.ListAlerts(c.Request().Context(), subjectID)
	if err != nil {
		logrus.Errorf("Error listing alerts for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alerts"})
	}
	return c.JSON(http.StatusOK, alerts)
}

// ListActiveAlerts returns the subject's unresolved alerts
func (h *APIHandler) ListActiveAlerts(c echo.Context) error {
	subjectID := c.Param("id")
	alerts, err := h.alerts.ListActive(c.Request().Context(), subjectID)
	if err != nil {
		logrus.Errorf("Error listing active alerts for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alerts"})
	}
	return c.JSON(http.StatusOK, alerts)
}

// ListCriticalAlerts returns the subject's unresolved critical alerts
func (h *APIHandler) ListCriticalAlerts(c echo.Context) error {
	subjectID := c.Param("id")
	alerts, err := h.alerts.ListCritical(c.Request().Context(), subjectID)
	if err != nil {
		logrus.Errorf("Error listing critical alerts for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alerts"})
	}
	return c.JSON(http.StatusOK, alerts)
}

// CountUnreadAlerts returns how many of the subject's alerts are unread
func (h *APIHandler) CountUnreadAlerts(c echo.Context) error {
	subjectID := c.Param("id")
	count, err := h.alerts.CountUnread(c.Request().Context(), subjectID)
	if err != nil {
		logrus.Errorf("Error counting unread alerts for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to count alerts"})
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": count})
}

// MarkAlertRead marks an alert as read. Idempotent.
func (h *APIHandler) MarkAlertRead(c echo.Context) error {
	id := c.Param("id")
	if err := h.alerts.MarkRead(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error marking alert %s read: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to mark alert read"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Alert marked read"})
}

// ResolveAlert resolves an alert. Idempotent: re-resolving keeps the
// original resolution time.
func (h *APIHandler) ResolveAlert(c echo.Context) error {
	id := c.Param("id")
	if err := h.alerts.Resolve(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error resolving alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to resolve alert"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Alert resolved"})
}

// ListEmergencies returns the subject's emergency events, newest first
func (h *APIHandler) ListEmergencies(c echo.Context) error {
	subjectID := c.Param("id")
	events, err := h.escalation.ListEmergencies(c.Request().Context(), subjectID)
	if err != nil {
		logrus.Errorf("Error listing emergencies for subject %s: %v", subjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get emergency events"})
	}
	return c.JSON(http.StatusOK, events)
}

// TriggerEmergency arms a panic-button escalation and returns its
// token. The countdown can be cancelled with CancelEmergency until it
// elapses.
func (h *APIHandler) TriggerEmergency(c echo.Context) error {
	subjectID := c.Param("id")

	var req models.TriggerEmergencyRequest
	if err := c.Bind(&req); err != nil {
		logrus.Errorf("Error binding emergency trigger request: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	token := h.escalation.TriggerEmergency(subjectID, req.HeartRate)
	return c.JSON(http.StatusAccepted, map[string]string{"token": token})
}

// CancelEmergency aborts a pending emergency countdown
func (h *APIHandler) CancelEmergency(c echo.Context) error {
	token := c.Param("token")
	if !h.escalation.CancelEmergency(token) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "Emergency already dispatched or token unknown",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Emergency cancelled"})
}

// SetupRoutes sets up the API routes
func (h *APIHandler) SetupRoutes(e *echo.Echo) {
	// Ingestion and subscription surface
	e.POST("/api/subjects/:id/readings", h.IngestReading)
	e.GET("/api/subjects/:id/stream", h.stream.Serve)

	// Query surface consumed by dashboards
	e.GET("/api/subjects/:id/alerts", h.ListAlerts)
	e.GET("/api/subjects/:id/alerts/active", h.ListActiveAlerts)
	e.GET("/api/subjects/:id/alerts/critical", h.ListCriticalAlerts)
	e.GET("/api/subjects/:id/alerts/unread-count", h.CountUnreadAlerts)

	// Alert lifecycle
	e.GET("/api/alerts/:id", h.GetAlert)
	e.POST("/api/alerts/:id/read", h.MarkAlertRead)
	e.POST("/api/alerts/:id/resolve", h.ResolveAlert)

	// Panic trigger and emergency history
	e.POST("/api/subjects/:id/emergency", h.TriggerEmergency)
	e.DELETE("/api/emergency/:token", h.CancelEmergency)
	e.GET("/api/subjects/:id/emergencies", h.ListEmergencies)
}
