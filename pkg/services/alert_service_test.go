package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/classifier"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

func alertRow(id string, isRead bool, resolvedAt interface{}) map[string]interface{} {
	row := map[string]interface{}{
		"id":              id,
		"subject_id":      "subject_1",
		"alert_type":      "severe_bradycardia",
		"severity":        "critical",
		"message":         "Heart rate critically low: 39 bpm",
		"triggered_value": int32(39),
		"threshold_value": int32(40),
		"data":            "{}",
		"is_read":         isRead,
		"created_at":      time.Now().Add(-time.Minute),
	}
	if resolvedAt != nil {
		row["resolved_at"] = resolvedAt
	}
	return row
}

func TestCreateAlert(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	var insertedColumns []string
	var insertedValues []interface{}
	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			insertedColumns = args.Get(2).([]string)
			insertedValues = args.Get(3).([]interface{})
		}).Return(nil)

	reading := models.Reading{
		SubjectID: "subject_1",
		Kind:      models.ReadingHeartRate,
		HeartRate: 39,
	}
	outcome, ok := classifier.Classify(reading)
	require.True(t, ok)

	alert, err := service.CreateAlert(context.Background(), outcome, reading)
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "subject_1", alert.SubjectID)
	assert.Equal(t, models.AlertSevereBradycardia, alert.AlertType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.False(t, alert.IsRead)
	assert.Nil(t, alert.ResolvedAt)
	assert.True(t, alert.Active())

	// The stored data column carries the recommendations and the reading
	require.Contains(t, insertedColumns, "data")
	var stored alertData
	for i, col := range insertedColumns {
		if col == "data" {
			require.NoError(t, json.Unmarshal([]byte(insertedValues[i].(string)), &stored))
		}
	}
	assert.NotEmpty(t, stored.Recommendations)
	require.NotNil(t, stored.Reading)
	assert.Equal(t, 39, stored.Reading.HeartRate)

	mockClient.AssertExpectations(t)
}

func TestCreateAlertPersistenceError(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	reading := models.Reading{SubjectID: "subject_1", Kind: models.ReadingHeartRate, HeartRate: 39}
	outcome, _ := classifier.Classify(reading)

	alert, err := service.CreateAlert(context.Background(), outcome, reading)
	assert.Nil(t, alert)

	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create alert", perr.Op)
}

func TestGetAlertNotFound(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{}, nil)

	_, err := service.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
}

func TestMarkReadIdempotent(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	// First read: alert is unread, expect one upsert with is_read=true
	mockClient.On("ExecuteQuery", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "WHERE id = 'alert1'")
	})).Return([]map[string]interface{}{alertRow("alert1", false, nil)}, nil).Once()

	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything,
		mock.MatchedBy(func(values []interface{}) bool {
			// is_read is the ninth column in the upsert
			return values[8] == true
		})).Return(nil).Once()

	require.NoError(t, service.MarkRead(context.Background(), "alert1"))

	// Second read: alert already read, no further write
	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", true, nil)}, nil).Once()

	require.NoError(t, service.MarkRead(context.Background(), "alert1"))

	mockClient.AssertExpectations(t)
	mockClient.AssertNumberOfCalls(t, "InsertIntoStream", 1)
}

func TestResolveIdempotent(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", false, nil)}, nil).Once()
	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(nil).Once()

	require.NoError(t, service.Resolve(context.Background(), "alert1"))

	// Re-resolving keeps the original resolution time: no second write
	resolvedAt := time.Now().Add(-time.Hour)
	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", false, resolvedAt)}, nil).Once()

	require.NoError(t, service.Resolve(context.Background(), "alert1"))

	mockClient.AssertExpectations(t)
	mockClient.AssertNumberOfCalls(t, "InsertIntoStream", 1)
}

func TestResolveConcurrentDuplicates(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	// The per-alert lock serializes the read-check-upsert sequences, so
	// only the first caller observes an unresolved row and writes.
	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", false, nil)}, nil).Once()
	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", false, time.Now().Add(-time.Second))}, nil)
	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.Resolve(context.Background(), "alert1"))
		}()
	}
	wg.Wait()

	mockClient.AssertNumberOfCalls(t, "InsertIntoStream", 1)
}

func TestLifecycleLocksPruned(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{alertRow("alert1", true, nil)}, nil)

	// Lifecycle calls across many distinct alerts must not accumulate
	// lock entries on a long-lived process.
	for i := 0; i < 100; i++ {
		require.NoError(t, service.MarkRead(context.Background(), fmt.Sprintf("alert%d", i)))
	}

	service.lockMu.Lock()
	remaining := len(service.locks)
	service.lockMu.Unlock()
	assert.Zero(t, remaining)

	// Contended entries are pruned once the last holder releases
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.MarkRead(context.Background(), "alert1"))
		}()
	}
	wg.Wait()

	service.lockMu.Lock()
	remaining = len(service.locks)
	service.lockMu.Unlock()
	assert.Zero(t, remaining)
}

func TestListActiveFiltersResolved(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "subject_id = 'subject_1'") &&
			strings.Contains(query, "resolved_at IS NULL")
	})).Return([]map[string]interface{}{alertRow("alert1", false, nil)}, nil)

	alerts, err := service.ListActive(context.Background(), "subject_1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Active())

	mockClient.AssertExpectations(t)
}

func TestListCriticalQuery(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "severity = 'critical'") &&
			strings.Contains(query, "resolved_at IS NULL")
	})).Return([]map[string]interface{}{}, nil)

	alerts, err := service.ListCritical(context.Background(), "subject_1")
	require.NoError(t, err)
	assert.Empty(t, alerts)

	mockClient.AssertExpectations(t)
}

func TestCountUnread(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "count() AS unread") &&
			strings.Contains(query, "is_read = false")
	})).Return([]map[string]interface{}{{"unread": uint64(3)}}, nil)

	count, err := service.CountUnread(context.Background(), "subject_1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestQueryEscapesSubjectID(t *testing.T) {
	mockClient := new(MockClient)
	service := NewAlertService(mockClient)

	mockClient.On("ExecuteQuery", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "subject_id = 'o''brien'")
	})).Return([]map[string]interface{}{}, nil)

	_, err := service.ListAlerts(context.Background(), "o'brien")
	require.NoError(t, err)

	mockClient.AssertExpectations(t)
}
