package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

func newTestPipeline(t *testing.T, mockClient *MockClient, notifier *recordingNotifier) (*IngestService, *EscalationService) {
	t.Helper()
	provider := &stubProvider{err: models.ErrLocationUnavailable}
	escalation, hub := newTestEscalation(t, mockClient, provider, notifier, EscalationOptions{})
	alerts := NewAlertService(mockClient)
	return NewIngestService(alerts, escalation, hub), escalation
}

func TestIngestNormalReading(t *testing.T) {
	mockClient := new(MockClient)
	notifier := &recordingNotifier{}
	ingest, _ := newTestPipeline(t, mockClient, notifier)

	alert, err := ingest.Ingest(context.Background(), models.Reading{
		SubjectID: "subject_42",
		Kind:      models.ReadingHeartRate,
		HeartRate: 80,
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	// Nothing persisted, nothing escalated
	mockClient.AssertNotCalled(t, "InsertIntoStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, notifier.notified())
}

func TestIngestMediumSeverityDoesNotEscalate(t *testing.T) {
	mockClient := new(MockClient)
	notifier := &recordingNotifier{}
	ingest, _ := newTestPipeline(t, mockClient, notifier)

	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(nil)

	alert, err := ingest.Ingest(context.Background(), models.Reading{
		SubjectID: "subject_42",
		Kind:      models.ReadingHeartRate,
		HeartRate: 125,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityMedium, alert.Severity)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, notifier.notified())
	mockClient.AssertNotCalled(t, "InsertIntoStream", mock.Anything, timeplus.EmergencyEventsStream, mock.Anything, mock.Anything)
}

func TestIngestCriticalReadingEscalates(t *testing.T) {
	mockClient := new(MockClient)
	notifier := &recordingNotifier{}
	ingest, escalation := newTestPipeline(t, mockClient, notifier)

	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(nil)
	mockClient.On("InsertIntoStream", mock.Anything, timeplus.EmergencyEventsStream, mock.Anything, mock.Anything).
		Return(nil)

	sub := escalation.hub.Subscribe("subject_42")
	defer sub.Close()

	alert, err := ingest.Ingest(context.Background(), models.Reading{
		SubjectID: "subject_42",
		Kind:      models.ReadingHeartRate,
		HeartRate: 185,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)

	// First the alert event, then the emergency from the async escalation
	var sawAlert, sawEmergency bool
	timeout := time.After(2 * time.Second)
	for !(sawAlert && sawEmergency) {
		select {
		case event := <-sub.Events():
			switch event.Type {
			case models.EventAlert:
				sawAlert = true
				assert.Equal(t, alert.ID, event.Alert.ID)
			case models.EventEmergency:
				sawEmergency = true
				assert.Equal(t, alert.ID, event.Emergency.DedupeKey)
				require.NotNil(t, event.Emergency.HeartRate)
				assert.Equal(t, 185, *event.Emergency.HeartRate)
			}
		case <-timeout:
			t.Fatalf("pipeline incomplete: alert=%t emergency=%t", sawAlert, sawEmergency)
		}
	}

	assert.Equal(t, []string{"Ana", "Dr. Lee"}, notifier.notified())
}

func TestIngestPersistenceFailureSurfaces(t *testing.T) {
	mockClient := new(MockClient)
	notifier := &recordingNotifier{}
	ingest, _ := newTestPipeline(t, mockClient, notifier)

	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Return(assert.AnError)

	alert, err := ingest.Ingest(context.Background(), models.Reading{
		SubjectID: "subject_42",
		Kind:      models.ReadingHeartRate,
		HeartRate: 39,
	})
	assert.Nil(t, alert)

	var perr *models.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestIngestDefaultsCapturedAtAndSource(t *testing.T) {
	mockClient := new(MockClient)
	notifier := &recordingNotifier{}
	ingest, _ := newTestPipeline(t, mockClient, notifier)

	var insertedValues []interface{}
	mockClient.On("InsertIntoStream", mock.Anything, timeplus.AlertsStream, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			insertedValues = args.Get(3).([]interface{})
		}).Return(nil)

	_, err := ingest.Ingest(context.Background(), models.Reading{
		SubjectID: "subject_42",
		Kind:      models.ReadingBloodPressure,
		Systolic:  150,
		Diastolic: 95,
	})
	require.NoError(t, err)
	require.NotEmpty(t, insertedValues)
}
