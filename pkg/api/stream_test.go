package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

func TestStreamDeliversEvents(t *testing.T) {
	mockClient := new(MockClient)
	router, hub := setupTestRouter(t, mockClient)

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/api/subjects/subject_1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// The subscription is attached once the upgrade completes
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("subject_1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish("subject_1", models.Event{
		Type:  models.EventAlert,
		Alert: &models.Alert{ID: "alert1", SubjectID: "subject_1"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.Event
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, models.EventAlert, event.Type)
	assert.Equal(t, "subject_1", event.SubjectID)
	require.NotNil(t, event.Alert)
	assert.Equal(t, "alert1", event.Alert.ID)
}

func TestStreamDetachesOnDisconnect(t *testing.T) {
	mockClient := new(MockClient)
	router, hub := setupTestRouter(t, mockClient)

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/api/subjects/subject_1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount("subject_1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount("subject_1") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Publishing after the disconnect must not panic
	hub.Publish("subject_1", models.Event{Type: models.EventAlert, Alert: &models.Alert{ID: "alert2"}})
}

func TestStreamIsolatedBySubject(t *testing.T) {
	mockClient := new(MockClient)
	router, hub := setupTestRouter(t, mockClient)

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/api/subjects/subject_1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount("subject_1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish("subject_2", models.Event{Type: models.EventAlert, Alert: &models.Alert{ID: "other"}})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var event models.Event
	err = conn.ReadJSON(&event)
	assert.Error(t, err, "expected a read timeout, got event %+v", event)
}
