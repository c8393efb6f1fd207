package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

func alertEvent(id string) models.Event {
	return models.Event{
		Type:  models.EventAlert,
		Alert: &models.Alert{ID: id},
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(4)

	sub1 := hub.Subscribe("subject_1")
	defer sub1.Close()
	sub2 := hub.Subscribe("subject_1")
	defer sub2.Close()

	hub.Publish("subject_1", alertEvent("a1"))

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case event := <-sub.Events():
			assert.Equal(t, models.EventAlert, event.Type)
			assert.Equal(t, "subject_1", event.SubjectID)
			assert.Equal(t, "a1", event.Alert.ID)
			assert.False(t, event.PublishedAt.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishIsolatedBySubject(t *testing.T) {
	hub := NewHub(4)

	sub := hub.Subscribe("subject_1")
	defer sub.Close()

	hub.Publish("subject_2", alertEvent("a1"))

	select {
	case event := <-sub.Events():
		t.Fatalf("received event for another subject: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishOrderPreservedPerSubscriber(t *testing.T) {
	hub := NewHub(32)

	sub := hub.Subscribe("subject_1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		hub.Publish("subject_1", alertEvent(fmt.Sprintf("a%d", i)))
	}

	for i := 0; i < 10; i++ {
		select {
		case event := <-sub.Events():
			assert.Equal(t, fmt.Sprintf("a%d", i), event.Alert.ID)
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(2)

	slow := hub.Subscribe("subject_1")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Publish far more than the buffer holds without draining
		for i := 0; i < 20; i++ {
			hub.Publish("subject_1", alertEvent(fmt.Sprintf("a%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The buffer holds the oldest events; the rest were dropped.
	assert.Len(t, slow.Events(), 2)
	event := <-slow.Events()
	assert.Equal(t, "a0", event.Alert.ID)
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := NewHub(4)

	sub := hub.Subscribe("subject_1")
	require.Equal(t, 1, hub.SubscriberCount("subject_1"))

	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount("subject_1"))

	// The event channel is closed once drained
	_, open := <-sub.Events()
	assert.False(t, open)

	// Close is idempotent
	sub.Close()

	// Publishing after the last unsubscribe must not panic
	hub.Publish("subject_1", alertEvent("a1"))
}

func TestSubscribeDuringLastUnsubscribe(t *testing.T) {
	hub := NewHub(4)

	// A new subscriber racing the last subscriber's Close on the same
	// subject must end up attached to the live channel: published events
	// still reach it, and its own Close still closes the event channel.
	for i := 0; i < 500; i++ {
		old := hub.Subscribe("subject_1")

		var wg sync.WaitGroup
		subCh := make(chan *Subscription, 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			old.Close()
		}()
		go func() {
			defer wg.Done()
			subCh <- hub.Subscribe("subject_1")
		}()
		wg.Wait()

		sub := <-subCh
		hub.Publish("subject_1", alertEvent(fmt.Sprintf("a%d", i)))

		select {
		case event, ok := <-sub.Events():
			require.True(t, ok, "event channel closed under a live subscriber")
			require.Equal(t, fmt.Sprintf("a%d", i), event.Alert.ID)
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: subscriber attached to an orphaned channel", i)
		}

		sub.Close()
		select {
		case _, ok := <-sub.Events():
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: Close did not close the event channel", i)
		}
		require.Equal(t, 0, hub.SubscriberCount("subject_1"))
	}
}

func TestConcurrentSubscribePublishClose(t *testing.T) {
	hub := NewHub(8)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			subjectID := fmt.Sprintf("subject_%d", n%4)
			sub := hub.Subscribe(subjectID)
			hub.Publish(subjectID, alertEvent(fmt.Sprintf("a%d", n)))
			for range sub.Events() {
				// Drain until Close shuts the channel
				break
			}
			sub.Close()
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent hub usage deadlocked")
	}
}
