// Package broadcast implements the per-subject real-time fan-out of
// alert and emergency events. Delivery is best-effort and at-most-once
// per connected subscriber; clients re-query the alert store on
// (re)connect to recover anything they missed.
package broadcast

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/metrics"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// defaultBufSize is the per-subscriber outgoing event buffer depth.
const defaultBufSize = 16

// Hub routes published events to every subscriber of a subject channel.
// Publish and Subscribe/Close are safe to call concurrently; a slow
// subscriber never applies backpressure to a publisher.
type Hub struct {
	bufSize int

	mu       sync.RWMutex
	channels map[string]*channel
}

// channel is the runtime state of one subject's fan-out topic. Its
// mutex serializes publishes so a single subscriber always observes
// events for its subject in publish order.
type channel struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's attachment to a subject channel.
type Subscription struct {
	subjectID string
	events    chan models.Event
	hub       *Hub
	once      sync.Once
}

// Events returns the stream of events for the subscribed subject.
// The channel is closed when the subscription is closed.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Close detaches the subscription and closes its event channel.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// NewHub creates an empty hub. bufSize <= 0 selects the default
// per-subscriber buffer depth.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &Hub{
		bufSize:  bufSize,
		channels: make(map[string]*channel),
	}
}

// Subscribe attaches a new subscriber to the subject's channel and
// returns its cancellation handle. Registration happens under the hub
// lock so a concurrent last-subscriber teardown cannot remove the
// channel between lookup and attach.
func (h *Hub) Subscribe(subjectID string) *Subscription {
	sub := &Subscription{
		subjectID: subjectID,
		events:    make(chan models.Event, h.bufSize),
		hub:       h,
	}

	h.mu.Lock()
	ch, ok := h.channels[subjectID]
	if !ok {
		ch = &channel{subs: make(map[*Subscription]struct{})}
		h.channels[subjectID] = ch
	}
	ch.mu.Lock()
	ch.subs[sub] = struct{}{}
	ch.mu.Unlock()
	h.mu.Unlock()

	return sub
}

// Publish fans an event out to every subscriber currently attached to
// the subject's channel. Events that do not fit a subscriber's buffer
// are dropped rather than blocking; the drop is counted but is not an
// error.
func (h *Hub) Publish(subjectID string, event models.Event) {
	event.SubjectID = subjectID
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now()
	}

	h.mu.RLock()
	ch, ok := h.channels[subjectID]
	h.mu.RUnlock()
	if !ok {
		// No subscribers watching this subject. Acceptable: the store
		// is the durability source of truth.
		metrics.BroadcastDropped.Inc()
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for sub := range ch.subs {
		select {
		case sub.events <- event:
		default:
			metrics.BroadcastDropped.Inc()
			logrus.Debugf("Dropping %s event for slow subscriber on subject %s", event.Type, subjectID)
		}
	}
}

// SubscriberCount returns the number of subscribers attached to a subject.
func (h *Hub) SubscriberCount(subjectID string) int {
	h.mu.RLock()
	ch, ok := h.channels[subjectID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// unsubscribe detaches the subscription and removes its subject channel
// when it was the last attachment. Detach and channel removal happen
// under the hub lock, mirroring Subscribe, so the two can never orphan
// a subscriber. Only called through Subscription.Close's sync.Once.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if ch, ok := h.channels[sub.subjectID]; ok {
		ch.mu.Lock()
		delete(ch.subs, sub)
		empty := len(ch.subs) == 0
		ch.mu.Unlock()
		if empty {
			delete(h.channels, sub.subjectID)
		}
	}
	h.mu.Unlock()

	// Close unconditionally so a ranging reader always unblocks. No
	// publisher can still hold this subscription: Publish only sends to
	// subscriptions it finds attached under the channel lock.
	close(sub.events)
}
