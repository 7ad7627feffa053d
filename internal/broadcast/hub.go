// Package broadcast fans derived attendance events out to real-time
// subscribers. Delivery is best-effort and at-most-once per topic: a slow or
// disconnected subscriber simply misses the message and has to re-query
// current state after reconnecting.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"
)

// Topic names. Every event is delivered to the two global feeds plus the
// feed scoped to the employee's identifier.
const (
	TopicNotifications = "attendance.notifications"
	TopicDashboard     = "dashboard.updates"
)

// EmployeeTopic returns the per-employee dashboard topic name.
func EmployeeTopic(code string) string {
	return "employee." + code + ".dashboard"
}

// Event is the logical payload shared by all topics. Each topic wraps it in
// its own envelope for that feed's consumers.
type Event struct {
	EmployeeName string  `json:"employee_name"`
	EmployeeID   string  `json:"employee_id"`
	Department   string  `json:"department"`
	Action       string  `json:"action"`
	Timestamp    string  `json:"timestamp"`
	Confidence   float64 `json:"confidence"`
}

// subscriberBuffer bounds the per-subscriber queue; when it is full the
// message is dropped for that subscriber instead of blocking the publisher.
const subscriberBuffer = 16

// Subscription is one subscriber's handle on a topic.
type Subscription struct {
	hub   *Hub
	topic string
	ch    chan []byte

	closeOnce sync.Once
}

// C returns the channel messages arrive on. It is closed by Close.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close detaches the subscription from its topic.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
		close(s.ch)
	})
}

// Hub is the in-process topic registry.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe attaches a new subscriber to a topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{hub: h, topic: topic, ch: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
}

// SubscriberCount returns the number of subscribers on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish delivers a JSON-serializable payload to all current subscribers of
// a topic. It never blocks and never returns an error: marshal failures are
// logged, full subscriber queues drop the message.
func (h *Hub) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("broadcast: dropping message for %s: %v", topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- data:
		default:
			// Subscriber is not keeping up; at-most-once means we drop.
		}
	}
}

// PublishEvent fans one attendance event out to the three topics, each with
// its own envelope.
func (h *Hub) PublishEvent(ev Event) {
	h.Publish(TopicNotifications, map[string]any{
		"type":    "attendance_notification",
		"message": ev,
	})
	h.Publish(TopicDashboard, map[string]any{
		"type": "dashboard_update",
		"data": map[string]any{"type": "attendance_event", "event": ev},
	})
	h.Publish(EmployeeTopic(ev.EmployeeID), map[string]any{
		"type": "employee_update",
		"data": map[string]any{"type": "attendance_update", "event": ev},
	})
}
