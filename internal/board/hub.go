// Package board pushes live queue changes to websocket subscribers so event
// dashboards update without polling.
package board

import (
	"sync"

	"github.com/google/uuid"

	"github.com/fairops/healthfair-platform/internal/queue"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

// Hub fans queue changes out to per-event subscribers. It implements
// queue.Notifier. Broadcasts never block: a subscriber whose buffer is full
// is dropped.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]map[*Subscription]struct{}
	sendBuffer int
	logger     *logging.Logger
}

// Subscription is one listener on an event's queue changes.
type Subscription struct {
	eventID uuid.UUID
	ch      chan queue.Change
	once    sync.Once
}

// Changes returns the subscription's delivery channel. It is closed when the
// subscription ends.
func (s *Subscription) Changes() <-chan queue.Change { return s.ch }

// NewHub creates a hub. sendBuffer is the per-subscriber channel depth.
func NewHub(sendBuffer int, logger *logging.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		subs:       make(map[uuid.UUID]map[*Subscription]struct{}),
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// Subscribe registers a listener for one event's changes.
func (h *Hub) Subscribe(eventID uuid.UUID) *Subscription {
	sub := &Subscription{eventID: eventID, ch: make(chan queue.Change, h.sendBuffer)}
	h.mu.Lock()
	set, ok := h.subs[eventID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[eventID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.eventID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.eventID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// QueueChanged broadcasts a change to the event's subscribers.
func (h *Hub) QueueChanged(change queue.Change) {
	h.mu.RLock()
	var slow []*Subscription
	for sub := range h.subs[change.EventID] {
		select {
		case sub.ch <- change:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("dropping slow board subscriber", "event_id", change.EventID)
		h.Unsubscribe(sub)
	}
}
