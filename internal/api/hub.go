package api

import (
	"sync"

	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/google/uuid"
)

// subscriberBuffer is how many events a slow websocket client may lag
// behind before events are dropped for it
const subscriberBuffer = 32

// Hub fans pad events out to websocket subscribers. Publish is meant to be
// registered with outputpad.WithObserver and never blocks the pad.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan outputpad.Event
	last *outputpad.Event
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan outputpad.Event)}
}

// Publish delivers ev to every subscriber
func (h *Hub) Publish(ev outputpad.Event) {
	h.mu.Lock()
	h.last = &ev
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.WithComponent("api").Debug().
				Str("session", id).
				Str("event", string(ev.Type)).
				Msg("Subscriber lagging, dropping event")
		}
	}
}

// Subscribe registers a new session and returns its id and channel
func (h *Hub) Subscribe() (string, <-chan outputpad.Event) {
	id := uuid.NewString()
	ch := make(chan outputpad.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a session and closes its channel
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Last returns the most recent event, if any
func (h *Hub) Last() (outputpad.Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return outputpad.Event{}, false
	}
	return *h.last, true
}

// Subscribers returns the number of connected sessions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
