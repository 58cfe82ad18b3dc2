// Package realtime pushes parking events to connected owner dashboards.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message is the frame written to dashboard clients.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber receives encoded frames for one owner. Send must not block.
type Subscriber interface {
	OwnerID() string
	Send(frame []byte) bool
	Close()
}

// Observer is notified about connection and drop counts.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	EventDropped()
}

// Hub fans events out to the subscribers of each owner.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[Subscriber]struct{}
	observer Observer
	logger   *zap.Logger
}

// NewHub builds an empty hub. observer may be nil.
func NewHub(observer Observer, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[Subscriber]struct{}),
		observer: observer,
		logger:   logger,
	}
}

// Register adds a subscriber to its owner's room.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[s.OwnerID()]
	if !ok {
		room = make(map[Subscriber]struct{})
		h.rooms[s.OwnerID()] = room
	}
	room[s] = struct{}{}
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.ClientConnected()
	}
}

// Unregister removes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[s.OwnerID()]
	if ok {
		if _, ok = room[s]; ok {
			delete(room, s)
			if len(room) == 0 {
				delete(h.rooms, s.OwnerID())
			}
		}
	}
	h.mu.Unlock()

	if ok && h.observer != nil {
		h.observer.ClientDisconnected()
	}
}

// Publish encodes the event and delivers it to the owner's subscribers.
func (h *Hub) Publish(_ context.Context, ownerID, event string, payload interface{}) {
	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Warn("failed to encode realtime event", zap.String("event", event), zap.Error(err))
		return
	}
	h.Deliver(ownerID, frame)
}

// Deliver hands an encoded frame to every subscriber of the owner and returns
// how many accepted it. Full subscribers drop the frame.
func (h *Hub) Deliver(ownerID string, frame []byte) int {
	h.mu.RLock()
	room := h.rooms[ownerID]
	targets := make([]Subscriber, 0, len(room))
	for s := range room {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(frame) {
			delivered++
			continue
		}
		if h.observer != nil {
			h.observer.EventDropped()
		}
		h.logger.Debug("dropping realtime event, client buffer full", zap.String("owner_id", ownerID))
	}
	return delivered
}

// ClientCount returns the number of subscribers of an owner.
func (h *Hub) ClientCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ownerID])
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]Subscriber, 0)
	for _, room := range h.rooms {
		for s := range room {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

// Encode builds the client frame of an event.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: data})
}
