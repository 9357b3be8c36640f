// Package invite implements the call-invitation flow: the visitor announces a
// pending call on the presence topic, the admin collects announcements in a
// Registry and accepts or dismisses them.
package invite

import (
	"sort"
	"sync"
	"time"
)

// Pending is one announced call waiting for the admin.
type Pending struct {
	RoomID      string    `json:"roomId"`
	VisitorName string    `json:"visitorName"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Event notifies registry listeners of a change.
type Event struct {
	Type    string   `json:"type"` // "add" or "remove"
	RoomID  string   `json:"roomId"`
	Request *Pending `json:"request,omitempty"`
}

// Registry is the admin-side table of pending call requests, keyed by room.
// Entries live until explicitly removed (accepted or dismissed); a visitor
// who walked away is cleaned up when their request is dismissed, there is no
// timeout.
type Registry struct {
	mu        sync.Mutex
	pending   map[string]Pending
	listeners []chan Event
}

func NewRegistry() *Registry {
	return &Registry{
		pending:   map[string]Pending{},
		listeners: make([]chan Event, 0),
	}
}

// Upsert records a call request. Re-announcements for a known room refresh
// the visitor name but emit no event, so a retransmitted request doesn't ring
// twice.
func (r *Registry) Upsert(roomID, visitorName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pending[roomID]; ok {
		existing.VisitorName = visitorName
		r.pending[roomID] = existing
		return
	}
	req := Pending{RoomID: roomID, VisitorName: visitorName, ReceivedAt: time.Now()}
	r.pending[roomID] = req
	r.notifyListeners(Event{Type: "add", RoomID: roomID, Request: &req})
}

// Remove drops a request, typically after the admin accepted or dismissed it.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[roomID]; !ok {
		return
	}
	delete(r.pending, roomID)
	r.notifyListeners(Event{Type: "remove", RoomID: roomID})
}

func (r *Registry) Get(roomID string) (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[roomID]
	return req, ok
}

// Snapshot returns pending requests oldest-first.
func (r *Registry) Snapshot() []Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pending, 0, len(r.pending))
	for _, req := range r.pending {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) Subscribe() chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, 16)
	r.listeners = append(r.listeners, ch)
	return ch
}

func (r *Registry) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, listener := range r.listeners {
		if listener == ch {
			close(listener)
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *Registry) notifyListeners(evt Event) {
	for _, ch := range r.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}
