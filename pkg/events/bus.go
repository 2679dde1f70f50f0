// Package events provides the typed publish/subscribe bus that carries
// session output and state changes to observers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/grovetools/relay/pkg/models"
)

// Type defines what kind of event was published.
type Type string

const (
	TypeLog            Type = "log"
	TypeStateChanged   Type = "state-changed"
	TypeSessionRemoved Type = "session-removed"
	TypeConfigReload   Type = "config-reload"
)

// DefaultBuffer is the subscription buffer used when none is requested.
const DefaultBuffer = 256

// Event is a single published event. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type      Type                `json:"type"`
	Seq       uint64              `json:"seq"`
	SessionID string              `json:"sessionId,omitempty"`
	Log       *models.LogEvent    `json:"log,omitempty"`
	State     *models.StateChange `json:"state,omitempty"`
	File      string              `json:"file,omitempty"` // Changed config file for config-reload
}

// Subscription receives events for one session, or for all sessions when
// its session id is empty.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	sessionID string
	dropped   atomic.Uint64
	bus       *Bus
	once      sync.Once
}

// Dropped returns how many events were discarded because the subscriber
// was not keeping up.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription) wants(ev Event) bool {
	return s.sessionID == "" || ev.SessionID == "" || ev.SessionID == s.sessionID
}

// Bus fans events out to subscribers. Publishing never blocks: a slow
// subscriber loses events rather than stalling a session.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish stamps ev with the next sequence number and delivers it.
// Events from one publisher reach each subscriber in publish order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	ev.Seq = b.seq
	for sub := range b.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. An empty sessionID receives every
// session's events; buffer <= 0 uses DefaultBuffer.
func (b *Bus) Subscribe(sessionID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.once.Do(func() {
		delete(b.subs, sub)
		close(sub.ch)
	})
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.once.Do(func() {
			close(sub.ch)
		})
		delete(b.subs, sub)
	}
}

// Log publishes a session log event.
func (b *Bus) Log(ev models.LogEvent) {
	b.Publish(Event{Type: TypeLog, SessionID: ev.SessionID, Log: &ev})
}

// StateChanged publishes a session state change.
func (b *Bus) StateChanged(change models.StateChange) {
	b.Publish(Event{Type: TypeStateChanged, SessionID: change.SessionID, State: &change})
}

// SessionRemoved announces that a session was dropped from the registry.
func (b *Bus) SessionRemoved(sessionID string) {
	b.Publish(Event{Type: TypeSessionRemoved, SessionID: sessionID})
}

// ConfigReloaded announces that a configuration file changed.
func (b *Bus) ConfigReloaded(file string) {
	b.Publish(Event{Type: TypeConfigReload, File: file})
}
