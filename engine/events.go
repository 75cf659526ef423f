package engine

import (
	"log/slog"
	"sync"

	"github.com/driftsync/driftsync/conflict"
	"github.com/driftsync/driftsync/logging"
)

// State is the engine's lifecycle state. Exactly one state is active
// at a time.
type State string

const (
	StateIdle            State = "idle"
	StateSyncing         State = "syncing"
	StateOffline         State = "offline"
	StateError           State = "error"
	StateConflictPending State = "conflict-pending"
)

// EventType enumerates the notifications the engine emits.
type EventType string

const (
	EventStateChanged        EventType = "state-changed"
	EventSyncStarted         EventType = "sync-started"
	EventSyncCompleted       EventType = "sync-completed"
	EventSyncFailed          EventType = "sync-failed"
	EventItemSynced          EventType = "item-synced"
	EventConflictDetected    EventType = "conflict-detected"
	EventOfflineChange       EventType = "offline-change"
	EventOnlineStatusChanged EventType = "online-status-changed"
)

// Event is a typed engine notification. Fields are populated according
// to Type; unrelated fields are zero.
type Event struct {
	Type EventType

	// state-changed
	Previous State
	Current  State

	// sync-completed
	ItemCount int

	// sync-failed
	Err error

	// item-synced, conflict-detected, offline-change
	Collection string
	EntityID   string

	// conflict-detected
	Conflict *conflict.Conflict

	// online-status-changed
	Online bool
}

// eventBus delivers events to subscribers synchronously and in
// emission order. A panicking subscriber is isolated and logged.
type eventBus struct {
	mu     sync.RWMutex
	subs   []busSubscriber
	nextID int
	logger *logging.Logger
}

type busSubscriber struct {
	id int
	fn func(Event)
}

func newEventBus(logger *logging.Logger) *eventBus {
	return &eventBus{logger: logger}
}

// subscribe registers a handler and returns its cancel function.
// Handlers run on the emitting goroutine; keep them short.
func (b *eventBus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, busSubscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers the event to every subscriber in registration order.
func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	subs := make([]busSubscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.fn, ev)
	}
}

func (b *eventBus) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event subscriber panicked",
				slog.String("event_type", string(ev.Type)),
				slog.Any("panic", r))
		}
	}()
	fn(ev)
}
