// Package event provides the in-process notification bus that decouples the
// sync engine and CRUD façade from their consumers.
//
// Events form a closed set: document lifecycle ({entity}_created, _updated,
// _deleted), connectivity (online, offline), sync phase (sync_active,
// sync_complete, sync_error) and initial_load_complete. Delivery is
// synchronous, in registration order; a panicking subscriber is isolated so
// it can neither starve later subscribers nor crash the emitter.
package event

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/clinicaid/clinisync/internal/store"
)

// Type identifies the kind of event.
type Type string

const (
	TypeOnline              Type = "online"
	TypeOffline             Type = "offline"
	TypeSyncActive          Type = "sync_active"
	TypeSyncComplete        Type = "sync_complete"
	TypeSyncError           Type = "sync_error"
	TypeInitialLoadComplete Type = "initial_load_complete"
)

// DocumentType builds a lifecycle event type such as "patient_created".
func DocumentType(entity store.EntityType, action string) Type {
	return Type(fmt.Sprintf("%s_%s", entity, action))
}

// Event is the tagged union delivered to subscribers. Exactly one payload
// field group is meaningful per Type.
type Event struct {
	Type Type

	// Document lifecycle payload.
	Entity   store.EntityType
	Document *store.Document
	LocalID  string

	// Sync phase payload.
	PassID string
	Err    error
}

// Handler receives every emitted event.
type Handler func(Event)

// Bus is a synchronous publish/subscribe hub.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers []subscription
	logger   *log.Logger
}

type subscription struct {
	id int
	fn Handler
}

// NewBus creates a bus. If logger is nil, a default logger writing to stderr
// is used for subscriber panics.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler and returns a function that deregisters it.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.handlers {
			if sub.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to all current subscribers in registration order.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	handlers := make([]subscription, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, sub := range handlers {
		b.invoke(sub.fn, ev)
	}
}

func (b *Bus) invoke(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("WARNING: subscriber panic on %s event: %v", ev.Type, r)
		}
	}()
	fn(ev)
}
