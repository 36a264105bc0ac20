// Package events carries state-changed notifications from the controllers
// to whoever needs to react, typically the orchestrator.
package events

import (
	"context"
	"sync"
)

// Kind identifies what changed.
type Kind int

const (
	// AdminChanged is published after login, logout, or a rejected session.
	AdminChanged Kind = iota + 1
	// FeedbackChanged is published after a create, update, or delete.
	FeedbackChanged
	// EditEnded is published when the form leaves edit mode.
	EditEnded
)

func (k Kind) String() string {
	switch k {
	case AdminChanged:
		return "admin_changed"
	case FeedbackChanged:
		return "feedback_changed"
	case EditEnded:
		return "edit_ended"
	default:
		return "unknown"
	}
}

// Event is a single notification.
type Event struct {
	Kind Kind
	// Admin is the admin status after an AdminChanged event.
	Admin bool
	// Ctx is the context of the operation that caused the event.
	Ctx context.Context
}

// Context returns e.Ctx, or context.Background when unset.
func (e Event) Context() context.Context {
	if e.Ctx == nil {
		return context.Background()
	}
	return e.Ctx
}

// Handler reacts to an event. Handlers run synchronously on the publisher's goroutine.
type Handler func(Event)

// Bus is a synchronous fan-out of events to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers e to each subscriber in registration order and returns
// once all of them have run.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}
