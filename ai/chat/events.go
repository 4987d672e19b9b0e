package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TurnEventType identifies a turn lifecycle event.
type TurnEventType string

const (
	// EventTurnStarted fires once a turn passes admission.
	EventTurnStarted TurnEventType = "turn_started"
	// EventTurnCompleted fires when the assistant reply was stored.
	EventTurnCompleted TurnEventType = "turn_completed"
	// EventTurnFailed fires when an admitted turn ends with an error.
	EventTurnFailed TurnEventType = "turn_failed"
	// EventTurnRejected fires when a turn is refused before any side effect.
	EventTurnRejected TurnEventType = "turn_rejected"
)

// TurnEvent describes one turn lifecycle transition.
type TurnEvent struct {
	Type               TurnEventType
	Owner              string
	ConversationID     string
	AssistantMessageID string
	Retrieval          bool
	Attachment         bool
	// Err is set on failed and rejected events.
	Err      error
	Duration time.Duration
	Time     time.Time
}

// TurnEventListener processes turn events. Listeners must respect ctx; each
// call runs with the bus timeout.
type TurnEventListener func(ctx context.Context, event *TurnEvent) error

// EventBus fans turn events out to listeners.
//
// Listeners are invoked concurrently with a per-listener timeout. A panicking
// or failing listener does not affect the others.
type EventBus struct {
	listeners map[TurnEventType][]TurnEventListener
	mu        sync.RWMutex
	timeout   time.Duration
}

// NewEventBus creates a new event bus with a 5s per-listener timeout.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[TurnEventType][]TurnEventListener),
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for event listeners.
func (b *EventBus) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

var allTurnEventTypes = []TurnEventType{EventTurnStarted, EventTurnCompleted, EventTurnFailed, EventTurnRejected}

// Subscribe registers a listener for the given event types, or for every
// type when none are given.
func (b *EventBus) Subscribe(listener TurnEventListener, types ...TurnEventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		types = allTurnEventTypes
	}
	for _, t := range types {
		b.listeners[t] = append(b.listeners[t], listener)
	}
}

// Publish delivers the event to every listener of its type and waits for
// them. It returns the first listener error; all listeners still run.
func (b *EventBus) Publish(ctx context.Context, event *TurnEvent) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	listeners := make([]TurnEventListener, len(b.listeners[event.Type]))
	copy(listeners, b.listeners[event.Type])
	timeout := b.timeout
	b.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, listener := range listeners {
		wg.Add(1)
		go func(index int, l TurnEventListener) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					slog.Error("Turn event listener panic",
						"event_type", event.Type,
						"listener_index", index,
						"panic", r,
					)
					errOnce.Do(func() { firstErr = fmt.Errorf("listener panic: %v", r) })
				}
			}()

			listenerCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := l(listenerCtx, event)
			if listenerCtx.Err() == context.DeadlineExceeded {
				slog.Warn("Turn event listener timeout",
					"event_type", event.Type,
					"listener_index", index,
					"timeout", timeout,
				)
				errOnce.Do(func() { firstErr = fmt.Errorf("listener timeout") })
				return
			}
			if err != nil {
				slog.Warn("Turn event listener failed",
					"event_type", event.Type,
					"listener_index", index,
					"error", err,
				)
				errOnce.Do(func() { firstErr = err })
			}
		}(i, listener)
	}

	wg.Wait()
	return firstErr
}
