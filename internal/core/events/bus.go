package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrBusClosed = errors.New("event bus closed")

type Event interface {
	EventType() string
	EventID() string
}

type BaseEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

type Handler func(ctx context.Context, event Event) error

// EventBus delivers each published event to its subscribers on background
// goroutines. Close stops intake and waits for deliveries already started.
type EventBus struct {
	handlers map[string][]Handler
	logger   *slog.Logger
	mu       sync.RWMutex
	inflight sync.WaitGroup
	closed   bool
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Info("event handler registered",
		"event_type", eventType,
		"total_handlers", len(eb.handlers[eventType]))
}

// Publish returns once delivery is scheduled. Handlers run on a context
// detached from ctx so a finished request does not abort delivery; their
// errors are logged.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := eb.handlers[event.EventType()]
	eb.inflight.Add(len(handlers))
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		eb.logger.Debug("no handlers for event type", "event_type", event.EventType())
		return nil
	}

	eb.logger.Info("publishing event",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"handlers_count", len(handlers))

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			defer eb.inflight.Done()
			if err := h(detached, event); err != nil {
				eb.logger.Error("event handler failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}(handler)
	}

	return nil
}

// Close rejects further events and waits for running handlers or ctx.
func (eb *EventBus) Close(ctx context.Context) error {
	eb.mu.Lock()
	eb.closed = true
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
