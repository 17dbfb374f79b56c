// Package bus provides the in-process event dispatch layer between the
// transport and its consumers.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/metrics"
)

// Handler consumes a published event payload.
type Handler func(payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches typed events to subscribers. Delivery is synchronous, in
// subscription order, at-most-once: events with no current subscriber are
// dropped.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[model.EventType][]subscription
	log    *logger.Logger
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[model.EventType][]subscription),
		log:  log.WithComponent("bus"),
	}
}

// Subscribe registers a handler for an event type and returns an idempotent
// unsubscribe function.
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(eventType, id)
		})
	}
}

// Publish delivers the payload to every current subscriber of the event type.
// A panicking handler is recovered and logged; remaining handlers still run.
func (b *Bus) Publish(eventType model.EventType, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[eventType]))
	for i, s := range b.subs[eventType] {
		handlers[i] = s.handler
	}
	b.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(eventType)).Inc()

	for _, h := range handlers {
		b.invoke(eventType, h, payload)
	}
}

func (b *Bus) invoke(eventType model.EventType, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event", string(eventType)),
				zap.Any("panic", r),
			)
		}
	}()
	h(payload)
}

func (b *Bus) unsubscribe(eventType model.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
