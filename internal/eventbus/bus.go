package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
)

// Handler reacts to a published event
type Handler func(ctx context.Context, evt domain.Event) error

// Stats is a snapshot of the bus counters
type Stats struct {
	Published  int64 `json:"published"`
	Dispatched int64 `json:"dispatched"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
	Queued     int   `json:"queued"`
}

type subscription struct {
	name    string
	handler Handler
}

type job struct {
	sub   subscription
	event domain.Event
}

// Bus delivers domain events to subscribers on a fixed pool of workers.
// Publish never blocks the caller: when the queue is full the delivery is dropped.
type Bus struct {
	config *config.EventBusConfig
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]subscription
	closed   bool

	queue     chan job
	wg        sync.WaitGroup
	startOnce sync.Once

	published  atomic.Int64
	dispatched atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

// NewBus creates a new event bus
func NewBus(cfg *config.EventBusConfig, logger *slog.Logger) *Bus {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Bus{
		config:   cfg,
		logger:   logger,
		handlers: make(map[string][]subscription),
		queue:    make(chan job, queueSize),
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], subscription{name: name, handler: handler})
	b.logger.Debug("subscriber registered", "event_type", eventType, "subscriber", name)
}

// SubscribeAll registers one handler for every event type
func (b *Bus) SubscribeAll(name string, handler Handler) {
	for _, eventType := range domain.EventTypes() {
		b.Subscribe(eventType, name, handler)
	}
}

// On registers a typed handler; the event type is taken from E
func On[E domain.Event](b *Bus, name string, fn func(ctx context.Context, evt E) error) {
	var zero E
	b.Subscribe(zero.Type(), name, func(ctx context.Context, evt domain.Event) error {
		typed, ok := evt.(E)
		if !ok {
			return fmt.Errorf("unexpected event %T for %s", evt, zero.Type())
		}
		return fn(ctx, typed)
	})
}

// Start launches the worker pool
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		workers := b.config.Workers
		if workers <= 0 {
			workers = 4
		}
		for i := 0; i < workers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
		b.logger.Info("event bus started", "workers", workers, "queue_size", cap(b.queue))
	})
}

// Publish enqueues one delivery per subscriber of the event's type
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		b.logger.Warn("event bus closed, dropping event", "event_type", evt.Type(), "scrim_id", evt.Header().ScrimID)
		return
	}

	b.published.Add(1)
	for _, sub := range b.handlers[evt.Type()] {
		select {
		case b.queue <- job{sub: sub, event: evt}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event queue full, dropping delivery",
				"event_type", evt.Type(),
				"subscriber", sub.name,
				"scrim_id", evt.Header().ScrimID,
			)
		}
	}
}

// Shutdown stops accepting events and waits for queued deliveries to finish
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	// Workers that were never started cannot drain the queue
	b.Start()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped", "dispatched", b.dispatched.Load(), "failed", b.failed.Load())
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus shutdown timed out", "queued", len(b.queue))
		return ctx.Err()
	}
}

// Stats returns the current counters
func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Dispatched: b.dispatched.Load(),
		Failed:     b.failed.Load(),
		Dropped:    b.dropped.Load(),
		Queued:     len(b.queue),
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for j := range b.queue {
		b.dispatch(j)
	}
}

// dispatch runs one handler, containing its errors and panics
func (b *Bus) dispatch(j job) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.Error("event handler panicked",
				"event_type", j.event.Type(),
				"subscriber", j.sub.name,
				"scrim_id", j.event.Header().ScrimID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := j.sub.handler(context.Background(), j.event); err != nil {
		b.failed.Add(1)
		b.logger.Error("event handler failed",
			"event_type", j.event.Type(),
			"subscriber", j.sub.name,
			"scrim_id", j.event.Header().ScrimID,
			"error", err,
		)
		return
	}
	b.dispatched.Add(1)
}
