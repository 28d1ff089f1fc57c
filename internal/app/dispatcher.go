package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voipms-gateway/internal/ports"
)

// dispatchQueueSize bounds how many events may wait for the bus before new
// ones are dropped.
const dispatchQueueSize = 64

// publishTimeout caps a single bus publish.
const publishTimeout = 5 * time.Second

// Dispatcher decouples event emission from bus I/O: a single goroutine
// publishes queued events in order, so webhook handling never waits on the
// broker. When the queue is full, events are dropped and logged instead of
// blocking the caller.
type Dispatcher struct {
	publisher ports.EventPublisher
	log       *slog.Logger
	events    chan ports.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher starts the dispatch goroutine.
func NewDispatcher(publisher ports.EventPublisher, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		log:       log,
		events:    make(chan ports.Event, dispatchQueueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.log.Error("publish event", "type", ev.Type, "event_id", ev.ID, "err", err)
		}
		cancel()
	}
}

// Emit queues ev for publication and returns immediately. Emit must not be
// called after Close.
func (d *Dispatcher) Emit(ev ports.Event) {
	select {
	case d.events <- ev:
	default:
		d.log.Error("event queue full, dropping event", "type", ev.Type, "event_id", ev.ID)
	}
}

// Close stops accepting events and waits until queued ones are flushed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.events)
	})
	d.wg.Wait()
}
