/*
notify.go - Fire-and-forget settlement notifications

PURPOSE:
  After each settlement the ledger emits a status-change event for the
  notification collaborator (broadcast/chat queue in the surrounding system).
  The ledger never waits for delivery and a delivery failure never rolls
  back a settlement.

SEE ALSO:
  - engine.go: Emits events after each committed settlement
*/
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is the status-change message produced after a settlement.
type Event struct {
	PayerID   int64
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Notifier receives settlement events. Notify must not block the caller.
type Notifier interface {
	Notify(Event)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// Sender delivers one event. Implementations talk to the external
// notification queue (email, broadcast, chat).
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// LogSender writes events to the log. Stand-in until the deployment wires a
// real delivery channel.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(_ context.Context, e Event) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("settlement notification", "payer", e.PayerID, "subject", e.Subject, "body", e.Body)
	return nil
}

// =============================================================================
// ASYNC DISPATCHER - Buffered worker pool in front of a Sender
// =============================================================================

// Dispatcher decouples settlement from delivery: events go into a buffered
// channel drained by worker goroutines. A full buffer drops the event with a
// warning rather than blocking a settlement.
type Dispatcher struct {
	sender Sender
	events chan Event
	log    *slog.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewDispatcher(sender Sender, workers, buffer int, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		sender: sender,
		events: make(chan Event, buffer),
		log:    log,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues the event without blocking.
func (d *Dispatcher) Notify(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case d.events <- e:
	default:
		d.log.Warn("notification buffer full, event dropped", "payer", e.PayerID, "subject", e.Subject)
	}
}

// Close stops the workers after draining buffered events.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.events)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for e := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.sender.Send(ctx, e); err != nil {
			d.log.Warn("notification delivery failed", "payer", e.PayerID, "subject", e.Subject, "err", err)
		}
		cancel()
	}
}
