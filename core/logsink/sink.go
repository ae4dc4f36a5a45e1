// Package logsink delivers conversation log records to a remote store with
// at-most-once semantics per event id and replay of failed deliveries.
package logsink

import (
	"context"
	"errors"
	"time"

	"github.com/koscakluka/ema-realtime/core/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Dispatcher runs blocking work off the owner's event loop. The continuation
// returned by work is applied back on the event loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, work func(ctx context.Context) func())
}

// Sink is owned by a single event loop: every method must be called from it.
type Sink struct {
	deliverer  Deliverer
	dispatcher Dispatcher
	queue      PendingQueue

	claims    *ledger.Ledger
	delivered *ledger.Ledger

	outbox  []LogRecord
	sending bool

	identity Identity
	online   bool
	flushing bool
}

type Option func(*Sink)

func WithQueue(queue PendingQueue) Option {
	return func(s *Sink) {
		if queue != nil {
			s.queue = queue
		}
	}
}

// WithLedger shares the event id ledger with the owner so that every log
// attempt goes through the same claim set.
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Sink) {
		if l != nil {
			s.claims = l
		}
	}
}

func WithIdentity(identity Identity) Option {
	return func(s *Sink) { s.identity = identity }
}

func New(deliverer Deliverer, dispatcher Dispatcher, opts ...Option) *Sink {
	s := &Sink{
		deliverer:  deliverer,
		dispatcher: dispatcher,
		queue:      NewMemoryQueue(),
		claims:     ledger.New(),
		delivered:  ledger.New(),
		online:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit claims the record's event id and starts delivery. It reports
// whether the record was accepted; blank, invalid and duplicate records are
// dropped with a warning.
func (s *Sink) Submit(ctx context.Context, record LogRecord) bool {
	if record.isBlank() {
		logger.WarnContext(ctx, "dropping empty log record", "event_id", record.EventID, "role", string(record.Role))
		return false
	}
	if err := record.Validate(); err != nil {
		logger.WarnContext(ctx, "dropping invalid log record", "event_id", record.EventID, "error", err)
		return false
	}
	if !s.claims.TryClaim(record.EventID) {
		logger.WarnContext(ctx, "dropping duplicate log record", "event_id", record.EventID, "role", string(record.Role))
		return false
	}

	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	record = s.identity.stamp(record)

	// Records queued for replay go out first, so a new one waits behind them.
	if !s.online || s.queue.Len() > 0 {
		s.enqueue(ctx, record)
		s.Flush(ctx)
		return true
	}

	s.outbox = append(s.outbox, record)
	s.pump(ctx)
	return true
}

// pump delivers the outbox one record at a time so that records reach the
// store in submission order. A failed record is queued and the rest of the
// outbox follows it into the queue.
func (s *Sink) pump(ctx context.Context) {
	if s.sending || len(s.outbox) == 0 {
		return
	}

	record := s.outbox[0]
	s.outbox = s.outbox[1:]
	s.sending = true
	s.dispatcher.Dispatch(ctx, "deliver log record", func(ctx context.Context) func() {
		err := s.send(ctx, record)
		return func() {
			s.sending = false
			if err != nil {
				logger.WarnContext(ctx, "log delivery failed, queued for replay", "event_id", record.EventID, "error", err, "behind", len(s.outbox))
				s.enqueue(ctx, record)
				s.spill(ctx)
				return
			}
			s.delivered.TryClaim(record.EventID)
			s.pump(ctx)
		}
	})
}

// SetIdentity records the identity issued by the auth collaborator. A newly
// available identity triggers a flush of the pending queue.
func (s *Sink) SetIdentity(ctx context.Context, identity Identity) {
	if !identity.Known() || identity == s.identity {
		return
	}

	s.identity = identity
	s.Flush(ctx)
}

func (s *Sink) Identity() Identity { return s.identity }

// SetOnline records host connectivity. Going back online triggers a flush.
func (s *Sink) SetOnline(ctx context.Context, online bool) {
	wasOnline := s.online
	s.online = online
	if !online {
		s.spill(ctx)
	}
	if online && !wasOnline {
		s.Flush(ctx)
	}
}

func (s *Sink) Online() bool { return s.online }

func (s *Sink) Pending() int { return s.queue.Len() }

// InFlight reports records accepted but not yet delivered or queued.
func (s *Sink) InFlight() int {
	inFlight := len(s.outbox)
	if s.sending {
		inFlight++
	}
	return inFlight
}

// Flush replays the pending queue in enqueue order, one record at a time.
// It stops at the first failure and leaves the rest queued.
func (s *Sink) Flush(ctx context.Context) {
	if s.flushing || !s.online {
		return
	}
	s.flushNext(ctx)
}

func (s *Sink) flushNext(ctx context.Context) {
	s.flushing = false
	if !s.online {
		return
	}

	var record LogRecord
	for {
		next, ok, err := s.queue.Peek()
		if err != nil {
			logger.WarnContext(ctx, "failed to read pending log queue", "error", err)
			return
		}
		if !ok {
			return
		}
		if !s.delivered.Has(next.EventID) {
			record = next
			break
		}

		logger.WarnContext(ctx, "skipping already delivered log record", "event_id", next.EventID)
		if err := s.queue.Remove(next.EventID); err != nil {
			logger.WarnContext(ctx, "failed to remove pending log record", "event_id", next.EventID, "error", err)
			return
		}
	}

	record = s.identity.stamp(record)
	s.flushing = true
	s.dispatcher.Dispatch(ctx, "flush pending logs", func(ctx context.Context) func() {
		err := s.send(ctx, record)
		return func() {
			if err != nil {
				s.flushing = false
				logger.WarnContext(ctx, "log replay failed", "event_id", record.EventID, "error", err)
				return
			}

			s.delivered.TryClaim(record.EventID)
			if err := s.queue.Remove(record.EventID); err != nil {
				s.flushing = false
				logger.WarnContext(ctx, "failed to remove pending log record", "event_id", record.EventID, "error", err)
				return
			}
			s.flushNext(ctx)
		}
	})
}

// spill moves the undelivered outbox into the pending queue, keeping order.
func (s *Sink) spill(ctx context.Context) {
	for _, record := range s.outbox {
		s.enqueue(ctx, record)
	}
	s.outbox = nil
}

func (s *Sink) enqueue(ctx context.Context, record LogRecord) {
	if err := s.queue.Push(record); err != nil {
		if errors.Is(err, ErrQueueFull) {
			logger.WarnContext(ctx, "pending log queue full, dropping record", "event_id", record.EventID)
			return
		}
		logger.WarnContext(ctx, "failed to queue log record", "event_id", record.EventID, "error", err)
	}
}

func (s *Sink) send(ctx context.Context, record LogRecord) error {
	ctx, span := tracer.Start(ctx, "deliver log record")
	defer span.End()
	span.SetAttributes(
		attribute.String("log_record.event_id", record.EventID),
		attribute.String("log_record.role", string(record.Role)),
	)

	if err := s.deliverer.Deliver(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
