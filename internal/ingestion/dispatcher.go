package ingestion

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/event"
	"FeeLedger/internal/observability"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Processor is the deterministic core as seen by the dispatcher.
type Processor interface {
	ProcessEvent(evt event.Event) error
}

// Dispatcher is the only goroutine that calls into the core. It merges the
// NATS and gRPC ingestion paths and settles each NATS message.
type Dispatcher struct {
	core       Processor
	rawChan    <-chan RawEvent
	submitChan <-chan Submission
	tasks      chan task
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

type task struct {
	fn   func()
	done chan struct{}
}

func NewDispatcher(
	proc Processor,
	rawChan <-chan RawEvent,
	submitChan <-chan Submission,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		core:       proc,
		rawChan:    rawChan,
		submitChan: submitChan,
		tasks:      make(chan task),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.rawChan:
			if !ok {
				d.rawChan = nil
				continue
			}
			d.handleRaw(raw)

		case sub, ok := <-d.submitChan:
			if !ok {
				d.submitChan = nil
				continue
			}
			sub.Result <- d.core.ProcessEvent(sub.Event)

		case t := <-d.tasks:
			t.fn()
			close(t.done)
		}
	}
}

// Exec runs fn on the dispatcher goroutine between commands, so fn may read
// core state without locking. It returns once fn has finished.
func (d *Dispatcher) Exec(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case d.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-t.done
	return nil
}

func (d *Dispatcher) handleRaw(raw RawEvent) {
	et, err := EventTypeForSubject(raw.Subject)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("unroutable message")
		settle(raw.TermFunc)
		return
	}

	evt, err := ParsePayload(et, raw.Data)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("malformed command")
		settle(raw.TermFunc)
		return
	}

	err = d.core.ProcessEvent(evt)
	switch {
	case err == nil:
		if d.metrics != nil && !raw.Timestamp.IsZero() {
			d.metrics.IngestToApply.WithLabelValues(et.String()).Observe(time.Since(raw.Timestamp).Seconds())
		}
		settle(raw.AckFunc)
	case errors.Is(err, core.ErrSequenceGap):
		// an earlier nonce is still in flight on another subject
		d.logger.Debug().Err(err).Str("command_id", evt.IdempotencyKey()).Msg("nonce gap, redelivering")
		settle(raw.NakFunc)
	default:
		// rejections are final: redelivery would be rejected again
		d.logger.Info().
			Err(err).
			Str("event_type", et.String()).
			Str("command_id", evt.IdempotencyKey()).
			Str("caller", evt.Caller().Hex()).
			Msg("command rejected")
		settle(raw.AckFunc)
	}
}

func settle(f func()) {
	if f != nil {
		f()
	}
}
