package ingestion

import (
	"FeeLedger/internal/event"
	"context"
)

// Submission is a command submitted synchronously: the dispatcher writes
// the outcome to Result exactly once.
type Submission struct {
	Event  event.Event
	Result chan error
}

// GRPCIngestService submits commands from the gRPC API and waits for the
// core's verdict. NATS remains the high-throughput path.
type GRPCIngestService struct {
	submitChan chan<- Submission
}

func NewGRPCIngestService(submitChan chan<- Submission) *GRPCIngestService {
	return &GRPCIngestService{submitChan: submitChan}
}

// Submit validates evt, hands it to the core and returns its error, if any.
func (s *GRPCIngestService) Submit(ctx context.Context, evt event.Event) error {
	if err := Validate(evt); err != nil {
		return err
	}

	sub := Submission{Event: evt, Result: make(chan error, 1)}
	select {
	case s.submitChan <- sub:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-sub.Result:
		return err
	case <-ctx.Done():
		// the command may still commit; the caller retries with the same
		// command_id and is deduplicated
		return ctx.Err()
	}
}

// SubmitRaw parses a JSON command of the named type and submits it.
func (s *GRPCIngestService) SubmitRaw(ctx context.Context, eventType string, payload []byte) (event.Event, error) {
	evt, err := ParseRawEvent(RawEvent{Data: payload}, eventType)
	if err != nil {
		return nil, err
	}
	return evt, s.Submit(ctx, evt)
}
