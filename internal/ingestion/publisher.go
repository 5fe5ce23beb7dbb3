package ingestion

import (
	"FeeLedger/internal/core"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// LogStream carries ledger logs for downstream consumers.
	LogStream = "FEE_LEDGER_LOGS"
	// LogSubjectPrefix is followed by the log kind, e.g. fee.ledger.logs.Transfer.
	LogSubjectPrefix = "fee.ledger.logs"
)

// OutboundPublisher publishes ledger logs to NATS after persistence.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableLog
	logger    zerolog.Logger
}

// PublishableLog is one ledger log in wire form. Amounts are decimal
// strings; addresses are checksummed hex.
type PublishableLog struct {
	Sequence       int64     `json:"sequence"`
	Index          int       `json:"index"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Kind           string    `json:"kind"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Value          string    `json:"value,omitempty"`
	Extra          []uint64  `json:"extra,omitempty"`
	StateHash      string    `json:"state_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

// MsgID is the JetStream dedup id: a log is identified by its position.
func (p PublishableLog) MsgID() string {
	return fmt.Sprintf("%d:%d", p.Sequence, p.Index)
}

// Subject is the outbound subject for the log's kind.
func (p PublishableLog) Subject() string {
	return LogSubjectPrefix + "." + p.Kind
}

// LogsFromOutput flattens a committed command into publishable logs.
func LogsFromOutput(out core.CoreOutput) []PublishableLog {
	env := out.Envelope
	logs := make([]PublishableLog, 0, len(out.Logs))
	for i, l := range out.Logs {
		p := PublishableLog{
			Sequence:       env.Sequence,
			Index:          i,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			Kind:           l.Kind.String(),
			From:           l.From.Hex(),
			To:             l.To.Hex(),
			Extra:          l.Extra,
			StateHash:      hex.EncodeToString(env.StateHash[:]),
			Timestamp:      env.Timestamp,
		}
		if l.Value != nil {
			p.Value = l.Value.Dec()
		}
		logs = append(logs, p)
	}
	return logs
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableLog, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case l, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, l); err != nil {
				// downstream consumers can read the log table instead
				op.logger.Warn().Err(err).Int64("sequence", l.Sequence).Int("index", l.Index).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, l PublishableLog) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	_, err = op.js.Publish(ctx, l.Subject(), data, jetstream.WithMsgID(l.MsgID()))
	return err
}

// EnsureOutboundStream creates the outbound log stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       LogStream,
		Subjects:   []string{LogSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", LogStream).Msg("ensured outbound stream")
	return nil
}
