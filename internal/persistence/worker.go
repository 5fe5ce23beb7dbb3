package persistence

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const maxBackoff = 30 * time.Second

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// It runs independently from the deterministic core. The core sends with a
// blocking send, so if this worker falls behind the core stalls and no
// committed command is lost.
type PersistenceWorker struct {
	writer       *EventLogWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	// flushed, if set, receives every batch once it is committed.
	flushed func(batch []core.CoreOutput)
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// OnFlushed registers a callback run after every committed batch. The
// outbound publisher uses it to release logs only once they are durable.
// f runs on the worker goroutine and must not retain batch.
func (pw *PersistenceWorker) OnFlushed(f func(batch []core.CoreOutput)) {
	pw.flushed = f
}

// Run batches incoming outputs and flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the input
// channel is closed.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]core.CoreOutput, 0, pw.batchSize)
	var oldest time.Time // receive time of batch[0]

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.logger.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						pw.logger.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
						return err
					}
				}
				return nil
			}

			if len(batch) == 0 {
				oldest = time.Now()
			}
			batch = append(batch, output)

			if len(batch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				pw.observeLatency(oldest)
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				pw.observeLatency(oldest)
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}

		if pw.metrics != nil {
			pw.metrics.SetChannelMetrics("persist", len(pw.inputChan), cap(pw.inputChan))
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds.
// The worker never drops a batch: on shutdown it makes one last attempt
// with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []core.CoreOutput) error {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Warn().Err(err).Msg("persistence flush failed")

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// flush writes events, journals and logs of batch in one transaction.
func (pw *PersistenceWorker) flush(ctx context.Context, batch []core.CoreOutput) error {
	start := time.Now()

	events := make([]EventRow, 0, len(batch))
	var journals []JournalRow
	var logs []LogRow
	for _, out := range batch {
		r := RowsFromOutput(out)
		events = append(events, r.Event)
		journals = append(journals, r.Journals...)
		logs = append(logs, r.Logs...)
	}

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		pw.countError("write_events")
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		pw.countError("write_journals")
		return err
	}
	if err := pw.writer.WriteLogBatch(ctx, tx, logs); err != nil {
		pw.countError("write_logs")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	last := events[len(events)-1].Sequence
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(last))
	}
	if pw.flushed != nil {
		pw.flushed(batch)
	}

	return nil
}

func (pw *PersistenceWorker) observeLatency(oldest time.Time) {
	if pw.metrics != nil {
		pw.metrics.ApplyToPersist.Observe(time.Since(oldest).Seconds())
	}
}

func (pw *PersistenceWorker) countError(stage string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *EventLogWriter {
	return pw.writer
}
