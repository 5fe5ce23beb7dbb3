package projection

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/event"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/observability"
	"FeeLedger/internal/upgrade"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

const workerID = "ledger"

// StateSource returns the core's current ledger state and the sequence it
// reflects. It must be safe to call while the core is running.
type StateSource func(ctx context.Context) (int64, *upgrade.State, error)

// ProjectionWorker keeps the read tables in projections.* current. The core
// sends to it without blocking, so outputs can be dropped: a sequence gap
// triggers a rebuild from the core's current state.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	source    StateSource
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	source StateSource,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		source:    source,
		metrics:   metrics,
		logger:    logger,
	}
}

// LastSequence is the last sequence reflected in the projection tables.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// Run applies outputs until ctx is cancelled or the channel is closed.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if pw.metrics != nil {
				pw.metrics.SetChannelMetrics("projection", len(pw.inputChan), cap(pw.inputChan))
			}

			seq := output.Envelope.Sequence
			if seq <= pw.lastSeq {
				// already covered by a rebuild
				continue
			}
			if seq != pw.lastSeq+1 {
				pw.logger.Warn().
					Int64("expected", pw.lastSeq+1).
					Int64("got", seq).
					Msg("projection gap, rebuilding from core state")
				if err := pw.Resync(ctx); err != nil {
					pw.logger.Error().Err(err).Msg("projection rebuild failed")
					continue
				}
				if seq <= pw.lastSeq {
					continue
				}
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// eventually consistent: the next gap or restart rebuilds
				pw.logger.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues(workerID).Observe(time.Since(start).Seconds())
			}
		}
	}
}

// Resync rebuilds every table from the state source.
func (pw *ProjectionWorker) Resync(ctx context.Context) error {
	if pw.source == nil {
		return fmt.Errorf("no state source")
	}
	seq, state, err := pw.source(ctx)
	if err != nil {
		return fmt.Errorf("read core state: %w", err)
	}
	return pw.Rebuild(ctx, seq, state)
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if output.Envelope.EventType == event.EventTypeInitialize {
		if err := applyInitialize(ctx, tx, output.Envelope); err != nil {
			return fmt.Errorf("initialize projection: %w", err)
		}
	}

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := applyJournal(ctx, tx, seq, j); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	for _, l := range output.Logs {
		if err := applyLog(ctx, tx, seq, l); err != nil {
			return fmt.Errorf("%s projection: %w", l.Kind, err)
		}
	}

	if err := setWatermark(ctx, tx, seq); err != nil {
		return err
	}
	return tx.Commit()
}

// applyJournal moves one journal amount. Debits increase a holder balance;
// the issuance side moves total supply instead.
func applyJournal(ctx context.Context, tx *sql.Tx, seq int64, j ledger.Journal) error {
	amount := j.Amount.Dec()

	if j.DebitAccount.IsIssuance() {
		if err := adjustSupply(ctx, tx, seq, "-", amount); err != nil {
			return err
		}
	} else if err := adjustBalance(ctx, tx, seq, j.DebitAccount.Address, "+", amount); err != nil {
		return err
	}

	if j.CreditAccount.IsIssuance() {
		return adjustSupply(ctx, tx, seq, "+", amount)
	}
	return adjustBalance(ctx, tx, seq, j.CreditAccount.Address, "-", amount)
}

func adjustBalance(ctx context.Context, tx *sql.Tx, seq int64, addr common.Address, op, amount string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (address, balance, last_sequence)
		VALUES ($1, `+op+`$2::numeric, $3)
		ON CONFLICT (address)
		DO UPDATE SET balance = projections.balances.balance `+op+` $2::numeric, last_sequence = $3
	`, addressKey(addr), amount, seq)
	return err
}

func adjustSupply(ctx context.Context, tx *sql.Tx, seq int64, op, amount string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.token_state
		SET total_supply = total_supply `+op+` $1::numeric, last_sequence = $2
		WHERE id = 1
	`, amount, seq)
	return err
}

func applyLog(ctx context.Context, tx *sql.Tx, seq int64, l ledger.Log) error {
	switch l.Kind {
	case ledger.LogTransfer:
		// transfer history is read from event_log.logs
		return nil

	case ledger.LogApproval:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.allowances (owner, spender, value, last_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (owner, spender) DO UPDATE SET value = $3, last_sequence = $4
		`, addressKey(l.From), addressKey(l.To), decimal(l.Value), seq)
		return err

	case ledger.LogPaused, ledger.LogUnpaused:
		return updateTokenState(ctx, tx, seq, "paused", l.Kind == ledger.LogPaused)

	case ledger.LogOwnershipTransferred:
		return updateTokenState(ctx, tx, seq, "owner", addressKey(l.To))

	case ledger.LogMinimumTransferChanged:
		return updateTokenState(ctx, tx, seq, "minimum_transfer", decimal(l.Value))

	case ledger.LogCollectorContractChanged:
		return updateTokenState(ctx, tx, seq, "collector_contract", addressKey(l.To))

	case ledger.LogFeeRatioChanged:
		if len(l.Extra) != 2 {
			return fmt.Errorf("fee ratio log with %d parameters", len(l.Extra))
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.token_state
			SET fee_numerator = $1, fee_denominator = $2, last_sequence = $3
			WHERE id = 1
		`, l.Extra[0], l.Extra[1], seq)
		return err

	case ledger.LogBlacklisted:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.blacklist (address) VALUES ($1) ON CONFLICT DO NOTHING
		`, addressKey(l.To))
		return err

	case ledger.LogUnblacklisted:
		_, err := tx.ExecContext(ctx, `DELETE FROM projections.blacklist WHERE address = $1`, addressKey(l.To))
		return err

	case ledger.LogWhitelistChanged:
		if len(l.Extra) != 2 {
			return fmt.Errorf("whitelist log with %d parameters", len(l.Extra))
		}
		if l.Extra[1] == 1 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO projections.whitelist (address, direction) VALUES ($1, $2) ON CONFLICT DO NOTHING
			`, addressKey(l.To), l.Extra[0])
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.whitelist WHERE address = $1 AND direction = $2
		`, addressKey(l.To), l.Extra[0])
		return err

	case ledger.LogCollectorChanged:
		if len(l.Extra) != 1 {
			return fmt.Errorf("collector log with %d parameters", len(l.Extra))
		}
		if weight := l.Extra[0]; weight > 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO projections.collectors (address, weight) VALUES ($1, $2)
				ON CONFLICT (address) DO UPDATE SET weight = $2
			`, addressKey(l.To), weight)
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM projections.collectors WHERE address = $1`, addressKey(l.To))
		return err
	}
	return nil
}

func applyInitialize(ctx context.Context, tx *sql.Tx, env *event.EventEnvelope) error {
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return err
	}
	cmd, ok := evt.(*event.Initialize)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE projections.token_state
		SET name = $1, symbol = $2, currency = $3, decimals = $4, initialized = TRUE, last_sequence = $5
		WHERE id = 1
	`, cmd.Name, cmd.Symbol, cmd.Currency, cmd.Decimals, env.Sequence)
	return err
}

// updateTokenState sets one column of the token_state row. column is
// always a constant from this package.
func updateTokenState(ctx context.Context, tx *sql.Tx, seq int64, column string, value any) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE projections.token_state SET `+column+` = $1, last_sequence = $2 WHERE id = 1`,
		value, seq)
	return err
}

func setWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

// addressKey is the storage form of an address: lower-case hex.
func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
