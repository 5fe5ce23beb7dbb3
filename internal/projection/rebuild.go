package projection

import (
	"FeeLedger/internal/fee"
	"FeeLedger/internal/upgrade"
	"context"
	"database/sql"
	"fmt"
	"time"
)

var projectionTables = []string{
	"projections.balances",
	"projections.allowances",
	"projections.token_state",
	"projections.collectors",
	"projections.whitelist",
	"projections.blacklist",
}

// Rebuild replaces every projection table with state, which reflects the
// command committed at seq. Outputs at or below seq are skipped afterwards.
func (pw *ProjectionWorker) Rebuild(ctx context.Context, seq int64, state *upgrade.State) error {
	start := time.Now()
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := RebuildTx(ctx, tx, seq, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	pw.lastSeq = seq
	pw.logger.Info().
		Int64("sequence", seq).
		Int("balances", len(state.Balances)).
		Dur("took", time.Since(start)).
		Msg("projections rebuilt")
	return nil
}

// RebuildTx writes state into the projection tables inside tx.
func RebuildTx(ctx context.Context, tx *sql.Tx, seq int64, state *upgrade.State) error {
	for _, table := range projectionTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.token_state
			(id, name, symbol, currency, decimals, initialized, owner, pauser, paused,
			 total_supply, minimum_transfer, collector_contract, fee_numerator, fee_denominator, last_sequence)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		state.Name, state.Symbol, state.Currency, state.Decimals, state.Initialized,
		addressKey(state.Owner), addressKey(state.Pauser), state.Paused,
		decimal(state.TotalSupply), decimal(state.MinimumTransfer), addressKey(state.CollectorContract),
		state.FeeNumerator, state.FeeDenominator, seq,
	); err != nil {
		return fmt.Errorf("token state: %w", err)
	}

	for _, b := range state.Balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (address, balance, last_sequence) VALUES ($1, $2, $3)
		`, addressKey(b.Address), decimal(b.Amount), seq); err != nil {
			return fmt.Errorf("balances: %w", err)
		}
	}

	for _, a := range state.Allowances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.allowances (owner, spender, value, last_sequence) VALUES ($1, $2, $3, $4)
		`, addressKey(a.Owner), addressKey(a.Spender), decimal(a.Value), seq); err != nil {
			return fmt.Errorf("allowances: %w", err)
		}
	}

	for _, c := range state.Collectors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.collectors (address, weight) VALUES ($1, $2)
		`, addressKey(c.Address), c.Weight); err != nil {
			return fmt.Errorf("collectors: %w", err)
		}
	}

	for _, r := range state.Roles {
		for _, dir := range []fee.Direction{fee.DirectionFrom, fee.DirectionTo} {
			if !dir.Exempts(fee.Role(r.Roles)) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projections.whitelist (address, direction) VALUES ($1, $2)
			`, addressKey(r.Address), uint8(dir)); err != nil {
				return fmt.Errorf("whitelist: %w", err)
			}
		}
	}

	for _, a := range state.Blacklist {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.blacklist (address) VALUES ($1)
		`, addressKey(a)); err != nil {
			return fmt.Errorf("blacklist: %w", err)
		}
	}

	return setWatermark(ctx, tx, seq)
}
