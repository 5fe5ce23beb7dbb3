package query

import (
	"FeeLedger/internal/ledger"
	fpmath "FeeLedger/internal/math"
	"FeeLedger/internal/observability"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrNotFound is returned for lookups of rows that do not exist.
var ErrNotFound = errors.New("not found")

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Deployment names the contract accounts fixed at deployment. The bound
// collector contract can be rebound at runtime and is read from the
// projection instead.
type Deployment struct {
	// Token may not read the fee ratio.
	Token common.Address
}

// QueryService provides read-only access to the projection tables and the
// event log. It never touches the core.
type QueryService struct {
	db         *sql.DB
	deployment Deployment
	metrics    *observability.Metrics
}

func NewQueryService(db *sql.DB, deployment Deployment, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, deployment: deployment, metrics: metrics}
}

// GetBalance returns a holder's balance; unknown holders have zero.
func (qs *QueryService) GetBalance(ctx context.Context, addr common.Address) (resp *BalanceResponse, err error) {
	defer qs.observe("balance", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := qs.getProjectedBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Address: addr.Hex(), Balance: balance.Dec(), AsOfSequence: asOf}, nil
}

// GetAllowance returns the remaining allowance of spender over owner.
func (qs *QueryService) GetAllowance(ctx context.Context, owner, spender common.Address) (resp *AllowanceResponse, err error) {
	defer qs.observe("allowance", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	value := "0"
	err = qs.db.QueryRowContext(ctx, `
		SELECT value::text FROM projections.allowances WHERE owner = $1 AND spender = $2
	`, addressKey(owner), addressKey(spender)).Scan(&value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &AllowanceResponse{
		Owner:        owner.Hex(),
		Spender:      spender.Hex(),
		Value:        value,
		AsOfSequence: asOf,
	}, nil
}

// GetTokenInfo returns the token's metadata and configuration.
func (qs *QueryService) GetTokenInfo(ctx context.Context) (info *TokenInfo, err error) {
	defer qs.observe("token_info", time.Now(), &err)

	info = &TokenInfo{}
	var owner, pauser, collector string
	err = qs.db.QueryRowContext(ctx, `
		SELECT name, symbol, currency, decimals, initialized, owner, pauser, paused,
		       total_supply::text, minimum_transfer::text, collector_contract, last_sequence
		FROM projections.token_state WHERE id = 1
	`).Scan(
		&info.Name, &info.Symbol, &info.Currency, &info.Decimals, &info.Initialized,
		&owner, &pauser, &info.Paused, &info.TotalSupply, &info.MinimumTransfer,
		&collector, &info.AsOfSequence,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token state: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	info.Owner = checksum(owner)
	info.Pauser = checksum(pauser)
	info.CollectorContract = checksum(collector)
	return info, nil
}

// GetFeeRatio returns the fee schedule. The bound token may not read it.
func (qs *QueryService) GetFeeRatio(ctx context.Context, caller common.Address) (resp *FeeRatioResponse, err error) {
	defer qs.observe("fee_ratio", time.Now(), &err)

	if qs.deployment.Token != (common.Address{}) && caller == qs.deployment.Token {
		return nil, fmt.Errorf("%w: token may not read the fee ratio", ledger.ErrUnauthorized)
	}

	resp = &FeeRatioResponse{}
	err = qs.db.QueryRowContext(ctx, `
		SELECT fee_numerator, fee_denominator, last_sequence FROM projections.token_state WHERE id = 1
	`).Scan(&resp.Numerator, &resp.Denominator, &resp.AsOfSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token state: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetFeePool returns the accrued pool and each collector's current share.
func (qs *QueryService) GetFeePool(ctx context.Context) (resp *FeePoolResponse, err error) {
	defer qs.observe("fee_pool", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	collector, err := qs.getCollectorContract(ctx)
	if err != nil {
		return nil, err
	}
	pool := new(uint256.Int)
	if collector != (common.Address{}) {
		if pool, err = qs.getProjectedBalance(ctx, collector); err != nil {
			return nil, err
		}
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT address, weight FROM projections.collectors ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp = &FeePoolResponse{
		Collector:    collector.Hex(),
		Balance:      pool.Dec(),
		Collectors:   []CollectorShare{},
		AsOfSequence: asOf,
	}
	for rows.Next() {
		var c CollectorShare
		if err := rows.Scan(&c.Address, &c.Weight); err != nil {
			return nil, err
		}
		c.Address = checksum(c.Address)
		resp.TotalWeight += c.Weight
		resp.Collectors = append(resp.Collectors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range resp.Collectors {
		share, err := fpmath.ProportionalShare(pool, resp.Collectors[i].Weight, resp.TotalWeight)
		if err != nil {
			return nil, err
		}
		resp.Collectors[i].Share = share.Dec()
	}
	return resp, nil
}

// GetAccountStatus returns addr's whitelist, collector and blacklist flags.
func (qs *QueryService) GetAccountStatus(ctx context.Context, addr common.Address) (resp *AccountStatus, err error) {
	defer qs.observe("account_status", time.Now(), &err)

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp = &AccountStatus{Address: addr.Hex(), AsOfSequence: asOf}
	key := addressKey(addr)
	err = qs.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM projections.whitelist WHERE address = $1 AND direction = 0),
			EXISTS (SELECT 1 FROM projections.whitelist WHERE address = $1 AND direction = 1),
			EXISTS (SELECT 1 FROM projections.collectors WHERE address = $1),
			EXISTS (SELECT 1 FROM projections.blacklist WHERE address = $1)
	`, key).Scan(&resp.FromWhitelist, &resp.ToWhitelist, &resp.Collector, &resp.Blacklisted)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTransfers returns the Transfer logs involving addr, newest first.
// beforeSequence, if set, pages backwards from that sequence (exclusive).
func (qs *QueryService) GetTransfers(
	ctx context.Context,
	addr common.Address,
	limit int,
	beforeSequence *int64,
) (entries []TransferEntry, err error) {
	defer qs.observe("transfers", time.Now(), &err)

	query := `
		SELECT l.sequence, l.log_index, l.from_address, l.to_address, l.value::text, e.timestamp
		FROM event_log.logs l
		JOIN event_log.events e ON e.sequence = l.sequence
		WHERE l.kind = $1 AND (l.from_address = $2 OR l.to_address = $2)
	`
	args := []any{ledger.LogTransfer.String(), addressKey(addr)}
	if beforeSequence != nil {
		args = append(args, *beforeSequence)
		query += fmt.Sprintf(" AND l.sequence < $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY l.sequence DESC, l.log_index DESC LIMIT $%d", len(args))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries = []TransferEntry{}
	for rows.Next() {
		var t TransferEntry
		if err := rows.Scan(&t.Sequence, &t.Index, &t.From, &t.To, &t.Value, &t.Timestamp); err != nil {
			return nil, err
		}
		t.From = checksum(t.From)
		t.To = checksum(t.To)
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// GetEvent returns the committed command at sequence.
func (qs *QueryService) GetEvent(ctx context.Context, sequence int64) (entry *EventEntry, err error) {
	defer qs.observe("event", time.Now(), &err)

	entry = &EventEntry{}
	var payload string
	var stateHash, prevHash []byte
	err = qs.db.QueryRowContext(ctx, `
		SELECT sequence, event_type, idempotency_key, caller, source_sequence,
		       payload::text, state_hash, prev_hash, timestamp
		FROM event_log.events WHERE sequence = $1
	`, sequence).Scan(
		&entry.Sequence, &entry.EventType, &entry.IdempotencyKey, &entry.Caller,
		&entry.SourceSequence, &payload, &stateHash, &prevHash, &entry.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", sequence, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	entry.Caller = checksum(entry.Caller)
	entry.Payload = []byte(payload)
	entry.StateHash = hex.EncodeToString(stateHash)
	entry.PrevHash = hex.EncodeToString(prevHash)
	return entry, nil
}

// GetJournalHistory returns the journal entries moving addr, newest first.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	addr common.Address,
	limit int,
	beforeSequence *int64,
) (entries []JournalHistoryEntry, err error) {
	defer qs.observe("journal_history", time.Now(), &err)

	path := ledger.NewHolderAccountKey(addr).AccountPath()
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount::text, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []any{path}
	if beforeSequence != nil {
		args = append(args, *beforeSequence)
		query += fmt.Sprintf(" AND sequence < $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", len(args))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries = []JournalHistoryEntry{}
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount, &e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain links in the event log and that
// the projected balances sum to the projected total supply.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer qs.observe("verify_integrity", time.Now(), &err)

	report = &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT t.total_supply::text,
		       COALESCE((SELECT SUM(balance) FROM projections.balances), 0)::text,
		       t.last_sequence
		FROM projections.token_state t WHERE t.id = 1
	`).Scan(&report.TotalSupply, &report.SumOfBalances, &report.AsOfSequence)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.TotalSupply == report.SumOfBalances
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark ORDER BY last_sequence DESC LIMIT 1
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// getCollectorContract returns the collector contract the token is bound to,
// or the zero address when none is.
func (qs *QueryService) getCollectorContract(ctx context.Context) (common.Address, error) {
	var stored string
	err := qs.db.QueryRowContext(ctx, `
		SELECT collector_contract FROM projections.token_state WHERE id = 1
	`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Address{}, fmt.Errorf("token state: %w", ErrNotFound)
	}
	if err != nil {
		return common.Address{}, err
	}
	if stored == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(stored) {
		return common.Address{}, fmt.Errorf("collector contract %q is not an address", stored)
	}
	return common.HexToAddress(stored), nil
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var balance string
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance::text FROM projections.balances WHERE address = $1
	`, addressKey(addr)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	v, err := uint256.FromDecimal(balance)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}
	return v, nil
}

// observe records request metrics. errp points at the caller's named error.
func (qs *QueryService) observe(endpoint string, start time.Time, errp *error) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	status := "ok"
	if *errp != nil {
		status = "error"
		qs.metrics.QueryErrors.WithLabelValues(endpoint, errorCode(*errp)).Inc()
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// checksum converts a stored lower-case address back to EIP-55 form.
func checksum(stored string) string {
	if !common.IsHexAddress(stored) {
		return stored
	}
	return common.HexToAddress(stored).Hex()
}
