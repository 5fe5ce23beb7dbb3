package token

import (
	"FeeLedger/internal/ledger"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// transferPlan is a fully validated transfer waiting to be applied.
type transferPlan struct {
	from, to common.Address
	amount   *uint256.Int
	fee      *uint256.Int
	batch    *ledger.Batch
}

// planTransfer runs every check of the fee-charging transfer path and builds
// the journal batch without touching state. Check order: blacklist, zero
// recipient, minimum floor, fee, sender balance.
func (t *Token) planTransfer(from, to common.Address, amount *uint256.Int, extraBlacklisted ...common.Address) (*transferPlan, error) {
	if err := t.requireNotBlacklisted(append([]common.Address{from, to}, extraBlacklisted...)...); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient", ledger.ErrZeroAddress)
	}
	if !t.minimumTransfer.IsZero() && amount.Lt(t.minimumTransfer) {
		return nil, fmt.Errorf("%w: %s < %s", ledger.ErrBelowMinimumTransfer, amount.Dec(), t.minimumTransfer.Dec())
	}

	fee, err := t.computeFee(from, to, amount)
	if err != nil {
		return nil, err
	}
	if fee.Gt(amount) {
		return nil, fmt.Errorf("%w: fee %s exceeds amount %s", ledger.ErrInsufficientBalance, fee.Dec(), amount.Dec())
	}

	if bal := t.tracker.GetBalance(from); bal.Lt(amount) {
		return nil, fmt.Errorf("%w: %s has %s, needs %s", ledger.ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}

	net := new(uint256.Int).Sub(amount, fee)
	return &transferPlan{
		from:   from,
		to:     to,
		amount: amount,
		fee:    fee,
		batch:  t.generator.GenerateTransfer(from, to, t.collector, net, fee),
	}, nil
}

// computeFee asks the bound collector contract. An unbound token charges
// nothing; a binding without a registered policy is an error.
func (t *Token) computeFee(from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if t.collector == (common.Address{}) {
		return new(uint256.Int), nil
	}
	policy, ok := t.policies[t.collector]
	if !ok {
		return nil, fmt.Errorf("%w: no collector contract at %s", ledger.ErrInvalidBridge, t.collector.Hex())
	}
	exempt, fee, err := policy.ComputeFee(from, to, amount)
	if err != nil {
		return nil, err
	}
	if exempt {
		return new(uint256.Int), nil
	}
	return fee, nil
}

func (t *Token) apply(batch *ledger.Batch) error {
	if err := t.tracker.ApplyBatch(batch); err != nil {
		// Every leg was pre-checked; a failure here means the plan and the
		// tracker disagree.
		return fmt.Errorf("apply batch %s: %w", batch.BatchID, err)
	}
	return nil
}

// Transfer moves amount from caller: amount−fee to the recipient and the fee
// to the collector contract.
func (t *Token) Transfer(caller, to common.Address, amount *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	plan, err := t.planTransfer(caller, to, amount)
	if err != nil {
		return nil, err
	}
	if err := t.apply(plan.batch); err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		Batch: plan.batch,
		Logs:  []ledger.Log{ledger.TransferLog(caller, to, amount)},
	}, nil
}

// TransferFrom is Transfer on behalf of from. The allowance is charged the
// full amount, fee included.
func (t *Token) TransferFrom(caller, from, to common.Address, amount *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if from == (common.Address{}) {
		return nil, fmt.Errorf("%w: sender", ledger.ErrZeroAddress)
	}
	allowance := t.allowances.Get(from, caller)
	if allowance.Lt(amount) {
		return nil, fmt.Errorf("%w: %s may move %s, needs %s",
			ledger.ErrInsufficientAllowance, caller.Hex(), allowance.Dec(), amount.Dec())
	}
	plan, err := t.planTransfer(from, to, amount, caller)
	if err != nil {
		return nil, err
	}
	allowance.Sub(allowance, amount)

	if err := t.apply(plan.batch); err != nil {
		return nil, err
	}
	t.allowances.Set(from, caller, allowance)

	return &ledger.Receipt{
		Batch: plan.batch,
		Logs: []ledger.Log{
			ledger.TransferLog(from, to, amount),
			ledger.ApprovalLog(from, caller, allowance),
		},
	}, nil
}

// TransferBridge moves amount from caller fee-free. bridge must be the
// active collector contract.
func (t *Token) TransferBridge(caller, to common.Address, amount *uint256.Int, bridge common.Address) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	return t.bridge(caller, to, amount, bridge, ledger.JournalTypeBridge)
}

// Disburse is the collector contract's payout path: a bridge transfer out of
// its own account.
func (t *Token) Disburse(from, to common.Address, amount *uint256.Int, jt ledger.JournalType) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	return t.bridge(from, to, amount, from, jt)
}

func (t *Token) bridge(from, to common.Address, amount *uint256.Int, bridge common.Address, jt ledger.JournalType) (*ledger.Receipt, error) {
	if t.collector == (common.Address{}) || bridge != t.collector {
		return nil, fmt.Errorf("%w: %s", ledger.ErrInvalidBridge, bridge.Hex())
	}
	if err := t.requireNotBlacklisted(from, to); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient", ledger.ErrZeroAddress)
	}
	if bal := t.tracker.GetBalance(from); bal.Lt(amount) {
		return nil, fmt.Errorf("%w: %s has %s, needs %s", ledger.ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}

	batch := t.generator.GenerateMove(from, to, amount, jt)
	if err := t.apply(batch); err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		Batch: batch,
		Logs:  []ledger.Log{ledger.TransferLog(from, to, amount)},
	}, nil
}

// Mint credits units·10^decimals to to.
func (t *Token) Mint(caller, to common.Address, units *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: mint recipient", ledger.ErrZeroAddress)
	}
	amount, err := t.toMinorUnits(units)
	if err != nil {
		return nil, err
	}

	batch := t.generator.GenerateMint(to, amount)
	if err := t.apply(batch); err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		Batch: batch,
		Logs:  []ledger.Log{ledger.TransferLog(common.Address{}, to, amount)},
	}, nil
}

// Burn destroys units·10^decimals of the caller's balance.
func (t *Token) Burn(caller common.Address, units *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	amount, err := t.toMinorUnits(units)
	if err != nil {
		return nil, err
	}
	batch, err := t.planBurn(caller, amount)
	if err != nil {
		return nil, err
	}
	if err := t.apply(batch); err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		Batch: batch,
		Logs:  []ledger.Log{ledger.TransferLog(caller, common.Address{}, amount)},
	}, nil
}

// BurnFrom destroys units·10^decimals of owner's balance against the
// caller's allowance.
func (t *Token) BurnFrom(caller, owner common.Address, units *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: burn owner", ledger.ErrZeroAddress)
	}
	amount, err := t.toMinorUnits(units)
	if err != nil {
		return nil, err
	}

	allowance := t.allowances.Get(owner, caller)
	if allowance.Lt(amount) {
		return nil, fmt.Errorf("%w: %s may burn %s, needs %s",
			ledger.ErrInsufficientAllowance, caller.Hex(), allowance.Dec(), amount.Dec())
	}
	allowance.Sub(allowance, amount)

	batch, err := t.planBurn(owner, amount)
	if err != nil {
		return nil, err
	}
	if err := t.apply(batch); err != nil {
		return nil, err
	}
	t.allowances.Set(owner, caller, allowance)

	return &ledger.Receipt{
		Batch: batch,
		Logs: []ledger.Log{
			ledger.TransferLog(owner, common.Address{}, amount),
			ledger.ApprovalLog(owner, caller, allowance),
		},
	}, nil
}

func (t *Token) planBurn(from common.Address, amount *uint256.Int) (*ledger.Batch, error) {
	if bal := t.tracker.GetBalance(from); bal.Lt(amount) {
		return nil, fmt.Errorf("%w: %s has %s, burning %s", ledger.ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}
	return t.generator.GenerateBurn(from, amount), nil
}
