package token

import (
	"FeeLedger/internal/ledger"
	fpmath "FeeLedger/internal/math"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func logOnly(l ledger.Log) *ledger.Receipt {
	return &ledger.Receipt{Logs: []ledger.Log{l}}
}

// --- Allowances ---

func (t *Token) Approve(caller, spender common.Address, value *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: spender", ledger.ErrZeroAddress)
	}
	t.allowances.Set(caller, spender, value)
	return logOnly(ledger.ApprovalLog(caller, spender, value)), nil
}

func (t *Token) IncreaseAllowance(caller, spender common.Address, delta *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: spender", ledger.ErrZeroAddress)
	}
	next, overflow := new(uint256.Int).AddOverflow(t.allowances.Get(caller, spender), delta)
	if overflow {
		return nil, fmt.Errorf("allowance of %s: %w", spender.Hex(), fpmath.ErrOverflow)
	}
	t.allowances.Set(caller, spender, next)
	return logOnly(ledger.ApprovalLog(caller, spender, next)), nil
}

// DecreaseAllowance lowers the allowance; reaching exactly zero is allowed.
func (t *Token) DecreaseAllowance(caller, spender common.Address, delta *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	if spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: spender", ledger.ErrZeroAddress)
	}
	cur := t.allowances.Get(caller, spender)
	if cur.Lt(delta) {
		return nil, fmt.Errorf("%w: decrease %s below zero (current %s)",
			ledger.ErrInsufficientAllowance, delta.Dec(), cur.Dec())
	}
	next := cur.Sub(cur, delta)
	t.allowances.Set(caller, spender, next)
	return logOnly(ledger.ApprovalLog(caller, spender, next)), nil
}

// --- Pause ---

// Pause and Unpause stay callable while paused.
func (t *Token) Pause(caller common.Address) (*ledger.Receipt, error) {
	if err := t.requirePauser(caller); err != nil {
		return nil, err
	}
	t.paused = true
	return logOnly(ledger.Log{Kind: ledger.LogPaused, From: caller}), nil
}

func (t *Token) Unpause(caller common.Address) (*ledger.Receipt, error) {
	if err := t.requirePauser(caller); err != nil {
		return nil, err
	}
	t.paused = false
	return logOnly(ledger.Log{Kind: ledger.LogUnpaused, From: caller}), nil
}

func (t *Token) requirePauser(caller common.Address) error {
	if err := t.requireInitialized(); err != nil {
		return err
	}
	if !t.pauser.Verify(caller) {
		return fmt.Errorf("%w: %s is not the pauser", ledger.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// --- Blacklist ---

func (t *Token) Blacklist(caller, account common.Address) (*ledger.Receipt, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	t.blacklist[account] = struct{}{}
	return logOnly(ledger.Log{Kind: ledger.LogBlacklisted, From: caller, To: account}), nil
}

func (t *Token) Unblacklist(caller, account common.Address) (*ledger.Receipt, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := t.requireUnpaused(); err != nil {
		return nil, err
	}
	delete(t.blacklist, account)
	return logOnly(ledger.Log{Kind: ledger.LogUnblacklisted, From: caller, To: account}), nil
}

// --- Configuration ---

// SetMinimumTransfer sets the per-transfer floor; zero disables it.
func (t *Token) SetMinimumTransfer(caller common.Address, value *uint256.Int) (*ledger.Receipt, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}
	t.minimumTransfer = new(uint256.Int).Set(value)
	return logOnly(ledger.Log{Kind: ledger.LogMinimumTransferChanged, From: caller, Value: new(uint256.Int).Set(value)}), nil
}

// SetCollectorContract rebinds the collector contract that receives fees.
func (t *Token) SetCollectorContract(caller, collector common.Address) (*ledger.Receipt, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}
	if collector == (common.Address{}) {
		return nil, fmt.Errorf("%w: collector contract", ledger.ErrZeroAddress)
	}
	if _, ok := t.policies[collector]; !ok {
		return nil, fmt.Errorf("%w: no collector contract at %s", ledger.ErrInvalidBridge, collector.Hex())
	}
	t.collector = collector
	return logOnly(ledger.Log{Kind: ledger.LogCollectorContractChanged, From: caller, To: collector}), nil
}

// TransferOwnership is the governance hook handing the owner role over.
func (t *Token) TransferOwnership(caller, newOwner common.Address) (*ledger.Receipt, error) {
	if err := t.requireInitialized(); err != nil {
		return nil, err
	}
	if err := t.owner.TransferOwnership(caller, newOwner); err != nil {
		return nil, err
	}
	return logOnly(ledger.Log{Kind: ledger.LogOwnershipTransferred, From: caller, To: newOwner}), nil
}

// BindCollectorContract sets the collector contract at deployment, before
// ownership is exercised. Runtime rebinding goes through SetCollectorContract.
func (t *Token) BindCollectorContract(collector common.Address) {
	t.collector = collector
}
