package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BalanceTracker maintains in-memory holder balances and the total supply.
// Not thread-safe: only accessed from the single-threaded deterministic core.
type BalanceTracker struct {
	balances    map[common.Address]*uint256.Int
	totalSupply *uint256.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances:    make(map[common.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
	}
}

// ApplyBatch applies all journals in a batch. Every debit is checked against
// the projected balance before anything moves, so a failing batch leaves the
// tracker untouched.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	next, supply, err := bt.project(batch)
	if err != nil {
		return err
	}

	for addr, bal := range next {
		if bal.IsZero() {
			delete(bt.balances, addr)
			continue
		}
		bt.balances[addr] = bal
	}
	bt.totalSupply = supply
	return nil
}

// project computes the post-batch balances of touched accounts.
func (bt *BalanceTracker) project(batch *Batch) (map[common.Address]*uint256.Int, *uint256.Int, error) {
	next := make(map[common.Address]*uint256.Int)
	supply := new(uint256.Int).Set(bt.totalSupply)

	get := func(addr common.Address) *uint256.Int {
		if v, ok := next[addr]; ok {
			return v
		}
		v := bt.GetBalance(addr)
		next[addr] = v
		return v
	}

	for _, j := range batch.Journals {
		// Credit leg: balance decreases
		if j.CreditAccount.IsIssuance() {
			if _, overflow := supply.AddOverflow(supply, j.Amount); overflow {
				return nil, nil, fmt.Errorf("total supply overflow")
			}
		} else {
			bal := get(j.CreditAccount.Address)
			if bal.Lt(j.Amount) {
				return nil, nil, fmt.Errorf("%w: %s has %s, needs %s",
					ErrInsufficientBalance, j.CreditAccount.AccountPath(), bal.Dec(), j.Amount.Dec())
			}
			bal.Sub(bal, j.Amount)
		}

		// Debit leg: balance increases
		if j.DebitAccount.IsIssuance() {
			if supply.Lt(j.Amount) {
				return nil, nil, fmt.Errorf("%w: burn exceeds total supply", ErrInsufficientBalance)
			}
			supply.Sub(supply, j.Amount)
		} else {
			bal := get(j.DebitAccount.Address)
			if _, overflow := bal.AddOverflow(bal, j.Amount); overflow {
				return nil, nil, fmt.Errorf("balance overflow for %s", j.DebitAccount.AccountPath())
			}
		}
	}

	return next, supply, nil
}

// GetBalance returns a copy of the current balance for an address
func (bt *BalanceTracker) GetBalance(addr common.Address) *uint256.Int {
	if v, ok := bt.balances[addr]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the circulating supply
func (bt *BalanceTracker) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(bt.totalSupply)
}

// SetBalance overwrites a balance. Used only during snapshot restore; the
// caller restores totalSupply separately.
func (bt *BalanceTracker) SetBalance(addr common.Address, balance *uint256.Int) {
	if balance == nil || balance.IsZero() {
		delete(bt.balances, addr)
		return
	}
	bt.balances[addr] = new(uint256.Int).Set(balance)
}

// SetTotalSupply overwrites the supply. Used only during snapshot restore.
func (bt *BalanceTracker) SetTotalSupply(supply *uint256.Int) {
	bt.totalSupply = new(uint256.Int).Set(supply)
}

// ComputeBalanceSum sums all holder balances
func (bt *BalanceTracker) ComputeBalanceSum() (*uint256.Int, error) {
	sum := new(uint256.Int)
	for addr, bal := range bt.balances {
		if _, overflow := sum.AddOverflow(sum, bal); overflow {
			return nil, fmt.Errorf("balance sum overflow at %s", addr.Hex())
		}
	}
	return sum, nil
}

// Snapshot returns a copy of all non-zero balances
func (bt *BalanceTracker) Snapshot() map[common.Address]*uint256.Int {
	snapshot := make(map[common.Address]*uint256.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = new(uint256.Int).Set(v)
	}
	return snapshot
}
