package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateSupply verifies Σ balances == totalSupply
func (v *InvariantValidator) ValidateSupply() error {
	sum, err := v.tracker.ComputeBalanceSum()
	if err != nil {
		return err
	}

	if supply := v.tracker.TotalSupply(); !sum.Eq(supply) {
		return fmt.Errorf("sum of balances %s != total supply %s", sum.Dec(), supply.Dec())
	}

	return nil
}
