package fee

import (
	"FeeLedger/internal/ledger"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Weighted is a collector and its claim weight on the fee pool.
type Weighted struct {
	Address common.Address
	Weight  uint64
}

// CollectorRegistry tracks collectors and their positive weights.
type CollectorRegistry struct {
	roles   *RoleTable
	weights map[common.Address]uint64
	total   uint64
}

func NewCollectorRegistry(roles *RoleTable) *CollectorRegistry {
	return &CollectorRegistry{roles: roles, weights: make(map[common.Address]uint64)}
}

// Add registers a collector; a second add fails.
func (c *CollectorRegistry) Add(addr common.Address, weight uint64) error {
	if weight == 0 {
		return fmt.Errorf("%w: zero weight for %s", ledger.ErrInvalidWeight, addr.Hex())
	}
	if c.roles.Has(addr, RoleCollector) {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyCollector, addr.Hex())
	}
	if c.total+weight < c.total {
		return fmt.Errorf("%w: total weight overflow", ledger.ErrInvalidWeight)
	}
	c.roles.Grant(addr, RoleCollector)
	c.weights[addr] = weight
	c.total += weight
	return nil
}

// Delete removes a collector; removing a non-member fails.
func (c *CollectorRegistry) Delete(addr common.Address) error {
	if !c.roles.Has(addr, RoleCollector) {
		return fmt.Errorf("%w: %s", ledger.ErrNotCollector, addr.Hex())
	}
	c.roles.Revoke(addr, RoleCollector)
	c.total -= c.weights[addr]
	delete(c.weights, addr)
	return nil
}

func (c *CollectorRegistry) IsCollector(addr common.Address) bool {
	return c.roles.Has(addr, RoleCollector)
}

// Weight returns the collector's weight, zero for non-members.
func (c *CollectorRegistry) Weight(addr common.Address) uint64 {
	return c.weights[addr]
}

// TotalWeight returns Σ weights over current collectors.
func (c *CollectorRegistry) TotalWeight() uint64 {
	return c.total
}

// Members returns collectors in deterministic order.
func (c *CollectorRegistry) Members() []Weighted {
	addrs := c.roles.Members(RoleCollector)
	out := make([]Weighted, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Weighted{Address: a, Weight: c.weights[a]})
	}
	return out
}
