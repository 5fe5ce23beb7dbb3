package fee

import (
	"FeeLedger/internal/ledger"
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Direction selects which side of a transfer a whitelist entry exempts.
type Direction uint8

const (
	DirectionFrom Direction = 0 // sender exempt
	DirectionTo   Direction = 1 // recipient exempt
)

// ParseDirection validates a wire-level direction value.
func ParseDirection(v uint8) (Direction, error) {
	switch Direction(v) {
	case DirectionFrom, DirectionTo:
		return Direction(v), nil
	}
	return 0, fmt.Errorf("%w: %d", ledger.ErrInvalidDirection, v)
}

func (d Direction) String() string {
	if d == DirectionTo {
		return "to"
	}
	return "from"
}

func (d Direction) role() Role {
	if d == DirectionTo {
		return RoleToWhitelisted
	}
	return RoleFromWhitelisted
}

// Exempts reports whether held includes the whitelist role for d.
func (d Direction) Exempts(held Role) bool {
	return held&d.role() != 0
}

// Role is a bit set of the fee roles an address holds.
type Role uint8

const (
	RoleFromWhitelisted Role = 1 << iota
	RoleToWhitelisted
	RoleCollector
)

// RoleTable is the single explicit store of role membership.
type RoleTable struct {
	roles map[common.Address]Role
}

func NewRoleTable() *RoleTable {
	return &RoleTable{roles: make(map[common.Address]Role)}
}

func (rt *RoleTable) Has(addr common.Address, r Role) bool {
	return rt.roles[addr]&r != 0
}

func (rt *RoleTable) Grant(addr common.Address, r Role) {
	rt.roles[addr] |= r
}

func (rt *RoleTable) Revoke(addr common.Address, r Role) {
	if left := rt.roles[addr] &^ r; left != 0 {
		rt.roles[addr] = left
	} else {
		delete(rt.roles, addr)
	}
}

// Members returns every address holding r, ordered by address bytes.
func (rt *RoleTable) Members(r Role) []common.Address {
	out := make([]common.Address, 0)
	for addr, held := range rt.roles {
		if held&r != 0 {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// WhitelistRegistry tracks FROM and TO fee exemptions.
type WhitelistRegistry struct {
	roles *RoleTable
}

func NewWhitelistRegistry(roles *RoleTable) *WhitelistRegistry {
	return &WhitelistRegistry{roles: roles}
}

// Add registers addr for dir; a second add fails.
func (w *WhitelistRegistry) Add(addr common.Address, dir Direction) error {
	if w.roles.Has(addr, dir.role()) {
		return fmt.Errorf("%w: %s (%s)", ledger.ErrAlreadyWhitelisted, addr.Hex(), dir)
	}
	w.roles.Grant(addr, dir.role())
	return nil
}

// Delete removes addr from dir; removing a non-member fails.
func (w *WhitelistRegistry) Delete(addr common.Address, dir Direction) error {
	if !w.roles.Has(addr, dir.role()) {
		return fmt.Errorf("%w: %s (%s)", ledger.ErrNotWhitelisted, addr.Hex(), dir)
	}
	w.roles.Revoke(addr, dir.role())
	return nil
}

func (w *WhitelistRegistry) IsWhitelisted(addr common.Address, dir Direction) bool {
	return w.roles.Has(addr, dir.role())
}

// Exempt reports whether a transfer from → to is fee-free.
func (w *WhitelistRegistry) Exempt(from, to common.Address) bool {
	return w.IsWhitelisted(from, DirectionFrom) || w.IsWhitelisted(to, DirectionTo)
}
