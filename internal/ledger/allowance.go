package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AllowanceEntry is one (owner, spender) grant.
type AllowanceEntry struct {
	Owner   common.Address
	Spender common.Address
	Value   *uint256.Int
}

// AllowanceBook tracks how much each spender may move on behalf of an owner.
type AllowanceBook struct {
	grants map[common.Address]map[common.Address]*uint256.Int
}

func NewAllowanceBook() *AllowanceBook {
	return &AllowanceBook{grants: make(map[common.Address]map[common.Address]*uint256.Int)}
}

// Get returns a copy of the allowance (zero when absent).
func (ab *AllowanceBook) Get(owner, spender common.Address) *uint256.Int {
	if v, ok := ab.grants[owner][spender]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// Set overwrites the allowance; zero removes the entry.
func (ab *AllowanceBook) Set(owner, spender common.Address, value *uint256.Int) {
	if value == nil || value.IsZero() {
		if m, ok := ab.grants[owner]; ok {
			delete(m, spender)
			if len(m) == 0 {
				delete(ab.grants, owner)
			}
		}
		return
	}
	m, ok := ab.grants[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		ab.grants[owner] = m
	}
	m[spender] = new(uint256.Int).Set(value)
}

// Entries returns all grants ordered by (owner, spender).
func (ab *AllowanceBook) Entries() []AllowanceEntry {
	out := make([]AllowanceEntry, 0, len(ab.grants))
	for owner, m := range ab.grants {
		for spender, v := range m {
			out = append(out, AllowanceEntry{Owner: owner, Spender: spender, Value: new(uint256.Int).Set(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Owner[:], out[j].Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Spender[:], out[j].Spender[:]) < 0
	})
	return out
}
