package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeHolder AccountScope = iota
	// AccountScopeIssuance is the boundary account on the other side of
	// mint and burn. It carries no balance; totalSupply mirrors it.
	AccountScopeIssuance
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	Address common.Address
}

// NewHolderAccountKey creates a key for a token holder
func NewHolderAccountKey(addr common.Address) AccountKey {
	return AccountKey{Scope: AccountScopeHolder, Address: addr}
}

// IssuanceAccountKey returns the mint/burn boundary account
func IssuanceAccountKey() AccountKey {
	return AccountKey{Scope: AccountScopeIssuance}
}

// IsIssuance reports whether the key is the mint/burn boundary
func (k AccountKey) IsIssuance() bool {
	return k.Scope == AccountScopeIssuance
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeHolder:
		return "holder:" + strings.ToLower(k.Address.Hex())
	case AccountScopeIssuance:
		return "issuance"
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	if path == "issuance" {
		return IssuanceAccountKey(), nil
	}
	hexAddr, ok := strings.CutPrefix(path, "holder:")
	if !ok || !common.IsHexAddress(hexAddr) {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}
	return NewHolderAccountKey(common.HexToAddress(hexAddr)), nil
}

// Less orders keys deterministically: issuance first, then by address bytes.
func (k AccountKey) Less(other AccountKey) bool {
	if k.Scope != other.Scope {
		return k.Scope > other.Scope
	}
	return bytes.Compare(k.Address[:], other.Address[:]) < 0
}
