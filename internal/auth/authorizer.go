// Package auth is the administrative boundary of the ledger. Governance
// (a multisig wallet in production) is only represented by the address it
// acts from; signatures are verified upstream.
package auth

import (
	"FeeLedger/internal/ledger"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Authorizer decides whether a caller holds a role.
type Authorizer interface {
	Verify(caller common.Address) bool
}

// Role is an Authorizer whose holder can be read, handed over and restored
// from a snapshot. The token's owner and pauser are Roles.
type Role interface {
	Authorizer
	Owner() common.Address
	TransferOwnership(caller, newOwner common.Address) error
	Restore(key common.Address)
}

var _ Role = (*KeyAuthorizer)(nil)

// KeyAuthorizer grants a role to exactly one address.
type KeyAuthorizer struct {
	key common.Address
}

func NewKeyAuthorizer(key common.Address) *KeyAuthorizer {
	return &KeyAuthorizer{key: key}
}

func (a *KeyAuthorizer) Verify(caller common.Address) bool {
	return caller != (common.Address{}) && caller == a.key
}

// Owner returns the address currently holding the role.
func (a *KeyAuthorizer) Owner() common.Address {
	return a.key
}

// TransferOwnership hands the role to newOwner.
func (a *KeyAuthorizer) TransferOwnership(caller, newOwner common.Address) error {
	if !a.Verify(caller) {
		return fmt.Errorf("%w: %s is not the owner", ledger.ErrUnauthorized, caller.Hex())
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner", ledger.ErrZeroAddress)
	}
	a.key = newOwner
	return nil
}

// Restore overwrites the key. Used only during snapshot restore.
func (a *KeyAuthorizer) Restore(key common.Address) {
	a.key = key
}
