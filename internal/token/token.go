// Package token implements the fee-charging ledger: balances, allowances,
// supply, and the pause, blacklist and minimum-transfer policy around them.
//
// A Token is not thread-safe. It is owned by the deterministic core, which
// serializes every call.
package token

import (
	"FeeLedger/internal/auth"
	"FeeLedger/internal/ledger"
	fpmath "FeeLedger/internal/math"
	"FeeLedger/internal/upgrade"
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FeePolicy is the fee-computation path of a collector contract.
type FeePolicy interface {
	Address() common.Address
	// ComputeFee reports whether from → to is exempt and the fee on amount.
	ComputeFee(from, to common.Address, amount *uint256.Int) (bool, *uint256.Int, error)
}

// Metadata is fixed by Initialize and immutable afterwards.
type Metadata struct {
	Name     string
	Symbol   string
	Currency string
	Decimals uint8
}

type Token struct {
	meta Metadata
	gate upgrade.Gate

	tracker    *ledger.BalanceTracker
	validator  *ledger.InvariantValidator
	allowances *ledger.AllowanceBook
	generator  *ledger.JournalGenerator

	paused          bool
	blacklist       map[common.Address]struct{}
	minimumTransfer *uint256.Int

	// collector is the active collector contract. Fees are only charged
	// when a policy is registered under that address.
	collector common.Address
	policies  map[common.Address]FeePolicy

	owner  auth.Role
	pauser auth.Role
}

// New creates an uninitialized token governed by owner and pauser.
func New(owner, pauser auth.Role) *Token {
	tracker := ledger.NewBalanceTracker()
	return &Token{
		tracker:         tracker,
		validator:       ledger.NewInvariantValidator(tracker),
		allowances:      ledger.NewAllowanceBook(),
		generator:       ledger.NewJournalGenerator(),
		blacklist:       make(map[common.Address]struct{}),
		minimumTransfer: new(uint256.Int),
		policies:        make(map[common.Address]FeePolicy),
		owner:           owner,
		pauser:          pauser,
	}
}

// Initialize sets the metadata. It succeeds once over the lifetime of the
// token's state, restores and upgrades included.
func (t *Token) Initialize(meta Metadata) error {
	if meta.Decimals > fpmath.MaxDecimals {
		return fmt.Errorf("decimals %d exceeds %d: %w", meta.Decimals, fpmath.MaxDecimals, fpmath.ErrOverflow)
	}
	if err := t.gate.Initialize(); err != nil {
		return err
	}
	t.meta = meta
	return nil
}

// RegisterFeePolicy makes a collector contract available for binding.
func (t *Token) RegisterFeePolicy(p FeePolicy) {
	t.policies[p.Address()] = p
}

// Generator exposes the journal generator so the core can position it on
// the command being processed.
func (t *Token) Generator() *ledger.JournalGenerator {
	return t.generator
}

// CheckInvariants verifies Σ balances == totalSupply.
func (t *Token) CheckInvariants() error {
	return t.validator.ValidateSupply()
}

// --- Reads ---

func (t *Token) Initialized() bool { return t.gate.Initialized() }
func (t *Token) Name() string      { return t.meta.Name }
func (t *Token) Symbol() string    { return t.meta.Symbol }
func (t *Token) Currency() string  { return t.meta.Currency }
func (t *Token) Decimals() uint8   { return t.meta.Decimals }
func (t *Token) Paused() bool      { return t.paused }

func (t *Token) TotalSupply() *uint256.Int {
	return t.tracker.TotalSupply()
}

func (t *Token) BalanceOf(addr common.Address) *uint256.Int {
	return t.tracker.GetBalance(addr)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	return t.allowances.Get(owner, spender)
}

func (t *Token) IsBlacklisted(addr common.Address) bool {
	_, ok := t.blacklist[addr]
	return ok
}

func (t *Token) MinimumTransfer() *uint256.Int {
	return new(uint256.Int).Set(t.minimumTransfer)
}

func (t *Token) CollectorContract() common.Address { return t.collector }
func (t *Token) Owner() common.Address             { return t.owner.Owner() }
func (t *Token) Pauser() common.Address            { return t.pauser.Owner() }

// --- Guards ---

func (t *Token) requireInitialized() error {
	if !t.gate.Initialized() {
		return ledger.ErrNotInitialized
	}
	return nil
}

func (t *Token) requireUnpaused() error {
	if err := t.requireInitialized(); err != nil {
		return err
	}
	if t.paused {
		return ledger.ErrContractPaused
	}
	return nil
}

func (t *Token) requireOwner(caller common.Address) error {
	if err := t.requireInitialized(); err != nil {
		return err
	}
	if !t.owner.Verify(caller) {
		return fmt.Errorf("%w: %s is not the owner", ledger.ErrUnauthorized, caller.Hex())
	}
	return nil
}

func (t *Token) requireNotBlacklisted(addrs ...common.Address) error {
	for _, a := range addrs {
		if t.IsBlacklisted(a) {
			return fmt.Errorf("%w: %s", ledger.ErrBlacklistedAccount, a.Hex())
		}
	}
	return nil
}

// toMinorUnits scales whole token units by 10^decimals.
func (t *Token) toMinorUnits(units *uint256.Int) (*uint256.Int, error) {
	return fpmath.ScaleUnits(units, t.meta.Decimals)
}

// --- Persistent state ---

// ExportState writes the token's persistent fields into s.
func (t *Token) ExportState(s *upgrade.State) {
	s.Initialized = t.gate.Initialized()
	s.Name = t.meta.Name
	s.Symbol = t.meta.Symbol
	s.Currency = t.meta.Currency
	s.Decimals = t.meta.Decimals
	s.Owner = t.owner.Owner()
	s.Pauser = t.pauser.Owner()
	s.Paused = t.paused
	s.TotalSupply = t.tracker.TotalSupply()
	s.MinimumTransfer = t.MinimumTransfer()
	s.CollectorContract = t.collector

	balances := t.tracker.Snapshot()
	s.Balances = make([]upgrade.BalanceEntry, 0, len(balances))
	for addr, amt := range balances {
		s.Balances = append(s.Balances, upgrade.BalanceEntry{Address: addr, Amount: amt})
	}
	sort.Slice(s.Balances, func(i, j int) bool {
		return bytes.Compare(s.Balances[i].Address[:], s.Balances[j].Address[:]) < 0
	})

	entries := t.allowances.Entries()
	s.Allowances = make([]upgrade.AllowanceEntry, 0, len(entries))
	for _, e := range entries {
		s.Allowances = append(s.Allowances, upgrade.AllowanceEntry{Owner: e.Owner, Spender: e.Spender, Value: e.Value})
	}

	s.Blacklist = make([]common.Address, 0, len(t.blacklist))
	for a := range t.blacklist {
		s.Blacklist = append(s.Blacklist, a)
	}
	sort.Slice(s.Blacklist, func(i, j int) bool {
		return bytes.Compare(s.Blacklist[i][:], s.Blacklist[j][:]) < 0
	})
}

// ImportState replaces the token's persistent fields with those in s and
// re-verifies the supply invariant.
func (t *Token) ImportState(s *upgrade.State) error {
	tracker := ledger.NewBalanceTracker()
	for _, b := range s.Balances {
		tracker.SetBalance(b.Address, b.Amount)
	}
	tracker.SetTotalSupply(orZero(s.TotalSupply))
	validator := ledger.NewInvariantValidator(tracker)
	if err := validator.ValidateSupply(); err != nil {
		return fmt.Errorf("restored state: %w", err)
	}

	allowances := ledger.NewAllowanceBook()
	for _, a := range s.Allowances {
		allowances.Set(a.Owner, a.Spender, a.Value)
	}
	blacklist := make(map[common.Address]struct{}, len(s.Blacklist))
	for _, a := range s.Blacklist {
		blacklist[a] = struct{}{}
	}

	t.gate.Restore(s.Initialized)
	t.meta = Metadata{Name: s.Name, Symbol: s.Symbol, Currency: s.Currency, Decimals: s.Decimals}
	t.tracker = tracker
	t.validator = validator
	t.allowances = allowances
	t.blacklist = blacklist
	t.paused = s.Paused
	t.minimumTransfer = orZero(s.MinimumTransfer)
	t.collector = s.CollectorContract
	t.owner.Restore(s.Owner)
	t.pauser.Restore(s.Pauser)
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
