package fee

import (
	"FeeLedger/internal/auth"
	"FeeLedger/internal/ledger"
	fpmath "FeeLedger/internal/math"
	"FeeLedger/internal/upgrade"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bank is the token-side surface the collector pays out through.
type Bank interface {
	BalanceOf(addr common.Address) *uint256.Int
	// Disburse moves amount fee-free from the collector account, using the
	// collector account itself as the bridge.
	Disburse(from, to common.Address, amount *uint256.Int, jt ledger.JournalType) (*ledger.Receipt, error)
}

// Config is the deployment-time configuration of a FeeCollector.
type Config struct {
	// Address is the collector's own account: fees accrue here.
	Address common.Address
	// Token is the bound token; it may not read the fee ratio directly.
	Token           common.Address
	FromWhitelist   []common.Address
	ToWhitelist     []common.Address
	Collectors      []common.Address
	CollectorRatios []uint64
	FeeNumerator    uint64
	FeeDenominator  uint64
}

// FeeCollector owns the fee schedule, the exemption whitelists and the
// weighted collector set, and pays collectors out of the accrued pool.
type FeeCollector struct {
	address    common.Address
	token      common.Address
	owner      auth.Authorizer
	ratio      FeeRatio
	roles      *RoleTable
	whitelist  *WhitelistRegistry
	collectors *CollectorRegistry
	bank       Bank
}

// NewFeeCollector validates cfg exactly as the individual setters would.
func NewFeeCollector(cfg Config, owner auth.Authorizer) (*FeeCollector, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: collector address", ledger.ErrZeroAddress)
	}
	if len(cfg.Collectors) != len(cfg.CollectorRatios) {
		return nil, fmt.Errorf("%w: %d collectors but %d ratios",
			ledger.ErrInvalidWeight, len(cfg.Collectors), len(cfg.CollectorRatios))
	}

	ratio, err := NewFeeRatio(cfg.FeeNumerator, cfg.FeeDenominator)
	if err != nil {
		return nil, err
	}

	roles := NewRoleTable()
	fc := &FeeCollector{
		address:    cfg.Address,
		token:      cfg.Token,
		owner:      owner,
		ratio:      ratio,
		roles:      roles,
		whitelist:  NewWhitelistRegistry(roles),
		collectors: NewCollectorRegistry(roles),
	}

	for _, a := range cfg.FromWhitelist {
		if err := fc.whitelist.Add(a, DirectionFrom); err != nil {
			return nil, err
		}
	}
	for _, a := range cfg.ToWhitelist {
		if err := fc.whitelist.Add(a, DirectionTo); err != nil {
			return nil, err
		}
	}
	for i, a := range cfg.Collectors {
		if err := fc.collectors.Add(a, cfg.CollectorRatios[i]); err != nil {
			return nil, err
		}
	}

	return fc, nil
}

// BindBank attaches the token the collector pays out through.
func (fc *FeeCollector) BindBank(bank Bank) {
	fc.bank = bank
}

// Address returns the collector's own account.
func (fc *FeeCollector) Address() common.Address {
	return fc.address
}

func (fc *FeeCollector) requireOwner(caller common.Address) error {
	if !fc.owner.Verify(caller) {
		return fmt.Errorf("%w: %s is not the collector owner", ledger.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// --- Fee computation (token path) ---

// ComputeFee returns whether from → to is exempt and the fee owed on amount.
func (fc *FeeCollector) ComputeFee(from, to common.Address, amount *uint256.Int) (bool, *uint256.Int, error) {
	if fc.whitelist.Exempt(from, to) {
		return true, new(uint256.Int), nil
	}
	fee, err := fc.ratio.Apply(amount)
	if err != nil {
		return false, nil, err
	}
	return false, fee, nil
}

// --- Configuration (owner only) ---

func (fc *FeeCollector) AddWhitelist(caller, addr common.Address, dir Direction) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := fc.whitelist.Add(addr, dir); err != nil {
		return nil, err
	}
	return adminReceipt(ledger.Log{Kind: ledger.LogWhitelistChanged, From: caller, To: addr, Extra: []uint64{uint64(dir), 1}}), nil
}

func (fc *FeeCollector) DeleteWhitelist(caller, addr common.Address, dir Direction) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := fc.whitelist.Delete(addr, dir); err != nil {
		return nil, err
	}
	return adminReceipt(ledger.Log{Kind: ledger.LogWhitelistChanged, From: caller, To: addr, Extra: []uint64{uint64(dir), 0}}), nil
}

func (fc *FeeCollector) IsWhitelist(addr common.Address, dir Direction) bool {
	return fc.whitelist.IsWhitelisted(addr, dir)
}

func (fc *FeeCollector) AddFeeWithCollector(caller, addr common.Address, weight uint64) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: collector", ledger.ErrZeroAddress)
	}
	if err := fc.collectors.Add(addr, weight); err != nil {
		return nil, err
	}
	return adminReceipt(ledger.Log{Kind: ledger.LogCollectorChanged, From: caller, To: addr, Extra: []uint64{weight}}), nil
}

func (fc *FeeCollector) DeleteFeeWithCollector(caller, addr common.Address) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := fc.collectors.Delete(addr); err != nil {
		return nil, err
	}
	return adminReceipt(ledger.Log{Kind: ledger.LogCollectorChanged, From: caller, To: addr, Extra: []uint64{0}}), nil
}

func (fc *FeeCollector) IsCollector(addr common.Address) bool {
	return fc.collectors.IsCollector(addr)
}

// Collectors returns the weighted collector set.
func (fc *FeeCollector) Collectors() []Weighted {
	return fc.collectors.Members()
}

func (fc *FeeCollector) SetFeeRatio(caller common.Address, numerator, denominator uint64) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	ratio, err := NewFeeRatio(numerator, denominator)
	if err != nil {
		return nil, err
	}
	fc.ratio = ratio
	return adminReceipt(ledger.Log{Kind: ledger.LogFeeRatioChanged, From: caller, Extra: []uint64{numerator, denominator}}), nil
}

// GetFeeRatio is readable by anyone except the bound token.
func (fc *FeeCollector) GetFeeRatio(caller common.Address) (uint64, uint64, error) {
	if fc.token != (common.Address{}) && caller == fc.token {
		return 0, 0, fmt.Errorf("%w: token may not read the fee ratio", ledger.ErrUnauthorized)
	}
	return fc.ratio.Numerator(), fc.ratio.Denominator(), nil
}

// --- Payouts ---

// PoolBalance returns the fees accrued in the collector account.
func (fc *FeeCollector) PoolBalance() *uint256.Int {
	if fc.bank == nil {
		return new(uint256.Int)
	}
	return fc.bank.BalanceOf(fc.address)
}

// Withdraw pays caller ⌊pool·weight/Σweights⌋. The truncated remainder stays
// in the pool. An empty pool pays zero and still succeeds.
func (fc *FeeCollector) Withdraw(caller common.Address) (*ledger.Receipt, error) {
	if !fc.collectors.IsCollector(caller) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotCollector, caller.Hex())
	}
	if fc.bank == nil {
		return nil, fmt.Errorf("collector has no bound token")
	}

	share, err := fpmath.ProportionalShare(fc.PoolBalance(), fc.collectors.Weight(caller), fc.collectors.TotalWeight())
	if err != nil {
		return nil, err
	}

	return fc.bank.Disburse(fc.address, caller, share, ledger.JournalTypeWithdraw)
}

// WithdrawAll sweeps the whole pool to the owner (caller).
func (fc *FeeCollector) WithdrawAll(caller common.Address) (*ledger.Receipt, error) {
	if err := fc.requireOwner(caller); err != nil {
		return nil, err
	}
	if fc.bank == nil {
		return nil, fmt.Errorf("collector has no bound token")
	}
	return fc.bank.Disburse(fc.address, caller, fc.PoolBalance(), ledger.JournalTypeSweep)
}

// --- State export for snapshots ---

// ExportState writes the collector's persistent fields into s.
func (fc *FeeCollector) ExportState(s *upgrade.State) {
	s.FeeNumerator = fc.ratio.Numerator()
	s.FeeDenominator = fc.ratio.Denominator()
	s.Roles = s.Roles[:0]
	for _, a := range fc.roles.Members(RoleFromWhitelisted | RoleToWhitelisted) {
		held := fc.roles.roles[a] &^ RoleCollector
		s.Roles = append(s.Roles, upgrade.RoleEntry{Address: a, Roles: uint8(held)})
	}
	s.Collectors = s.Collectors[:0]
	for _, w := range fc.collectors.Members() {
		s.Collectors = append(s.Collectors, upgrade.CollectorEntry{Address: w.Address, Weight: w.Weight})
	}
}

// ImportState replaces the collector's persistent fields with those in s.
func (fc *FeeCollector) ImportState(s *upgrade.State) error {
	ratio, err := NewFeeRatio(s.FeeNumerator, s.FeeDenominator)
	if err != nil {
		return err
	}

	roles := NewRoleTable()
	whitelist := NewWhitelistRegistry(roles)
	collectors := NewCollectorRegistry(roles)
	for _, e := range s.Roles {
		roles.Grant(e.Address, Role(e.Roles)&(RoleFromWhitelisted|RoleToWhitelisted))
	}
	for _, e := range s.Collectors {
		if err := collectors.Add(e.Address, e.Weight); err != nil {
			return err
		}
	}

	fc.ratio = ratio
	fc.roles = roles
	fc.whitelist = whitelist
	fc.collectors = collectors
	return nil
}

func adminReceipt(l ledger.Log) *ledger.Receipt {
	return &ledger.Receipt{Logs: []ledger.Log{l}}
}
