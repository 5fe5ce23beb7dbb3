package fee_test

import (
	"FeeLedger/internal/auth"
	"FeeLedger/internal/fee"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/upgrade"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// trackerBank pays out of a bare balance tracker.
type trackerBank struct {
	bt  *ledger.BalanceTracker
	gen *ledger.JournalGenerator
}

func newTrackerBank() *trackerBank {
	return &trackerBank{bt: ledger.NewBalanceTracker(), gen: ledger.NewJournalGenerator()}
}

func (b *trackerBank) BalanceOf(addr common.Address) *uint256.Int {
	return b.bt.GetBalance(addr)
}

func (b *trackerBank) Disburse(from, to common.Address, amount *uint256.Int, jt ledger.JournalType) (*ledger.Receipt, error) {
	batch := b.gen.GenerateMove(from, to, amount, jt)
	if err := b.bt.ApplyBatch(batch); err != nil {
		return nil, err
	}
	return &ledger.Receipt{Batch: batch, Logs: []ledger.Log{ledger.TransferLog(from, to, amount)}}, nil
}

func (b *trackerBank) fund(addr common.Address, amount uint64) {
	if err := b.bt.ApplyBatch(b.gen.GenerateMint(addr, uint256.NewInt(amount))); err != nil {
		panic(err)
	}
}

func newCollector(t *testing.T, cfg fee.Config) (*fee.FeeCollector, *trackerBank) {
	t.Helper()
	if cfg.Address == (common.Address{}) {
		cfg.Address = pool
	}
	if cfg.FeeDenominator == 0 {
		cfg.FeeNumerator, cfg.FeeDenominator = 3, 200
	}
	cfg.Token = token
	fc, err := fee.NewFeeCollector(cfg, auth.NewKeyAuthorizer(owner))
	require.NoError(t, err)
	bank := newTrackerBank()
	fc.BindBank(bank)
	return fc, bank
}

// === FeeRatio ===

func TestFeeRatio_RejectsInvalid(t *testing.T) {
	_, err := fee.NewFeeRatio(1, 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidRatio)

	_, err = fee.NewFeeRatio(3, 2)
	assert.ErrorIs(t, err, ledger.ErrInvalidRatio)

	r, err := fee.NewFeeRatio(2, 2)
	require.NoError(t, err)
	assert.Equal(t, "2/2", r.String())
}

func TestFeeRatio_ApplyTruncates(t *testing.T) {
	r, err := fee.NewFeeRatio(3, 200)
	require.NoError(t, err)

	got, err := r.Apply(uint256.NewInt(5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(75), got.Uint64())

	got, err = r.Apply(uint256.NewInt(66))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Uint64(), "⌊66·3/200⌋ = 0")
}

func TestFeeRatio_ApplyMaxAmountNoOverflow(t *testing.T) {
	r, err := fee.NewFeeRatio(1, 1)
	require.NoError(t, err)

	maxU := new(uint256.Int).SetAllOne()
	got, err := r.Apply(maxU)
	require.NoError(t, err)
	assert.True(t, got.Eq(maxU))
}

// === Whitelist ===

func TestWhitelist_StrictToggle(t *testing.T) {
	w := fee.NewWhitelistRegistry(fee.NewRoleTable())

	require.NoError(t, w.Add(alice, fee.DirectionFrom))
	assert.ErrorIs(t, w.Add(alice, fee.DirectionFrom), ledger.ErrAlreadyWhitelisted)
	assert.True(t, w.IsWhitelisted(alice, fee.DirectionFrom))
	assert.False(t, w.IsWhitelisted(alice, fee.DirectionTo), "directions are independent")

	require.NoError(t, w.Delete(alice, fee.DirectionFrom))
	assert.ErrorIs(t, w.Delete(alice, fee.DirectionFrom), ledger.ErrNotWhitelisted)
}

func TestWhitelist_ExemptByDirection(t *testing.T) {
	w := fee.NewWhitelistRegistry(fee.NewRoleTable())
	require.NoError(t, w.Add(alice, fee.DirectionFrom))
	require.NoError(t, w.Add(carol, fee.DirectionTo))

	assert.True(t, w.Exempt(alice, bob), "FROM-whitelisted sender")
	assert.False(t, w.Exempt(bob, alice), "FROM entry does not exempt as recipient")
	assert.True(t, w.Exempt(bob, carol), "TO-whitelisted recipient")
	assert.False(t, w.Exempt(carol, bob), "TO entry does not exempt as sender")
}

func TestParseDirection(t *testing.T) {
	d, err := fee.ParseDirection(1)
	require.NoError(t, err)
	assert.Equal(t, fee.DirectionTo, d)

	_, err = fee.ParseDirection(2)
	assert.ErrorIs(t, err, ledger.ErrInvalidDirection)
}

// === Collectors ===

func TestCollectorRegistry_Weights(t *testing.T) {
	c := fee.NewCollectorRegistry(fee.NewRoleTable())

	assert.ErrorIs(t, c.Add(alice, 0), ledger.ErrInvalidWeight)
	require.NoError(t, c.Add(alice, 60))
	require.NoError(t, c.Add(bob, 40))
	assert.ErrorIs(t, c.Add(alice, 10), ledger.ErrAlreadyCollector)
	assert.Equal(t, uint64(100), c.TotalWeight())

	require.NoError(t, c.Delete(bob))
	assert.ErrorIs(t, c.Delete(bob), ledger.ErrNotCollector)
	assert.Equal(t, uint64(60), c.TotalWeight())
	assert.Equal(t, []fee.Weighted{{Address: alice, Weight: 60}}, c.Members())
}

func TestRoleTable_SharedBetweenRegistries(t *testing.T) {
	roles := fee.NewRoleTable()
	w := fee.NewWhitelistRegistry(roles)
	c := fee.NewCollectorRegistry(roles)

	require.NoError(t, w.Add(alice, fee.DirectionTo))
	require.NoError(t, c.Add(alice, 5))
	require.NoError(t, c.Delete(alice))

	assert.True(t, w.IsWhitelisted(alice, fee.DirectionTo), "revoking one role keeps the others")
}

// === FeeCollector ===

func TestNewFeeCollector_ValidatesLikeSetters(t *testing.T) {
	a := auth.NewKeyAuthorizer(owner)

	_, err := fee.NewFeeCollector(fee.Config{Address: pool, FeeNumerator: 5, FeeDenominator: 4}, a)
	assert.ErrorIs(t, err, ledger.ErrInvalidRatio)

	_, err = fee.NewFeeCollector(fee.Config{
		Address: pool, FeeDenominator: 1,
		Collectors: []common.Address{alice}, CollectorRatios: []uint64{0},
	}, a)
	assert.ErrorIs(t, err, ledger.ErrInvalidWeight)

	_, err = fee.NewFeeCollector(fee.Config{
		Address: pool, FeeDenominator: 1,
		FromWhitelist: []common.Address{alice, alice},
	}, a)
	assert.ErrorIs(t, err, ledger.ErrAlreadyWhitelisted)

	_, err = fee.NewFeeCollector(fee.Config{FeeDenominator: 1}, a)
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)
}

func TestFeeCollector_OwnerOnlyConfiguration(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{})

	_, err := fc.AddWhitelist(alice, bob, fee.DirectionFrom)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = fc.AddFeeWithCollector(alice, bob, 1)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = fc.SetFeeRatio(alice, 1, 100)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = fc.WithdrawAll(alice)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	rcpt, err := fc.AddWhitelist(owner, bob, fee.DirectionFrom)
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, ledger.LogWhitelistChanged, rcpt.Logs[0].Kind)
	assert.True(t, fc.IsWhitelist(bob, fee.DirectionFrom))
}

func TestFeeCollector_SetFeeRatioKeepsOldOnInvalid(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{})

	_, err := fc.SetFeeRatio(owner, 201, 200)
	assert.ErrorIs(t, err, ledger.ErrInvalidRatio)

	n, d, err := fc.GetFeeRatio(alice)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{3, 200}, [2]uint64{n, d})
}

func TestFeeCollector_GetFeeRatioHiddenFromToken(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{})

	_, _, err := fc.GetFeeRatio(token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestFeeCollector_ComputeFee(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{ToWhitelist: []common.Address{carol}})

	exempt, f, err := fc.ComputeFee(alice, bob, uint256.NewInt(5000))
	require.NoError(t, err)
	assert.False(t, exempt)
	assert.Equal(t, uint64(75), f.Uint64())

	exempt, f, err = fc.ComputeFee(alice, carol, uint256.NewInt(5000))
	require.NoError(t, err)
	assert.True(t, exempt)
	assert.True(t, f.IsZero())
}

func TestFeeCollector_SoleCollectorWithdrawsWholePool(t *testing.T) {
	fc, bank := newCollector(t, fee.Config{
		Collectors: []common.Address{alice}, CollectorRatios: []uint64{60},
	})
	bank.fund(pool, 75)

	rcpt, err := fc.Withdraw(alice)
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, uint64(75), rcpt.Logs[0].Value.Uint64())
	assert.Equal(t, uint64(75), bank.BalanceOf(alice).Uint64())
	assert.True(t, fc.PoolBalance().IsZero())
}

func TestFeeCollector_WeightedWithdrawLeavesDust(t *testing.T) {
	fc, bank := newCollector(t, fee.Config{
		Collectors:      []common.Address{alice, bob, carol},
		CollectorRatios: []uint64{1, 1, 1},
	})
	bank.fund(pool, 100)

	_, err := fc.Withdraw(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), bank.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(67), fc.PoolBalance().Uint64())
}

func TestFeeCollector_NonCollectorWithdrawFails(t *testing.T) {
	fc, bank := newCollector(t, fee.Config{
		Collectors: []common.Address{alice}, CollectorRatios: []uint64{60},
	})
	bank.fund(pool, 75)

	_, err := fc.Withdraw(bob)
	assert.ErrorIs(t, err, ledger.ErrNotCollector)
	assert.Equal(t, uint64(75), fc.PoolBalance().Uint64(), "pool unchanged")
}

func TestFeeCollector_WithdrawEmptyPool(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{
		Collectors: []common.Address{alice}, CollectorRatios: []uint64{1},
	})

	rcpt, err := fc.Withdraw(alice)
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.True(t, rcpt.Logs[0].Value.IsZero())
}

func TestFeeCollector_WithdrawAllSweepsToOwner(t *testing.T) {
	fc, bank := newCollector(t, fee.Config{})
	bank.fund(pool, 120)

	_, err := fc.WithdrawAll(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), bank.BalanceOf(owner).Uint64())
	assert.True(t, fc.PoolBalance().IsZero())
}

func TestFeeCollector_StateRoundTrip(t *testing.T) {
	fc, _ := newCollector(t, fee.Config{
		FromWhitelist:   []common.Address{alice},
		ToWhitelist:     []common.Address{alice, carol},
		Collectors:      []common.Address{alice, bob},
		CollectorRatios: []uint64{60, 40},
	})

	var s upgrade.State
	fc.ExportState(&s)

	restored, _ := newCollector(t, fee.Config{FeeNumerator: 1, FeeDenominator: 1})
	require.NoError(t, restored.ImportState(&s))

	assert.True(t, restored.IsWhitelist(alice, fee.DirectionFrom))
	assert.True(t, restored.IsWhitelist(alice, fee.DirectionTo))
	assert.True(t, restored.IsWhitelist(carol, fee.DirectionTo))
	assert.True(t, restored.IsCollector(alice))
	assert.Equal(t, fc.Collectors(), restored.Collectors())

	n, d, err := restored.GetFeeRatio(alice)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{3, 200}, [2]uint64{n, d})
}
