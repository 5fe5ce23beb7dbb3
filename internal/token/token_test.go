package token_test

import (
	"FeeLedger/internal/auth"
	"FeeLedger/internal/fee"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/token"
	"FeeLedger/internal/upgrade"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	pauser    = common.HexToAddress("0x00000000000000000000000000000000000000a9")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	pool      = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// newTestLedger deploys a token with decimals 2 bound to a collector charging
// 3/200 (1.5%), with carol as the sole collector at weight 60.
func newTestLedger(t *testing.T) (*token.Token, *fee.FeeCollector) {
	t.Helper()
	ownerAuth := auth.NewKeyAuthorizer(owner)
	tok := token.New(ownerAuth, auth.NewKeyAuthorizer(pauser))
	require.NoError(t, tok.Initialize(token.Metadata{
		Name: "Rupiah Token", Symbol: "IDRT", Currency: "IDR", Decimals: 2,
	}))

	fc, err := fee.NewFeeCollector(fee.Config{
		Address:         pool,
		Token:           tokenAddr,
		Collectors:      []common.Address{carol},
		CollectorRatios: []uint64{60},
		FeeNumerator:    3,
		FeeDenominator:  200,
	}, ownerAuth)
	require.NoError(t, err)
	fc.BindBank(tok)
	tok.RegisterFeePolicy(fc)

	_, err = tok.SetCollectorContract(owner, pool)
	require.NoError(t, err)
	return tok, fc
}

func mustMint(t *testing.T, tok *token.Token, to common.Address, units uint64) {
	t.Helper()
	_, err := tok.Mint(owner, to, u(units))
	require.NoError(t, err)
}

func requireSupplyInvariant(t *testing.T, tok *token.Token) {
	t.Helper()
	require.NoError(t, tok.CheckInvariants())
}

// ===========================================================================
// Scenarios
// ===========================================================================

func TestScenario_MintScalesByDecimals(t *testing.T) {
	tok, _ := newTestLedger(t)

	rcpt, err := tok.Mint(owner, alice, u(100))
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(10_000), tok.TotalSupply().Uint64())
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, ledger.LogTransfer, rcpt.Logs[0].Kind)
	assert.Equal(t, common.Address{}, rcpt.Logs[0].From, "mint is a transfer from null")
	requireSupplyInvariant(t, tok)
}

func TestScenario_TransferChargesFee(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	rcpt, err := tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)

	assert.Equal(t, uint64(5000), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(4925), tok.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(75), tok.BalanceOf(pool).Uint64())
	assert.Equal(t, uint64(10_000), tok.TotalSupply().Uint64())

	require.Len(t, rcpt.Logs, 1, "fee leg is not a separate log")
	assert.Equal(t, uint64(5000), rcpt.Logs[0].Value.Uint64())
	require.Len(t, rcpt.Batch.Journals, 2)
	assert.Equal(t, ledger.JournalTypeTransferFee, rcpt.Batch.Journals[1].JournalType)
	requireSupplyInvariant(t, tok)
}

func TestScenario_SoleCollectorWithdrawsPool(t *testing.T) {
	tok, fc := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)

	rcpt, err := fc.Withdraw(carol)
	require.NoError(t, err)

	assert.Equal(t, uint64(75), rcpt.Logs[0].Value.Uint64())
	assert.Equal(t, uint64(75), tok.BalanceOf(carol).Uint64())
	assert.True(t, tok.BalanceOf(pool).IsZero())
	assert.Equal(t, ledger.JournalTypeWithdraw, rcpt.Batch.Journals[0].JournalType)
	requireSupplyInvariant(t, tok)
}

func TestScenario_SecondInitializeFails(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 1)

	err := tok.Initialize(token.Metadata{Name: "Evil", Symbol: "EVL", Decimals: 18})
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)
	assert.Equal(t, "IDRT", tok.Symbol())
	assert.Equal(t, owner, tok.Owner())
	assert.Equal(t, uint64(100), tok.BalanceOf(alice).Uint64())
}

func TestScenario_NonCollectorWithdrawFails(t *testing.T) {
	tok, fc := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)

	_, err = fc.Withdraw(bob)
	assert.ErrorIs(t, err, ledger.ErrNotCollector)
	assert.Equal(t, uint64(75), tok.BalanceOf(pool).Uint64())
}

// ===========================================================================
// Transfer path
// ===========================================================================

func TestTransfer_ExemptByDirection(t *testing.T) {
	tok, fc := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := fc.AddWhitelist(owner, alice, fee.DirectionFrom)
	require.NoError(t, err)
	_, err = fc.AddWhitelist(owner, carol, fee.DirectionTo)
	require.NoError(t, err)

	_, err = tok.Transfer(alice, bob, u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tok.BalanceOf(bob).Uint64(), "FROM-whitelisted sender pays no fee")

	_, err = tok.Transfer(bob, carol, u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tok.BalanceOf(carol).Uint64(), "TO-whitelisted recipient pays no fee")
	assert.True(t, tok.BalanceOf(pool).IsZero())
}

func TestTransfer_MinimumFloorBoundary(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.SetMinimumTransfer(owner, u(200))
	require.NoError(t, err)

	_, err = tok.Transfer(alice, bob, u(199))
	assert.ErrorIs(t, err, ledger.ErrBelowMinimumTransfer)
	assert.Equal(t, uint64(10_000), tok.BalanceOf(alice).Uint64())

	_, err = tok.Transfer(alice, bob, u(200))
	require.NoError(t, err)
	assert.Equal(t, uint64(197), tok.BalanceOf(bob).Uint64())

	_, err = tok.SetMinimumTransfer(owner, u(0))
	require.NoError(t, err)
	_, err = tok.Transfer(alice, bob, u(1))
	assert.NoError(t, err, "zero disables the floor")
}

func TestTransfer_InsufficientBalanceIsAtomic(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 1)

	_, err := tok.Transfer(alice, bob, u(101))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), tok.BalanceOf(alice).Uint64())
	assert.True(t, tok.BalanceOf(bob).IsZero())
	assert.True(t, tok.BalanceOf(pool).IsZero())
}

func TestTransfer_ZeroRecipient(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 1)

	_, err := tok.Transfer(alice, common.Address{}, u(10))
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)
}

func TestTransfer_BlacklistBothLegs(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 1)
	mustMint(t, tok, bob, 1)
	_, err := tok.Blacklist(owner, bob)
	require.NoError(t, err)
	assert.True(t, tok.IsBlacklisted(bob))

	_, err = tok.Transfer(alice, bob, u(10))
	assert.ErrorIs(t, err, ledger.ErrBlacklistedAccount)
	_, err = tok.Transfer(bob, alice, u(10))
	assert.ErrorIs(t, err, ledger.ErrBlacklistedAccount)

	_, err = tok.Unblacklist(owner, bob)
	require.NoError(t, err)
	_, err = tok.Transfer(bob, alice, u(10))
	assert.NoError(t, err)
}

func TestTransfer_SelfTransferOnlyPaysFee(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	_, err := tok.Transfer(alice, alice, u(5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(9925), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(75), tok.BalanceOf(pool).Uint64())
	requireSupplyInvariant(t, tok)
}

func TestTransfer_UnboundCollectorChargesNothing(t *testing.T) {
	tok := token.New(auth.NewKeyAuthorizer(owner), auth.NewKeyAuthorizer(pauser))
	require.NoError(t, tok.Initialize(token.Metadata{Symbol: "T"}))
	mustMint(t, tok, alice, 500)

	_, err := tok.Transfer(alice, bob, u(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tok.BalanceOf(bob).Uint64())
}

func TestTransferFrom_ChargesAllowanceFullAmount(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Approve(alice, bob, u(6000))
	require.NoError(t, err)

	rcpt, err := tok.TransferFrom(bob, alice, carol, u(5000))
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), tok.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(4925), tok.BalanceOf(carol).Uint64())
	require.Len(t, rcpt.Logs, 2)
	assert.Equal(t, ledger.LogApproval, rcpt.Logs[1].Kind)
	assert.Equal(t, uint64(1000), rcpt.Logs[1].Value.Uint64())
}

func TestTransferFrom_InsufficientAllowance(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Approve(alice, bob, u(4999))
	require.NoError(t, err)

	_, err = tok.TransferFrom(bob, alice, carol, u(5000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.Equal(t, uint64(10_000), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(4999), tok.Allowance(alice, bob).Uint64())
}

func TestTransferFrom_AllowanceCheckedBeforeBalanceAndFloor(t *testing.T) {
	tok, _ := newTestLedger(t)
	_, err := tok.Mint(owner, alice, u(1)) // 100 raw
	require.NoError(t, err)

	// no allowance and not enough balance: the allowance is reported
	_, err = tok.TransferFrom(bob, alice, carol, u(5000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.NotErrorIs(t, err, ledger.ErrInsufficientBalance)

	// no allowance and below the floor: still the allowance
	_, err = tok.SetMinimumTransfer(owner, u(100))
	require.NoError(t, err)
	_, err = tok.TransferFrom(bob, alice, carol, u(50))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	// with the allowance in place the later checks take over
	_, err = tok.Approve(alice, bob, u(10_000))
	require.NoError(t, err)
	_, err = tok.TransferFrom(bob, alice, carol, u(50))
	assert.ErrorIs(t, err, ledger.ErrBelowMinimumTransfer)
	_, err = tok.TransferFrom(bob, alice, carol, u(5000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(10_000), tok.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(100), tok.BalanceOf(alice).Uint64())
}

func TestTransferBridge_OnlyThroughCollector(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	_, err := tok.TransferBridge(alice, bob, u(5000), carol)
	assert.ErrorIs(t, err, ledger.ErrInvalidBridge)

	_, err = tok.TransferBridge(alice, bob, u(5000), pool)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), tok.BalanceOf(bob).Uint64(), "bridge transfers are fee-free")
	assert.True(t, tok.BalanceOf(pool).IsZero())
}

// ===========================================================================
// Mint / burn
// ===========================================================================

func TestMint_OwnerOnlyAndNonZero(t *testing.T) {
	tok, _ := newTestLedger(t)

	_, err := tok.Mint(alice, alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = tok.Mint(owner, common.Address{}, u(1))
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)
}

func TestMint_RequiresInitialize(t *testing.T) {
	tok := token.New(auth.NewKeyAuthorizer(owner), auth.NewKeyAuthorizer(pauser))

	_, err := tok.Mint(owner, alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
}

func TestBurn_ReducesSupply(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	_, err := tok.Burn(alice, u(40))
	require.NoError(t, err)
	assert.Equal(t, uint64(6000), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(6000), tok.TotalSupply().Uint64())

	_, err = tok.Burn(alice, u(61))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	requireSupplyInvariant(t, tok)
}

func TestBurnFrom_ConsumesAllowance(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	_, err := tok.BurnFrom(bob, common.Address{}, u(1))
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)

	_, err = tok.BurnFrom(bob, alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	_, err = tok.Approve(alice, bob, u(500))
	require.NoError(t, err)
	_, err = tok.BurnFrom(bob, alice, u(3))
	require.NoError(t, err)

	assert.Equal(t, uint64(200), tok.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(9700), tok.TotalSupply().Uint64())
	requireSupplyInvariant(t, tok)
}

// ===========================================================================
// Allowances
// ===========================================================================

func TestAllowance_IncreaseDecrease(t *testing.T) {
	tok, _ := newTestLedger(t)

	_, err := tok.Approve(alice, common.Address{}, u(1))
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)

	_, err = tok.IncreaseAllowance(alice, bob, u(10))
	require.NoError(t, err)
	_, err = tok.IncreaseAllowance(alice, bob, u(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(15), tok.Allowance(alice, bob).Uint64())

	_, err = tok.DecreaseAllowance(alice, bob, u(16))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	rcpt, err := tok.DecreaseAllowance(alice, bob, u(15))
	require.NoError(t, err, "decrease to exactly zero is allowed")
	assert.True(t, rcpt.Logs[0].Value.IsZero())
	assert.True(t, tok.Allowance(alice, bob).IsZero())
}

// ===========================================================================
// Pause
// ===========================================================================

func TestPause_BlocksAndUnpauseRestores(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Approve(alice, bob, u(10_000))
	require.NoError(t, err)

	_, err = tok.Pause(owner)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized, "owner is not the pauser")

	rcpt, err := tok.Pause(pauser)
	require.NoError(t, err)
	assert.Equal(t, ledger.LogPaused, rcpt.Logs[0].Kind)
	assert.True(t, tok.Paused())

	_, err = tok.Transfer(alice, bob, u(10))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.Approve(alice, bob, u(10))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.Mint(owner, alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.Burn(alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.Blacklist(owner, bob)
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.TransferFrom(bob, alice, carol, u(10))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.IncreaseAllowance(alice, bob, u(1))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.DecreaseAllowance(alice, bob, u(1))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	_, err = tok.BurnFrom(bob, alice, u(1))
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
	assert.Equal(t, uint64(10_000), tok.Allowance(alice, bob).Uint64(), "allowance untouched while paused")
	assert.Equal(t, uint64(10_000), tok.BalanceOf(alice).Uint64())

	_, err = tok.Pause(pauser)
	require.NoError(t, err, "pause stays callable while paused")
	rcpt, err = tok.Unpause(pauser)
	require.NoError(t, err)
	assert.Equal(t, ledger.LogUnpaused, rcpt.Logs[0].Kind)

	_, err = tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(4925), tok.BalanceOf(bob).Uint64())
	_, err = tok.TransferFrom(bob, alice, carol, u(1000))
	require.NoError(t, err)
	_, err = tok.BurnFrom(bob, alice, u(1))
	require.NoError(t, err)
}

// ===========================================================================
// Withdrawal fairness
// ===========================================================================

func TestWithdraw_WeightedDustNeverNegative(t *testing.T) {
	tok, fc := newTestLedger(t)
	_, err := fc.AddFeeWithCollector(owner, bob, 40)
	require.NoError(t, err)

	mustMint(t, tok, alice, 1000)
	_, err = tok.Transfer(alice, owner, u(6667))
	require.NoError(t, err)
	pooled := tok.BalanceOf(pool).Uint64() // ⌊6667·3/200⌋ = 100
	require.Equal(t, uint64(100), pooled)

	_, err = fc.Withdraw(carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), tok.BalanceOf(carol).Uint64())

	// pool is now 40; bob takes ⌊40·40/100⌋
	_, err = fc.Withdraw(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), tok.BalanceOf(bob).Uint64())

	assert.Equal(t, uint64(24), tok.BalanceOf(pool).Uint64())
	requireSupplyInvariant(t, tok)
}

func TestWithdrawAll_SweepsToOwner(t *testing.T) {
	tok, fc := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)

	rcpt, err := fc.WithdrawAll(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), rcpt.Logs[0].Value.Uint64())
	assert.Equal(t, uint64(75), tok.BalanceOf(owner).Uint64())
	assert.True(t, tok.BalanceOf(pool).IsZero())
}

func TestWithdraw_BlockedWhilePaused(t *testing.T) {
	tok, fc := newTestLedger(t)
	_, err := tok.Pause(pauser)
	require.NoError(t, err)

	_, err = fc.Withdraw(carol)
	assert.ErrorIs(t, err, ledger.ErrContractPaused)
}

// ===========================================================================
// Governance & upgrade
// ===========================================================================

func TestTransferOwnership_MovesTokenAndCollector(t *testing.T) {
	tok, fc := newTestLedger(t)

	_, err := tok.TransferOwnership(alice, bob)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = tok.TransferOwnership(owner, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, tok.Owner())

	_, err = fc.SetFeeRatio(owner, 1, 100)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = fc.SetFeeRatio(bob, 1, 100)
	assert.NoError(t, err)
}

func TestSetCollectorContract_Rebinds(t *testing.T) {
	tok, fc := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	_, err := tok.SetCollectorContract(owner, common.Address{})
	assert.ErrorIs(t, err, ledger.ErrZeroAddress)
	_, err = tok.SetCollectorContract(alice, carol)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	// carol hosts no collector contract: the binding is refused and fees
	// keep flowing to the pool, which its collectors can still withdraw
	_, err = tok.SetCollectorContract(owner, carol)
	assert.ErrorIs(t, err, ledger.ErrInvalidBridge)
	assert.Equal(t, pool, tok.CollectorContract())

	_, err = tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(4925), tok.BalanceOf(bob).Uint64())
	_, err = fc.Withdraw(carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), tok.BalanceOf(carol).Uint64())

	// a second registered collector contract can take over
	second, err := fee.NewFeeCollector(fee.Config{
		Address:         common.HexToAddress("0xfd"),
		Token:           tokenAddr,
		Collectors:      []common.Address{bob},
		CollectorRatios: []uint64{1},
		FeeNumerator:    1,
		FeeDenominator:  100,
	}, auth.NewKeyAuthorizer(owner))
	require.NoError(t, err)
	second.BindBank(tok)
	tok.RegisterFeePolicy(second)

	_, err = tok.SetCollectorContract(owner, second.Address())
	require.NoError(t, err)
	_, err = tok.Transfer(alice, carol, u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tok.BalanceOf(second.Address()).Uint64())
	requireSupplyInvariant(t, tok)
}

func TestTransfer_RestoredBindingWithoutPolicyFails(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)

	var s upgrade.State
	tok.ExportState(&s)
	restored := token.New(auth.NewKeyAuthorizer(owner), auth.NewKeyAuthorizer(pauser))
	require.NoError(t, restored.ImportState(&s))

	// bound to pool, but no contract registered there
	_, err := restored.Transfer(alice, bob, u(5000))
	assert.ErrorIs(t, err, ledger.ErrInvalidBridge)
	assert.Equal(t, uint64(10_000), restored.BalanceOf(alice).Uint64())
}

func TestStateRoundTrip_SurvivesUpgrade(t *testing.T) {
	tok, _ := newTestLedger(t)
	mustMint(t, tok, alice, 100)
	_, err := tok.Transfer(alice, bob, u(5000))
	require.NoError(t, err)
	_, err = tok.Approve(alice, bob, u(7))
	require.NoError(t, err)
	_, err = tok.Blacklist(owner, carol)
	require.NoError(t, err)
	_, err = tok.SetMinimumTransfer(owner, u(3))
	require.NoError(t, err)

	var s upgrade.State
	tok.ExportState(&s)
	blob, err := upgrade.Encode(&s)
	require.NoError(t, err)
	decoded, err := upgrade.Decode(blob)
	require.NoError(t, err)

	restored := token.New(auth.NewKeyAuthorizer(common.Address{}), auth.NewKeyAuthorizer(common.Address{}))
	require.NoError(t, restored.ImportState(decoded))

	assert.ErrorIs(t, restored.Initialize(token.Metadata{}), ledger.ErrAlreadyInitialized)
	assert.Equal(t, uint64(4925), restored.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(75), restored.BalanceOf(pool).Uint64())
	assert.Equal(t, uint64(7), restored.Allowance(alice, bob).Uint64())
	assert.True(t, restored.IsBlacklisted(carol))
	assert.Equal(t, uint64(3), restored.MinimumTransfer().Uint64())
	assert.Equal(t, owner, restored.Owner())
	assert.Equal(t, pauser, restored.Pauser())
	assert.Equal(t, pool, restored.CollectorContract())
	requireSupplyInvariant(t, restored)
}

func TestImportState_RejectsSupplyDrift(t *testing.T) {
	s := &upgrade.State{
		Initialized: true,
		TotalSupply: u(10),
		Balances:    []upgrade.BalanceEntry{{Address: alice, Amount: u(9)}},
	}
	tok := token.New(auth.NewKeyAuthorizer(owner), auth.NewKeyAuthorizer(pauser))
	assert.Error(t, tok.ImportState(s))
	assert.False(t, tok.Initialized())
}

// walletRole stands in for a multisig wallet: any of its signers acts as
// the wallet.
type walletRole struct {
	wallet  common.Address
	signers map[common.Address]bool
	handed  []common.Address
}

func (w *walletRole) Verify(caller common.Address) bool  { return w.signers[caller] }
func (w *walletRole) Owner() common.Address              { return w.wallet }
func (w *walletRole) Restore(key common.Address)         { w.wallet = key }

func (w *walletRole) TransferOwnership(caller, newOwner common.Address) error {
	if !w.Verify(caller) {
		return ledger.ErrUnauthorized
	}
	w.handed = append(w.handed, newOwner)
	w.wallet = newOwner
	w.signers = map[common.Address]bool{newOwner: true}
	return nil
}

func TestNew_AcceptsPluggableGovernance(t *testing.T) {
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	gov := &walletRole{wallet: wallet, signers: map[common.Address]bool{alice: true, bob: true}}
	tok := token.New(gov, gov)
	require.NoError(t, tok.Initialize(token.Metadata{Name: "Rupiah Token", Symbol: "IDRT", Decimals: 2}))

	assert.Equal(t, wallet, tok.Owner())
	assert.Equal(t, wallet, tok.Pauser())

	_, err := tok.Mint(bob, carol, u(1))
	require.NoError(t, err, "any signer acts for the wallet")
	_, err = tok.Mint(carol, carol, u(1))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = tok.Pause(alice)
	require.NoError(t, err)
	_, err = tok.Unpause(bob)
	require.NoError(t, err)

	_, err = tok.TransferOwnership(alice, owner)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{owner}, gov.handed)
	assert.Equal(t, owner, tok.Owner())
	_, err = tok.Mint(alice, carol, u(1))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	var s upgrade.State
	tok.ExportState(&s)
	assert.Equal(t, owner, s.Owner)
}
