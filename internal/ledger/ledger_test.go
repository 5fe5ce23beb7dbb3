package ledger_test

import (
	"FeeLedger/internal/ledger"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000fe")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_HolderPath(t *testing.T) {
	key := ledger.NewHolderAccountKey(alice)

	path := key.AccountPath()
	expected := "holder:0x00000000000000000000000000000000000000a1"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_IssuancePath(t *testing.T) {
	if p := ledger.IssuanceAccountKey().AccountPath(); p != "issuance" {
		t.Errorf("got %q, want %q", p, "issuance")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	for _, key := range []ledger.AccountKey{ledger.NewHolderAccountKey(bob), ledger.IssuanceAccountKey()} {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("parse %s: %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch: got %+v, want %+v", parsed, key)
		}
	}
}

func TestParseAccountPath_Malformed(t *testing.T) {
	if _, err := ledger.ParseAccountPath("user:nope"); err == nil {
		t.Error("expected error for malformed path")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	if !bt.GetBalance(alice).IsZero() {
		t.Errorf("initial balance should be 0, got %s", bt.GetBalance(alice).Dec())
	}
	if !bt.TotalSupply().IsZero() {
		t.Errorf("initial supply should be 0")
	}
}

func TestBalanceTracker_MintIncreasesSupply(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()

	if err := bt.ApplyBatch(gen.GenerateMint(alice, u(10_000))); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetBalance(alice).Uint64(); got != 10_000 {
		t.Errorf("balance: got %d, want 10000", got)
	}
	if got := bt.TotalSupply().Uint64(); got != 10_000 {
		t.Errorf("supply: got %d, want 10000", got)
	}
}

func TestBalanceTracker_TransferWithFeeLeg(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()
	mustApply(t, bt, gen.GenerateMint(alice, u(10_000)))

	mustApply(t, bt, gen.GenerateTransfer(alice, bob, pool, u(4_925), u(75)))

	if got := bt.GetBalance(alice).Uint64(); got != 5_000 {
		t.Errorf("alice: got %d, want 5000", got)
	}
	if got := bt.GetBalance(bob).Uint64(); got != 4_925 {
		t.Errorf("bob: got %d, want 4925", got)
	}
	if got := bt.GetBalance(pool).Uint64(); got != 75 {
		t.Errorf("pool: got %d, want 75", got)
	}
}

func TestBalanceTracker_FailedBatchIsAtomic(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()
	mustApply(t, bt, gen.GenerateMint(alice, u(100)))

	// First leg fits, second leg overdraws: nothing may move
	err := bt.ApplyBatch(gen.GenerateTransfer(alice, bob, pool, u(90), u(20)))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if got := bt.GetBalance(alice).Uint64(); got != 100 {
		t.Errorf("alice should be untouched: got %d", got)
	}
	if !bt.GetBalance(bob).IsZero() {
		t.Errorf("bob should be untouched")
	}
}

func TestBalanceTracker_BurnBeyondBalance(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()
	mustApply(t, bt, gen.GenerateMint(alice, u(5)))

	if err := bt.ApplyBatch(gen.GenerateBurn(alice, u(6))); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := bt.TotalSupply().Uint64(); got != 5 {
		t.Errorf("supply: got %d, want 5", got)
	}
}

func TestBalanceTracker_SelfTransferOnlyMovesFee(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()
	mustApply(t, bt, gen.GenerateMint(alice, u(1_000)))

	batch := gen.GenerateTransfer(alice, alice, pool, u(990), u(10))
	if len(batch.Journals) != 1 {
		t.Fatalf("self leg should be elided, got %d journals", len(batch.Journals))
	}
	mustApply(t, bt, batch)

	if got := bt.GetBalance(alice).Uint64(); got != 990 {
		t.Errorf("alice: got %d, want 990", got)
	}
}

func TestBatch_ValidateRejectsMismatchedBatchID(t *testing.T) {
	gen := ledger.NewJournalGenerator()
	batch := gen.GenerateMint(alice, u(1))
	batch.Journals[0].BatchID = uuid.New()

	if err := batch.Validate(); err == nil {
		t.Error("expected mismatched batch_id error")
	}
}

func TestBatch_EmptyIsValid(t *testing.T) {
	gen := ledger.NewJournalGenerator()
	if err := gen.NewBatch().Validate(); err != nil {
		t.Errorf("empty batch should validate: %v", err)
	}
}

func TestBatch_TouchedDeduplicates(t *testing.T) {
	gen := ledger.NewJournalGenerator()
	batch := gen.GenerateTransfer(alice, bob, pool, u(10), u(1))

	if n := len(batch.Touched()); n != 3 {
		t.Errorf("touched: got %d accounts, want 3", n)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_SupplyMatchesBalances(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator()
	v := ledger.NewInvariantValidator(bt)

	mustApply(t, bt, gen.GenerateMint(alice, u(10_000)))
	mustApply(t, bt, gen.GenerateTransfer(alice, bob, pool, u(4_925), u(75)))
	mustApply(t, bt, gen.GenerateBurn(bob, u(925)))

	if err := v.ValidateSupply(); err != nil {
		t.Fatalf("supply invariant violated: %v", err)
	}
}

func TestInvariantValidator_DetectsDrift(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	bt.SetBalance(alice, u(10))

	if err := v.ValidateSupply(); err == nil {
		t.Error("expected supply drift to be detected")
	}
}

// ============================================================================
// Test: AllowanceBook
// ============================================================================

func TestAllowanceBook_SetGetClear(t *testing.T) {
	ab := ledger.NewAllowanceBook()

	ab.Set(alice, bob, u(500))
	if got := ab.Get(alice, bob).Uint64(); got != 500 {
		t.Errorf("allowance: got %d, want 500", got)
	}
	if !ab.Get(bob, alice).IsZero() {
		t.Error("allowance is directional")
	}

	ab.Set(alice, bob, u(0))
	if len(ab.Entries()) != 0 {
		t.Error("zero allowance should remove the entry")
	}
}

func TestAllowanceBook_EntriesOrdered(t *testing.T) {
	ab := ledger.NewAllowanceBook()
	ab.Set(bob, alice, u(2))
	ab.Set(alice, pool, u(3))
	ab.Set(alice, bob, u(1))

	entries := ab.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(entries))
	}
	if entries[0].Owner != alice || entries[0].Spender != bob {
		t.Errorf("first entry should be alice→bob, got %s→%s", entries[0].Owner.Hex(), entries[0].Spender.Hex())
	}
	if entries[2].Owner != bob {
		t.Errorf("last entry should be owned by bob")
	}
}

func mustApply(t *testing.T, bt *ledger.BalanceTracker, b *ledger.Batch) {
	t.Helper()
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
}
