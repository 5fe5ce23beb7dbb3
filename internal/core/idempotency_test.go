package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type stubLog struct {
	seen map[string]bool
}

func (s *stubLog) IsDuplicate(eventType string, caller common.Address, idempotencyKey string) (bool, error) {
	return s.seen[DedupKey(eventType, caller, idempotencyKey)], nil
}

func TestDedupKey_IncludesCaller(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000000A")
	b := common.HexToAddress("0x000000000000000000000000000000000000000b")

	assert.Equal(t, "Transfer:0x000000000000000000000000000000000000000a:cmd-1", DedupKey("Transfer", a, "cmd-1"))
	assert.NotEqual(t, DedupKey("Transfer", a, "cmd-1"), DedupKey("Transfer", b, "cmd-1"))
}

func TestIdempotencyChecker_TiersScopedToCaller(t *testing.T) {
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")
	log := &stubLog{seen: map[string]bool{DedupKey("Mint", a, "old"): true}}
	ic := NewIdempotencyChecker(4, log)

	ic.MarkProcessed("Transfer", a, "cmd-1")
	assert.True(t, ic.IsDuplicate("Transfer", a, "cmd-1"))
	assert.False(t, ic.IsDuplicate("Transfer", b, "cmd-1"))
	assert.False(t, ic.IsDuplicateLocal("Transfer", b, "cmd-1"))

	assert.True(t, ic.IsDuplicate("Mint", a, "old"), "found by the log tier")
	assert.False(t, ic.IsDuplicate("Mint", b, "old"))
	lru, pg := ic.GetMetrics().GetDuplicates("Mint")
	assert.Equal(t, int64(0), lru)
	assert.Equal(t, int64(1), pg)
}
