package core

import (
	"FeeLedger/internal/ledger"
	"encoding/binary"
	"sort"

	"github.com/holiman/uint256"
)

// computeStateDigest creates canonical bytes for the state hash: every
// account the batch touched with its post-balance, the total supply, then
// the logs in emission order. Amounts are 32-byte big-endian.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch, logs []ledger.Log) []byte {
	accounts := batch.Touched()
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Less(accounts[j])
	})

	supply := c.token.TotalSupply()
	digest := make([]byte, 0, len(accounts)*80+32+len(logs)*112)

	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)

		if key.IsIssuance() {
			digest = appendUint256(digest, supply)
		} else {
			digest = appendUint256(digest, c.token.BalanceOf(key.Address))
		}
	}

	digest = appendUint256(digest, supply)

	for _, l := range logs {
		digest = binary.LittleEndian.AppendUint32(digest, uint32(l.Kind))
		digest = append(digest, l.From[:]...)
		digest = append(digest, l.To[:]...)
		digest = appendUint256(digest, l.Value)
		digest = append(digest, byte(len(l.Extra)))
		for _, x := range l.Extra {
			digest = binary.LittleEndian.AppendUint64(digest, x)
		}
	}

	return digest
}

func appendUint256(buf []byte, v *uint256.Int) []byte {
	if v == nil {
		var zero [32]byte
		return append(buf, zero[:]...)
	}
	b := v.Bytes32()
	return append(buf, b[:]...)
}
