package upgrade

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

type BalanceEntry struct {
	Address common.Address
	Amount  *uint256.Int
}

type AllowanceEntry struct {
	Owner   common.Address
	Spender common.Address
	Value   *uint256.Int
}

type RoleEntry struct {
	Address common.Address
	Roles   uint8
}

type CollectorEntry struct {
	Address common.Address
	Weight  uint64
}

// StateV1 is the layout written by schema version 1 (token only).
type StateV1 struct {
	Version     uint64
	Initialized bool
	Name        string
	Symbol      string
	Currency    string
	Decimals    uint8
	Owner       common.Address
	Pauser      common.Address
	Paused      bool
	TotalSupply *uint256.Int
	Balances    []BalanceEntry
	Allowances  []AllowanceEntry
	Blacklist   []common.Address
}

// State is the current layout. It extends StateV1 append-only: every field
// after Blacklist is optional, so a version 1 blob decodes into it unchanged.
// New fields must be appended at the end and tagged optional.
type State struct {
	Version     uint64
	Initialized bool
	Name        string
	Symbol      string
	Currency    string
	Decimals    uint8
	Owner       common.Address
	Pauser      common.Address
	Paused      bool
	TotalSupply *uint256.Int
	Balances    []BalanceEntry
	Allowances  []AllowanceEntry
	Blacklist   []common.Address

	// Version 2
	MinimumTransfer   *uint256.Int     `rlp:"optional"`
	CollectorContract common.Address   `rlp:"optional"`
	FeeNumerator      uint64           `rlp:"optional"`
	FeeDenominator    uint64           `rlp:"optional"`
	Roles             []RoleEntry      `rlp:"optional"`
	Collectors        []CollectorEntry `rlp:"optional"`
}

// Encode serializes the state at the current version.
func Encode(s *State) ([]byte, error) {
	s.Version = Version
	return rlp.EncodeToBytes(s)
}

// Decode parses a state blob written at any supported version and migrates
// it to the current layout.
func Decode(blob []byte) (*State, error) {
	var s State
	if err := rlp.DecodeBytes(blob, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if err := CheckVersion(s.Version); err != nil {
		return nil, err
	}
	Migrate(&s)
	return &s, nil
}

// Migrate brings s to the current version in place. Migrations are pure
// functions of the old state.
func Migrate(s *State) {
	if s.Version < 2 {
		// v1 had no fee schedule: default to a zero fee and no floor
		if s.FeeDenominator == 0 {
			s.FeeNumerator, s.FeeDenominator = 0, 1
		}
		s.Version = 2
	}
	if s.TotalSupply == nil {
		s.TotalSupply = new(uint256.Int)
	}
	if s.MinimumTransfer == nil {
		s.MinimumTransfer = new(uint256.Int)
	}
}
