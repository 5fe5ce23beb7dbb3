package upgrade

import (
	"FeeLedger/internal/ledger"
	"fmt"
)

const (
	// Version is the current state schema version.
	Version = 2
	// PrevVersion is the oldest schema this build can migrate from.
	PrevVersion = 1
)

// CheckVersion verifies that state written at version from can be loaded.
func CheckVersion(from uint64) error {
	if from < PrevVersion {
		return fmt.Errorf("%w: %d is older than %d", ledger.ErrSchemaVersion, from, PrevVersion)
	}
	if from > Version {
		return fmt.Errorf("%w: %d is newer than %d", ledger.ErrSchemaVersion, from, Version)
	}
	return nil
}
