// Package upgrade guards one-time initialization and owns the versioned,
// append-only state schema that survives code swaps.
package upgrade

import "FeeLedger/internal/ledger"

// Gate allows Initialize to succeed exactly once over the lifetime of the
// state, including across upgrades and restores.
type Gate struct {
	initialized bool
}

func (g *Gate) Initialize() error {
	if g.initialized {
		return ledger.ErrAlreadyInitialized
	}
	g.initialized = true
	return nil
}

func (g *Gate) Initialized() bool {
	return g.initialized
}

// Restore carries the flag over from persisted state.
func (g *Gate) Restore(initialized bool) {
	g.initialized = initialized
}
