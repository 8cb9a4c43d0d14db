// Package invariant registers, enables and executes ledger invariant
// checks at defined lifecycle points. Strict invariants abort the node on
// failure; lax ones log and count.
package invariant

import (
	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
)

// Invariant is one registered check. Hooks return nil when the invariant
// holds; a non-nil error names the offending key or entry.
type Invariant interface {
	Name() string

	// Strict invariants abort the node on failure; lax ones record and
	// continue.
	Strict() bool

	// Start is the one-shot startup scan over complete snapshots of both
	// stores.
	Start(live *state.LiveSnapshot, archive *state.ArchiveSnapshot) error

	// CheckOnBucketApply runs when a bucket of persisted entries covering
	// ledgers [oldest, newest] is applied to a store.
	CheckOnBucketApply(entries []types.LedgerEntry, oldest, newest uint32) error

	// CheckAfterAssumeState runs after the node adopts a state snapshot up
	// to the given ledger.
	CheckAfterAssumeState(newest uint32) error

	// CheckOnOperationApply runs after each applied operation with its
	// restoration deltas.
	CheckOnOperationApply(op, result string, deltas state.Deltas) error

	// CheckOnLedgerCommit runs after every ledger commit with the last
	// closed snapshots and the eviction/restoration deltas the commit
	// produced.
	CheckOnLedgerCommit(live *state.LiveSnapshot, archive *state.ArchiveSnapshot,
		evicted []types.LedgerEntry, deletedKeys []types.LedgerKey,
		restoredFromArchive, restoredFromLive map[string]types.LedgerEntry) error
}

// Base provides no-op defaults so concrete invariants implement only the
// hooks they care about.
type Base struct{}

func (Base) Start(*state.LiveSnapshot, *state.ArchiveSnapshot) error { return nil }

func (Base) CheckOnBucketApply([]types.LedgerEntry, uint32, uint32) error { return nil }

func (Base) CheckAfterAssumeState(uint32) error { return nil }

func (Base) CheckOnOperationApply(string, string, state.Deltas) error { return nil }

func (Base) CheckOnLedgerCommit(*state.LiveSnapshot, *state.ArchiveSnapshot,
	[]types.LedgerEntry, []types.LedgerKey,
	map[string]types.LedgerEntry, map[string]types.LedgerEntry) error {
	return nil
}
