// Package state implements the two-tier ledger state: the live store, the
// hot archive of evicted persistent entries, and the overlay transactions
// the apply engine writes through.
package state

import (
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/google/btree"
)

const btreeDegree = 32

type storeItem struct {
	key   string
	entry types.LedgerEntry
}

func storeItemLess(a, b storeItem) bool { return a.key < b.key }

// LiveStore is the ordered key to entry map holding the current ledger
// state. Mutation is single-owner: only the apply thread writes between
// Snapshot calls.
type LiveStore struct {
	tree *btree.BTreeG[storeItem]
}

// NewLiveStore creates an empty live store.
func NewLiveStore() *LiveStore {
	return &LiveStore{tree: btree.NewG(btreeDegree, storeItemLess)}
}

// Get returns a copy of the entry under k.
func (s *LiveStore) Get(k types.LedgerKey) (types.LedgerEntry, bool) {
	it, ok := s.tree.Get(storeItem{key: k.Ordered()})
	if !ok {
		return types.LedgerEntry{}, false
	}
	return it.entry.Copy(), true
}

// Has reports whether k is present.
func (s *LiveStore) Has(k types.LedgerKey) bool {
	_, ok := s.tree.Get(storeItem{key: k.Ordered()})
	return ok
}

// Put inserts or replaces the entry under its own key.
func (s *LiveStore) Put(e types.LedgerEntry) {
	s.tree.ReplaceOrInsert(storeItem{key: e.Key().Ordered(), entry: e.Copy()})
}

// Delete removes k, reporting whether it was present.
func (s *LiveStore) Delete(k types.LedgerKey) bool {
	_, ok := s.tree.Delete(storeItem{key: k.Ordered()})
	return ok
}

// Len returns the number of entries.
func (s *LiveStore) Len() int { return s.tree.Len() }

// Snapshot freezes the current contents under the given header. The clone
// is copy-on-write, so snapshots are cheap and never observe later writes.
func (s *LiveStore) Snapshot(header types.LedgerHeader) *LiveSnapshot {
	return &LiveSnapshot{tree: s.tree.Clone(), header: header}
}

// LiveSnapshot is an immutable view of the live store at a given header.
// It is safe to share across threads.
type LiveSnapshot struct {
	tree   *btree.BTreeG[storeItem]
	header types.LedgerHeader
}

// Header returns the header the snapshot was taken under.
func (s *LiveSnapshot) Header() types.LedgerHeader { return s.header }

// Load returns a copy of the entry under k.
func (s *LiveSnapshot) Load(k types.LedgerKey) (types.LedgerEntry, bool) {
	it, ok := s.tree.Get(storeItem{key: k.Ordered()})
	if !ok {
		return types.LedgerEntry{}, false
	}
	return it.entry.Copy(), true
}

// LoadKeys returns the entries present for the given encoded key set.
func (s *LiveSnapshot) LoadKeys(keys map[string]struct{}) map[string]types.LedgerEntry {
	out := make(map[string]types.LedgerEntry, len(keys))
	for k := range keys {
		if it, ok := s.tree.Get(storeItem{key: k}); ok {
			out[k] = it.entry.Copy()
		}
	}
	return out
}

// Len returns the number of entries in the snapshot.
func (s *LiveSnapshot) Len() int { return s.tree.Len() }

// Ascend walks all entries in canonical key order until fn returns false.
func (s *LiveSnapshot) Ascend(fn func(types.LedgerEntry) bool) {
	s.tree.Ascend(func(it storeItem) bool {
		return fn(it.entry.Copy())
	})
}
