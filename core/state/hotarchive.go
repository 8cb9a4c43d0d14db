package state

import (
	"errors"
	"fmt"

	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/google/btree"
)

var (
	// ErrNotPersistent is returned when a non-archivable key is pushed at
	// the hot archive.
	ErrNotPersistent = errors.New("state: key is not a persistent contract key")

	// ErrAlreadyArchived is returned when an evicted key is already present
	// in the hot archive.
	ErrAlreadyArchived = errors.New("state: key already present in hot archive")
)

// HotArchive is the ordered map of evicted persistent contract entries.
// It never stores TTL entries; TTLs are reconstructed at restore time.
type HotArchive struct {
	tree *btree.BTreeG[storeItem]
}

// NewHotArchive creates an empty hot archive.
func NewHotArchive() *HotArchive {
	return &HotArchive{tree: btree.NewG(btreeDegree, storeItemLess)}
}

// Load returns a copy of the archived entry under k.
func (a *HotArchive) Load(k types.LedgerKey) (types.LedgerEntry, bool) {
	it, ok := a.tree.Get(storeItem{key: k.Ordered()})
	if !ok {
		return types.LedgerEntry{}, false
	}
	return it.entry.Copy(), true
}

// InsertOnEvict stores an entry evicted from the live state. The key must be
// a persistent contract key and must not already be archived.
func (a *HotArchive) InsertOnEvict(e types.LedgerEntry) error {
	k := e.Key()
	if !k.IsPersistent() {
		return fmt.Errorf("%w: %s", ErrNotPersistent, k.Type)
	}
	if _, ok := a.tree.Get(storeItem{key: k.Ordered()}); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyArchived, k.Type)
	}
	a.tree.ReplaceOrInsert(storeItem{key: k.Ordered(), entry: e.Copy()})
	return nil
}

// Remove deletes k from the archive. Silent if absent.
func (a *HotArchive) Remove(k types.LedgerKey) {
	a.tree.Delete(storeItem{key: k.Ordered()})
}

// Len returns the number of archived entries.
func (a *HotArchive) Len() int { return a.tree.Len() }

// Snapshot freezes the current contents.
func (a *HotArchive) Snapshot() *ArchiveSnapshot {
	return &ArchiveSnapshot{tree: a.tree.Clone()}
}

// ArchiveSnapshot is an immutable view of the hot archive. Safe to share
// across threads.
type ArchiveSnapshot struct {
	tree *btree.BTreeG[storeItem]
}

// Load returns a copy of the archived entry under k.
func (s *ArchiveSnapshot) Load(k types.LedgerKey) (types.LedgerEntry, bool) {
	it, ok := s.tree.Get(storeItem{key: k.Ordered()})
	if !ok {
		return types.LedgerEntry{}, false
	}
	return it.entry.Copy(), true
}

// LoadKeys returns the archived entries present for the given encoded key
// set.
func (s *ArchiveSnapshot) LoadKeys(keys map[string]struct{}) map[string]types.LedgerEntry {
	out := make(map[string]types.LedgerEntry, len(keys))
	for k := range keys {
		if it, ok := s.tree.Get(storeItem{key: k}); ok {
			out[k] = it.entry.Copy()
		}
	}
	return out
}

// Len returns the number of archived entries in the snapshot.
func (s *ArchiveSnapshot) Len() int { return s.tree.Len() }

// Ascend walks all archived entries in canonical key order until fn returns
// false.
func (s *ArchiveSnapshot) Ascend(fn func(types.LedgerEntry) bool) {
	s.tree.Ascend(func(it storeItem) bool {
		return fn(it.entry.Copy())
	})
}
