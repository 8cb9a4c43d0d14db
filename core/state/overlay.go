package state

import (
	"errors"
	"fmt"

	"github.com/Bloxxix/stellar-core/core/types"
)

var (
	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("state: key already exists")

	// ErrKeyAbsent is returned by Erase when the key is not present.
	ErrKeyAbsent = errors.New("state: key does not exist")

	// ErrAlreadyRestored is returned when a key is restored twice within one
	// overlay.
	ErrAlreadyRestored = errors.New("state: key already restored")
)

type overlaySlot struct {
	entry   types.LedgerEntry
	deleted bool
}

// Deltas are the restoration records an overlay accumulates for the
// archival consistency checks. Keys are canonical encodings.
type Deltas struct {
	RestoredFromArchive map[string]types.LedgerEntry
	RestoredFromLive    map[string]types.LedgerEntry
}

func newDeltas() Deltas {
	return Deltas{
		RestoredFromArchive: make(map[string]types.LedgerEntry),
		RestoredFromLive:    make(map[string]types.LedgerEntry),
	}
}

// Overlay is a nestable transaction over the live store, with a read-only
// view of the hot archive. Creates, updates, deletes and restores buffer in
// the overlay until Commit folds them into the parent; the root overlay
// commits into the stores themselves. Abort drops the buffer.
//
// Overlays are single-owner and not safe for concurrent use.
type Overlay struct {
	parent  *Overlay
	live    *LiveStore  // root only
	archive *HotArchive // root only
	header  types.LedgerHeader

	entries        map[string]*overlaySlot
	archiveDeletes map[string]struct{}
	deltas         Deltas

	done bool
}

// NewOverlay roots a transaction at the given stores for the ledger being
// closed. Writes stamp LastModified with header.Seq.
func NewOverlay(live *LiveStore, archive *HotArchive, header types.LedgerHeader) *Overlay {
	return &Overlay{
		live:           live,
		archive:        archive,
		header:         header,
		entries:        make(map[string]*overlaySlot),
		archiveDeletes: make(map[string]struct{}),
		deltas:         newDeltas(),
	}
}

// Begin opens a nested overlay. The child sees the parent's buffered state
// and folds into it on Commit.
func (o *Overlay) Begin() *Overlay {
	return &Overlay{
		parent:         o,
		header:         o.header,
		entries:        make(map[string]*overlaySlot),
		archiveDeletes: make(map[string]struct{}),
		deltas:         newDeltas(),
	}
}

// Header returns the header of the ledger being closed.
func (o *Overlay) Header() types.LedgerHeader { return o.header }

func (o *Overlay) checkOpen() {
	if o.done {
		panic("state: use of committed or aborted overlay")
	}
}

// lookup resolves an encoded key through the overlay stack down to the live
// store.
func (o *Overlay) lookup(key string) (types.LedgerEntry, bool) {
	for cur := o; cur != nil; cur = cur.parent {
		if slot, ok := cur.entries[key]; ok {
			if slot.deleted {
				return types.LedgerEntry{}, false
			}
			return slot.entry, true
		}
		if cur.parent == nil {
			it, ok := cur.live.tree.Get(storeItem{key: key})
			if !ok {
				return types.LedgerEntry{}, false
			}
			return it.entry, true
		}
	}
	return types.LedgerEntry{}, false
}

// ArchiveLoad resolves k against the hot archive view, honouring removals
// buffered by restores anywhere on the overlay stack.
func (o *Overlay) ArchiveLoad(k types.LedgerKey) (types.LedgerEntry, bool) {
	o.checkOpen()
	key := k.Ordered()
	for cur := o; cur != nil; cur = cur.parent {
		if _, ok := cur.archiveDeletes[key]; ok {
			return types.LedgerEntry{}, false
		}
		if cur.parent == nil {
			it, ok := cur.archive.tree.Get(storeItem{key: key})
			if !ok {
				return types.LedgerEntry{}, false
			}
			return it.entry.Copy(), true
		}
	}
	return types.LedgerEntry{}, false
}

// LoadWithoutRecord returns a copy of the entry under k without marking it
// for mutation.
func (o *Overlay) LoadWithoutRecord(k types.LedgerKey) (types.LedgerEntry, bool) {
	o.checkOpen()
	e, ok := o.lookup(k.Ordered())
	if !ok {
		return types.LedgerEntry{}, false
	}
	return e.Copy(), true
}

// Load pulls the entry under k into this overlay's write buffer and returns
// a pointer to the buffered copy. Mutations through the pointer become part
// of the overlay and fold on Commit.
func (o *Overlay) Load(k types.LedgerKey) (*types.LedgerEntry, bool) {
	o.checkOpen()
	key := k.Ordered()
	if slot, ok := o.entries[key]; ok {
		if slot.deleted {
			return nil, false
		}
		return &slot.entry, true
	}
	e, ok := o.lookup(key)
	if !ok {
		return nil, false
	}
	slot := &overlaySlot{entry: e.Copy()}
	o.entries[key] = slot
	return &slot.entry, true
}

// Create buffers a new entry. Fails if the key is already present.
func (o *Overlay) Create(e types.LedgerEntry) error {
	o.checkOpen()
	k := e.Key()
	if _, ok := o.lookup(k.Ordered()); ok {
		return fmt.Errorf("%w: %s", ErrKeyExists, k.Type)
	}
	ec := e.Copy()
	ec.LastModified = o.header.Seq
	o.entries[k.Ordered()] = &overlaySlot{entry: ec}
	return nil
}

// Update buffers a replacement of the entry under its key.
func (o *Overlay) Update(e types.LedgerEntry) {
	o.checkOpen()
	ec := e.Copy()
	ec.LastModified = o.header.Seq
	o.entries[e.Key().Ordered()] = &overlaySlot{entry: ec}
}

// Erase buffers the removal of k. For contract keys the caller erases the
// TTL key alongside.
func (o *Overlay) Erase(k types.LedgerKey) error {
	o.checkOpen()
	key := k.Ordered()
	if _, ok := o.lookup(key); !ok {
		return fmt.Errorf("%w: %s", ErrKeyAbsent, k.Type)
	}
	o.entries[key] = &overlaySlot{deleted: true}
	return nil
}

// RestoreFromHotArchive re-inserts an archived entry into the live state
// with a fresh TTL at liveUntil, and buffers the archive-side removal.
func (o *Overlay) RestoreFromHotArchive(e types.LedgerEntry, liveUntil uint32) error {
	o.checkOpen()
	k := e.Key()
	if !k.IsPersistent() {
		return fmt.Errorf("%w: %s", ErrNotPersistent, k.Type)
	}
	key := k.Ordered()
	if _, dup := o.deltas.RestoredFromArchive[key]; dup {
		return fmt.Errorf("%w: %s", ErrAlreadyRestored, k.Type)
	}

	restored := e.Copy()
	restored.LastModified = o.header.Seq
	ttlKey := types.TTLKey(k)
	ttlEntry := types.NewTTLEntry(ttlKey, liveUntil)
	ttlEntry.LastModified = o.header.Seq

	o.entries[key] = &overlaySlot{entry: restored}
	o.entries[ttlKey.Ordered()] = &overlaySlot{entry: ttlEntry}
	o.archiveDeletes[key] = struct{}{}
	o.deltas.RestoredFromArchive[key] = restored
	o.deltas.RestoredFromArchive[ttlKey.Ordered()] = ttlEntry
	return nil
}

// RestoreFromLive extends the TTL of an expired entry that is still in the
// live state. The entry payload is untouched; only the TTL moves. The
// recorded delta keeps the expired TTL so the consistency checks can verify
// the restoration targeted a dead entry.
func (o *Overlay) RestoreFromLive(e types.LedgerEntry, liveUntil uint32) error {
	o.checkOpen()
	k := e.Key()
	if !k.IsPersistent() {
		return fmt.Errorf("%w: %s", ErrNotPersistent, k.Type)
	}
	key := k.Ordered()
	if _, dup := o.deltas.RestoredFromLive[key]; dup {
		return fmt.Errorf("%w: %s", ErrAlreadyRestored, k.Type)
	}

	ttlKey := types.TTLKey(k)
	oldTTL, ok := o.lookup(ttlKey.Ordered())
	if !ok {
		panic("state: entry restored from live state has no TTL entry")
	}
	current, ok := o.lookup(key)
	if !ok {
		panic("state: entry restored from live state does not exist")
	}

	newTTL := oldTTL.Copy()
	newTTL.TTL.LiveUntil = liveUntil
	newTTL.LastModified = o.header.Seq
	o.entries[ttlKey.Ordered()] = &overlaySlot{entry: newTTL}

	o.deltas.RestoredFromLive[key] = current.Copy()
	o.deltas.RestoredFromLive[ttlKey.Ordered()] = oldTTL.Copy()
	return nil
}

// Abort drops all buffered changes.
func (o *Overlay) Abort() {
	o.checkOpen()
	o.done = true
	o.entries = nil
	o.archiveDeletes = nil
}

// Commit folds the buffer into the parent overlay, or into the stores at
// the root, and returns the accumulated restoration deltas. Only the root
// commit's deltas describe the whole ledger.
func (o *Overlay) Commit() Deltas {
	o.checkOpen()
	o.done = true

	if o.parent != nil {
		p := o.parent
		for key, slot := range o.entries {
			p.entries[key] = slot
		}
		for key := range o.archiveDeletes {
			p.archiveDeletes[key] = struct{}{}
		}
		mergeRestored(p.deltas.RestoredFromArchive, o.deltas.RestoredFromArchive)
		mergeRestored(p.deltas.RestoredFromLive, o.deltas.RestoredFromLive)
		return p.deltas
	}

	for key, slot := range o.entries {
		if slot.deleted {
			o.live.tree.Delete(storeItem{key: key})
			continue
		}
		o.live.tree.ReplaceOrInsert(storeItem{key: key, entry: slot.entry})
	}
	for key := range o.archiveDeletes {
		o.archive.tree.Delete(storeItem{key: key})
	}
	return o.deltas
}

func mergeRestored(dst, src map[string]types.LedgerEntry) {
	for key, e := range src {
		if _, dup := dst[key]; dup {
			panic("state: key restored in both parent and child overlay")
		}
		dst[key] = e
	}
}
