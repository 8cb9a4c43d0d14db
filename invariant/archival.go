package invariant

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/params"
)

// ArchivedStateConsistency validates the eviction and restoration
// transitions between the live state and the hot archive after every ledger
// commit, plus a startup disjointness scan over both stores.
type ArchivedStateConsistency struct {
	Base
	strict bool
}

// NewArchivedStateConsistency creates the checker. Strict mode aborts the
// node on failure.
func NewArchivedStateConsistency(strict bool) *ArchivedStateConsistency {
	return &ArchivedStateConsistency{strict: strict}
}

// RegisterArchivedStateConsistency registers a strict checker with the
// manager.
func RegisterArchivedStateConsistency(m *Manager) (*ArchivedStateConsistency, error) {
	inv := NewArchivedStateConsistency(true)
	if err := m.Register(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Name implements Invariant.
func (i *ArchivedStateConsistency) Name() string { return "ArchivedStateConsistency" }

// Strict implements Invariant.
func (i *ArchivedStateConsistency) Strict() bool { return i.strict }

// Start verifies that no key is present in both stores. Before the
// persistent eviction protocol the scan is skipped and Start returns nil.
func (i *ArchivedStateConsistency) Start(live *state.LiveSnapshot, archive *state.ArchiveSnapshot) error {
	protocol := live.Header().Protocol
	if !params.SupportsPersistentEviction(protocol) {
		logger.Info("Skipping ArchivedStateConsistency startup scan", "protocol", protocol)
		return nil
	}
	logger.Info("Starting ArchivedStateConsistency startup scan",
		"live", live.Len(), "archived", archive.Len())

	var shared *types.LedgerKey
	archive.Ascend(func(e types.LedgerEntry) bool {
		k := e.Key()
		if _, ok := live.Load(k); ok {
			shared = &k
			return false
		}
		return true
	})
	if shared != nil {
		return fmt.Errorf("entry with the same key is present in both live and archived state: %s %x",
			shared.Type, shared.Encode())
	}
	logger.Info("ArchivedStateConsistency startup scan passed")
	return nil
}

// CheckOnLedgerCommit implements Invariant. The snapshots are of the last
// closed ledger; the deltas were produced while closing its successor.
func (i *ArchivedStateConsistency) CheckOnLedgerCommit(live *state.LiveSnapshot, archive *state.ArchiveSnapshot,
	evicted []types.LedgerEntry, deletedKeys []types.LedgerKey,
	restoredFromArchive, restoredFromLive map[string]types.LedgerEntry) error {

	protocol := live.Header().Protocol
	if !params.SupportsPersistentEviction(protocol) {
		return nil
	}
	ledgerSeq := live.Header().Seq + 1

	// Collect every key the checks touch, then preload from both stores.
	allKeys := mapset.NewThreadUnsafeSet()
	addWithTTL := func(k types.LedgerKey) {
		allKeys.Add(k.Ordered())
		if k.IsPersistent() {
			allKeys.Add(types.TTLKey(k).Ordered())
		}
	}
	for _, e := range evicted {
		addWithTTL(e.Key())
	}
	for _, k := range deletedKeys {
		addWithTTL(k)
		if k.IsTemporary() {
			allKeys.Add(types.TTLKey(k).Ordered())
		}
	}
	for key := range restoredFromArchive {
		allKeys.Add(key)
	}
	for key := range restoredFromLive {
		allKeys.Add(key)
	}

	keySet := make(map[string]struct{}, allKeys.Cardinality())
	for _, item := range allKeys.ToSlice() {
		keySet[item.(string)] = struct{}{}
	}
	preLive := live.LoadKeys(keySet)
	preArchive := archive.LoadKeys(keySet)

	if err := i.checkEvictions(preLive, preArchive, deletedKeys, evicted, ledgerSeq, protocol); err != nil {
		return err
	}
	return i.checkRestores(preLive, preArchive, restoredFromArchive, restoredFromLive, ledgerSeq, protocol)
}

func (i *ArchivedStateConsistency) checkEvictions(preLive, preArchive map[string]types.LedgerEntry,
	deletedKeys []types.LedgerKey, evicted []types.LedgerEntry, ledgerSeq, protocol uint32) error {

	if len(deletedKeys) == 0 && len(evicted) == 0 {
		return nil
	}

	for _, e := range evicted {
		k := e.Key()
		if !k.IsPersistent() {
			return fmt.Errorf("evicted entry is not persistent: %s %x", k.Type, k.Encode())
		}
		key := k.Ordered()

		if prev, ok := preArchive[key]; ok {
			return fmt.Errorf("archived entry already present in archive: %s %x last_modified %d",
				k.Type, k.Encode(), prev.LastModified)
		}

		liveEntry, ok := preLive[key]
		if !ok {
			return fmt.Errorf("evicted entry does not exist in live state: %s %x", k.Type, k.Encode())
		}

		ttlKey := types.TTLKey(k)
		ttlEntry, ok := preLive[ttlKey.Ordered()]
		if !ok {
			return fmt.Errorf("TTL for persistent entry does not exist: entry %x ttl %x",
				k.Encode(), ttlKey.Encode())
		}
		if types.IsLive(ttlEntry, ledgerSeq) {
			return fmt.Errorf("evicted TTL is still live: entry %x live_until %d ledger %d",
				k.Encode(), ttlEntry.TTL.LiveUntil, ledgerSeq)
		}

		// Only check that the newest version was evicted from protocol 24
		// on; protocol 23 could evict an outdated entry.
		if params.StrictArchivalChecks(protocol) && !e.Equal(liveEntry) {
			return fmt.Errorf("outdated entry evicted: key %x evicted %x correct %x",
				k.Encode(), e.Encode(), liveEntry.Encode())
		}
	}

	// Count evicted TTLs and temp entries so an orphaned TTL without its
	// data entry is caught.
	var ttls, temps int
	for _, k := range deletedKeys {
		if !k.IsTemporary() {
			ttls++
			continue
		}
		temps++

		key := k.Ordered()
		if _, ok := preLive[key]; !ok {
			return fmt.Errorf("evicted temp key does not exist in live state: %x", k.Encode())
		}
		ttlKey := types.TTLKey(k)
		ttlEntry, ok := preLive[ttlKey.Ordered()]
		if !ok {
			return fmt.Errorf("TTL for temp entry does not exist in live state: entry %x ttl %x",
				k.Encode(), ttlKey.Encode())
		}
		if types.IsLive(ttlEntry, ledgerSeq) {
			return fmt.Errorf("evicted TTL for temp entry is still live: entry %x live_until %d ledger %d",
				k.Encode(), ttlEntry.TTL.LiveUntil, ledgerSeq)
		}
	}
	if temps+len(evicted) != ttls {
		return fmt.Errorf("number of TTLs evicted does not match number of data/code entries evicted: "+
			"%d TTLs, %d temp entries, %d archived entries", ttls, temps, len(evicted))
	}
	return nil
}

func (i *ArchivedStateConsistency) checkRestores(preLive, preArchive map[string]types.LedgerEntry,
	restoredFromArchive, restoredFromLive map[string]types.LedgerEntry, ledgerSeq, protocol uint32) error {

	// Every non-TTL restored key must be persistent and paired with its TTL
	// key in the same restore map. TTL keys themselves are populated by the
	// restore machinery.
	for _, key := range sortedKeys(restoredFromLive) {
		entry := restoredFromLive[key]
		k := entry.Key()
		if k.Type == types.TTLType {
			continue
		}
		if !k.IsPersistent() {
			return fmt.Errorf("restored entry from live state is not persistent: %s %x", k.Type, k.Encode())
		}
		if _, ok := restoredFromLive[types.TTLKey(k).Ordered()]; !ok {
			return fmt.Errorf("TTL for restored entry from live state is missing: %x", types.TTLKey(k).Encode())
		}
	}
	for _, key := range sortedKeys(restoredFromArchive) {
		entry := restoredFromArchive[key]
		k := entry.Key()
		if k.Type == types.TTLType {
			continue
		}
		if !k.IsPersistent() {
			return fmt.Errorf("restored entry from archive is not persistent: %s %x", k.Type, k.Encode())
		}
		if _, ok := restoredFromArchive[types.TTLKey(k).Ordered()]; !ok {
			return fmt.Errorf("TTL for restored entry from archive is missing: %x", types.TTLKey(k).Encode())
		}
	}

	// Hot archive restores: absent from the live state, present in the hot
	// archive with the correct payload.
	for _, key := range sortedKeys(restoredFromArchive) {
		entry := restoredFromArchive[key]
		k := entry.Key()
		if _, ok := preLive[key]; ok {
			return fmt.Errorf("restored entry from archive is still in live state: %x", k.Encode())
		}
		if k.Type == types.TTLType {
			continue
		}
		archEntry, ok := preArchive[key]
		if !ok {
			return fmt.Errorf("restored entry from archive does not exist in hot archive: %x", k.Encode())
		}
		// Payloads are only compared from protocol 24 on; the comparison
		// excludes the modification ledger, which the restore rewrites.
		if params.StrictArchivalChecks(protocol) && !archEntry.PayloadEqual(entry) {
			return fmt.Errorf("restored entry from archive has incorrect value: restoring %x archived %x",
				entry.Encode(), archEntry.Encode())
		}
	}

	// Live state restores: the correct value on the live state, genuinely
	// expired, and not in the hot archive.
	for _, key := range sortedKeys(restoredFromLive) {
		entry := restoredFromLive[key]
		k := entry.Key()
		if archEntry, ok := preArchive[key]; ok {
			return fmt.Errorf("restored entry from live state exists in hot archive: live %x archived %x",
				entry.Encode(), archEntry.Encode())
		}
		liveEntry, ok := preLive[key]
		if !ok {
			return fmt.Errorf("restored entry from live state does not exist in live state: %x", k.Encode())
		}
		if !liveEntry.Equal(entry) {
			return fmt.Errorf("restored entry from live state has incorrect value: live %x restoring %x",
				liveEntry.Encode(), entry.Encode())
		}
		if k.Type == types.TTLType && types.IsLive(entry, ledgerSeq) {
			return fmt.Errorf("restored entry from live state is not expired: live_until %d ledger %d",
				entry.TTL.LiveUntil, ledgerSeq)
		}
	}
	return nil
}

func sortedKeys(m map[string]types.LedgerEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
