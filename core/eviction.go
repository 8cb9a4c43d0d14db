package core

import (
	"time"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/params"
)

// EvictionResult reports what a close's archival sweep moved or dropped.
// Evicted holds persistent entries now in the hot archive; DeletedKeys
// holds every key deleted from the live state: expired temporary entries
// and the TTL keys of everything swept.
type EvictionResult struct {
	Evicted     []types.LedgerEntry
	DeletedKeys []types.LedgerKey
}

// evictExpired sweeps entries whose TTL expired at the closing ledger.
// Persistent entries move to the hot archive; temporary entries are
// deleted. Runs on the apply thread after the close's operations have
// committed, so candidates are judged against the final state. Candidate
// order is the canonical key order.
func evictExpired(live *state.LiveStore, archive *state.HotArchive, modules *ModuleCache, header types.LedgerHeader) (EvictionResult, error) {
	var res EvictionResult
	if !params.IsContractProtocol(header.Protocol) {
		return res, nil
	}
	start := time.Now()
	defer func() { evictionScanTimer.Update(time.Since(start)) }()

	seq := header.Seq
	archiveExpired := params.SupportsPersistentEviction(header.Protocol)

	// Collect candidates from a frozen view, then mutate the stores.
	var candidates []types.LedgerEntry
	live.Snapshot(header).Ascend(func(e types.LedgerEntry) bool {
		if e.Type != types.ContractDataType && e.Type != types.ContractCodeType {
			return true
		}
		k := e.Key()
		ttl, ok := live.Get(types.TTLKey(k))
		if !ok {
			panic("core: live contract entry without a TTL entry")
		}
		if types.IsLive(ttl, seq) {
			return true
		}
		if k.IsPersistent() && !archiveExpired {
			// Expired persistent entries stay in the live state until the
			// protocol supports the hot archive.
			return true
		}
		candidates = append(candidates, e)
		return true
	})

	for _, e := range candidates {
		k := e.Key()
		ttlKey := types.TTLKey(k)
		if k.IsPersistent() {
			if err := archive.InsertOnEvict(e); err != nil {
				return EvictionResult{}, err
			}
			live.Delete(k)
			live.Delete(ttlKey)
			res.Evicted = append(res.Evicted, e)
			res.DeletedKeys = append(res.DeletedKeys, ttlKey)
			if k.Type == types.ContractCodeType {
				modules.EvictContract(e.ContractCode.Hash)
			}
		} else {
			live.Delete(k)
			live.Delete(ttlKey)
			res.DeletedKeys = append(res.DeletedKeys, k, ttlKey)
		}
	}

	if len(res.Evicted) > 0 {
		evictedEntryMeter.Mark(int64(len(res.Evicted)))
	}
	if n := int64(len(candidates) - len(res.Evicted)); n > 0 {
		deletedTempMeter.Mark(n)
	}
	if len(candidates) > 0 {
		logger.Debug("Applied archival sweep", "ledger", seq,
			"archived", len(res.Evicted), "deleted", len(candidates)-len(res.Evicted),
			"scanNs", time.Since(start).Nanoseconds())
	}
	return res, nil
}
