package core

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
)

// Prefetcher warms a byte cache with the footprint entries of the incoming
// transactions so the apply loop's reads hit memory. It only ever reads
// snapshots; apply-visible state is untouched.
type Prefetcher struct {
	cache *fastcache.Cache
}

// NewPrefetcher creates a prefetch cache bounded to maxBytes.
func NewPrefetcher(maxBytes int) *Prefetcher {
	return &Prefetcher{cache: fastcache.New(maxBytes)}
}

// Warm loads every declared footprint key of txs from the snapshot into the
// cache. It returns once the cache is warm; callers running it in the
// background join before apply starts reading.
func (p *Prefetcher) Warm(snap *state.LiveSnapshot, txs []*Transaction) {
	warm := func(keys []types.LedgerKey) {
		for _, k := range keys {
			enc := k.Encode()
			if p.cache.Has(enc) {
				prefetchHitMeter.Mark(1)
				continue
			}
			prefetchMissMeter.Mark(1)
			if e, ok := snap.Load(k); ok {
				p.cache.Set(enc, e.Encode())
			}
			if k.IsContract() {
				ttlKey := types.TTLKey(k)
				if e, ok := snap.Load(ttlKey); ok {
					p.cache.Set(ttlKey.Encode(), e.Encode())
				}
			}
		}
	}
	for _, tx := range txs {
		warm(tx.Resources.Footprint.ReadOnly)
		warm(tx.Resources.Footprint.ReadWrite)
	}
}

// Get returns the cached encoding of k, if present.
func (p *Prefetcher) Get(k types.LedgerKey) ([]byte, bool) {
	v := p.cache.Get(nil, k.Encode())
	if len(v) == 0 {
		return nil, false
	}
	return v, true
}

// Reset drops all cached entries.
func (p *Prefetcher) Reset() { p.cache.Reset() }
