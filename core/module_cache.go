package core

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
)

// rebuildGarbageRatio triggers a cache rebuild once more than this fraction
// of all insertions since the last rebuild has been removed again.
const rebuildGarbageRatio = 0.5

// ModuleCache owns the compiled contract modules shared across ledgers.
// Rebuilds and targeted removals run on the apply thread; background
// compilation adds modules under the cache's lock. The sandbox reads it
// through the vm.ModuleCache interface. Eviction of a contract from the live state
// triggers a targeted removal; accumulated churn triggers a full rebuild.
type ModuleCache struct {
	mu    sync.RWMutex
	cache *lru.Cache

	inserted int
	removed  int
}

// NewModuleCache creates a cache bounded to size compiled modules.
func NewModuleCache(size int) *ModuleCache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &ModuleCache{cache: c}
}

// Get implements vm.ModuleCache.
func (c *ModuleCache) Get(codeHash common.Hash) (vm.Module, bool) {
	c.mu.RLock()
	v, ok := c.cache.Get(codeHash)
	c.mu.RUnlock()
	if ok {
		moduleCacheHitMeter.Mark(1)
		return v, true
	}
	moduleCacheMissMeter.Mark(1)
	return nil, false
}

// Add stores a compiled module under its code hash.
func (c *ModuleCache) Add(codeHash common.Hash, m vm.Module) {
	c.mu.Lock()
	c.cache.Add(codeHash, m)
	c.inserted++
	c.mu.Unlock()
}

// EvictContract drops the module for a contract evicted from the live
// state.
func (c *ModuleCache) EvictContract(codeHash common.Hash) {
	c.mu.Lock()
	if c.cache.Remove(codeHash) {
		c.removed++
	}
	c.mu.Unlock()
}

// Len returns the number of cached modules.
func (c *ModuleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// garbageRatio is the fraction of insertions since the last rebuild that
// has been removed again.
func (c *ModuleCache) garbageRatio() float64 {
	if c.inserted == 0 {
		return 0
	}
	return float64(c.removed) / float64(c.inserted)
}

// MaybeRebuild recompiles the cache from the live snapshot when churn says
// it has fragmented. Runs on the apply thread.
func (c *ModuleCache) MaybeRebuild(host vm.Host, snap *state.LiveSnapshot, threads int) {
	c.mu.Lock()
	ratio := c.garbageRatio()
	if ratio <= rebuildGarbageRatio {
		c.mu.Unlock()
		return
	}
	logger.Info("Rebuilding contract module cache", "garbageRatio", ratio, "modules", c.cache.Len())
	c.cache.Purge()
	c.inserted = 0
	c.removed = 0
	c.mu.Unlock()

	start := time.Now()
	c.CompileContracts(host, snap, threads)
	moduleCacheRebuildTimer.UpdateSince(start)
}

// CompileContracts compiles every live contract not yet cached, with a
// bounded worker pool. It returns only after all workers join; callers on
// the apply thread stay synchronous, background callers wrap it in their
// own goroutine.
func (c *ModuleCache) CompileContracts(host vm.Host, snap *state.LiveSnapshot, threads int) {
	if threads < 1 {
		threads = 1
	}
	type job struct {
		hash common.Hash
		code []byte
	}
	jobs := make(chan job, threads)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				m, err := host.CompileModule(j.hash, j.code)
				if err != nil {
					logger.Error("Contract module compilation failed", "codeHash", j.hash, "err", err)
					continue
				}
				c.Add(j.hash, m)
			}
		}()
	}

	snap.Ascend(func(e types.LedgerEntry) bool {
		if e.Type != types.ContractCodeType {
			return true
		}
		if _, ok := c.Get(e.ContractCode.Hash); ok {
			return true
		}
		jobs <- job{hash: e.ContractCode.Hash, code: e.ContractCode.Code}
		return true
	})
	close(jobs)
	wg.Wait()
}
