package core

import (
	"testing"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
)

func TestModuleCacheCompilesLiveContracts(t *testing.T) {
	live := state.NewLiveStore()
	for i := byte(1); i <= 3; i++ {
		code := contractCode(i, "wasm")
		live.Put(code)
		live.Put(types.NewTTLEntry(types.TTLKey(code.Key()), 10000))
	}
	snap := live.Snapshot(types.LedgerHeader{Seq: 1, Protocol: 24})

	cache := NewModuleCache(16)
	cache.CompileContracts(&stubHost{}, snap, 2)
	if cache.Len() != 3 {
		t.Fatalf("modules: have %d want 3", cache.Len())
	}
	for i := byte(1); i <= 3; i++ {
		if _, ok := cache.Get(testHash(i)); !ok {
			t.Fatalf("module %d missing", i)
		}
	}
}

func TestModuleCacheRebuildOnChurn(t *testing.T) {
	live := state.NewLiveStore()
	kept := contractCode(1, "wasm")
	live.Put(kept)
	live.Put(types.NewTTLEntry(types.TTLKey(kept.Key()), 10000))
	snap := live.Snapshot(types.LedgerHeader{Seq: 1, Protocol: 24})

	cache := NewModuleCache(16)
	// Churn: insert and remove until past the rebuild threshold.
	for i := byte(10); i < 14; i++ {
		cache.Add(testHash(i), "m")
		cache.EvictContract(testHash(i))
	}
	cache.Add(testHash(1), "stale")

	cache.MaybeRebuild(&stubHost{}, snap, 2)
	if cache.Len() != 1 {
		t.Fatalf("rebuilt cache: have %d modules want 1", cache.Len())
	}
	if _, ok := cache.Get(testHash(1)); !ok {
		t.Fatalf("live contract missing after rebuild")
	}
}
