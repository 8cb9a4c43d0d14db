package core

import (
	"testing"

	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
)

func TestTempExpiryDeletesWithoutArchiving(t *testing.T) {
	env := newTestEnv(t, 12, 24)
	temp := temporaryData(1, "scratch", "v")
	temp.LastModified = 10
	env.putLive(temp, 12)
	env.resetSnapshots(12, 24)

	res := env.close(13)

	if _, ok := env.live.Get(temp.Key()); ok {
		t.Fatalf("expired temporary entry must be deleted")
	}
	if _, ok := env.live.Get(types.TTLKey(temp.Key())); ok {
		t.Fatalf("TTL of expired temporary entry must be deleted")
	}
	if _, ok := env.archive.Load(temp.Key()); ok {
		t.Fatalf("temporary entries are never archived")
	}
	if len(res.Eviction.Evicted) != 0 {
		t.Fatalf("no persistent eviction expected, have %d", len(res.Eviction.Evicted))
	}
	if len(res.Eviction.DeletedKeys) != 2 {
		t.Fatalf("deleted keys: have %d want 2 (entry + TTL)", len(res.Eviction.DeletedKeys))
	}
}

func TestPersistentEvictionMovesToArchive(t *testing.T) {
	env := newTestEnv(t, 25, 24)
	e := persistentData(1, "k", "P")
	e.LastModified = 20
	env.putLive(e, 25)
	env.resetSnapshots(25, 24)

	res := env.close(26)

	got, ok := env.archive.Load(e.Key())
	if !ok {
		t.Fatalf("expired persistent entry must move to the hot archive")
	}
	if !got.Equal(e) {
		t.Fatalf("archived payload differs from the live payload")
	}
	if _, ok := env.live.Get(e.Key()); ok {
		t.Fatalf("evicted entry must leave the live state")
	}
	if _, ok := env.live.Get(types.TTLKey(e.Key())); ok {
		t.Fatalf("evicted entry's TTL must leave the live state")
	}
	if len(res.Eviction.Evicted) != 1 {
		t.Fatalf("evicted: have %d want 1", len(res.Eviction.Evicted))
	}
}

func TestEntryLiveAtClosingLedgerSurvives(t *testing.T) {
	env := newTestEnv(t, 25, 24)
	e := persistentData(1, "k", "P")
	env.putLive(e, 26) // live through the closing ledger
	env.resetSnapshots(25, 24)

	env.close(26)
	if _, ok := env.live.Get(e.Key()); !ok {
		t.Fatalf("entry live at the closing ledger must survive the sweep")
	}

	env.close(27)
	if _, ok := env.live.Get(e.Key()); ok {
		t.Fatalf("entry must be swept once its TTL has passed")
	}
}

func TestEvictionCountIdentity(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	p1 := persistentData(1, "p1", "v")
	p2 := persistentData(1, "p2", "v")
	t1 := temporaryData(2, "t1", "v")
	live := persistentData(3, "alive", "v")
	env.putLive(p1, 99)
	env.putLive(p2, 50)
	env.putLive(t1, 99)
	env.putLive(live, 10000)
	env.resetSnapshots(99, 24)

	res := env.close(100)

	var ttls, temps int
	for _, k := range res.Eviction.DeletedKeys {
		if k.Type == types.TTLType {
			ttls++
		} else if k.IsTemporary() {
			temps++
		} else {
			t.Fatalf("unexpected deleted key type %s", k.Type)
		}
	}
	if temps+len(res.Eviction.Evicted) != ttls {
		t.Fatalf("count identity broken: %d temps + %d archived != %d TTLs",
			temps, len(res.Eviction.Evicted), ttls)
	}
	if len(res.Eviction.Evicted) != 2 || temps != 1 {
		t.Fatalf("sweep mix: have %d archived %d temps", len(res.Eviction.Evicted), temps)
	}
}

func TestEvictionSkipsPersistentBeforeSupportedProtocol(t *testing.T) {
	env := newTestEnv(t, 99, 22)
	p := persistentData(1, "p", "v")
	temp := temporaryData(2, "t", "v")
	env.putLive(p, 50)
	env.putLive(temp, 50)
	env.resetSnapshots(99, 22)

	res := env.close(100)

	if _, ok := env.live.Get(p.Key()); !ok {
		t.Fatalf("expired persistent entry must stay live before the eviction protocol")
	}
	if _, ok := env.live.Get(temp.Key()); ok {
		t.Fatalf("expired temporary entry is deleted at any contract protocol")
	}
	if len(res.Eviction.Evicted) != 0 {
		t.Fatalf("nothing may be archived before the eviction protocol")
	}
}

func TestEvictionDropsCompiledModule(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	code := contractCode(7, "\x00asm")
	env.putLive(code, 50)
	env.resetSnapshots(99, 24)

	env.proc.ModuleCache().Add(code.ContractCode.Hash, "compiled")
	env.close(100)

	if _, ok := env.proc.ModuleCache().Get(code.ContractCode.Hash); ok {
		t.Fatalf("evicting a contract must drop its compiled module")
	}
}

func TestCloseRejectsNonConsecutiveLedger(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	_, err := env.proc.CloseLedger(CloseData{
		Header: types.LedgerHeader{Seq: 105, Protocol: 24},
	})
	if err == nil {
		t.Fatalf("expected error for a gap in ledger sequence")
	}
}

func TestMultiOpTxCommits(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	env.host.invoke = echoingInvoke(vm.InvokeOutput{})

	archived := persistentData(1, "k", "v")
	env.putArchived(archived)
	env.resetSnapshots(99, 24)

	tx := &Transaction{
		Resources: types.Resources{
			Instructions:  1000,
			DiskReadBytes: 10000,
			WriteBytes:    10000,
			Footprint:     types.Footprint{ReadWrite: []types.LedgerKey{archived.Key()}},
		},
		ResourceExt:   types.ResourceExt{ArchivedEntries: []uint32{0}},
		RefundableFee: 10000,
		Ops: []Operation{
			{Type: OpInvokeHostFunction, Invoke: &InvokeHostFunctionOp{HostFunction: []byte("hf")}},
			{Type: OpRestoreFootprint, Restore: &RestoreFootprintOp{}},
		},
	}

	res := env.close(100, tx)
	// Op 0 autorestores; op 1 then sees the key live in the transaction
	// overlay and restores nothing. Both succeed and the tx commits.
	if code := opCode(res, 0, 0); code != ResultSuccess {
		t.Fatalf("op0: have %s want %s", code, ResultSuccess)
	}
	if code := opCode(res, 0, 1); code != ResultSuccess {
		t.Fatalf("op1: have %s want %s", code, ResultSuccess)
	}
	if _, ok := env.live.Get(archived.Key()); !ok {
		t.Fatalf("restored entry must be committed")
	}
}

func TestFailingOpRollsBackWholeTx(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	archived := persistentData(1, "k", "v")
	env.putArchived(archived)
	env.resetSnapshots(99, 24)

	env.host.invoke = echoingInvoke(vm.InvokeOutput{})
	tx := &Transaction{
		Resources: types.Resources{
			Instructions:  1000,
			DiskReadBytes: 10000,
			WriteBytes:    10000,
			Footprint:     types.Footprint{ReadWrite: []types.LedgerKey{archived.Key()}},
		},
		ResourceExt:   types.ResourceExt{ArchivedEntries: []uint32{0}},
		RefundableFee: 10000,
		Ops: []Operation{
			// Autorestore succeeds first...
			{Type: OpInvokeHostFunction, Invoke: &InvokeHostFunctionOp{HostFunction: []byte("hf")}},
			// ...then the extension fails check-valid: its shared footprint
			// has a non-empty read-write set.
			{Type: OpExtendFootprintTTL, Extend: &ExtendFootprintTTLOp{ExtendTo: 100}},
		},
	}

	res := env.close(100, tx)
	if code := opCode(res, 0, 0); code != ResultSuccess {
		t.Fatalf("op0: have %s want %s", code, ResultSuccess)
	}
	if code := opCode(res, 0, 1); code != ResultMalformed {
		t.Fatalf("op1: have %s want %s", code, ResultMalformed)
	}
	if _, ok := env.live.Get(archived.Key()); ok {
		t.Fatalf("failed transaction must roll back the earlier restore")
	}
	if _, ok := env.archive.Load(archived.Key()); !ok {
		t.Fatalf("rolled back restore must leave the archive untouched")
	}
}

func TestStartupCheckDetectsSharedKey(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	e := persistentData(1, "k", "v")
	env.putLive(e, 10000)
	env.putArchived(e)
	env.resetSnapshots(99, 24)

	if err := env.proc.StartupCheck(); err == nil {
		t.Fatalf("startup scan must fail on a key present in both stores")
	}
}

func TestStartupCheckPassesOnDisjointStores(t *testing.T) {
	env := newTestEnv(t, 99, 24)
	env.putLive(persistentData(1, "live", "v"), 10000)
	env.putArchived(persistentData(2, "archived", "v"))
	env.resetSnapshots(99, 24)

	if err := env.proc.StartupCheck(); err != nil {
		t.Fatalf("startup scan failed on disjoint stores: %v", err)
	}
}
