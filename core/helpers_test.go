package core

import (
	"testing"

	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
	"github.com/Bloxxix/stellar-core/invariant"
	"github.com/Bloxxix/stellar-core/params"
)

// stubHost is a deterministic sandbox stand-in. invoke defaults to a
// trivially successful invocation; rent is priced per change.
type stubHost struct {
	invoke           func(args vm.InvokeArgs) vm.InvokeOutput
	rentFeePerChange int64
	memSizeForRent   uint32
}

func (h *stubHost) InvokeHostFunction(args vm.InvokeArgs, cache vm.ModuleCache) vm.InvokeOutput {
	if h.invoke == nil {
		return vm.InvokeOutput{Success: true}
	}
	return h.invoke(args)
}

func (h *stubHost) CompileModule(codeHash common.Hash, code []byte) (vm.Module, error) {
	return codeHash, nil
}

func (h *stubHost) ComputeRentFee(protocol, ledgerVersion uint32, changes []types.RentChange, cfg params.RentFeeConfig, seq uint32) int64 {
	return int64(len(changes)) * h.rentFeePerChange
}

func (h *stubHost) ContractCodeMemorySizeForRent(protocol, ledgerVersion uint32, code []byte, cpu, mem []byte) uint32 {
	if h.memSizeForRent != 0 {
		return h.memSizeForRent
	}
	return uint32(len(code))
}

// echoingInvoke returns a sandbox function that reports success and passes
// every fed entry (and non-empty TTL buffer) back as modified, the way a
// guest that touches nothing does.
func echoingInvoke(out vm.InvokeOutput) func(args vm.InvokeArgs) vm.InvokeOutput {
	return func(args vm.InvokeArgs) vm.InvokeOutput {
		out.Success = true
		out.ModifiedEntries = append([][]byte{}, args.Entries...)
		for _, ttlBuf := range args.TTLs {
			if len(ttlBuf) > 0 {
				out.ModifiedEntries = append(out.ModifiedEntries, ttlBuf)
			}
		}
		return out
	}
}

type testEnv struct {
	t        *testing.T
	chainCfg *params.ChainConfig
	netCfg   *params.NetworkConfig
	host     *stubHost
	live     *state.LiveStore
	archive  *state.HotArchive
	mgr      *invariant.Manager
	proc     *Processor
}

// newTestEnv builds a processor whose last closed ledger is lastSeq at the
// given protocol, with the archival consistency invariant enabled.
func newTestEnv(t *testing.T, lastSeq, protocol uint32) *testEnv {
	t.Helper()
	chainCfg := &params.ChainConfig{
		NetworkPassphrase:      "standalone test network",
		CurrentProtocolVersion: protocol,
		EnableDiagnosticEvents: true,
	}
	env := &testEnv{
		t:        t,
		chainCfg: chainCfg,
		netCfg:   params.DefaultNetworkConfig(),
		host:     &stubHost{},
		live:     state.NewLiveStore(),
		archive:  state.NewHotArchive(),
		mgr:      invariant.NewManager(),
	}
	if _, err := invariant.RegisterArchivedStateConsistency(env.mgr); err != nil {
		t.Fatalf("register invariant: %v", err)
	}
	if err := env.mgr.Enable("ArchivedStateConsistency"); err != nil {
		t.Fatalf("enable invariant: %v", err)
	}
	env.proc = NewProcessor(chainCfg, env.netCfg, env.host, env.live, env.archive, env.mgr,
		types.LedgerHeader{Seq: lastSeq, Protocol: protocol})
	return env
}

// resetSnapshots refreshes the processor's last closed snapshots after the
// test mutated the stores directly.
func (env *testEnv) resetSnapshots(lastSeq, protocol uint32) {
	env.proc.lastLive = env.live.Snapshot(types.LedgerHeader{Seq: lastSeq, Protocol: protocol})
	env.proc.lastArchive = env.archive.Snapshot()
}

func (env *testEnv) close(seq uint32, txs ...*Transaction) *CloseResult {
	env.t.Helper()
	res, err := env.proc.CloseLedger(CloseData{
		Header: types.LedgerHeader{Seq: seq, Protocol: env.chainCfg.CurrentProtocolVersion},
		Txs:    txs,
	})
	if err != nil {
		env.t.Fatalf("close ledger %d: %v", seq, err)
	}
	return res
}

func testHash(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func persistentData(contract byte, key, val string) types.LedgerEntry {
	return types.LedgerEntry{
		Type: types.ContractDataType,
		ContractData: &types.ContractDataEntry{
			Contract:   testHash(contract),
			Key:        []byte(key),
			Durability: types.Persistent,
			Val:        []byte(val),
		},
	}
}

func temporaryData(contract byte, key, val string) types.LedgerEntry {
	e := persistentData(contract, key, val)
	e.ContractData.Durability = types.Temporary
	return e
}

func contractCode(hash byte, code string) types.LedgerEntry {
	return types.LedgerEntry{
		Type:         types.ContractCodeType,
		ContractCode: &types.ContractCodeEntry{Hash: testHash(hash), Code: []byte(code)},
	}
}

// putLive inserts an entry and its TTL directly into the live store.
func (env *testEnv) putLive(e types.LedgerEntry, liveUntil uint32) {
	env.live.Put(e)
	env.live.Put(types.NewTTLEntry(types.TTLKey(e.Key()), liveUntil))
}

// putArchived inserts an entry directly into the hot archive.
func (env *testEnv) putArchived(e types.LedgerEntry) {
	if err := env.archive.InsertOnEvict(e); err != nil {
		env.t.Fatalf("archive insert: %v", err)
	}
}

// invokeTx builds a single-operation invoke transaction.
func invokeTx(resources types.Resources, ext types.ResourceExt, refundableFee int64) *Transaction {
	return &Transaction{
		Resources:     resources,
		ResourceExt:   ext,
		RefundableFee: refundableFee,
		Ops: []Operation{{
			Type:   OpInvokeHostFunction,
			Invoke: &InvokeHostFunctionOp{HostFunction: []byte("hf")},
		}},
	}
}

// restoreTx builds a single-operation restore transaction.
func restoreTx(readWrite []types.LedgerKey, diskRead, write uint32, refundableFee int64) *Transaction {
	return &Transaction{
		Resources: types.Resources{
			DiskReadBytes: diskRead,
			WriteBytes:    write,
			Footprint:     types.Footprint{ReadWrite: readWrite},
		},
		RefundableFee: refundableFee,
		Ops:           []Operation{{Type: OpRestoreFootprint, Restore: &RestoreFootprintOp{}}},
	}
}

func opCode(res *CloseResult, tx, op int) ResultCode {
	return res.TxResults[tx].Ops[op].Code
}

func testNetConfig() *params.NetworkConfig {
	return params.DefaultNetworkConfig()
}

// rentRecordingHost captures the rent changes handed to ComputeRentFee.
type rentRecordingHost struct {
	*stubHost
	out *[]types.RentChange
}

func (h rentRecordingHost) ComputeRentFee(protocol, ledgerVersion uint32, changes []types.RentChange, cfg params.RentFeeConfig, seq uint32) int64 {
	*h.out = append(*h.out, changes...)
	return h.stubHost.ComputeRentFee(protocol, ledgerVersion, changes, cfg, seq)
}
