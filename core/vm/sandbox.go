// Package vm defines the boundary to the sealed contract sandbox. The
// sandbox executes guest code under its own CPU and memory budget; this
// package only shapes what crosses the boundary. Implementations must be
// deterministic for identical inputs.
package vm

import (
	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/params"
)

// LedgerInfo is the slice of ledger and network state handed to the sandbox
// on every invocation.
type LedgerInfo struct {
	Protocol    uint32
	Sequence    uint32
	Timestamp   uint64
	BaseReserve uint32
	NetworkID   common.Hash

	MemoryLimit      uint64
	MinPersistentTTL uint32
	MinTemporaryTTL  uint32
	MaxEntryTTL      uint32

	CPUCostParams []byte
	MemCostParams []byte
}

// InvokeArgs is everything the sandbox needs for one host function
// invocation. Entry and TTL buffers are canonical encodings, index-aligned:
// TTLs[i] belongs to Entries[i] and is empty for classic entries.
type InvokeArgs struct {
	Protocol          uint32
	EnableDiagnostics bool
	Instructions      uint64
	HostFunction      []byte
	Resources         types.Resources
	ResourceExt       types.ResourceExt
	Source            common.AccountID
	Auth              [][]byte
	Info              LedgerInfo
	Entries           [][]byte
	TTLs              [][]byte
	BasePRNGSeed      common.Hash
	RentConfig        params.RentFeeConfig
}

// InvokeOutput is the sandbox's verdict on one invocation.
//
// ModifiedEntries carries every entry of the read-write footprint the guest
// kept alive, canonical encoded; entries absent from it are to be deleted by
// the caller. ContractEvents and DiagnosticEvents are encoded events;
// ResultValue is the encoded return value.
type InvokeOutput struct {
	Success         bool
	IsInternalError bool

	CPUInstructions uint64
	MemBytes        uint64
	TimeNsecs       uint64
	TimeNsecsExclVM uint64

	ModifiedEntries  [][]byte
	ContractEvents   [][]byte
	DiagnosticEvents [][]byte
	ResultValue      []byte
	RentFee          int64
}

// Module is an opaque compiled contract module owned by the module cache.
type Module interface{}

// ModuleCache is the read side of the compiled module cache handed into the
// sandbox. The cache itself lives on the apply thread; the sandbox never
// mutates it.
type ModuleCache interface {
	Get(codeHash common.Hash) (Module, bool)
}

// Host is the sealed contract sandbox plus its fee companions.
type Host interface {
	// InvokeHostFunction runs one host function invocation to completion.
	// It never mutates ledger state; all effects are reported through the
	// output.
	InvokeHostFunction(args InvokeArgs, cache ModuleCache) InvokeOutput

	// CompileModule compiles contract code into a cacheable module.
	CompileModule(codeHash common.Hash, code []byte) (Module, error)

	// ComputeRentFee prices a set of rent changes at the given ledger.
	ComputeRentFee(protocol, ledgerVersion uint32, changes []types.RentChange, cfg params.RentFeeConfig, seq uint32) int64

	// ContractCodeMemorySizeForRent reports the in-memory size a compiled
	// contract is charged rent for, as opposed to its raw byte size.
	ContractCodeMemorySizeForRent(protocol, ledgerVersion uint32, code []byte, cpuCostParams, memCostParams []byte) uint32
}
