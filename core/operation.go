package core

import (
	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
	"github.com/Bloxxix/stellar-core/params"
)

// OpType tags the operation variants the apply engine executes.
type OpType uint8

const (
	OpInvokeHostFunction OpType = iota
	OpRestoreFootprint
	OpExtendFootprintTTL
	OpPayment
)

// String implements the fmt.Stringer interface.
func (t OpType) String() string {
	switch t {
	case OpInvokeHostFunction:
		return "invoke-host-function"
	case OpRestoreFootprint:
		return "restore-footprint"
	case OpExtendFootprintTTL:
		return "extend-footprint-ttl"
	case OpPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// InvokeHostFunctionOp invokes guest code in the sandbox against the
// transaction's declared footprint.
type InvokeHostFunctionOp struct {
	HostFunction []byte
	Auth         [][]byte
}

// RestoreFootprintOp pulls the read-write footprint back into the live
// state. It carries no payload of its own.
type RestoreFootprintOp struct{}

// ExtendFootprintTTLOp bumps the TTL of every live read-only footprint key
// so that it stays live for ExtendTo ledgers counting the closing one
// (live_until = seq + ExtendTo - 1).
type ExtendFootprintTTLOp struct {
	ExtendTo uint32
}

// Operation is the tagged union over the contract operation variants.
type Operation struct {
	Type OpType

	Invoke  *InvokeHostFunctionOp
	Restore *RestoreFootprintOp
	Extend  *ExtendFootprintTTLOp
	Payment *PaymentOp
}

// Transaction groups operations with their shared declared resources and
// refundable fee.
type Transaction struct {
	Source        common.AccountID
	Resources     types.Resources
	ResourceExt   types.ResourceExt
	RefundableFee int64
	Ops           []Operation
}

// ThresholdLevel is the signature weight class an operation demands.
type ThresholdLevel uint8

const (
	ThresholdLow ThresholdLevel = iota
	ThresholdMedium
	ThresholdHigh
)

// OpMeta collects the per-operation results surfaced to the transaction
// meta: the emitted events and the return value.
type OpMeta struct {
	Events      []ContractEvent
	ReturnValue []byte
	SuccessHash common.Hash
	Diagnostics *DiagnosticEventManager
}

// applyContext is the environment one operation applies in. It is built by
// the close processor per operation.
type applyContext struct {
	chainCfg *params.ChainConfig
	netCfg   *params.NetworkConfig
	header   types.LedgerHeader

	overlay    *state.Overlay
	host       vm.Host
	modules    *ModuleCache
	refundable *RefundableFeeTracker
	prngSeed   common.Hash

	tx   *Transaction
	meta *OpMeta
}

func (ctx *applyContext) diag() *DiagnosticEventManager { return ctx.meta.Diagnostics }

// applier is the behaviour shared by all operation variants.
type applier interface {
	// checkValid validates the operation shape before apply. A non-success
	// code fails the operation without touching state.
	checkValid(ctx *applyContext) ResultCode

	// apply runs the operation against the overlay. State effects of a
	// non-success result are discarded by the caller via overlay abort.
	apply(ctx *applyContext) ResultCode

	thresholdLevel() ThresholdLevel
	isSoroban() bool
}

// applierFor dispatches an operation to its applier.
func applierFor(op *Operation, tx *Transaction) applier {
	switch op.Type {
	case OpInvokeHostFunction:
		return &invokeApplier{op: op.Invoke}
	case OpRestoreFootprint:
		return &restoreApplier{}
	case OpExtendFootprintTTL:
		return &extendApplier{op: op.Extend}
	case OpPayment:
		return &paymentApplier{op: op.Payment}
	default:
		panic("core: operation with unknown type")
	}
}

// isOpSupported gates operation variants on the protocol version.
func isOpSupported(op *Operation, protocol uint32) bool {
	switch op.Type {
	case OpInvokeHostFunction, OpRestoreFootprint, OpExtendFootprintTTL:
		return params.IsContractProtocol(protocol)
	case OpPayment:
		return true
	default:
		return false
	}
}
