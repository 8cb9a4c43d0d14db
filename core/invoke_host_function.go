package core

import (
	mapset "github.com/deckarep/golang-set"
	"golang.org/x/crypto/sha3"

	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
	"github.com/Bloxxix/stellar-core/params"
)

// ledgerInfo assembles the sandbox's view of the closing ledger.
func ledgerInfo(ctx *applyContext) vm.LedgerInfo {
	return vm.LedgerInfo{
		Protocol:         ctx.header.Protocol,
		Sequence:         ctx.header.Seq,
		Timestamp:        ctx.header.CloseTime,
		BaseReserve:      ctx.header.BaseReserve,
		NetworkID:        ctx.chainCfg.NetworkID(),
		MemoryLimit:      ctx.netCfg.TxMemoryLimit,
		MinPersistentTTL: ctx.netCfg.MinPersistentTTL,
		MinTemporaryTTL:  ctx.netCfg.MinTemporaryTTL,
		MaxEntryTTL:      ctx.netCfg.MaxEntryTTL,
		CPUCostParams:    ctx.netCfg.CPUCostParams,
		MemCostParams:    ctx.netCfg.MemCostParams,
	}
}

type invokeApplier struct {
	op *InvokeHostFunctionOp
}

func (a *invokeApplier) thresholdLevel() ThresholdLevel { return ThresholdMedium }
func (a *invokeApplier) isSoroban() bool                { return true }

func (a *invokeApplier) checkValid(ctx *applyContext) ResultCode {
	rw := ctx.tx.Resources.Footprint.ReadWrite
	for _, idx := range ctx.tx.ResourceExt.ArchivedEntries {
		if int(idx) >= len(rw) {
			ctx.diag().PushError("archived entry index outside read-write footprint",
				U64Val(uint64(idx)), U64Val(uint64(len(rw))))
			return ResultMalformed
		}
	}
	return ResultSuccess
}

func (a *invokeApplier) apply(ctx *applyContext) ResultCode {
	h := &invokeHelper{
		ctx:   ctx,
		op:    a.op,
		meter: newHostFnMeter(ctx.tx.Resources.Instructions),
	}
	defer h.meter.finish()
	return h.apply()
}

// invokeHelper carries the per-invocation state: the sandbox buffers under
// assembly, the meter and the autorestore bitmap over the read-write
// footprint.
type invokeHelper struct {
	ctx   *applyContext
	op    *InvokeHostFunctionOp
	meter *hostFnMeter

	entryBufs [][]byte
	ttlBufs   [][]byte

	// autorestored[i] marks readWrite[i] as opted into autorestore. Empty
	// means no entries are marked.
	autorestored []bool

	restoredLiveUntil uint32
}

// markedForAutorestore reports whether read-write index i opted into
// autorestore.
func (h *invokeHelper) markedForAutorestore(i uint32) bool {
	if len(h.autorestored) == 0 {
		return false
	}
	return h.autorestored[i]
}

// meterDiskRead accounts a disk read and enforces the declared byte-read
// budget.
func (h *invokeHelper) meterDiskRead(k types.LedgerKey, keySize, entrySize uint32) ResultCode {
	h.meter.noteDiskReadEntry(k.Type == types.ContractCodeType, keySize, entrySize)
	if h.ctx.tx.Resources.DiskReadBytes < h.meter.ledgerReadByte {
		h.ctx.diag().PushError("operation byte-read resources exceeds amount specified",
			U64Val(uint64(h.meter.ledgerReadByte)), U64Val(uint64(h.ctx.tx.Resources.DiskReadBytes)))
		return ResultResourceLimitExceeded
	}
	return ResultSuccess
}

// handleArchivedEntry runs on every archived persistent key in the
// footprint. Keys eligible for autorestore are restored and fed to the
// sandbox as if live; everything else fails the operation.
func (h *invokeHelper) handleArchivedEntry(k types.LedgerKey, le types.LedgerEntry, isReadOnly, fromHotArchive bool, index uint32) ResultCode {
	ctx := h.ctx
	if !isReadOnly &&
		params.SupportsPersistentEviction(ctx.header.Protocol) &&
		h.markedForAutorestore(index) {
		buf := le.Encode()
		entrySize := uint32(len(buf))
		keySize := k.Size()

		if !validateContractLedgerEntry(k, entrySize, ctx.netCfg, ctx.diag()) {
			return ResultResourceLimitExceeded
		}
		// TTL writes come out of the refundable fee, so only the code/data
		// entry is metered here.
		if code := h.meterDiskRead(k, keySize, entrySize); code != ResultSuccess {
			return code
		}

		var err error
		if fromHotArchive {
			err = ctx.overlay.RestoreFromHotArchive(le, h.restoredLiveUntil)
		} else {
			err = ctx.overlay.RestoreFromLive(le, h.restoredLiveUntil)
		}
		if err != nil {
			panic("core: autorestore failed: " + err.Error())
		}

		ttlEntry := types.NewTTLEntry(types.TTLKey(k), h.restoredLiveUntil)
		h.entryBufs = append(h.entryBufs, buf)
		h.ttlBufs = append(h.ttlBufs, ttlEntry.Encode())
		return ResultSuccess
	}

	switch k.Type {
	case types.ContractCodeType:
		ctx.diag().PushError("trying to access an archived contract code entry",
			BytesVal(k.ContractCode.Hash.Bytes()))
	case types.ContractDataType:
		ctx.diag().PushError("trying to access an archived contract data entry",
			BytesVal(k.ContractData.Contract.Bytes()), BytesVal(k.ContractData.Key))
	}
	return ResultEntryArchived
}

// addReads checks and meters the given footprint keys, filling the sandbox
// buffers in declared order.
func (h *invokeHelper) addReads(keys []types.LedgerKey, isReadOnly bool) ResultCode {
	ctx := h.ctx
	seq := ctx.header.Seq
	protocol := ctx.header.Protocol

	for i, k := range keys {
		keySize := k.Size()
		var entrySize uint32
		var ttlBuf []byte
		contractEntryLive := false

		if k.IsContract() {
			ttlKey := types.TTLKey(k)
			ttlEntry, haveTTL := ctx.overlay.LoadWithoutRecord(ttlKey)
			if haveTTL {
				if !types.IsLive(ttlEntry, seq) {
					// Temporary entries past their TTL read as absent.
					if !k.IsTemporary() {
						le, ok := ctx.overlay.LoadWithoutRecord(k)
						if !ok {
							panic("core: TTL entry present without its data entry")
						}
						if code := h.handleArchivedEntry(k, le, isReadOnly, false, uint32(i)); code != ResultSuccess {
							return code
						}
						continue
					}
				} else {
					contractEntryLive = true
					ttlBuf = ttlEntry.Encode()
				}
			} else if k.IsPersistent() && params.SupportsPersistentEviction(protocol) {
				// A key missing its TTL may be archived rather than new.
				if archived, ok := ctx.overlay.ArchiveLoad(k); ok {
					if code := h.handleArchivedEntry(k, archived, isReadOnly, true, uint32(i)); code != ResultSuccess {
						return code
					}
					continue
				}
			}
		}

		if !k.IsContract() || contractEntryLive {
			if le, ok := ctx.overlay.LoadWithoutRecord(k); ok {
				buf := le.Encode()
				entrySize = uint32(len(buf))
				h.entryBufs = append(h.entryBufs, buf)
				// Classic entries carry an empty TTL buffer.
				h.ttlBufs = append(h.ttlBufs, ttlBuf)
			} else if k.IsContract() {
				panic("core: live TTL entry without its data entry")
			}
		}

		if !validateContractLedgerEntry(k, entrySize, ctx.netCfg, ctx.diag()) {
			return ResultResourceLimitExceeded
		}

		// Contract entries live in the in-memory tier from the persistent
		// eviction protocol on: they count as read entries but not as disk
		// reads. Earlier protocols meter every read.
		if !k.IsContract() || !params.SupportsPersistentEviction(protocol) {
			if code := h.meterDiskRead(k, keySize, entrySize); code != ResultSuccess {
				return code
			}
		} else {
			h.meter.readEntry++
		}
	}
	return ResultSuccess
}

// populateDiagnostics forwards the sandbox's diagnostic events and appends
// the per-counter metrics topics.
func (h *invokeHelper) populateDiagnostics(out vm.InvokeOutput) {
	if !h.ctx.diag().Enabled() {
		return
	}
	for _, buf := range out.DiagnosticEvents {
		ev, err := DecodeEvent(buf)
		if err != nil {
			panic("core: sandbox returned undecodable diagnostic event")
		}
		h.ctx.diag().PushEvent(DiagnosticEvent{InSuccessfulCall: out.Success, Event: ev})
	}
	h.meter.pushMetricsEvents(h.ctx.diag())
}

func (h *invokeHelper) apply() ResultCode {
	ctx := h.ctx
	resources := &ctx.tx.Resources
	footprint := &resources.Footprint

	h.restoredLiveUntil = ctx.header.Seq + ctx.netCfg.MinPersistentTTL - 1

	// Initialize the autorestore bitmap over the read-write footprint.
	if archived := ctx.tx.ResourceExt.ArchivedEntries; len(archived) > 0 {
		h.autorestored = make([]bool, len(footprint.ReadWrite))
		for _, idx := range archived {
			h.autorestored[idx] = true
		}
	}

	if code := h.addReads(footprint.ReadOnly, true); code != ResultSuccess {
		return code
	}
	if code := h.addReads(footprint.ReadWrite, false); code != ResultSuccess {
		return code
	}

	out := ctx.host.InvokeHostFunction(vm.InvokeArgs{
		Protocol:          ctx.chainCfg.CurrentProtocolVersion,
		EnableDiagnostics: ctx.chainCfg.EnableDiagnosticEvents,
		Instructions:      resources.Instructions,
		HostFunction:      h.op.HostFunction,
		Resources:         *resources,
		ResourceExt:       ctx.tx.ResourceExt,
		Source:            ctx.tx.Source,
		Auth:              h.op.Auth,
		Info:              ledgerInfo(ctx),
		Entries:           h.entryBufs,
		TTLs:              h.ttlBufs,
		BasePRNGSeed:      ctx.prngSeed,
		RentConfig:        ctx.netCfg.RentFeeConfig,
	}, ctx.modules)

	h.meter.cpuInsn = out.CPUInstructions
	h.meter.memByte = out.MemBytes
	h.meter.invokeTimeNsecs = out.TimeNsecs
	h.meter.timeNsecsExclVM = out.TimeNsecsExclVM

	if !out.Success {
		h.populateDiagnostics(out)
		if out.IsInternalError {
			// Sandbox invocations never fail internally on valid state;
			// this is an implementation bug, not an operation result.
			panic(ErrInternalSandbox)
		}
		if resources.Instructions < out.CPUInstructions {
			ctx.diag().PushError("operation instructions exceeds amount specified",
				U64Val(out.CPUInstructions), U64Val(resources.Instructions))
			return ResultResourceLimitExceeded
		}
		if ctx.netCfg.TxMemoryLimit < out.MemBytes {
			ctx.diag().PushError("operation memory usage exceeds network config limit",
				U64Val(out.MemBytes), U64Val(ctx.netCfg.TxMemoryLimit))
			return ResultResourceLimitExceeded
		}
		return ResultTrapped
	}

	// Create or update every entry returned.
	createdAndModified := mapset.NewThreadUnsafeSet()
	created := mapset.NewThreadUnsafeSet()
	for _, buf := range out.ModifiedEntries {
		le, err := types.DecodeEntry(buf)
		if err != nil {
			panic("core: sandbox returned undecodable ledger entry")
		}
		lk := le.Key()
		if !validateContractLedgerEntry(lk, uint32(len(buf)), ctx.netCfg, ctx.diag()) {
			return ResultResourceLimitExceeded
		}
		createdAndModified.Add(lk.Ordered())

		// TTL entry write fees come out of the refundable fee, already
		// accounted for by the sandbox.
		if lk.Type != types.TTLType {
			h.meter.noteWriteEntry(lk.Type == types.ContractCodeType, lk.Size(), uint32(len(buf)))
			if resources.WriteBytes < h.meter.ledgerWriteByte {
				ctx.diag().PushError("operation byte-write resources exceeds amount specified",
					U64Val(uint64(h.meter.ledgerWriteByte)), U64Val(uint64(resources.WriteBytes)))
				return ResultResourceLimitExceeded
			}
		}

		if _, ok := ctx.overlay.LoadWithoutRecord(lk); ok {
			ctx.overlay.Update(le)
		} else {
			if err := ctx.overlay.Create(le); err != nil {
				panic("core: create of absent key failed: " + err.Error())
			}
			created.Add(lk.Ordered())
		}
	}

	// Every created contract entry must come with a created TTL entry.
	for _, item := range created.ToSlice() {
		key := item.(string)
		lk, err := types.DecodeKey([]byte(key))
		if err != nil {
			panic("core: undecodable created key")
		}
		if lk.IsContract() {
			if !created.Contains(types.TTLKey(lk).Ordered()) {
				panic("core: created contract entry without a created TTL entry")
			}
		} else if lk.Type != types.TTLType {
			panic("core: sandbox created non-contract entry")
		}
	}

	// Erase every read-write key not returned. Untouched entries are passed
	// through by the sandbox, so this only removes entries the guest
	// deleted explicitly.
	for _, lk := range footprint.ReadWrite {
		if createdAndModified.Contains(lk.Ordered()) {
			continue
		}
		if _, ok := ctx.overlay.LoadWithoutRecord(lk); !ok {
			continue
		}
		if !lk.IsContract() {
			panic("core: erase of non-contract read-write key")
		}
		if err := ctx.overlay.Erase(lk); err != nil {
			panic("core: erase failed: " + err.Error())
		}
		ttlKey := types.TTLKey(lk)
		if _, ok := ctx.overlay.LoadWithoutRecord(ttlKey); !ok {
			panic("core: erased contract entry has no TTL entry")
		}
		if err := ctx.overlay.Erase(ttlKey); err != nil {
			panic("core: TTL erase failed: " + err.Error())
		}
	}

	// Deserialize and size-check the emitted events.
	events := make([]ContractEvent, 0, len(out.ContractEvents))
	for _, buf := range out.ContractEvents {
		h.meter.noteEmitEvent(uint32(len(buf)))
		if ctx.netCfg.TxMaxContractEventsSizeBytes < h.meter.emitEventByte {
			ctx.diag().PushError("total events size exceeds network config maximum",
				U64Val(uint64(h.meter.emitEventByte)), U64Val(uint64(ctx.netCfg.TxMaxContractEventsSizeBytes)))
			return ResultResourceLimitExceeded
		}
		ev, err := DecodeEvent(buf)
		if err != nil {
			panic("core: sandbox returned undecodable contract event")
		}
		events = append(events, ev)
	}

	h.populateDiagnostics(out)

	// The return value counts against the same event size budget.
	h.meter.emitEventByte += uint32(len(out.ResultValue))
	if ctx.netCfg.TxMaxContractEventsSizeBytes < h.meter.emitEventByte {
		ctx.diag().PushError("return value pushes events size above network config maximum",
			U64Val(uint64(h.meter.emitEventByte)), U64Val(uint64(ctx.netCfg.TxMaxContractEventsSizeBytes)))
		return ResultResourceLimitExceeded
	}

	if !ctx.refundable.Consume(h.meter.emitEventByte, out.RentFee, ctx.netCfg, ctx.diag()) {
		return ResultInsufficientRefundableFee
	}
	h.meter.rentFee = out.RentFee

	ctx.meta.Events = events
	ctx.meta.ReturnValue = common.CopyBytes(out.ResultValue)
	ctx.meta.SuccessHash = successPreImageHash(events, out.ResultValue)
	h.meter.success = true
	return ResultSuccess
}

// successPreImageHash hashes the success pre-image: the emitted events
// followed by the return value.
func successPreImageHash(events []ContractEvent, resultValue []byte) common.Hash {
	w := sha3.NewLegacyKeccak256()
	for _, ev := range events {
		w.Write(EncodeEvent(ev))
	}
	w.Write(resultValue)
	var h common.Hash
	w.Sum(h[:0])
	return h
}
