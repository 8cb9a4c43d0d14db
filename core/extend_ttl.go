package core

import (
	"github.com/Bloxxix/stellar-core/core/types"
)

type extendApplier struct {
	op *ExtendFootprintTTLOp
}

func (a *extendApplier) thresholdLevel() ThresholdLevel { return ThresholdLow }
func (a *extendApplier) isSoroban() bool                { return true }

func (a *extendApplier) checkValid(ctx *applyContext) ResultCode {
	footprint := &ctx.tx.Resources.Footprint
	if len(footprint.ReadWrite) != 0 {
		ctx.diag().PushError("read-write footprint must be empty for TTL extension")
		return ResultMalformed
	}
	for _, lk := range footprint.ReadOnly {
		if !lk.IsContract() {
			ctx.diag().PushError("only contract entries can have their TTL extended")
			return ResultMalformed
		}
	}
	if a.op.ExtendTo > ctx.netCfg.MaxEntryTTL {
		ctx.diag().PushError("TTL extension exceeds network config maximum entry TTL",
			U64Val(uint64(a.op.ExtendTo)), U64Val(uint64(ctx.netCfg.MaxEntryTTL)))
		return ResultMalformed
	}
	return ResultSuccess
}

func (a *extendApplier) apply(ctx *applyContext) ResultCode {
	resources := &ctx.tx.Resources
	seq := ctx.header.Seq

	// The extension includes the current ledger.
	newLiveUntil := seq + a.op.ExtendTo - 1
	if a.op.ExtendTo == 0 {
		newLiveUntil = seq
	}

	var readByte uint32
	rentChanges := make([]types.RentChange, 0, len(resources.Footprint.ReadOnly))
	for _, lk := range resources.Footprint.ReadOnly {
		ttlKey := types.TTLKey(lk)
		ttlEntry, ok := ctx.overlay.LoadWithoutRecord(ttlKey)
		if !ok {
			// Entry doesn't exist, skip.
			continue
		}
		if !types.IsLive(ttlEntry, seq) {
			// Expired entries cannot be bumped; they need a restore first.
			continue
		}
		if ttlEntry.TTL.LiveUntil >= newLiveUntil {
			// Already lives long enough.
			continue
		}

		entry, ok := ctx.overlay.LoadWithoutRecord(lk)
		if !ok {
			panic("core: TTL entry present without its data entry")
		}
		entrySize := entry.Size()
		readByte += entrySize
		if resources.DiskReadBytes < readByte {
			ctx.diag().PushError("operation byte-read resources exceeds amount specified",
				U64Val(uint64(readByte)), U64Val(uint64(resources.DiskReadBytes)))
			return ResultResourceLimitExceeded
		}

		rentChanges = append(rentChanges, types.RentChange{
			IsPersistent: lk.IsPersistent(),
			IsCodeEntry:  lk.Type == types.ContractCodeType,
			OldSize:      entrySize,
			NewSize:      entrySize,
			OldLiveUntil: ttlEntry.TTL.LiveUntil,
			NewLiveUntil: newLiveUntil,
		})

		bumped := ttlEntry.Copy()
		bumped.TTL.LiveUntil = newLiveUntil
		ctx.overlay.Update(bumped)
	}

	rentFee := ctx.host.ComputeRentFee(ctx.chainCfg.CurrentProtocolVersion,
		ctx.header.Protocol, rentChanges, ctx.netCfg.RentFeeConfig, seq)
	if !ctx.refundable.Consume(0, rentFee, ctx.netCfg, ctx.diag()) {
		return ResultInsufficientRefundableFee
	}
	return ResultSuccess
}
