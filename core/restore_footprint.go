package core

import (
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/params"
)

type restoreApplier struct{}

func (a *restoreApplier) thresholdLevel() ThresholdLevel { return ThresholdLow }
func (a *restoreApplier) isSoroban() bool                { return true }

func (a *restoreApplier) checkValid(ctx *applyContext) ResultCode {
	footprint := &ctx.tx.Resources.Footprint
	if len(footprint.ReadOnly) != 0 {
		ctx.diag().PushError("read-only footprint must be empty for restore operation")
		return ResultMalformed
	}
	for _, lk := range footprint.ReadWrite {
		if !lk.IsPersistent() {
			ctx.diag().PushError("only persistent contract entries can be restored")
			return ResultMalformed
		}
	}
	return ResultSuccess
}

func (a *restoreApplier) apply(ctx *applyContext) ResultCode {
	resources := &ctx.tx.Resources
	seq := ctx.header.Seq
	protocol := ctx.header.Protocol

	// Extend the TTL on the restored entry to the minimum TTL, including
	// the current ledger.
	restoredLiveUntil := seq + ctx.netCfg.MinPersistentTTL - 1

	var readByte, writeByte uint32
	defer func() {
		restoreFpReadByteMeter.Mark(int64(readByte))
		restoreFpWriteByteMeter.Mark(int64(writeByte))
	}()

	rentChanges := make([]types.RentChange, 0, len(resources.Footprint.ReadWrite))
	for _, lk := range resources.Footprint.ReadWrite {
		ttlKey := types.TTLKey(lk)
		var entry types.LedgerEntry
		var fromArchive bool

		if ttlEntry, ok := ctx.overlay.LoadWithoutRecord(ttlKey); ok {
			if types.IsLive(ttlEntry, seq) {
				// Already live; restoring is a no-op.
				continue
			}
			// Expired but still in the live state, ahead of the archive
			// sweep. Use the current payload.
			le, ok := ctx.overlay.LoadWithoutRecord(lk)
			if !ok {
				panic("core: TTL entry present without its data entry")
			}
			entry = le
		} else {
			if !params.SupportsPersistentEviction(protocol) {
				// Entry doesn't exist, skip.
				continue
			}
			archived, ok := ctx.overlay.ArchiveLoad(lk)
			if !ok {
				// Absent from the archive too, skip.
				continue
			}
			entry = archived
			// The restore rewrites the entry, so the meta sees the closing
			// ledger as its modification ledger.
			entry.LastModified = seq
			fromArchive = true
		}

		entrySize := entry.Size()
		readByte += entrySize
		if resources.DiskReadBytes < readByte {
			ctx.diag().PushError("operation byte-read resources exceeds amount specified",
				U64Val(uint64(readByte)), U64Val(uint64(resources.DiskReadBytes)))
			return ResultResourceLimitExceeded
		}

		// TTL entry writes come out of the refundable fee, so only the
		// code/data entry counts against the write budget.
		writeByte += entrySize
		if !validateContractLedgerEntry(lk, entrySize, ctx.netCfg, ctx.diag()) {
			return ResultResourceLimitExceeded
		}
		if resources.WriteBytes < writeByte {
			ctx.diag().PushError("operation byte-write resources exceeds amount specified",
				U64Val(uint64(writeByte)), U64Val(uint64(resources.WriteBytes)))
			return ResultResourceLimitExceeded
		}

		// Contract code rents for its in-memory footprint, not its raw
		// bytes, once persistent eviction is in effect.
		rentSize := entrySize
		if lk.Type == types.ContractCodeType && params.SupportsPersistentEviction(protocol) {
			rentSize = ctx.host.ContractCodeMemorySizeForRent(
				ctx.chainCfg.CurrentProtocolVersion, protocol,
				entry.ContractCode.Code, ctx.netCfg.CPUCostParams, ctx.netCfg.MemCostParams)
		}
		rentChanges = append(rentChanges, types.RentChange{
			IsPersistent: true,
			IsCodeEntry:  lk.Type == types.ContractCodeType,
			NewSize:      rentSize,
			NewLiveUntil: restoredLiveUntil,
		})

		var err error
		if fromArchive {
			err = ctx.overlay.RestoreFromHotArchive(entry, restoredLiveUntil)
		} else {
			err = ctx.overlay.RestoreFromLive(entry, restoredLiveUntil)
		}
		if err != nil {
			panic("core: restore failed: " + err.Error())
		}
	}

	rentFee := ctx.host.ComputeRentFee(ctx.chainCfg.CurrentProtocolVersion,
		protocol, rentChanges, ctx.netCfg.RentFeeConfig, seq)
	if !ctx.refundable.Consume(0, rentFee, ctx.netCfg, ctx.diag()) {
		return ResultInsufficientRefundableFee
	}
	return ResultSuccess
}
