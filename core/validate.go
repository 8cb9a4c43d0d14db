package core

import (
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/params"
)

// validateContractLedgerEntry rejects oversize contract code and data.
// Classic entries always pass. A false return carries a diagnostic naming
// the limit.
func validateContractLedgerEntry(k types.LedgerKey, entrySize uint32, cfg *params.NetworkConfig, diag *DiagnosticEventManager) bool {
	switch k.Type {
	case types.ContractCodeType:
		if entrySize > cfg.MaxContractSizeBytes {
			diag.PushError("contract code entry exceeds network config maximum size",
				U64Val(uint64(entrySize)), U64Val(uint64(cfg.MaxContractSizeBytes)))
			return false
		}
	case types.ContractDataType:
		if k.Size() > cfg.MaxContractDataKeySizeBytes {
			diag.PushError("contract data key exceeds network config maximum size",
				U64Val(uint64(k.Size())), U64Val(uint64(cfg.MaxContractDataKeySizeBytes)))
			return false
		}
		if entrySize > cfg.MaxContractDataEntrySizeBytes {
			diag.PushError("contract data entry exceeds network config maximum size",
				U64Val(uint64(entrySize)), U64Val(uint64(cfg.MaxContractDataEntrySizeBytes)))
			return false
		}
	}
	return true
}
