package core

import "github.com/rcrowley/go-metrics"

var (
	hostFnReadEntryMeter       = metrics.NewRegisteredMeter("host/op/read_entry", nil)
	hostFnWriteEntryMeter      = metrics.NewRegisteredMeter("host/op/write_entry", nil)
	hostFnReadLedgerByteMeter  = metrics.NewRegisteredMeter("host/op/read_ledger_byte", nil)
	hostFnWriteLedgerByteMeter = metrics.NewRegisteredMeter("host/op/write_ledger_byte", nil)
	hostFnEmitEventMeter       = metrics.NewRegisteredMeter("host/op/emit_event", nil)
	hostFnEmitEventByteMeter   = metrics.NewRegisteredMeter("host/op/emit_event_byte", nil)
	hostFnCPUInsnMeter         = metrics.NewRegisteredMeter("host/op/cpu_insn", nil)
	hostFnMemByteMeter         = metrics.NewRegisteredMeter("host/op/mem_byte", nil)
	hostFnSuccessMeter         = metrics.NewRegisteredMeter("host/op/success", nil)
	hostFnFailureMeter         = metrics.NewRegisteredMeter("host/op/failure", nil)
	hostFnExecTimer            = metrics.NewRegisteredTimer("host/op/exec_time", nil)

	restoreFpReadByteMeter  = metrics.NewRegisteredMeter("restore/op/read_ledger_byte", nil)
	restoreFpWriteByteMeter = metrics.NewRegisteredMeter("restore/op/write_ledger_byte", nil)

	evictedEntryMeter    = metrics.NewRegisteredMeter("ledger/evict/archived", nil)
	deletedTempMeter     = metrics.NewRegisteredMeter("ledger/evict/temp", nil)
	evictionScanTimer    = metrics.NewRegisteredTimer("ledger/evict/scan_time", nil)
	restoredArchiveMeter = metrics.NewRegisteredMeter("ledger/restore/archive", nil)
	restoredLiveMeter    = metrics.NewRegisteredMeter("ledger/restore/live", nil)

	moduleCacheHitMeter     = metrics.NewRegisteredMeter("host/modulecache/hit", nil)
	moduleCacheMissMeter    = metrics.NewRegisteredMeter("host/modulecache/miss", nil)
	moduleCacheRebuildTimer = metrics.NewRegisteredTimer("host/modulecache/rebuild_time", nil)

	prefetchHitMeter  = metrics.NewRegisteredMeter("ledger/prefetch/hit", nil)
	prefetchMissMeter = metrics.NewRegisteredMeter("ledger/prefetch/miss", nil)
)
