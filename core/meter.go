package core

import "time"

// hostFnMeter tracks per-operation resource counters for a host function
// invocation. Budget checks read these counters; finish flushes them to the
// registry meters.
type hostFnMeter struct {
	readEntry  uint32
	writeEntry uint32

	ledgerReadByte  uint32
	ledgerWriteByte uint32

	readKeyByte  uint32
	writeKeyByte uint32

	readDataByte  uint32
	writeDataByte uint32

	readCodeByte  uint32
	writeCodeByte uint32

	emitEvent     uint32
	emitEventByte uint32

	cpuInsn         uint64
	memByte         uint64
	invokeTimeNsecs uint64
	cpuInsnExclVM   uint64
	timeNsecsExclVM uint64
	declaredCPUInsn uint64

	maxRwKeyByte     uint32
	maxRwDataByte    uint32
	maxRwCodeByte    uint32
	maxEmitEventByte uint32

	rentFee int64

	start   time.Time
	success bool
}

func newHostFnMeter(declaredInsns uint64) *hostFnMeter {
	return &hostFnMeter{declaredCPUInsn: declaredInsns, start: time.Now()}
}

// noteDiskReadEntry accounts one disk-backed read of keySize/entrySize.
func (m *hostFnMeter) noteDiskReadEntry(isCodeEntry bool, keySize, entrySize uint32) {
	m.readEntry++
	m.readKeyByte += keySize
	m.maxRwKeyByte = maxU32(m.maxRwKeyByte, keySize)
	m.ledgerReadByte += entrySize
	if isCodeEntry {
		m.readCodeByte += entrySize
		m.maxRwCodeByte = maxU32(m.maxRwCodeByte, entrySize)
	} else {
		m.readDataByte += entrySize
		m.maxRwDataByte = maxU32(m.maxRwDataByte, entrySize)
	}
}

// noteWriteEntry accounts one write of keySize/entrySize.
func (m *hostFnMeter) noteWriteEntry(isCodeEntry bool, keySize, entrySize uint32) {
	m.writeEntry++
	m.writeKeyByte += keySize
	m.maxRwKeyByte = maxU32(m.maxRwKeyByte, keySize)
	m.ledgerWriteByte += entrySize
	if isCodeEntry {
		m.writeCodeByte += entrySize
		m.maxRwCodeByte = maxU32(m.maxRwCodeByte, entrySize)
	} else {
		m.writeDataByte += entrySize
		m.maxRwDataByte = maxU32(m.maxRwDataByte, entrySize)
	}
}

// noteEmitEvent accounts one emitted event of eventSize bytes.
func (m *hostFnMeter) noteEmitEvent(eventSize uint32) {
	m.emitEvent++
	m.emitEventByte += eventSize
	m.maxEmitEventByte = maxU32(m.maxEmitEventByte, eventSize)
}

// finish flushes the counters into the registry meters.
func (m *hostFnMeter) finish() {
	hostFnReadEntryMeter.Mark(int64(m.readEntry))
	hostFnWriteEntryMeter.Mark(int64(m.writeEntry))
	hostFnReadLedgerByteMeter.Mark(int64(m.ledgerReadByte))
	hostFnWriteLedgerByteMeter.Mark(int64(m.ledgerWriteByte))
	hostFnEmitEventMeter.Mark(int64(m.emitEvent))
	hostFnEmitEventByteMeter.Mark(int64(m.emitEventByte))
	hostFnCPUInsnMeter.Mark(int64(m.cpuInsn))
	hostFnMemByteMeter.Mark(int64(m.memByte))
	hostFnExecTimer.Update(time.Since(m.start))
	if m.success {
		hostFnSuccessMeter.Mark(1)
	} else {
		hostFnFailureMeter.Mark(1)
	}
}

// metricsEvent builds one core_metrics diagnostic event.
func metricsEvent(success bool, topic string, value uint64) DiagnosticEvent {
	return DiagnosticEvent{
		InSuccessfulCall: success,
		Event: ContractEvent{
			Type:   DiagnosticEventType,
			Topics: []Val{SymbolVal("core_metrics"), SymbolVal(topic)},
			Data:   U64Val(value),
		},
	}
}

// pushMetricsEvents publishes the per-counter diagnostic topic set.
func (m *hostFnMeter) pushMetricsEvents(diag *DiagnosticEventManager) {
	if !diag.Enabled() {
		return
	}
	push := func(topic string, v uint64) {
		diag.PushEvent(metricsEvent(m.success, topic, v))
	}
	push("read_entry", uint64(m.readEntry))
	push("write_entry", uint64(m.writeEntry))
	push("ledger_read_byte", uint64(m.ledgerReadByte))
	push("ledger_write_byte", uint64(m.ledgerWriteByte))
	push("read_key_byte", uint64(m.readKeyByte))
	push("write_key_byte", uint64(m.writeKeyByte))
	push("read_data_byte", uint64(m.readDataByte))
	push("write_data_byte", uint64(m.writeDataByte))
	push("read_code_byte", uint64(m.readCodeByte))
	push("write_code_byte", uint64(m.writeCodeByte))
	push("emit_event", uint64(m.emitEvent))
	push("emit_event_byte", uint64(m.emitEventByte))
	push("cpu_insn", m.cpuInsn)
	push("mem_byte", m.memByte)
	push("invoke_time_nsecs", m.invokeTimeNsecs)
	push("max_rw_key_byte", uint64(m.maxRwKeyByte))
	push("max_rw_data_byte", uint64(m.maxRwDataByte))
	push("max_rw_code_byte", uint64(m.maxRwCodeByte))
	push("max_emit_event_byte", uint64(m.maxEmitEventByte))
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
