package core

import (
	"testing"
)

func TestEventCodecRoundTrip(t *testing.T) {
	ev := ContractEvent{
		Type:   ContractEventType,
		Topics: []Val{SymbolVal("transfer"), BytesVal([]byte{0x01, 0x02})},
		Data:   U64Val(42),
	}
	dec, err := DecodeEvent(EncodeEvent(ev))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(dec.Topics) != 2 || dec.Topics[0].Sym != "transfer" || dec.Data.U64 != 42 {
		t.Fatalf("round trip mismatch: %+v", dec)
	}

	if _, err := DecodeEvent([]byte{0x01}); err == nil {
		t.Fatalf("truncated event must not decode")
	}
	if _, err := DecodeEvent(append(EncodeEvent(ev), 0xff)); err == nil {
		t.Fatalf("trailing bytes must not decode")
	}
}

func TestDiagnosticManagerDropsWhenDisabled(t *testing.T) {
	m := NewDiagnosticEventManager(false)
	m.PushError("boom", U64Val(1))
	if len(m.Events()) != 0 {
		t.Fatalf("disabled manager must drop events")
	}

	m = NewDiagnosticEventManager(true)
	m.PushError("boom", U64Val(1), U64Val(2))
	events := m.Events()
	if len(events) != 1 {
		t.Fatalf("events: have %d want 1", len(events))
	}
	topics := events[0].Event.Topics
	if topics[0].Sym != "error" || topics[1].Sym != "boom" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}

func TestMeterCountersAndMaxima(t *testing.T) {
	m := newHostFnMeter(100)
	m.noteDiskReadEntry(false, 10, 200)
	m.noteDiskReadEntry(true, 30, 100)
	m.noteWriteEntry(false, 20, 400)

	if m.readEntry != 2 || m.writeEntry != 1 {
		t.Fatalf("entry counts: read %d write %d", m.readEntry, m.writeEntry)
	}
	if m.ledgerReadByte != 300 || m.ledgerWriteByte != 400 {
		t.Fatalf("byte counts: read %d write %d", m.ledgerReadByte, m.ledgerWriteByte)
	}
	if m.readCodeByte != 100 || m.readDataByte != 200 {
		t.Fatalf("split counts: code %d data %d", m.readCodeByte, m.readDataByte)
	}
	if m.maxRwKeyByte != 30 || m.maxRwDataByte != 400 || m.maxRwCodeByte != 100 {
		t.Fatalf("maxima: key %d data %d code %d", m.maxRwKeyByte, m.maxRwDataByte, m.maxRwCodeByte)
	}
}

func TestRefundableFeeTrackerConsumesAtomically(t *testing.T) {
	cfg := testNetConfig()
	diag := NewDiagnosticEventManager(true)
	tr := NewRefundableFeeTracker(100)

	if !tr.Consume(0, 60, cfg, diag) {
		t.Fatalf("first consume must fit")
	}
	if tr.Consume(0, 60, cfg, diag) {
		t.Fatalf("second consume must overflow")
	}
	if tr.Consumed() != 60 {
		t.Fatalf("failed consume must charge nothing: have %d", tr.Consumed())
	}
	if len(diag.Events()) == 0 {
		t.Fatalf("shortfall must push a diagnostic")
	}
}
