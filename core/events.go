package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Bloxxix/stellar-core/common"
	"github.com/inconshreveable/log15"
)

var logger = log15.New("module", "core")

// ValKind tags the typed values carried in event topics and bodies.
type ValKind uint8

const (
	SymbolKind ValKind = iota
	U64Kind
	BytesKind
)

// Val is a typed event value: a symbol, an unsigned integer or opaque
// bytes.
type Val struct {
	Kind  ValKind
	Sym   string
	U64   uint64
	Bytes []byte
}

func SymbolVal(s string) Val { return Val{Kind: SymbolKind, Sym: s} }
func U64Val(v uint64) Val    { return Val{Kind: U64Kind, U64: v} }
func BytesVal(b []byte) Val  { return Val{Kind: BytesKind, Bytes: common.CopyBytes(b)} }

// String implements the fmt.Stringer interface.
func (v Val) String() string {
	switch v.Kind {
	case SymbolKind:
		return v.Sym
	case U64Kind:
		return fmt.Sprintf("%d", v.U64)
	default:
		return fmt.Sprintf("%x", v.Bytes)
	}
}

// EventType distinguishes guest-emitted contract events from the
// diagnostics the apply engine itself produces.
type EventType uint8

const (
	ContractEventType EventType = iota
	DiagnosticEventType
)

// ContractEvent is a structured event: typed topics plus a typed body.
type ContractEvent struct {
	Type   EventType
	Topics []Val
	Data   Val
}

// DiagnosticEvent wraps an event with whether it was recorded inside a
// successful contract call.
type DiagnosticEvent struct {
	InSuccessfulCall bool
	Event            ContractEvent
}

var errBadEventEncoding = errors.New("core: bad event encoding")

// EncodeEvent serializes an event for the sandbox boundary and for size
// metering.
func EncodeEvent(ev ContractEvent) []byte {
	buf := []byte{byte(ev.Type), byte(len(ev.Topics))}
	for _, t := range ev.Topics {
		buf = appendVal(buf, t)
	}
	return appendVal(buf, ev.Data)
}

func appendVal(buf []byte, v Val) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case SymbolKind:
		return appendEventBytes(buf, []byte(v.Sym))
	case U64Kind:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], v.U64)
		return append(buf, n[:]...)
	default:
		return appendEventBytes(buf, v.Bytes)
	}
}

func appendEventBytes(buf, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

// DecodeEvent parses an encoded event.
func DecodeEvent(buf []byte) (ContractEvent, error) {
	if len(buf) < 2 {
		return ContractEvent{}, errBadEventEncoding
	}
	ev := ContractEvent{Type: EventType(buf[0])}
	n := int(buf[1])
	rest := buf[2:]
	var err error
	for i := 0; i < n; i++ {
		var v Val
		v, rest, err = readVal(rest)
		if err != nil {
			return ContractEvent{}, err
		}
		ev.Topics = append(ev.Topics, v)
	}
	ev.Data, rest, err = readVal(rest)
	if err != nil {
		return ContractEvent{}, err
	}
	if len(rest) != 0 {
		return ContractEvent{}, errBadEventEncoding
	}
	return ev, nil
}

func readVal(buf []byte) (Val, []byte, error) {
	if len(buf) < 1 {
		return Val{}, nil, errBadEventEncoding
	}
	v := Val{Kind: ValKind(buf[0])}
	buf = buf[1:]
	switch v.Kind {
	case U64Kind:
		if len(buf) < 8 {
			return Val{}, nil, errBadEventEncoding
		}
		v.U64 = binary.BigEndian.Uint64(buf[:8])
		return v, buf[8:], nil
	case SymbolKind, BytesKind:
		if len(buf) < 4 {
			return Val{}, nil, errBadEventEncoding
		}
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < n {
			return Val{}, nil, errBadEventEncoding
		}
		if v.Kind == SymbolKind {
			v.Sym = string(buf[:n])
		} else {
			v.Bytes = common.CopyBytes(buf[:n])
		}
		return v, buf[n:], nil
	default:
		return Val{}, nil, errBadEventEncoding
	}
}

// DiagnosticEventManager buffers diagnostic events for one operation. When
// diagnostics are disabled the pushes are dropped.
type DiagnosticEventManager struct {
	enabled bool
	events  []DiagnosticEvent
}

// NewDiagnosticEventManager creates a manager; enabled mirrors the node's
// diagnostic configuration.
func NewDiagnosticEventManager(enabled bool) *DiagnosticEventManager {
	return &DiagnosticEventManager{enabled: enabled}
}

// Enabled reports whether diagnostics are being captured.
func (m *DiagnosticEventManager) Enabled() bool { return m.enabled }

// PushEvent records a diagnostic event.
func (m *DiagnosticEventManager) PushEvent(ev DiagnosticEvent) {
	if !m.enabled {
		return
	}
	m.events = append(m.events, ev)
}

// PushError records an error diagnostic naming what failed; vals carry the
// offending values (a counter and its limit, or a key).
func (m *DiagnosticEventManager) PushError(msg string, vals ...Val) {
	if !m.enabled {
		return
	}
	topics := append([]Val{SymbolVal("error"), SymbolVal(msg)}, vals...)
	m.events = append(m.events, DiagnosticEvent{
		Event: ContractEvent{Type: DiagnosticEventType, Topics: topics},
	})
	logger.Debug("Operation diagnostic", "msg", msg)
}

// Events returns the buffered diagnostics.
func (m *DiagnosticEventManager) Events() []DiagnosticEvent { return m.events }
