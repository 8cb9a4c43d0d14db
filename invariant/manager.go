package invariant

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/rcrowley/go-metrics"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
)

var logger = log15.New("module", "invariant")

var (
	// ErrAlreadyRegistered is returned when an invariant name is registered
	// twice.
	ErrAlreadyRegistered = errors.New("invariant: already registered")

	// ErrAlreadyEnabled is returned when an enable pattern matches an
	// invariant that is already enabled.
	ErrAlreadyEnabled = errors.New("invariant: already enabled")

	// ErrNoMatch is returned when an enable pattern matches nothing.
	ErrNoMatch = errors.New("invariant: pattern matched no invariants")
)

// FailureInfo records the most recent failure of one invariant.
type FailureInfo struct {
	LastFailedOnLedger    uint32 `json:"last_failed_on_ledger"`
	LastFailedWithMessage string `json:"last_failed_with_message"`
}

// Manager holds the registered invariants, the enabled subset and the
// failure bookkeeping.
type Manager struct {
	mu         sync.Mutex
	registered map[string]Invariant
	enabled    []Invariant
	failures   map[string]FailureInfo

	failureCounter metrics.Counter
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		registered:     make(map[string]Invariant),
		failures:       make(map[string]FailureInfo),
		failureCounter: metrics.NewRegisteredCounter("ledger/invariant/failure", nil),
	}
}

// Register adds an invariant under its name. Double registration is an
// error.
func (m *Manager) Register(inv Invariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := inv.Name()
	if _, ok := m.registered[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	m.registered[name] = inv
	return nil
}

// Enable turns on every registered invariant whose name matches the
// pattern, a case-insensitive full-match regular expression. Re-enabling an
// already enabled invariant is an error, as is a pattern matching nothing.
func (m *Manager) Enable(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrNoMatch)
	}
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("invariant: invalid pattern %q: %v", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	enabledSome := false
	for _, name := range m.registeredNames() {
		if !re.MatchString(name) {
			continue
		}
		if m.isEnabled(name) {
			return fmt.Errorf("%w: %s", ErrAlreadyEnabled, name)
		}
		m.enabled = append(m.enabled, m.registered[name])
		enabledSome = true
		logger.Info("Enabled invariant", "name", name)
	}
	if !enabledSome {
		if len(m.registered) == 0 {
			return fmt.Errorf("%w: %q; there are no registered invariants", ErrNoMatch, pattern)
		}
		return fmt.Errorf("%w: %q; registered invariants are: %s",
			ErrNoMatch, pattern, strings.Join(m.registeredNames(), ", "))
	}
	return nil
}

func (m *Manager) registeredNames() []string {
	names := make([]string, 0, len(m.registered))
	for name := range m.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) isEnabled(name string) bool {
	for _, inv := range m.enabled {
		if inv.Name() == name {
			return true
		}
	}
	return false
}

// Enabled returns the names of the enabled invariants.
func (m *Manager) Enabled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.enabled))
	for _, inv := range m.enabled {
		names = append(names, inv.Name())
	}
	return names
}

// JSONInfo returns the failure bookkeeping in a JSON-encodable shape.
func (m *Manager) JSONInfo() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.failures)+1)
	for name, info := range m.failures {
		out[name] = info
	}
	if len(m.failures) > 0 {
		out["count"] = m.failureCounter.Count()
	}
	return out
}

// onFailure records a failure and decides whether it aborts. Strict
// failures surface as errors to the caller, which aborts the node.
func (m *Manager) onFailure(inv Invariant, ledger uint32, err error) error {
	m.mu.Lock()
	m.failureCounter.Inc(1)
	m.failures[inv.Name()] = FailureInfo{
		LastFailedOnLedger:    ledger,
		LastFailedWithMessage: err.Error(),
	}
	m.mu.Unlock()

	if inv.Strict() {
		logger.Crit("Invariant does not hold", "name", inv.Name(), "ledger", ledger, "err", err)
		return fmt.Errorf("invariant %q does not hold: %w", inv.Name(), err)
	}
	logger.Error("Invariant does not hold", "name", inv.Name(), "ledger", ledger, "err", err)
	return nil
}

func (m *Manager) snapshotEnabled() []Invariant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invariant(nil), m.enabled...)
}

// Start runs every enabled invariant's one-shot startup scan.
func (m *Manager) Start(live *state.LiveSnapshot, archive *state.ArchiveSnapshot) error {
	for _, inv := range m.snapshotEnabled() {
		if err := inv.Start(live, archive); err != nil {
			if ferr := m.onFailure(inv, live.Header().Seq, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// CheckOnBucketApply runs the bucket-apply hook of every enabled invariant.
func (m *Manager) CheckOnBucketApply(entries []types.LedgerEntry, oldest, newest uint32) error {
	for _, inv := range m.snapshotEnabled() {
		if err := inv.CheckOnBucketApply(entries, oldest, newest); err != nil {
			if ferr := m.onFailure(inv, newest, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// CheckAfterAssumeState runs the assume-state hook of every enabled
// invariant.
func (m *Manager) CheckAfterAssumeState(newest uint32) error {
	for _, inv := range m.snapshotEnabled() {
		if err := inv.CheckAfterAssumeState(newest); err != nil {
			if ferr := m.onFailure(inv, newest, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// CheckOnOperationApply runs the per-operation hook of every enabled
// invariant.
func (m *Manager) CheckOnOperationApply(ledger uint32, op, result string, deltas state.Deltas) error {
	for _, inv := range m.snapshotEnabled() {
		if err := inv.CheckOnOperationApply(op, result, deltas); err != nil {
			if ferr := m.onFailure(inv, ledger, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// CheckOnLedgerCommit runs the commit hook of every enabled invariant with
// the last closed snapshots and the deltas the commit produced.
func (m *Manager) CheckOnLedgerCommit(live *state.LiveSnapshot, archive *state.ArchiveSnapshot,
	evicted []types.LedgerEntry, deletedKeys []types.LedgerKey,
	restoredFromArchive, restoredFromLive map[string]types.LedgerEntry) error {
	for _, inv := range m.snapshotEnabled() {
		err := inv.CheckOnLedgerCommit(live, archive, evicted, deletedKeys, restoredFromArchive, restoredFromLive)
		if err != nil {
			if ferr := m.onFailure(inv, live.Header().Seq+1, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}
