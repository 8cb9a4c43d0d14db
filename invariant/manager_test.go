package invariant

import (
	"errors"
	"strings"
	"testing"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
)

// fakeInvariant fails every commit check with failErr when set.
type fakeInvariant struct {
	Base
	name    string
	strict  bool
	failErr error
}

func (f *fakeInvariant) Name() string { return f.name }
func (f *fakeInvariant) Strict() bool { return f.strict }

func (f *fakeInvariant) CheckOnLedgerCommit(*state.LiveSnapshot, *state.ArchiveSnapshot,
	[]types.LedgerEntry, []types.LedgerKey,
	map[string]types.LedgerEntry, map[string]types.LedgerEntry) error {
	return f.failErr
}

func snapshots(seq uint32) (*state.LiveSnapshot, *state.ArchiveSnapshot) {
	live := state.NewLiveStore()
	archive := state.NewHotArchive()
	return live.Snapshot(types.LedgerHeader{Seq: seq, Protocol: 24}), archive.Snapshot()
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := NewManager()
	if err := m.Register(&fakeInvariant{name: "CacheIsConsistent"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := m.Register(&fakeInvariant{name: "CacheIsConsistent"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("have %v want %v", err, ErrAlreadyRegistered)
	}
}

func TestEnablePatternMatchesCaseInsensitively(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "CacheIsConsistent"})
	if err := m.Enable("cacheisconsistent"); err != nil {
		t.Fatalf("case-insensitive enable failed: %v", err)
	}
	if got := m.Enabled(); len(got) != 1 || got[0] != "CacheIsConsistent" {
		t.Fatalf("enabled: %v", got)
	}
}

func TestEnablePatternIsFullMatch(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "CacheIsConsistent"})
	if err := m.Enable("Cache"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("partial pattern must not match: %v", err)
	}
	if err := m.Enable("Cache.*"); err != nil {
		t.Fatalf("wildcard pattern failed: %v", err)
	}
}

func TestEnableTwiceIsAnError(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "CacheIsConsistent"})
	if err := m.Enable(".*"); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if err := m.Enable("CacheIsConsistent"); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("have %v want %v", err, ErrAlreadyEnabled)
	}
}

func TestEnableNoMatchNamesRegistered(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "CacheIsConsistent"})
	err := m.Enable("NoSuchInvariant")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("have %v want %v", err, ErrNoMatch)
	}
	if !strings.Contains(err.Error(), "CacheIsConsistent") {
		t.Fatalf("error must name the registered invariants: %v", err)
	}
}

func TestEnableRejectsInvalidPattern(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "CacheIsConsistent"})
	if err := m.Enable("("); err == nil {
		t.Fatalf("invalid regex must be rejected")
	}
}

func TestStrictFailureSurfacesAsError(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "AlwaysFails", strict: true, failErr: errors.New("broken")})
	m.Enable("AlwaysFails")

	live, archive := snapshots(10)
	err := m.CheckOnLedgerCommit(live, archive, nil, nil, nil, nil)
	if err == nil {
		t.Fatalf("strict failure must abort")
	}
}

func TestLaxFailureRecordsAndContinues(t *testing.T) {
	m := NewManager()
	m.Register(&fakeInvariant{name: "AlwaysFails", strict: false, failErr: errors.New("broken")})
	m.Enable("AlwaysFails")

	live, archive := snapshots(10)
	if err := m.CheckOnLedgerCommit(live, archive, nil, nil, nil, nil); err != nil {
		t.Fatalf("lax failure must not abort: %v", err)
	}

	info := m.JSONInfo()
	entry, ok := info["AlwaysFails"].(FailureInfo)
	if !ok {
		t.Fatalf("failure info missing: %v", info)
	}
	if entry.LastFailedOnLedger != 11 || entry.LastFailedWithMessage != "broken" {
		t.Fatalf("unexpected failure info: %+v", entry)
	}
	if _, ok := info["count"]; !ok {
		t.Fatalf("failure count missing: %v", info)
	}
}
