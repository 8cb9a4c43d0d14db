package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bloxxix/stellar-core/core/types"
)

func TestSnapshotPersistenceRoundTrip(t *testing.T) {
	live := NewLiveStore()
	archive := NewHotArchive()

	e1 := dataEntry(1, "alpha", types.Persistent, "v1")
	e1.LastModified = 3
	withTTL(t, live, e1, 100)
	e2 := dataEntry(2, "beta", types.Temporary, "v2")
	withTTL(t, live, e2, 50)

	archived := dataEntry(3, "gamma", types.Persistent, "old")
	archived.LastModified = 1
	require.NoError(t, archive.InsertOnEvict(archived))

	header := types.LedgerHeader{Seq: 42, Protocol: 24, CloseTime: 1700000000, BaseReserve: 5000000}

	db := OpenMemDB()
	defer db.Close()
	require.NoError(t, db.WriteSnapshots(live.Snapshot(header), archive.Snapshot()))

	liveSnap, archiveSnap, err := db.ReadSnapshots()
	require.NoError(t, err)
	require.Equal(t, header, liveSnap.Header())
	require.Equal(t, live.Len(), liveSnap.Len())
	require.Equal(t, 1, archiveSnap.Len())

	got, ok := liveSnap.Load(e1.Key())
	require.True(t, ok)
	require.True(t, got.Equal(e1))

	gotArch, ok := archiveSnap.Load(archived.Key())
	require.True(t, ok)
	require.True(t, gotArch.Equal(archived))
}

func TestSnapshotPersistenceOverwritesPreviousState(t *testing.T) {
	live := NewLiveStore()
	archive := NewHotArchive()
	e := dataEntry(1, "k", types.Persistent, "v")
	withTTL(t, live, e, 100)

	db := OpenMemDB()
	defer db.Close()
	require.NoError(t, db.WriteSnapshots(live.Snapshot(testHeader(1)), archive.Snapshot()))

	// Delete the entry and persist again; the stale blob must not
	// resurface.
	live.Delete(e.Key())
	live.Delete(types.TTLKey(e.Key()))
	require.NoError(t, db.WriteSnapshots(live.Snapshot(testHeader(2)), archive.Snapshot()))

	liveSnap, _, err := db.ReadSnapshots()
	require.NoError(t, err)
	require.Equal(t, 0, liveSnap.Len())
}
