package state

import (
	"fmt"

	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes separating the two stores inside one database.
var (
	livePrefix    = []byte("l:")
	archivePrefix = []byte("a:")
	headerKey     = []byte("h:header")
)

// DB wraps the goleveldb handle snapshots persist into.
type DB struct {
	ldb *leveldb.DB
}

// OpenDB opens (or creates) a snapshot database at path.
func OpenDB(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("state: opening snapshot db: %w", err)
	}
	return &DB{ldb: ldb}, nil
}

// OpenMemDB opens an in-memory snapshot database, used by tests.
func OpenMemDB() *DB {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		panic(err)
	}
	return &DB{ldb: ldb}
}

// Close releases the underlying database.
func (db *DB) Close() error { return db.ldb.Close() }

func encodeHeader(h types.LedgerHeader) []byte {
	buf := make([]byte, 0, 20)
	buf = appendUint32(buf, h.Seq)
	buf = appendUint32(buf, h.Protocol)
	buf = appendUint32(buf, h.BaseReserve)
	var t [8]byte
	for i := 0; i < 8; i++ {
		t[i] = byte(h.CloseTime >> (56 - 8*i))
	}
	return append(buf, t[:]...)
}

func decodeHeader(buf []byte) (types.LedgerHeader, error) {
	if len(buf) != 20 {
		return types.LedgerHeader{}, fmt.Errorf("state: bad header encoding length %d", len(buf))
	}
	var h types.LedgerHeader
	h.Seq = readUint32(buf[0:4])
	h.Protocol = readUint32(buf[4:8])
	h.BaseReserve = readUint32(buf[8:12])
	for i := 0; i < 8; i++ {
		h.CloseTime = h.CloseTime<<8 | uint64(buf[12+i])
	}
	return h, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// WriteSnapshots replaces the persisted state with the given snapshot pair.
// Entry blobs are snappy compressed.
func (db *DB) WriteSnapshots(live *LiveSnapshot, archive *ArchiveSnapshot) error {
	// Drop any previous state first so deleted entries don't linger.
	for _, prefix := range [][]byte{livePrefix, archivePrefix} {
		iter := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
		batch := new(leveldb.Batch)
		for iter.Next() {
			batch.Delete(append([]byte{}, iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return err
		}
		if err := db.ldb.Write(batch, nil); err != nil {
			return err
		}
	}

	batch := new(leveldb.Batch)
	live.Ascend(func(e types.LedgerEntry) bool {
		batch.Put(append(livePrefix, e.Key().Encode()...), snappy.Encode(nil, e.Encode()))
		return true
	})
	archive.Ascend(func(e types.LedgerEntry) bool {
		batch.Put(append(archivePrefix, e.Key().Encode()...), snappy.Encode(nil, e.Encode()))
		return true
	})
	batch.Put(headerKey, encodeHeader(live.Header()))
	return db.ldb.Write(batch, nil)
}

// ReadSnapshots loads the persisted snapshot pair back into fresh stores and
// returns frozen views of them.
func (db *DB) ReadSnapshots() (*LiveSnapshot, *ArchiveSnapshot, error) {
	headerBuf, err := db.ldb.Get(headerKey, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("state: reading snapshot header: %w", err)
	}
	header, err := decodeHeader(headerBuf)
	if err != nil {
		return nil, nil, err
	}

	live := NewLiveStore()
	if err := db.readStore(livePrefix, func(e types.LedgerEntry) { live.Put(e) }); err != nil {
		return nil, nil, err
	}
	archive := NewHotArchive()
	if err := db.readStore(archivePrefix, func(e types.LedgerEntry) {
		archive.tree.ReplaceOrInsert(storeItem{key: e.Key().Ordered(), entry: e})
	}); err != nil {
		return nil, nil, err
	}
	return live.Snapshot(header), archive.Snapshot(), nil
}

func (db *DB) readStore(prefix []byte, put func(types.LedgerEntry)) error {
	iter := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		blob, err := snappy.Decode(nil, iter.Value())
		if err != nil {
			return fmt.Errorf("state: corrupt snapshot blob: %w", err)
		}
		e, err := types.DecodeEntry(blob)
		if err != nil {
			return fmt.Errorf("state: corrupt snapshot entry: %w", err)
		}
		put(e)
	}
	return iter.Error()
}
