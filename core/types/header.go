package types

// LedgerHeader carries the slice of header state the apply engine consults.
// The full header (hashes, upgrade votes, fee pool) is owned by the outer
// ledger manager.
type LedgerHeader struct {
	Seq         uint32
	Protocol    uint32
	CloseTime   uint64
	BaseReserve uint32
}
