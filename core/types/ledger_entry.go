package types

import (
	"bytes"
	"encoding/binary"

	"github.com/Bloxxix/stellar-core/common"
)

// Per-variant entry payloads. Exactly one is set on a LedgerEntry, matching
// its Type tag. Classic payloads carry only the fields the apply engine
// touches; the full account subsystem lives outside this core.
type (
	AccountEntry struct {
		Account common.AccountID
		Balance int64
		SeqNum  uint64
	}
	TrustlineEntry struct {
		Account common.AccountID
		Asset   string
		Balance int64
		Limit   int64
	}
	OfferEntry struct {
		Seller  common.AccountID
		OfferID uint64
		Selling string
		Buying  string
		Amount  int64
		Price   int64
	}
	DataEntry struct {
		Account common.AccountID
		Name    string
		Value   []byte
	}
	ClaimableBalanceEntry struct {
		BalanceID common.Hash
		Asset     string
		Amount    int64
	}
	ContractDataEntry struct {
		Contract   common.Hash
		Key        []byte
		Durability Durability
		Val        []byte
	}
	ContractCodeEntry struct {
		Hash common.Hash
		Code []byte
	}
	TTLEntry struct {
		KeyHash   common.Hash
		LiveUntil uint32
	}
)

// LedgerEntry is a key payload plus bookkeeping. LastModified records the
// sequence of the ledger that last wrote the entry; Ext is an opaque
// extension slot carried through untouched.
type LedgerEntry struct {
	Type         EntryType
	LastModified uint32
	Ext          []byte

	Account          *AccountEntry
	Trustline        *TrustlineEntry
	Offer            *OfferEntry
	Data             *DataEntry
	ClaimableBalance *ClaimableBalanceEntry
	ContractData     *ContractDataEntry
	ContractCode     *ContractCodeEntry
	TTL              *TTLEntry
}

// Key derives the LedgerKey naming this entry.
func (e LedgerEntry) Key() LedgerKey {
	switch e.Type {
	case AccountType:
		return AccountLedgerKey(e.Account.Account)
	case TrustlineType:
		return TrustlineLedgerKey(e.Trustline.Account, e.Trustline.Asset)
	case OfferType:
		return OfferLedgerKey(e.Offer.Seller, e.Offer.OfferID)
	case DataType:
		return DataLedgerKey(e.Data.Account, e.Data.Name)
	case ClaimableBalanceType:
		return ClaimableBalanceLedgerKey(e.ClaimableBalance.BalanceID)
	case ContractDataType:
		return ContractDataLedgerKey(e.ContractData.Contract, e.ContractData.Key, e.ContractData.Durability)
	case ContractCodeType:
		return ContractCodeLedgerKey(e.ContractCode.Hash)
	case TTLType:
		return LedgerKey{Type: TTLType, TTL: &TTLKeyBody{KeyHash: e.TTL.KeyHash}}
	default:
		panic("ledger entry with unknown type")
	}
}

// NewTTLEntry builds the TTL entry for ttlKey with the given live-until
// ledger.
func NewTTLEntry(ttlKey LedgerKey, liveUntil uint32) LedgerEntry {
	if ttlKey.Type != TTLType {
		panic("ttl entry requested for non-ttl key")
	}
	return LedgerEntry{
		Type: TTLType,
		TTL:  &TTLEntry{KeyHash: ttlKey.TTL.KeyHash, LiveUntil: liveUntil},
	}
}

// IsLive reports whether a TTL entry is live at the given ledger sequence.
func IsLive(ttl LedgerEntry, seq uint32) bool {
	if ttl.Type != TTLType {
		panic("liveness check on non-ttl entry")
	}
	return ttl.TTL.LiveUntil >= seq
}

// EncodePayload returns the canonical encoding of the entry payload and
// extension, excluding LastModified. Archival consistency compares entries
// through this encoding.
func (e LedgerEntry) EncodePayload() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, byte(e.Type))
	switch e.Type {
	case AccountType:
		buf = append(buf, e.Account.Account[:]...)
		buf = appendInt64(buf, e.Account.Balance)
		buf = appendUint64(buf, e.Account.SeqNum)
	case TrustlineType:
		buf = append(buf, e.Trustline.Account[:]...)
		buf = appendLengthPrefixed(buf, []byte(e.Trustline.Asset))
		buf = appendInt64(buf, e.Trustline.Balance)
		buf = appendInt64(buf, e.Trustline.Limit)
	case OfferType:
		buf = append(buf, e.Offer.Seller[:]...)
		buf = appendUint64(buf, e.Offer.OfferID)
		buf = appendLengthPrefixed(buf, []byte(e.Offer.Selling))
		buf = appendLengthPrefixed(buf, []byte(e.Offer.Buying))
		buf = appendInt64(buf, e.Offer.Amount)
		buf = appendInt64(buf, e.Offer.Price)
	case DataType:
		buf = append(buf, e.Data.Account[:]...)
		buf = appendLengthPrefixed(buf, []byte(e.Data.Name))
		buf = appendLengthPrefixed(buf, e.Data.Value)
	case ClaimableBalanceType:
		buf = append(buf, e.ClaimableBalance.BalanceID[:]...)
		buf = appendLengthPrefixed(buf, []byte(e.ClaimableBalance.Asset))
		buf = appendInt64(buf, e.ClaimableBalance.Amount)
	case ContractDataType:
		buf = append(buf, e.ContractData.Contract[:]...)
		buf = append(buf, byte(e.ContractData.Durability))
		buf = appendLengthPrefixed(buf, e.ContractData.Key)
		buf = appendLengthPrefixed(buf, e.ContractData.Val)
	case ContractCodeType:
		buf = append(buf, e.ContractCode.Hash[:]...)
		buf = appendLengthPrefixed(buf, e.ContractCode.Code)
	case TTLType:
		buf = append(buf, e.TTL.KeyHash[:]...)
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], e.TTL.LiveUntil)
		buf = append(buf, n[:]...)
	}
	return appendLengthPrefixed(buf, e.Ext)
}

// Encode returns the full canonical encoding, LastModified included.
func (e LedgerEntry) Encode() []byte {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], e.LastModified)
	return append(n[:], e.EncodePayload()...)
}

// Size returns the metered byte size of the entry.
func (e LedgerEntry) Size() uint32 { return uint32(len(e.Encode())) }

// PayloadEqual compares two entries excluding LastModified. Restores from
// the hot archive rewrite LastModified, so archive-side comparisons go
// through this.
func (e LedgerEntry) PayloadEqual(other LedgerEntry) bool {
	return bytes.Equal(e.EncodePayload(), other.EncodePayload())
}

// Equal compares two entries including LastModified.
func (e LedgerEntry) Equal(other LedgerEntry) bool {
	return e.LastModified == other.LastModified && e.PayloadEqual(other)
}

// Copy returns a deep copy of the entry.
func (e LedgerEntry) Copy() LedgerEntry {
	out := e
	out.Ext = common.CopyBytes(e.Ext)
	switch e.Type {
	case AccountType:
		v := *e.Account
		out.Account = &v
	case TrustlineType:
		v := *e.Trustline
		out.Trustline = &v
	case OfferType:
		v := *e.Offer
		out.Offer = &v
	case DataType:
		v := *e.Data
		v.Value = common.CopyBytes(e.Data.Value)
		out.Data = &v
	case ClaimableBalanceType:
		v := *e.ClaimableBalance
		out.ClaimableBalance = &v
	case ContractDataType:
		v := *e.ContractData
		v.Key = common.CopyBytes(e.ContractData.Key)
		v.Val = common.CopyBytes(e.ContractData.Val)
		out.ContractData = &v
	case ContractCodeType:
		v := *e.ContractCode
		v.Code = common.CopyBytes(e.ContractCode.Code)
		out.ContractCode = &v
	case TTLType:
		v := *e.TTL
		out.TTL = &v
	}
	return out
}

func appendUint64(buf []byte, v uint64) []byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], v)
	return append(buf, n[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}
