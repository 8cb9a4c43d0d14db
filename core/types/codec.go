package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Bloxxix/stellar-core/common"
)

var (
	ErrTruncatedEncoding = errors.New("types: truncated encoding")
	ErrUnknownEntryType  = errors.New("types: unknown entry type")
	ErrTrailingBytes     = errors.New("types: trailing bytes after encoding")
)

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = ErrTruncatedEncoding
	}
}

func (d *decoder) byte() byte {
	if d.err != nil || d.off >= len(d.buf) {
		d.fail()
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) take(n int) []byte {
	if d.err != nil || d.off+n > len(d.buf) {
		d.fail()
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) hash() common.Hash {
	return common.BytesToHash(d.take(common.HashLength))
}

func (d *decoder) accountID() common.AccountID {
	return common.BytesToAccountID(d.take(common.AccountIDLength))
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) int64() int64 { return int64(d.uint64()) }

func (d *decoder) bytes() []byte {
	n := d.uint32()
	if d.err != nil {
		return nil
	}
	return common.CopyBytes(d.take(int(n)))
}

func (d *decoder) string() string { return string(d.bytes()) }

func (d *decoder) done() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return ErrTrailingBytes
	}
	return nil
}

// DecodeKey parses a canonical key encoding.
func DecodeKey(buf []byte) (LedgerKey, error) {
	d := &decoder{buf: buf}
	k, err := decodeKeyBody(d)
	if err != nil {
		return LedgerKey{}, err
	}
	if err := d.done(); err != nil {
		return LedgerKey{}, err
	}
	return k, nil
}

func decodeKeyBody(d *decoder) (LedgerKey, error) {
	t := EntryType(d.byte())
	k := LedgerKey{Type: t}
	switch t {
	case AccountType:
		k.Account = &AccountKey{Account: d.accountID()}
	case TrustlineType:
		k.Trustline = &TrustlineKey{Account: d.accountID(), Asset: d.string()}
	case OfferType:
		k.Offer = &OfferKey{Seller: d.accountID(), OfferID: d.uint64()}
	case DataType:
		k.Data = &DataKey{Account: d.accountID(), Name: d.string()}
	case ClaimableBalanceType:
		k.ClaimableBalance = &ClaimableBalanceKey{BalanceID: d.hash()}
	case ContractDataType:
		k.ContractData = &ContractDataKey{Contract: d.hash(), Durability: Durability(d.byte())}
		k.ContractData.Key = d.bytes()
	case ContractCodeType:
		k.ContractCode = &ContractCodeKey{Hash: d.hash()}
	case TTLType:
		k.TTL = &TTLKeyBody{KeyHash: d.hash()}
	default:
		return LedgerKey{}, fmt.Errorf("%w: %d", ErrUnknownEntryType, t)
	}
	return k, d.err
}

// DecodeEntry parses a full canonical entry encoding, LastModified included.
func DecodeEntry(buf []byte) (LedgerEntry, error) {
	d := &decoder{buf: buf}
	lastModified := d.uint32()
	e, err := decodeEntryPayload(d)
	if err != nil {
		return LedgerEntry{}, err
	}
	e.LastModified = lastModified
	if err := d.done(); err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

func decodeEntryPayload(d *decoder) (LedgerEntry, error) {
	t := EntryType(d.byte())
	e := LedgerEntry{Type: t}
	switch t {
	case AccountType:
		e.Account = &AccountEntry{Account: d.accountID(), Balance: d.int64(), SeqNum: d.uint64()}
	case TrustlineType:
		e.Trustline = &TrustlineEntry{Account: d.accountID(), Asset: d.string(), Balance: d.int64(), Limit: d.int64()}
	case OfferType:
		e.Offer = &OfferEntry{Seller: d.accountID(), OfferID: d.uint64(), Selling: d.string(), Buying: d.string(), Amount: d.int64(), Price: d.int64()}
	case DataType:
		e.Data = &DataEntry{Account: d.accountID(), Name: d.string(), Value: d.bytes()}
	case ClaimableBalanceType:
		e.ClaimableBalance = &ClaimableBalanceEntry{BalanceID: d.hash(), Asset: d.string(), Amount: d.int64()}
	case ContractDataType:
		e.ContractData = &ContractDataEntry{Contract: d.hash(), Durability: Durability(d.byte())}
		e.ContractData.Key = d.bytes()
		e.ContractData.Val = d.bytes()
	case ContractCodeType:
		e.ContractCode = &ContractCodeEntry{Hash: d.hash(), Code: d.bytes()}
	case TTLType:
		e.TTL = &TTLEntry{KeyHash: d.hash(), LiveUntil: d.uint32()}
	default:
		return LedgerEntry{}, fmt.Errorf("%w: %d", ErrUnknownEntryType, t)
	}
	ext := d.bytes()
	if len(ext) > 0 {
		e.Ext = ext
	}
	return e, d.err
}
