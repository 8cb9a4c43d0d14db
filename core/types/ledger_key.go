// Package types defines the ledger key and entry model shared by the live
// store, the hot archive and the apply engine.
package types

import (
	"bytes"
	"encoding/binary"

	"github.com/Bloxxix/stellar-core/common"
	"golang.org/x/crypto/sha3"
)

// EntryType tags the variants of the ledger key/entry union. The numeric
// values are part of the canonical encoding and must never be reordered.
type EntryType uint8

const (
	AccountType EntryType = iota
	TrustlineType
	OfferType
	DataType
	ClaimableBalanceType
	ContractDataType
	ContractCodeType
	TTLType
)

// String implements the fmt.Stringer interface.
func (t EntryType) String() string {
	switch t {
	case AccountType:
		return "account"
	case TrustlineType:
		return "trustline"
	case OfferType:
		return "offer"
	case DataType:
		return "data"
	case ClaimableBalanceType:
		return "claimable-balance"
	case ContractDataType:
		return "contract-data"
	case ContractCodeType:
		return "contract-code"
	case TTLType:
		return "ttl"
	default:
		return "unknown"
	}
}

// Durability classifies contract data storage. Temporary entries are deleted
// on expiry; persistent entries are evicted into the hot archive.
type Durability uint8

const (
	Temporary Durability = iota
	Persistent
)

// String implements the fmt.Stringer interface.
func (d Durability) String() string {
	if d == Persistent {
		return "persistent"
	}
	return "temporary"
}

// Per-variant key payloads. Exactly one is set on a LedgerKey, matching its
// Type tag.
type (
	AccountKey struct {
		Account common.AccountID
	}
	TrustlineKey struct {
		Account common.AccountID
		Asset   string
	}
	OfferKey struct {
		Seller  common.AccountID
		OfferID uint64
	}
	DataKey struct {
		Account common.AccountID
		Name    string
	}
	ClaimableBalanceKey struct {
		BalanceID common.Hash
	}
	ContractDataKey struct {
		Contract   common.Hash
		Key        []byte
		Durability Durability
	}
	ContractCodeKey struct {
		Hash common.Hash
	}
	TTLKeyBody struct {
		KeyHash common.Hash
	}
)

// LedgerKey is the tagged union over all key variants. Keys are totally
// ordered by their canonical encoding and compared structurally through it.
type LedgerKey struct {
	Type EntryType

	Account          *AccountKey
	Trustline        *TrustlineKey
	Offer            *OfferKey
	Data             *DataKey
	ClaimableBalance *ClaimableBalanceKey
	ContractData     *ContractDataKey
	ContractCode     *ContractCodeKey
	TTL              *TTLKeyBody
}

// Constructors for the common variants.

func AccountLedgerKey(id common.AccountID) LedgerKey {
	return LedgerKey{Type: AccountType, Account: &AccountKey{Account: id}}
}

func TrustlineLedgerKey(id common.AccountID, asset string) LedgerKey {
	return LedgerKey{Type: TrustlineType, Trustline: &TrustlineKey{Account: id, Asset: asset}}
}

func OfferLedgerKey(seller common.AccountID, offerID uint64) LedgerKey {
	return LedgerKey{Type: OfferType, Offer: &OfferKey{Seller: seller, OfferID: offerID}}
}

func DataLedgerKey(id common.AccountID, name string) LedgerKey {
	return LedgerKey{Type: DataType, Data: &DataKey{Account: id, Name: name}}
}

func ClaimableBalanceLedgerKey(balanceID common.Hash) LedgerKey {
	return LedgerKey{Type: ClaimableBalanceType, ClaimableBalance: &ClaimableBalanceKey{BalanceID: balanceID}}
}

func ContractDataLedgerKey(contract common.Hash, key []byte, durability Durability) LedgerKey {
	return LedgerKey{Type: ContractDataType, ContractData: &ContractDataKey{
		Contract:   contract,
		Key:        common.CopyBytes(key),
		Durability: durability,
	}}
}

func ContractCodeLedgerKey(codeHash common.Hash) LedgerKey {
	return LedgerKey{Type: ContractCodeType, ContractCode: &ContractCodeKey{Hash: codeHash}}
}

// Encode returns the canonical binary encoding of the key: the type tag
// followed by fixed-width big-endian fields, variable fields length-prefixed.
// Lexicographic comparison of encodings is the total key order.
func (k LedgerKey) Encode() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(k.Type))
	switch k.Type {
	case AccountType:
		buf = append(buf, k.Account.Account[:]...)
	case TrustlineType:
		buf = append(buf, k.Trustline.Account[:]...)
		buf = appendLengthPrefixed(buf, []byte(k.Trustline.Asset))
	case OfferType:
		buf = append(buf, k.Offer.Seller[:]...)
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], k.Offer.OfferID)
		buf = append(buf, n[:]...)
	case DataType:
		buf = append(buf, k.Data.Account[:]...)
		buf = appendLengthPrefixed(buf, []byte(k.Data.Name))
	case ClaimableBalanceType:
		buf = append(buf, k.ClaimableBalance.BalanceID[:]...)
	case ContractDataType:
		buf = append(buf, k.ContractData.Contract[:]...)
		buf = append(buf, byte(k.ContractData.Durability))
		buf = appendLengthPrefixed(buf, k.ContractData.Key)
	case ContractCodeType:
		buf = append(buf, k.ContractCode.Hash[:]...)
	case TTLType:
		buf = append(buf, k.TTL.KeyHash[:]...)
	}
	return buf
}

func appendLengthPrefixed(buf, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

// Ordered returns the encoding as a string, usable as a map key and for
// ordered-container comparison.
func (k LedgerKey) Ordered() string { return string(k.Encode()) }

// Compare orders two keys by their canonical encodings.
func (k LedgerKey) Compare(other LedgerKey) int {
	return bytes.Compare(k.Encode(), other.Encode())
}

// Equal reports structural equality of two keys.
func (k LedgerKey) Equal(other LedgerKey) bool {
	return k.Type == other.Type && bytes.Equal(k.Encode(), other.Encode())
}

// Size returns the metered byte size of the key.
func (k LedgerKey) Size() uint32 { return uint32(len(k.Encode())) }

// IsContract reports whether the key names a contract data or code entry.
func (k LedgerKey) IsContract() bool {
	return k.Type == ContractDataType || k.Type == ContractCodeType
}

// IsPersistent reports whether the key names an archivable entry: contract
// code, or contract data with persistent durability.
func (k LedgerKey) IsPersistent() bool {
	switch k.Type {
	case ContractCodeType:
		return true
	case ContractDataType:
		return k.ContractData.Durability == Persistent
	default:
		return false
	}
}

// IsTemporary reports whether the key names temporary contract data.
func (k LedgerKey) IsTemporary() bool {
	return k.Type == ContractDataType && k.ContractData.Durability == Temporary
}

// IsClassic reports whether the key has no TTL concept.
func (k LedgerKey) IsClassic() bool {
	return !k.IsContract() && k.Type != TTLType
}

// TTLKey derives the TTL sibling key for a contract entry key. It panics on
// non-contract keys; callers gate on IsContract.
func TTLKey(k LedgerKey) LedgerKey {
	if !k.IsContract() {
		panic("ttl key requested for non-contract key type " + k.Type.String())
	}
	w := sha3.NewLegacyKeccak256()
	w.Write(k.Encode())
	var h common.Hash
	w.Sum(h[:0])
	return LedgerKey{Type: TTLType, TTL: &TTLKeyBody{KeyHash: h}}
}
