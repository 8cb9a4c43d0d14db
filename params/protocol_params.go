package params

const (
	// MaxContractSizeBytes is the default cap on uploaded contract code.
	MaxContractSizeBytes uint32 = 65536

	// MaxContractDataKeySizeBytes is the default cap on a contract data key.
	MaxContractDataKeySizeBytes uint32 = 200

	// MaxContractDataEntrySizeBytes is the default cap on a contract data
	// entry, key included.
	MaxContractDataEntrySizeBytes uint32 = 65536

	// DefaultTxMemoryLimit is the default per-transaction sandbox memory
	// budget in bytes.
	DefaultTxMemoryLimit uint64 = 41943040

	// DefaultTxMaxContractEventsSizeBytes is the default cap on the total
	// serialized size of contract events plus the return value.
	DefaultTxMaxContractEventsSizeBytes uint32 = 8198

	// DefaultMinPersistentTTL is the default minimum number of ledgers a
	// persistent entry stays live after creation, restoration or bump.
	DefaultMinPersistentTTL uint32 = 4096

	// DefaultMinTemporaryTTL is the default minimum lifetime of a temporary
	// entry in ledgers.
	DefaultMinTemporaryTTL uint32 = 16

	// DefaultMaxEntryTTL caps how far ahead of the current ledger a TTL may
	// be extended.
	DefaultMaxEntryTTL uint32 = 6312000

	// DefaultBaseReserve is the reserve unit reported to the sandbox via
	// ledger info.
	DefaultBaseReserve uint32 = 5000000
)

// NetworkConfig carries the network-wide resource and archival settings
// consulted during apply. It is adjusted by validator votes; this package
// only defines its shape and defaults.
type NetworkConfig struct {
	MaxContractSizeBytes          uint32
	MaxContractDataKeySizeBytes   uint32
	MaxContractDataEntrySizeBytes uint32

	TxMemoryLimit                uint64
	TxMaxContractEventsSizeBytes uint32

	MinPersistentTTL uint32
	MinTemporaryTTL  uint32
	MaxEntryTTL      uint32

	// Cost model parameters forwarded opaquely to the sandbox.
	CPUCostParams []byte
	MemCostParams []byte

	// Rent fee configuration forwarded opaquely to the rent fee function.
	RentFeeConfig RentFeeConfig
}

// RentFeeConfig is the opaque rent pricing handed to the sandbox fee
// functions.
type RentFeeConfig struct {
	FeePerWrite1KB          int64
	FeePerRead1KB           int64
	FeePerContractEvent1KB  int64
	PersistentRentRateDenom int64
	TemporaryRentRateDenom  int64
}

// DefaultNetworkConfig returns the network settings used before any
// on-network upgrade has been voted.
func DefaultNetworkConfig() *NetworkConfig {
	return &NetworkConfig{
		MaxContractSizeBytes:          MaxContractSizeBytes,
		MaxContractDataKeySizeBytes:   MaxContractDataKeySizeBytes,
		MaxContractDataEntrySizeBytes: MaxContractDataEntrySizeBytes,
		TxMemoryLimit:                 DefaultTxMemoryLimit,
		TxMaxContractEventsSizeBytes:  DefaultTxMaxContractEventsSizeBytes,
		MinPersistentTTL:              DefaultMinPersistentTTL,
		MinTemporaryTTL:               DefaultMinTemporaryTTL,
		MaxEntryTTL:                   DefaultMaxEntryTTL,
		RentFeeConfig: RentFeeConfig{
			FeePerWrite1KB:          1000,
			FeePerRead1KB:           500,
			FeePerContractEvent1KB:  1024,
			PersistentRentRateDenom: 1402,
			TemporaryRentRateDenom:  2804,
		},
	}
}
