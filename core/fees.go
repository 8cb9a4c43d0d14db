package core

import "github.com/Bloxxix/stellar-core/params"

// RefundableFeeTracker holds the transaction's refundable fee budget. Rent
// fees and event bytes are charged against it; whatever is left refunds to
// the submitter after the transaction.
type RefundableFeeTracker struct {
	available int64
	consumed  int64

	eventBytes uint32
	rentFee    int64
}

// NewRefundableFeeTracker starts a tracker over the declared refundable fee.
func NewRefundableFeeTracker(available int64) *RefundableFeeTracker {
	return &RefundableFeeTracker{available: available}
}

// eventByteFee prices event bytes, rounding the kilobyte fee up.
func eventByteFee(eventBytes uint32, cfg *params.NetworkConfig) int64 {
	if eventBytes == 0 {
		return 0
	}
	return (int64(eventBytes)*cfg.RentFeeConfig.FeePerContractEvent1KB + 1023) / 1024
}

// Consume charges event bytes and a rent fee against the remaining budget.
// On shortfall nothing is consumed, a diagnostic naming the shortfall is
// pushed, and false is returned.
func (t *RefundableFeeTracker) Consume(eventBytes uint32, rentFee int64, cfg *params.NetworkConfig, diag *DiagnosticEventManager) bool {
	fee := rentFee + eventByteFee(eventBytes, cfg)
	if fee > t.available-t.consumed {
		diag.PushError("refundable resource fee exceeds remaining refundable fee",
			U64Val(uint64(fee)), U64Val(uint64(t.available-t.consumed)))
		return false
	}
	t.consumed += fee
	t.eventBytes += eventBytes
	t.rentFee += rentFee
	return true
}

// Consumed returns the total refundable fee charged so far.
func (t *RefundableFeeTracker) Consumed() int64 { return t.consumed }

// Remaining returns the refundable fee still available.
func (t *RefundableFeeTracker) Remaining() int64 { return t.available - t.consumed }
