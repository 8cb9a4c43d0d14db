package core

import (
	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/types"
)

// PaymentOp is the classic value transfer. Classic operations share the
// transactional overlay with contract operations; their wider semantics
// (trustlines, offers, sponsorship) live outside this core.
type PaymentOp struct {
	From   common.AccountID
	To     common.AccountID
	Amount int64
}

type paymentApplier struct {
	op *PaymentOp
}

func (a *paymentApplier) thresholdLevel() ThresholdLevel { return ThresholdMedium }
func (a *paymentApplier) isSoroban() bool                { return false }

func (a *paymentApplier) checkValid(ctx *applyContext) ResultCode {
	if a.op.Amount <= 0 {
		ctx.diag().PushError("payment amount must be positive")
		return ResultMalformed
	}
	if a.op.From == a.op.To {
		ctx.diag().PushError("payment to self")
		return ResultMalformed
	}
	return ResultSuccess
}

func (a *paymentApplier) apply(ctx *applyContext) ResultCode {
	from, ok := ctx.overlay.Load(types.AccountLedgerKey(a.op.From))
	if !ok || from.Account.Balance < a.op.Amount {
		ctx.diag().PushError("source account underfunded",
			U64Val(uint64(a.op.Amount)))
		return ResultFailed
	}
	to, ok := ctx.overlay.Load(types.AccountLedgerKey(a.op.To))
	if !ok {
		ctx.diag().PushError("destination account does not exist")
		return ResultFailed
	}
	from.Account.Balance -= a.op.Amount
	to.Account.Balance += a.op.Amount
	from.LastModified = ctx.header.Seq
	to.LastModified = ctx.header.Seq
	return ResultSuccess
}
