package accounting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"agrilend-settlement/internal/domain/loan"
)

// Breakdown is how one submitted amount lands on the ledger. The four fields
// sum exactly to the submitted amount; the protocol fee is carved out of the
// interest portion, not added on top.
type Breakdown struct {
	PrincipalAmount   int64 `json:"principal_amount"`
	InterestAmount    int64 `json:"interest_amount"`
	PenaltyAmount     int64 `json:"penalty_amount"`
	ProtocolFeeAmount int64 `json:"protocol_fee_amount"`
}

func (b Breakdown) Sum() int64 {
	return b.PrincipalAmount + b.InterestAmount + b.PenaltyAmount + b.ProtocolFeeAmount
}

// Kind classifies the payment for the ledger record.
func (b Breakdown) Kind() loan.PaymentKind {
	interest := b.InterestAmount + b.ProtocolFeeAmount
	switch {
	case b.PenaltyAmount > 0 && interest == 0 && b.PrincipalAmount == 0:
		return loan.KindPenalty
	case b.PenaltyAmount == 0 && interest > 0 && b.PrincipalAmount == 0:
		return loan.KindInterest
	case b.PenaltyAmount == 0 && interest == 0 && b.PrincipalAmount > 0:
		return loan.KindPrincipal
	default:
		return loan.KindMixed
	}
}

// Allocate applies amount against the snapshot in strict priority order:
// penalty, then interest, then principal. Amounts beyond total debt are
// rejected unless they fall inside the tolerance band, in which case the
// residual folds into the principal component so the breakdown still sums to
// the submitted amount.
func Allocate(amount int64, snap Snapshot, p Params) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fmt.Errorf("%w: amount must be positive", loan.ErrValidation)
	}
	tolerance := decimal.NewFromInt(snap.TotalDebt).
		Mul(decimal.NewFromInt(p.OverpayToleranceBps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		IntPart()
	if amount > snap.TotalDebt+tolerance {
		return Breakdown{}, fmt.Errorf("%w: amount %d exceeds total debt %d beyond tolerance %d",
			loan.ErrValidation, amount, snap.TotalDebt, tolerance)
	}

	remaining := amount
	b := Breakdown{}

	b.PenaltyAmount = min64(remaining, snap.PenaltyOutstanding)
	remaining -= b.PenaltyAmount

	interestPortion := min64(remaining, snap.InterestOutstanding)
	remaining -= interestPortion
	b.ProtocolFeeAmount = decimal.NewFromInt(interestPortion).
		Mul(decimal.NewFromInt(p.ProtocolFeeBps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		IntPart()
	b.InterestAmount = interestPortion - b.ProtocolFeeAmount

	// Whatever is left, including an in-band overshoot, is principal.
	b.PrincipalAmount = remaining

	return b, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
