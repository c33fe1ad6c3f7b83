// Package accounting holds the pure money math of the settlement core: debt
// accrual, repayment allocation and the early-repayment discount. Nothing in
// this package touches storage or collaborators.
//
// Amounts are int64 in the smallest payment unit. Intermediates run through
// decimal to stay overflow-safe and are truncated toward zero at each accrual
// segment boundary, which favors the borrower by at most one unit per segment
// and keeps total debt non-decreasing in time.
package accounting

import (
	"time"

	"github.com/shopspring/decimal"

	"agrilend-settlement/internal/domain/loan"
)

const (
	secondsPerYear = 365 * 24 * 3600
	secondsPerDay  = 24 * 3600
	daysPerMonth   = 30
	bpsDenominator = 10_000
)

// Params are the protocol-level accounting knobs, fixed at process start.
type Params struct {
	PenaltyRateMonthlyBps int64
	// PenaltyCapBps caps accrued penalty at this share of original principal.
	PenaltyCapBps  int64
	ProtocolFeeBps int64
	// OverpayToleranceBps is the accepted band above total debt, in bps of
	// total debt.
	OverpayToleranceBps int64
	// EarlyRepayTermFraction and EarlyRepayDiscountBps drive the advisory
	// early-repayment discount on remaining interest.
	EarlyRepayTermFraction decimal.Decimal
	EarlyRepayDiscountBps  int64
}

// Snapshot is the debt position of a loan at one instant.
type Snapshot struct {
	PrincipalOutstanding int64
	InterestOutstanding  int64
	PenaltyOutstanding   int64
	TotalDebt            int64
	DaysOverdue          int64
	Overdue              bool
}

// segmentInterest accrues simple interest on a fixed outstanding principal
// over one history segment, truncated toward zero.
func segmentInterest(outstanding, annualRateBps int64, elapsed time.Duration) int64 {
	secs := int64(elapsed / time.Second)
	if secs <= 0 || outstanding <= 0 || annualRateBps <= 0 {
		return 0
	}
	return decimal.NewFromInt(outstanding).
		Mul(decimal.NewFromInt(annualRateBps)).
		Mul(decimal.NewFromInt(secs)).
		Div(decimal.NewFromInt(bpsDenominator * secondsPerYear)).
		IntPart()
}

// TakeSnapshot replays the payment history piecewise: interest accrues on the
// principal outstanding at each payment boundary, not on the original
// principal, so partial paydowns stop accruing immediately.
func TakeSnapshot(l *loan.Loan, now time.Time, p Params) Snapshot {
	outstanding := l.PrincipalApproved
	var accruedInterest, paidInterest, paidPenalty int64

	cursor := l.AccrualStart()
	for i := range l.Payments {
		pay := &l.Payments[i]
		accruedInterest += segmentInterest(outstanding, l.AnnualRateBps, pay.PaidAt.Sub(cursor))
		outstanding -= pay.PrincipalAmount
		if outstanding < 0 {
			outstanding = 0
		}
		// The protocol fee is carved out of the interest portion, so it
		// counts as interest paid from the borrower's perspective.
		paidInterest += pay.InterestAmount + pay.ProtocolFeeAmount
		paidPenalty += pay.PenaltyAmount
		cursor = pay.PaidAt
	}
	accruedInterest += segmentInterest(outstanding, l.AnnualRateBps, now.Sub(cursor))

	interestOut := accruedInterest - paidInterest
	if interestOut < 0 {
		interestOut = 0
	}

	days := DaysOverdue(l, now)
	penaltyOut := accruedPenalty(outstanding, l.PrincipalApproved, days, p) - paidPenalty
	if penaltyOut < 0 {
		penaltyOut = 0
	}

	return Snapshot{
		PrincipalOutstanding: outstanding,
		InterestOutstanding:  interestOut,
		PenaltyOutstanding:   penaltyOut,
		TotalDebt:            outstanding + interestOut + penaltyOut,
		DaysOverdue:          days,
		Overdue:              days > 0,
	}
}

// DaysOverdue is whole days past the due date, zero when no due date is set.
func DaysOverdue(l *loan.Loan, now time.Time) int64 {
	if l.DueAt == nil || !now.After(*l.DueAt) {
		return 0
	}
	return int64(now.Sub(*l.DueAt)/time.Second) / secondsPerDay
}

// accruedPenalty applies the monthly penalty rate per full month overdue,
// capped at PenaltyCapBps of the original principal.
func accruedPenalty(outstanding, originalPrincipal, daysOverdue int64, p Params) int64 {
	months := daysOverdue / daysPerMonth
	if months <= 0 || outstanding <= 0 || p.PenaltyRateMonthlyBps <= 0 {
		return 0
	}
	penalty := decimal.NewFromInt(outstanding).
		Mul(decimal.NewFromInt(p.PenaltyRateMonthlyBps)).
		Mul(decimal.NewFromInt(months)).
		Div(decimal.NewFromInt(bpsDenominator)).
		IntPart()
	cap := decimal.NewFromInt(originalPrincipal).
		Mul(decimal.NewFromInt(p.PenaltyCapBps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		IntPart()
	if penalty > cap {
		penalty = cap
	}
	return penalty
}

// EarlyRepaymentDiscount is the advisory discount on remaining interest when a
// loan is fully repaid before the configured fraction of its term has elapsed.
// Never touches principal or penalty. Zero when the loan has no due date.
func EarlyRepaymentDiscount(l *loan.Loan, now time.Time, p Params) int64 {
	if l.DueAt == nil || p.EarlyRepayDiscountBps <= 0 {
		return 0
	}
	start := l.AccrualStart()
	term := l.DueAt.Sub(start)
	if term <= 0 {
		return 0
	}
	cutoff := start.Add(time.Duration(p.EarlyRepayTermFraction.Mul(decimal.NewFromInt(int64(term))).IntPart()))
	if !now.Before(cutoff) {
		return 0
	}
	snap := TakeSnapshot(l, now, p)
	return decimal.NewFromInt(snap.InterestOutstanding).
		Mul(decimal.NewFromInt(p.EarlyRepayDiscountBps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		IntPart()
}
