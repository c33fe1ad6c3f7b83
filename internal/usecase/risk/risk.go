// Package risk is the stateless liquidation-eligibility evaluator. Evaluate
// performs no mutation and no I/O, so a scheduler can poll it any number of
// times without risk.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"agrilend-settlement/internal/domain/liquidation"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/usecase/accounting"
)

type Params struct {
	GracePeriodDays int64
	// HealthRatioThreshold triggers eligibility on collateral devaluation
	// even inside the grace period.
	HealthRatioThreshold decimal.Decimal
}

// ratioNoDebt stands in for "infinite" when total debt is zero.
var ratioNoDebt = decimal.NewFromInt(999)

type Verdict struct {
	LoanRef            string             `json:"loan_id"`
	IsEligible         bool               `json:"is_eligible"`
	DaysOverdue        int64              `json:"days_overdue"`
	HealthRatio        decimal.Decimal    `json:"health_ratio"`
	GracePeriodExpired bool               `json:"grace_period_expired"`
	Reason             liquidation.Reason `json:"reason,omitempty"`
	TotalDebt          int64              `json:"total_debt"`
	CollateralValue    int64              `json:"collateral_value"`
}

// Evaluate computes the eligibility verdict for a loan against a validated
// collateral valuation. Only Active loans are eligible. When both the overdue
// and the health condition fire, the overdue reason wins: it is the more
// defensible basis in a dispute.
func Evaluate(l *loan.Loan, collateralValue int64, now time.Time, rp Params, ap accounting.Params) Verdict {
	snap := accounting.TakeSnapshot(l, now, ap)

	ratio := ratioNoDebt
	if snap.TotalDebt > 0 {
		ratio = decimal.NewFromInt(collateralValue).
			Div(decimal.NewFromInt(snap.TotalDebt)).Round(6)
	}

	v := Verdict{
		LoanRef:            l.LoanID,
		DaysOverdue:        snap.DaysOverdue,
		HealthRatio:        ratio,
		GracePeriodExpired: snap.DaysOverdue > rp.GracePeriodDays,
		TotalDebt:          snap.TotalDebt,
		CollateralValue:    collateralValue,
	}

	if l.Status != loan.StatusActive {
		return v
	}

	switch {
	case v.GracePeriodExpired:
		v.IsEligible = true
		v.Reason = liquidation.ReasonOverdue
	case ratio.LessThan(rp.HealthRatioThreshold):
		v.IsEligible = true
		v.Reason = liquidation.ReasonHealthRatio
	}
	return v
}
