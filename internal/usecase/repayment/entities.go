package repayment

import (
	"time"

	"agrilend-settlement/internal/usecase/accounting"
)

type CreateLoanInput struct {
	CollateralRef     string `json:"collateral_ref"`
	PrincipalApproved int64  `json:"principal_approved"`
	AnnualRateBps     int64  `json:"annual_rate_bps"`
	TermDays          int    `json:"term_days"`
}

type LoanDTO struct {
	LoanID            string     `json:"loan_id"`
	BorrowerID        string     `json:"borrower_id"`
	CollateralRef     string     `json:"collateral_ref"`
	PrincipalApproved int64      `json:"principal_approved"`
	AnnualRateBps     int64      `json:"annual_rate_bps"`
	TermDays          int        `json:"term_days"`
	Status            string     `json:"status"`
	TotalRepaid       int64      `json:"total_repaid"`
	DisbursedAt       *time.Time `json:"disbursed_at,omitempty"`
	DueAt             *time.Time `json:"due_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type RepayInput struct {
	LoanID string `json:"-"`
	Amount int64  `json:"amount"`
	// TxRef references an already-settled payment-rail transfer. When empty
	// the flow settles through the rail itself first.
	TxRef string `json:"tx_ref,omitempty"`
}

type RepaymentOutcome struct {
	PaymentID          string               `json:"payment_id"`
	Status             string               `json:"status"`
	RemainingDebt      int64                `json:"remaining_debt"`
	CollateralReleased bool                 `json:"collateral_released"`
	Breakdown          accounting.Breakdown `json:"breakdown"`
	TxRef              string               `json:"tx_ref,omitempty"`
}

type Summary struct {
	LoanID               string `json:"loan_id"`
	Status               string `json:"status"`
	TotalDebt            int64  `json:"total_debt"`
	PrincipalOutstanding int64  `json:"principal_outstanding"`
	InterestOutstanding  int64  `json:"interest_outstanding"`
	PenaltyOutstanding   int64  `json:"penalty_outstanding"`
	TotalRepaid          int64  `json:"total_repaid"`
	Overdue              bool   `json:"overdue"`
	DaysOverdue          int64  `json:"days_overdue"`
}

type DiscountDTO struct {
	LoanID         string `json:"loan_id"`
	DiscountAmount int64  `json:"discount_amount"`
	// PayoffAmount is the full-repayment figure after the discount.
	PayoffAmount int64 `json:"payoff_amount"`
}
