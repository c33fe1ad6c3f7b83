package loan

import (
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusActive          Status = "active"
	StatusRepaid          Status = "repaid"
	StatusDefaulted       Status = "defaulted"
	StatusLiquidated      Status = "liquidated"
)

// transitions is the only place the state machine is written down. Liquidated
// is reachable from both Active (health/seizure path) and Defaulted.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved},
	StatusApproved:        {StatusActive},
	StatusActive:          {StatusRepaid, StatusDefaulted, StatusLiquidated},
	StatusDefaulted:       {StatusLiquidated},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusRepaid || s == StatusLiquidated
}

type PaymentKind string

const (
	KindPrincipal PaymentKind = "principal"
	KindInterest  PaymentKind = "interest"
	KindPenalty   PaymentKind = "penalty"
	KindMixed     PaymentKind = "mixed"
)

// Loan is one collateral-backed credit line. Amounts are integers in the
// smallest payment unit; rates are basis points.
type Loan struct {
	ID                uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID            string         `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID        string         `gorm:"size:32;index:idx_loans_borrower" json:"borrower_id"`
	CollateralRef     string         `gorm:"size:128;index:idx_loans_collateral" json:"collateral_ref"`
	PrincipalApproved int64          `gorm:"not null" json:"principal_approved"`
	AnnualRateBps     int64          `gorm:"not null" json:"annual_rate_bps"`
	TermDays          int            `gorm:"not null;default:0" json:"term_days"`
	Status            Status         `gorm:"type:enum('draft','pending_approval','approved','active','repaid','defaulted','liquidated');default:'draft'" json:"status"`
	TotalRepaid       int64          `gorm:"not null;default:0" json:"total_repaid"`
	DisbursedAt       *time.Time     `json:"disbursed_at,omitempty"`
	DueAt             *time.Time     `json:"due_at,omitempty"`
	StatusUpdatedAt   time.Time      `gorm:"autoCreateTime" json:"status_updated_at"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Payments is the append-only repayment history; insertion order is
	// chronological order.
	Payments []Payment `gorm:"foreignKey:LoanID;references:ID" json:"repayment_history,omitempty"`
}

func (Loan) TableName() string { return "loans" }

// AccrualStart is the instant interest starts accruing.
func (l *Loan) AccrualStart() time.Time {
	if l.DisbursedAt != nil {
		return *l.DisbursedAt
	}
	return l.CreatedAt
}

// Payment is an immutable record of one repayment event. Created only by the
// repayment flow; never mutated or deleted. The four breakdown fields sum
// exactly to Amount.
type Payment struct {
	ID                uint64      `gorm:"primaryKey;column:id" json:"-"`
	PaymentID         string      `gorm:"size:32;uniqueIndex:ux_payments_payment_id" json:"payment_id"`
	LoanID            uint64      `gorm:"not null;index:idx_payments_loan" json:"-"`
	Amount            int64       `gorm:"not null" json:"amount"`
	Kind              PaymentKind `gorm:"size:16;not null" json:"kind"`
	PrincipalAmount   int64       `gorm:"not null;default:0" json:"principal_amount"`
	InterestAmount    int64       `gorm:"not null;default:0" json:"interest_amount"`
	PenaltyAmount     int64       `gorm:"not null;default:0" json:"penalty_amount"`
	ProtocolFeeAmount int64       `gorm:"not null;default:0" json:"protocol_fee_amount"`
	TxRef             string      `gorm:"size:128" json:"tx_ref,omitempty"`
	PaidAt            time.Time   `gorm:"not null" json:"paid_at"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"-"`
}

func (Payment) TableName() string { return "payments" }
