package liquidation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyLiquidated = errors.New("loan already liquidated")
	ErrNotEligible       = errors.New("loan not eligible for liquidation")
	ErrNoRecord          = errors.New("no liquidation record for loan")
)

type Reason string

const (
	ReasonOverdue       Reason = "overdue"
	ReasonHealthRatio   Reason = "health_ratio"
	ReasonAdminForced   Reason = "admin_forced"
	ReasonSystemFailure Reason = "system_failure"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonOverdue, ReasonHealthRatio, ReasonAdminForced, ReasonSystemFailure:
		return true
	}
	return false
}

// Record is the append-only account of one executed liquidation. The unique
// index on loan_id is the database half of the one-record-per-loan guarantee;
// the executor checks for an existing record before doing anything else.
type Record struct {
	ID              uint64    `gorm:"primaryKey;column:id" json:"-"`
	RecordID        string    `gorm:"size:32;uniqueIndex:ux_liquidations_record_id" json:"record_id"`
	LoanID          uint64    `gorm:"not null;uniqueIndex:ux_liquidations_loan" json:"-"`
	LoanRef         string    `gorm:"size:32;index:idx_liquidations_loan_ref" json:"loan_id"`
	CollateralRef   string    `gorm:"size:128;not null" json:"collateral_ref"`
	OutstandingDebt int64     `gorm:"not null" json:"outstanding_debt_at_liquidation"`
	CollateralValue int64     `gorm:"not null" json:"collateral_value_at_liquidation"`
	Reason          Reason    `gorm:"size:32;not null" json:"reason"`
	LiquidatedBy    string    `gorm:"size:64;not null" json:"liquidated_by"`
	Recipient       string    `gorm:"size:128;not null" json:"recipient"`
	Attestation     string    `gorm:"type:text" json:"attestation,omitempty"`
	LiquidatedAt    time.Time `gorm:"not null" json:"liquidated_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"-"`
}

func (Record) TableName() string { return "liquidations" }

type Statistics struct {
	TotalLiquidations        int64           `json:"total_liquidations"`
	TotalDebtLiquidated      int64           `json:"total_debt_liquidated"`
	TotalCollateralRecovered int64           `json:"total_collateral_recovered"`
	RecoveryRate             decimal.Decimal `json:"recovery_rate"`
}

// ComputeRecoveryRate derives recovered/debt, zero when nothing liquidated.
func (s *Statistics) ComputeRecoveryRate() {
	if s.TotalDebtLiquidated <= 0 {
		s.RecoveryRate = decimal.Zero
		return
	}
	s.RecoveryRate = decimal.NewFromInt(s.TotalCollateralRecovered).
		Div(decimal.NewFromInt(s.TotalDebtLiquidated)).Round(6)
}
