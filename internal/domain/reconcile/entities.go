package reconcile

import (
	"context"
	"time"
)

type Kind string

const (
	// KindLoss is a treasury loss posting that failed during liquidation.
	KindLoss Kind = "loss"
	// KindFee is a protocol-fee collection that failed during repayment.
	KindFee Kind = "fee"
	// KindUnlock is a collateral release that failed after full repayment.
	KindUnlock Kind = "unlock"
	// KindRefund returns rail-settled funds for a repayment that was rejected
	// after the transfer already completed.
	KindRefund Kind = "refund"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusAbandoned Status = "abandoned"
)

// Task is a deferred collaborator posting. Liquidation and repayment never
// block on the treasury or the registry being up; what could not be delivered
// inline lands here and is retried by the worker until it succeeds or runs out
// of attempts.
type Task struct {
	ID          uint64    `gorm:"primaryKey;column:id" json:"-"`
	TaskID      string    `gorm:"size:32;uniqueIndex:ux_reconcile_task_id" json:"task_id"`
	LoanRef     string    `gorm:"size:32;index:idx_reconcile_loan" json:"loan_id"`
	Kind        Kind      `gorm:"size:16;not null" json:"kind"`
	Amount      int64     `gorm:"not null;default:0" json:"amount"`
	FeeKind     string    `gorm:"size:32" json:"fee_kind,omitempty"`
	TokenRef    string    `gorm:"size:128" json:"token_ref,omitempty"`
	PayeeRef    string    `gorm:"size:32" json:"payee_ref,omitempty"`
	Status      Status    `gorm:"size:16;not null;default:'pending'" json:"status"`
	Attempts    int       `gorm:"not null;default:0" json:"attempts"`
	LastError   string    `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt time.Time `gorm:"index:idx_reconcile_due" json:"next_retry_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Task) TableName() string { return "reconcile_tasks" }

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Save(ctx context.Context, t *Task) error
	// ListDue returns pending tasks whose retry time has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Task, error)
}
