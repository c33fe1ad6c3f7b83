package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "agrilend-settlement/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	// Omit the association: payments are append-only and written through
	// AppendPayment, never upserted alongside the loan row.
	return r.db.WithContext(ctx).Omit("Payments").Save(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("loan_id = ?", loanID).
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("loan_id = ?", loanID).
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) GetOpenByCollateralRef(ctx context.Context, collateralRef string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("collateral_ref = ? AND status NOT IN ?", collateralRef,
			[]loanDomain.Status{loanDomain.StatusRepaid, loanDomain.StatusLiquidated}).
		Order("id DESC").
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) ListByStatus(ctx context.Context, status loanDomain.Status) ([]*loanDomain.Loan, error) {
	var out []*loanDomain.Loan
	res := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("status = ?", status).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) AppendPayment(ctx context.Context, p *loanDomain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}
