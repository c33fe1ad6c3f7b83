package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func repos(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:        &LoanRepository{db: tx},
		Liquidations: &LiquidationRepository{db: tx},
		Reconcile:    &ReconcileRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanRef string, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := repos(tx)
		// Lock the loan row up-front: for this loan, repayment and
		// liquidation are atomic with respect to each other.
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, loanRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return loan.ErrNotFound
			}
			return err
		}
		return fn(r, l)
	})
}
