package uow

import (
	"context"

	"agrilend-settlement/internal/domain/liquidation"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/reconcile"
)

type Repos struct {
	Loans        loan.Repository
	Liquidations liquidation.Repository
	Reconcile    reconcile.Repository
}

type UnitOfWork interface {
	// WithinTx runs fn inside one transaction.
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then passes the fresh copy in.
	// The row lock is what serializes a repayment against a liquidation of
	// the same loan.
	WithinLoanTx(ctx context.Context, loanRef string, fn func(r Repos, l *loan.Loan) error) error
}
