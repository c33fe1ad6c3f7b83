package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	// GetByLoanID loads a loan with its payment history in chronological order.
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	// GetByLoanIDForUpdate locks the loan row for the duration of the
	// surrounding transaction.
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	// GetOpenByCollateralRef returns a non-terminal loan holding the given
	// collateral, if any.
	GetOpenByCollateralRef(ctx context.Context, collateralRef string) (*Loan, error)
	ListByStatus(ctx context.Context, status Status) ([]*Loan, error)
	Save(ctx context.Context, l *Loan) error
	// AppendPayment inserts a new immutable payment row.
	AppendPayment(ctx context.Context, p *Payment) error
}
