package liquidation

import "context"

type Repository interface {
	// Create inserts a record; the unique index on loan_id makes a second
	// insert for the same loan fail.
	Create(ctx context.Context, r *Record) error
	// GetByLoanID fetches by the numeric loan FK.
	GetByLoanID(ctx context.Context, loanID uint64) (*Record, error)
	// GetByLoanRef fetches by the public loan identifier.
	GetByLoanRef(ctx context.Context, loanRef string) (*Record, error)
	Stats(ctx context.Context) (*Statistics, error)
}
