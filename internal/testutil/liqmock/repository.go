// Package liqmock is a function-backed mock of the liquidation repository.
package liqmock

import (
	"context"

	"gorm.io/gorm"

	domain "agrilend-settlement/internal/domain/liquidation"
)

type Repo struct {
	CreateFn       func(ctx context.Context, r *domain.Record) error
	GetByLoanIDFn  func(ctx context.Context, loanID uint64) (*domain.Record, error)
	GetByLoanRefFn func(ctx context.Context, loanRef string) (*domain.Record, error)
	StatsFn        func(ctx context.Context) (*domain.Statistics, error)
}

func (m *Repo) Create(ctx context.Context, r *domain.Record) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, r)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID uint64) (*domain.Record, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	// Default to "no record yet": the common starting state for executor tests.
	return nil, gorm.ErrRecordNotFound
}

func (m *Repo) GetByLoanRef(ctx context.Context, loanRef string) (*domain.Record, error) {
	if m.GetByLoanRefFn != nil {
		return m.GetByLoanRefFn(ctx, loanRef)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *Repo) Stats(ctx context.Context) (*domain.Statistics, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}
	return &domain.Statistics{}, nil
}
