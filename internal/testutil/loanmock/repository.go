// Package loanmock is a function-backed mock of the loan repository. Only the
// methods a test sets are live; the rest return a sentinel.
package loanmock

import (
	"context"
	"errors"

	domain "agrilend-settlement/internal/domain/loan"
)

var ErrNotImplemented = errors.New("loanmock: not implemented")

type Repo struct {
	CreateFn                 func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn            func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn   func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetOpenByCollateralRefFn func(ctx context.Context, collateralRef string) (*domain.Loan, error)
	ListByStatusFn           func(ctx context.Context, status domain.Status) ([]*domain.Loan, error)
	SaveFn                   func(ctx context.Context, l *domain.Loan) error
	AppendPaymentFn          func(ctx context.Context, p *domain.Payment) error
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, ErrNotImplemented
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, ErrNotImplemented
}

func (m *Repo) GetOpenByCollateralRef(ctx context.Context, collateralRef string) (*domain.Loan, error) {
	if m.GetOpenByCollateralRefFn != nil {
		return m.GetOpenByCollateralRefFn(ctx, collateralRef)
	}
	return nil, ErrNotImplemented
}

func (m *Repo) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Loan, error) {
	if m.ListByStatusFn != nil {
		return m.ListByStatusFn(ctx, status)
	}
	return nil, ErrNotImplemented
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) AppendPayment(ctx context.Context, p *domain.Payment) error {
	if m.AppendPaymentFn != nil {
		return m.AppendPaymentFn(ctx, p)
	}
	return nil
}
