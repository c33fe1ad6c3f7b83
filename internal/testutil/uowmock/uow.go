// Package uowmock runs unit-of-work callbacks directly against the supplied
// repos, without any transaction. WithinLoanTx fetches the loan through the
// loan repo's locked getter so tests can observe the re-read.
package uowmock

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/uow"
)

type UoW struct {
	Repos uow.Repos
}

func New(r uow.Repos) *UoW { return &UoW{Repos: r} }

func (u *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return fn(u.Repos)
}

func (u *UoW) WithinLoanTx(ctx context.Context, loanRef string, fn func(r uow.Repos, l *loan.Loan) error) error {
	l, err := u.Repos.Loans.GetByLoanIDForUpdate(ctx, loanRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loan.ErrNotFound
		}
		return err
	}
	return fn(u.Repos, l)
}
