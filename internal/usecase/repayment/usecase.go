package repayment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/caller"
	"agrilend-settlement/internal/domain/collab"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/reconcile"
	"agrilend-settlement/internal/domain/uow"
	"agrilend-settlement/internal/usecase/accounting"
	"agrilend-settlement/pkg/id"
)

// Usecase owns the loan ledger: origination, the repayment flow and the debt
// reads. It is the only component that mutates Loan and Payment state.
type Usecase struct {
	uow      uow.UnitOfWork
	registry collab.CollateralRegistry
	rail     collab.PaymentRail
	treasury collab.Treasury
	params   accounting.Params
	minAmt   int64
	logger   *slog.Logger
	now      func() time.Time
}

func NewUsecase(u uow.UnitOfWork, registry collab.CollateralRegistry, rail collab.PaymentRail,
	treasury collab.Treasury, params accounting.Params, minRepayment int64, logger *slog.Logger) *Usecase {
	return &Usecase{
		uow:      u,
		registry: registry,
		rail:     rail,
		treasury: treasury,
		params:   params,
		minAmt:   minRepayment,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source; tests only.
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// ---- origination ----

func (u *Usecase) Create(ctx context.Context, c caller.Context, in CreateLoanInput) (*LoanDTO, error) {
	if c.Role != caller.RoleBorrower || c.BorrowerID == "" {
		return nil, loan.ErrUnauthorized
	}
	if in.CollateralRef == "" || in.PrincipalApproved <= 0 || in.AnnualRateBps < 0 {
		return nil, fmt.Errorf("%w: collateral_ref and positive principal required", loan.ErrValidation)
	}

	var dto *LoanDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		// One open loan per collateral token.
		open, err := r.Loans.GetOpenByCollateralRef(ctx, in.CollateralRef)
		switch {
		case err == nil:
			return fmt.Errorf("%w: collateral %s already backs loan %s", loan.ErrValidation, in.CollateralRef, open.LoanID)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		l := &loan.Loan{
			LoanID:            id.NewID32(),
			BorrowerID:        c.BorrowerID,
			CollateralRef:     in.CollateralRef,
			PrincipalApproved: in.PrincipalApproved,
			AnnualRateBps:     in.AnnualRateBps,
			TermDays:          in.TermDays,
			Status:            loan.StatusDraft,
			StatusUpdatedAt:   u.now(),
		}
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		dto = toLoanDTO(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (u *Usecase) Submit(ctx context.Context, c caller.Context, loanRef string) (*LoanDTO, error) {
	return u.transition(ctx, loanRef, loan.StatusPendingApproval, func(l *loan.Loan) error {
		return caller.RequireBorrower(c, l.BorrowerID)
	}, nil)
}

func (u *Usecase) Approve(ctx context.Context, c caller.Context, loanRef string) (*LoanDTO, error) {
	return u.transition(ctx, loanRef, loan.StatusApproved, func(l *loan.Loan) error {
		return caller.RequireAdmin(c)
	}, nil)
}

// Disburse activates the loan: locks the collateral in the registry, stamps
// the accrual start and derives the due date from the term.
func (u *Usecase) Disburse(ctx context.Context, c caller.Context, loanRef string) (*LoanDTO, error) {
	return u.transition(ctx, loanRef, loan.StatusActive, func(l *loan.Loan) error {
		return caller.RequireAdmin(c)
	}, func(ctx context.Context, l *loan.Loan) error {
		if err := u.registry.Lock(ctx, l.CollateralRef, l.LoanID); err != nil {
			return fmt.Errorf("%w: lock collateral: %v", collab.ErrCollaborator, err)
		}
		now := u.now()
		l.DisbursedAt = &now
		if l.TermDays > 0 {
			due := now.AddDate(0, 0, l.TermDays)
			l.DueAt = &due
		}
		return nil
	})
}

func (u *Usecase) MarkDefaulted(ctx context.Context, c caller.Context, loanRef string) (*LoanDTO, error) {
	return u.transition(ctx, loanRef, loan.StatusDefaulted, func(l *loan.Loan) error {
		return caller.RequireAdmin(c)
	}, nil)
}

// transition is the single write path for plain status moves. authz runs on
// the locked row; prep may add side effects before the save.
func (u *Usecase) transition(ctx context.Context, loanRef string, to loan.Status,
	authz func(*loan.Loan) error, prep func(context.Context, *loan.Loan) error) (*LoanDTO, error) {
	var dto *LoanDTO
	err := u.uow.WithinLoanTx(ctx, loanRef, func(r uow.Repos, l *loan.Loan) error {
		if err := authz(l); err != nil {
			return err
		}
		if !l.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", loan.ErrInvalidState, l.Status, to)
		}
		if prep != nil {
			if err := prep(ctx, l); err != nil {
				return err
			}
		}
		l.Status = to
		l.StatusUpdatedAt = u.now()
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		dto = toLoanDTO(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (u *Usecase) Get(ctx context.Context, loanRef string) (*LoanDTO, error) {
	l, err := u.load(ctx, loanRef)
	if err != nil {
		return nil, err
	}
	return toLoanDTO(l), nil
}

// ---- repayment ----

// RecordRepayment settles (if needed) and records one repayment. The loan row
// is locked for the whole allocation so a concurrent liquidation of the same
// loan serializes against it; status is re-read inside the lock, never trusted
// from before.
func (u *Usecase) RecordRepayment(ctx context.Context, c caller.Context, in RepayInput) (*RepaymentOutcome, error) {
	if in.Amount < u.minAmt {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", loan.ErrValidation, in.Amount, u.minAmt)
	}

	// Pre-check authorization and status before moving any funds.
	pre, err := u.load(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireBorrower(c, pre.BorrowerID); err != nil {
		return nil, err
	}
	if pre.Status != loan.StatusActive {
		return nil, fmt.Errorf("%w: loan is %s, repayment needs active", loan.ErrInvalidState, pre.Status)
	}

	txRef := in.TxRef
	railPulled := false
	if txRef == "" {
		// The rail pull runs outside the locked transaction, so the amount is
		// vetted against a fresh snapshot first. Debt never shrinks with time,
		// so an amount inside the tolerance band here stays inside it when the
		// allocation runs.
		snap := accounting.TakeSnapshot(pre, u.now(), u.params)
		if _, err := accounting.Allocate(in.Amount, snap, u.params); err != nil {
			return nil, err
		}
		ref, err := u.rail.TransferIn(ctx, c.BorrowerID, in.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: payment rail transfer: %v", collab.ErrCollaborator, err)
		}
		txRef = string(ref)
		railPulled = true
	}

	var out *RepaymentOutcome
	err = u.uow.WithinLoanTx(ctx, in.LoanID, func(r uow.Repos, l *loan.Loan) error {
		// Status may have changed while we were settling funds.
		if l.Status != loan.StatusActive {
			return fmt.Errorf("%w: loan is %s, repayment needs active", loan.ErrInvalidState, l.Status)
		}

		now := u.now()
		snap := accounting.TakeSnapshot(l, now, u.params)
		breakdown, err := accounting.Allocate(in.Amount, snap, u.params)
		if err != nil {
			return err
		}

		p := &loan.Payment{
			PaymentID:         id.NewID32(),
			LoanID:            l.ID,
			Amount:            in.Amount,
			Kind:              breakdown.Kind(),
			PrincipalAmount:   breakdown.PrincipalAmount,
			InterestAmount:    breakdown.InterestAmount,
			PenaltyAmount:     breakdown.PenaltyAmount,
			ProtocolFeeAmount: breakdown.ProtocolFeeAmount,
			TxRef:             txRef,
			PaidAt:            now,
		}
		if err := r.Loans.AppendPayment(ctx, p); err != nil {
			return err
		}
		l.TotalRepaid += in.Amount
		l.Payments = append(l.Payments, *p)

		after := accounting.TakeSnapshot(l, now, u.params)
		released := false
		if after.TotalDebt <= 0 {
			l.Status = loan.StatusRepaid
			l.StatusUpdatedAt = now
			released = u.releaseCollateral(ctx, r, l)
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}

		if breakdown.ProtocolFeeAmount > 0 {
			if err := u.treasury.CollectFee(ctx, l.LoanID, breakdown.ProtocolFeeAmount, "interest_share"); err != nil {
				u.logger.Warn("fee collection failed, queued for reconciliation",
					"loan_id", l.LoanID, "amount", breakdown.ProtocolFeeAmount, "error", err)
				if qerr := r.Reconcile.Create(ctx, &reconcile.Task{
					TaskID:      id.NewID32(),
					LoanRef:     l.LoanID,
					Kind:        reconcile.KindFee,
					Amount:      breakdown.ProtocolFeeAmount,
					FeeKind:     "interest_share",
					Status:      reconcile.StatusPending,
					NextRetryAt: now,
				}); qerr != nil {
					return qerr
				}
			}
		}

		out = &RepaymentOutcome{
			PaymentID:          p.PaymentID,
			Status:             string(l.Status),
			RemainingDebt:      after.TotalDebt,
			CollateralReleased: released,
			Breakdown:          breakdown,
			TxRef:              txRef,
		}
		return nil
	})
	if err != nil {
		if railPulled {
			u.queueRefund(ctx, in.LoanID, c.BorrowerID, in.Amount, txRef, err)
		}
		return nil, err
	}
	return out, nil
}

// queueRefund returns funds that were pulled through the rail for a repayment
// the locked transaction then rejected (a liquidation winning the race, or any
// persistence failure). The pull cannot be rolled back, so the money goes back
// through a reconcile task instead of being stranded.
func (u *Usecase) queueRefund(ctx context.Context, loanRef, borrowerID string, amount int64, txRef string, cause error) {
	u.logger.Warn("repayment rejected after rail settlement, queueing refund",
		"loan_id", loanRef, "payee", borrowerID, "amount", amount, "tx_ref", txRef, "error", cause)
	qerr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		return r.Reconcile.Create(ctx, &reconcile.Task{
			TaskID:      id.NewID32(),
			LoanRef:     loanRef,
			Kind:        reconcile.KindRefund,
			Amount:      amount,
			PayeeRef:    borrowerID,
			Status:      reconcile.StatusPending,
			NextRetryAt: u.now(),
		})
	})
	if qerr != nil {
		u.logger.Error("refund task could not be queued, funds need manual return",
			"loan_id", loanRef, "payee", borrowerID, "amount", amount, "tx_ref", txRef, "error", qerr)
	}
}

// releaseCollateral unlocks the token on full repayment. Unlock is idempotent
// at the registry; a failure is queued for reconciliation rather than holding
// the repayment hostage.
func (u *Usecase) releaseCollateral(ctx context.Context, r uow.Repos, l *loan.Loan) bool {
	if err := u.registry.Unlock(ctx, l.CollateralRef); err != nil {
		u.logger.Warn("collateral unlock failed, queued for reconciliation",
			"loan_id", l.LoanID, "collateral_ref", l.CollateralRef, "error", err)
		_ = r.Reconcile.Create(ctx, &reconcile.Task{
			TaskID:      id.NewID32(),
			LoanRef:     l.LoanID,
			Kind:        reconcile.KindUnlock,
			TokenRef:    l.CollateralRef,
			Status:      reconcile.StatusPending,
			NextRetryAt: u.now(),
		})
		return false
	}
	return true
}

// GetSummary is a pure read of the current debt position.
func (u *Usecase) GetSummary(ctx context.Context, loanRef string) (*Summary, error) {
	l, err := u.load(ctx, loanRef)
	if err != nil {
		return nil, err
	}
	snap := accounting.TakeSnapshot(l, u.now(), u.params)
	return &Summary{
		LoanID:               l.LoanID,
		Status:               string(l.Status),
		TotalDebt:            snap.TotalDebt,
		PrincipalOutstanding: snap.PrincipalOutstanding,
		InterestOutstanding:  snap.InterestOutstanding,
		PenaltyOutstanding:   snap.PenaltyOutstanding,
		TotalRepaid:          l.TotalRepaid,
		Overdue:              snap.Overdue,
		DaysOverdue:          snap.DaysOverdue,
	}, nil
}

// EarlyDiscount is advisory: callers decide whether to use it before repaying.
func (u *Usecase) EarlyDiscount(ctx context.Context, loanRef string) (*DiscountDTO, error) {
	l, err := u.load(ctx, loanRef)
	if err != nil {
		return nil, err
	}
	now := u.now()
	snap := accounting.TakeSnapshot(l, now, u.params)
	discount := accounting.EarlyRepaymentDiscount(l, now, u.params)
	return &DiscountDTO{
		LoanID:         l.LoanID,
		DiscountAmount: discount,
		PayoffAmount:   snap.TotalDebt - discount,
	}, nil
}

func (u *Usecase) load(ctx context.Context, loanRef string) (*loan.Loan, error) {
	var out *loan.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByLoanID(ctx, loanRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return loan.ErrNotFound
			}
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toLoanDTO(l *loan.Loan) *LoanDTO {
	return &LoanDTO{
		LoanID:            l.LoanID,
		BorrowerID:        l.BorrowerID,
		CollateralRef:     l.CollateralRef,
		PrincipalApproved: l.PrincipalApproved,
		AnnualRateBps:     l.AnnualRateBps,
		TermDays:          l.TermDays,
		Status:            string(l.Status),
		TotalRepaid:       l.TotalRepaid,
		DisbursedAt:       l.DisbursedAt,
		DueAt:             l.DueAt,
		CreatedAt:         l.CreatedAt,
	}
}
