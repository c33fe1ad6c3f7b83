// Package liquidation drives the liquidation protocol: eligibility
// re-validation, the double-liquidation guard, collateral seizure, attestation,
// loss accounting and record persistence. Seizure is the hard commit point:
// everything before it aborts cleanly, everything after it is logged and
// reconciled, never rolled back.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/caller"
	"agrilend-settlement/internal/domain/collab"
	liqdomain "agrilend-settlement/internal/domain/liquidation"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/reconcile"
	"agrilend-settlement/internal/domain/uow"
	"agrilend-settlement/internal/usecase/accounting"
	"agrilend-settlement/internal/usecase/risk"
	"agrilend-settlement/pkg/id"
)

type Usecase struct {
	uow           uow.UnitOfWork
	registry      collab.CollateralRegistry
	oracle        collab.PriceOracle
	attestor      collab.AttestationService
	treasury      collab.Treasury
	riskParams    risk.Params
	acctParams    accounting.Params
	minConfidence decimal.Decimal
	wallet        string
	logger        *slog.Logger
	now           func() time.Time
}

func NewUsecase(u uow.UnitOfWork, registry collab.CollateralRegistry, oracle collab.PriceOracle,
	attestor collab.AttestationService, treasury collab.Treasury,
	rp risk.Params, ap accounting.Params, minConfidence decimal.Decimal,
	liquidationWallet string, logger *slog.Logger) *Usecase {
	return &Usecase{
		uow:           u,
		registry:      registry,
		oracle:        oracle,
		attestor:      attestor,
		treasury:      treasury,
		riskParams:    rp,
		acctParams:    ap,
		minConfidence: minConfidence,
		wallet:        liquidationWallet,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source; tests only.
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// CheckEligibility is a pure read; it may be polled any number of times.
func (u *Usecase) CheckEligibility(ctx context.Context, c caller.Context, loanRef string) (*risk.Verdict, error) {
	if err := caller.RequireOperator(c); err != nil {
		return nil, err
	}
	l, err := u.load(ctx, loanRef)
	if err != nil {
		return nil, err
	}
	value, err := u.collateralValue(ctx, l.CollateralRef)
	if err != nil {
		return nil, err
	}
	v := risk.Evaluate(l, value, u.now(), u.riskParams, u.acctParams)
	return &v, nil
}

// ListEligible sweeps all active loans. One loan's oracle trouble never hides
// the rest of the book.
func (u *Usecase) ListEligible(ctx context.Context, c caller.Context) ([]risk.Verdict, error) {
	if err := caller.RequireOperator(c); err != nil {
		return nil, err
	}
	var active []*loan.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		active, err = r.Loans.ListByStatus(ctx, loan.StatusActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	verdicts := make([]risk.Verdict, 0)
	for _, l := range active {
		value, err := u.collateralValue(ctx, l.CollateralRef)
		if err != nil {
			u.logger.Warn("skipping loan in eligibility sweep", "loan_id", l.LoanID, "error", err)
			continue
		}
		if v := risk.Evaluate(l, value, now, u.riskParams, u.acctParams); v.IsEligible {
			verdicts = append(verdicts, v)
		}
	}
	return verdicts, nil
}

// Trigger runs the full liquidation protocol for one loan.
func (u *Usecase) Trigger(ctx context.Context, c caller.Context, loanRef string) (*liqdomain.Record, error) {
	if err := caller.RequireOperator(c); err != nil {
		return nil, err
	}
	return u.execute(ctx, c, loanRef, "", false)
}

// Emergency bypasses the threshold checks (not the double-liquidation guard)
// for out-of-band legal or compliance triggers. Admin only; also accepts
// loans already marked defaulted.
func (u *Usecase) Emergency(ctx context.Context, c caller.Context, loanRef string, reason liqdomain.Reason) (*liqdomain.Record, error) {
	if err := caller.RequireAdmin(c); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = liqdomain.ReasonAdminForced
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: unknown liquidation reason %q", loan.ErrValidation, reason)
	}
	return u.execute(ctx, c, loanRef, reason, true)
}

// ItemResult is one entry of a bulk run; failures carry the error text so a
// partial batch still reports per-item outcomes.
type ItemResult struct {
	LoanRef string            `json:"loan_id"`
	Record  *liqdomain.Record `json:"record,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// TriggerBulk runs the protocol per loan independently; one failure does not
// block the batch.
func (u *Usecase) TriggerBulk(ctx context.Context, c caller.Context, loanRefs []string) ([]ItemResult, error) {
	if err := caller.RequireOperator(c); err != nil {
		return nil, err
	}
	results := make([]ItemResult, 0, len(loanRefs))
	for _, ref := range loanRefs {
		rec, err := u.execute(ctx, c, ref, "", false)
		item := ItemResult{LoanRef: ref, Record: rec}
		if err != nil {
			item.Error = err.Error()
			u.logger.Warn("bulk liquidation item failed", "loan_id", ref, "error", err)
		}
		results = append(results, item)
	}
	return results, nil
}

// execute is the liquidation state machine for one call. The whole protocol
// runs on the locked loan row, so the status check immediately before seizure
// reads fresh state: a repayment that won the race flips the loan away from
// active and this call aborts before touching the registry.
func (u *Usecase) execute(ctx context.Context, c caller.Context, loanRef string, forcedReason liqdomain.Reason, emergency bool) (*liqdomain.Record, error) {
	var rec *liqdomain.Record
	var seizedRef string
	var seizedDebt int64
	err := u.uow.WithinLoanTx(ctx, loanRef, func(r uow.Repos, l *loan.Loan) error {
		// Double-liquidation guard before any effect.
		if _, err := r.Liquidations.GetByLoanID(ctx, l.ID); err == nil {
			return liqdomain.ErrAlreadyLiquidated
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if emergency {
			if l.Status != loan.StatusActive && l.Status != loan.StatusDefaulted {
				return fmt.Errorf("%w: loan is %s", loan.ErrInvalidState, l.Status)
			}
		} else if l.Status != loan.StatusActive {
			return fmt.Errorf("%w: loan is %s, liquidation needs active", loan.ErrInvalidState, l.Status)
		}

		now := u.now()
		reason := forcedReason
		var collateralValue int64
		if emergency {
			// Threshold checks bypassed; valuation recorded best-effort.
			if v, err := u.collateralValue(ctx, l.CollateralRef); err == nil {
				collateralValue = v
			} else {
				u.logger.Warn("emergency liquidation without valuation", "loan_id", l.LoanID, "error", err)
			}
		} else {
			// Re-validate eligibility at execution time; the trigger may be
			// stale by the time it runs.
			value, err := u.collateralValue(ctx, l.CollateralRef)
			if err != nil {
				return err
			}
			verdict := risk.Evaluate(l, value, now, u.riskParams, u.acctParams)
			if !verdict.IsEligible {
				return fmt.Errorf("%w: days_overdue=%d health_ratio=%s",
					liqdomain.ErrNotEligible, verdict.DaysOverdue, verdict.HealthRatio)
			}
			reason = verdict.Reason
			collateralValue = value
		}

		snap := accounting.TakeSnapshot(l, now, u.acctParams)

		// Hard commit point. Failure here aborts with no state change and the
		// call is safe to retry.
		if err := u.registry.Seize(ctx, l.CollateralRef, u.wallet); err != nil {
			return fmt.Errorf("%w: seize collateral: %v", collab.ErrCollaborator, err)
		}
		seizedRef = l.CollateralRef
		seizedDebt = snap.TotalDebt

		// Attestation is advisory evidence, not a blocking precondition.
		attestation := ""
		msg := CanonicalMessage(l.LoanID, l.CollateralRef, snap.TotalDebt, now)
		if sig, err := u.attestor.Sign(ctx, msg); err != nil {
			u.logger.Warn("attestation unavailable, proceeding without signature",
				"loan_id", l.LoanID, "error", err)
		} else {
			attestation = fmt.Sprintf("%x", sig)
		}

		// Seizure is irreversible, so a loss-recording failure is queued for
		// retry, never rolled back.
		if err := u.treasury.RecordLoss(ctx, l.LoanID, snap.TotalDebt); err != nil {
			u.logger.Warn("loss recording failed, queued for reconciliation",
				"loan_id", l.LoanID, "amount", snap.TotalDebt, "error", err)
			if qerr := r.Reconcile.Create(ctx, &reconcile.Task{
				TaskID:      id.NewID32(),
				LoanRef:     l.LoanID,
				Kind:        reconcile.KindLoss,
				Amount:      snap.TotalDebt,
				Status:      reconcile.StatusPending,
				NextRetryAt: now,
			}); qerr != nil {
				return qerr
			}
		}

		l.Status = loan.StatusLiquidated
		l.StatusUpdatedAt = now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}

		rec = &liqdomain.Record{
			RecordID:        id.NewID32(),
			LoanID:          l.ID,
			LoanRef:         l.LoanID,
			CollateralRef:   l.CollateralRef,
			OutstandingDebt: snap.TotalDebt,
			CollateralValue: collateralValue,
			Reason:          reason,
			LiquidatedBy:    liquidatedBy(c),
			Recipient:       u.wallet,
			Attestation:     attestation,
			LiquidatedAt:    now,
		}
		return r.Liquidations.Create(ctx, rec)
	})
	if err != nil {
		// A failure past the seizure rolls the transaction back but not the
		// registry: the collateral sits in the liquidation wallet while the
		// loan row still reads active, and a retry would seize again. Surface
		// the full payload for manual repair.
		if seizedRef != "" {
			u.logger.Error("collateral seized but liquidation not persisted, manual repair needed",
				"loan_id", loanRef, "collateral_ref", seizedRef, "recipient", u.wallet,
				"outstanding_debt", seizedDebt, "error", err)
		}
		return nil, err
	}
	u.logger.Info("loan liquidated",
		"loan_id", rec.LoanRef, "reason", rec.Reason, "outstanding_debt", rec.OutstandingDebt)
	return rec, nil
}

// GetRecord returns the liquidation record for a loan, if one exists.
func (u *Usecase) GetRecord(ctx context.Context, loanRef string) (*liqdomain.Record, error) {
	var rec *liqdomain.Record
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		got, err := r.Liquidations.GetByLoanRef(ctx, loanRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return liqdomain.ErrNoRecord
			}
			return err
		}
		rec = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (u *Usecase) Stats(ctx context.Context) (*liqdomain.Statistics, error) {
	var stats *liqdomain.Statistics
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		stats, err = r.Liquidations.Stats(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// collateralValue fetches and validates a fresh valuation. Stale or
// low-confidence data never feeds a liquidation decision.
func (u *Usecase) collateralValue(ctx context.Context, collateralRef string) (int64, error) {
	v, err := u.oracle.CurrentValue(ctx, collateralRef)
	if err != nil {
		return 0, fmt.Errorf("%w: price oracle: %v", collab.ErrCollaborator, err)
	}
	if !v.Usable(u.minConfidence) {
		return 0, fmt.Errorf("%w: stale=%v confidence=%s",
			collab.ErrStaleValuation, v.IsStale, v.Confidence)
	}
	return v.Amount, nil
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

func liquidatedBy(c caller.Context) string {
	switch c.Role {
	case caller.RoleScheduler:
		return "system"
	case caller.RoleAdmin:
		return "admin"
	default:
		return string(c.Role)
	}
}

// CanonicalMessage is the byte string the attestation service signs. The
// format is part of the protocol's evidence trail; do not change it without
// versioning the prefix.
func CanonicalMessage(loanRef, collateralRef string, outstandingDebt int64, ts time.Time) []byte {
	return []byte(fmt.Sprintf("agrilend.liquidation.v1|%s|%s|%d|%d",
		loanRef, collateralRef, outstandingDebt, ts.Unix()))
}
