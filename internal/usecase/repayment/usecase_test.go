package repayment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/caller"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/reconcile"
	"agrilend-settlement/internal/domain/uow"
	"agrilend-settlement/internal/testutil/collabmock"
	"agrilend-settlement/internal/testutil/liqmock"
	"agrilend-settlement/internal/testutil/loanmock"
	"agrilend-settlement/internal/testutil/recmock"
	"agrilend-settlement/internal/testutil/uowmock"
	"agrilend-settlement/internal/usecase/accounting"
)

const (
	loanRef    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	borrowerID = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() accounting.Params {
	return accounting.Params{
		PenaltyRateMonthlyBps:  200,
		PenaltyCapBps:          2000,
		ProtocolFeeBps:         1000,
		OverpayToleranceBps:    50,
		EarlyRepayTermFraction: decimal.NewFromFloat(0.5),
		EarlyRepayDiscountBps:  2000,
	}
}

type fixture struct {
	loans    *loanmock.Repo
	rec      *recmock.Repo
	registry *collabmock.Registry
	rail     *collabmock.Rail
	treasury *collabmock.Treasury
	uc       *Usecase

	appendCalls int
	saveCalls   int
}

// newFixture wires the usecase around a single in-memory loan served through
// both the plain and the locked getter.
func newFixture(t *testing.T, l *loan.Loan, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		rec:      &recmock.Repo{},
		registry: &collabmock.Registry{},
		rail:     &collabmock.Rail{},
		treasury: &collabmock.Treasury{},
	}
	byRef := func(ctx context.Context, ref string) (*loan.Loan, error) {
		if l != nil && ref == l.LoanID {
			return l, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
	f.loans = &loanmock.Repo{
		GetByLoanIDFn:          byRef,
		GetByLoanIDForUpdateFn: byRef,
		AppendPaymentFn: func(ctx context.Context, p *loan.Payment) error {
			f.appendCalls++
			return nil
		},
		SaveFn: func(ctx context.Context, saved *loan.Loan) error {
			f.saveCalls++
			return nil
		},
	}
	u := uowmock.New(uow.Repos{Loans: f.loans, Liquidations: &liqmock.Repo{}, Reconcile: f.rec})
	f.uc = NewUsecase(u, f.registry, f.rail, f.treasury, testParams(), 1_000, testLogger()).
		WithClock(func() time.Time { return now })
	return f
}

func disbursedLoan(t0 time.Time) *loan.Loan {
	due := t0.AddDate(0, 0, 365)
	return &loan.Loan{
		ID:                1,
		LoanID:            loanRef,
		BorrowerID:        borrowerID,
		CollateralRef:     "token-1",
		PrincipalApproved: 1_000_000,
		AnnualRateBps:     1000,
		TermDays:          365,
		Status:            loan.StatusActive,
		DisbursedAt:       &t0,
		DueAt:             &due,
	}
}

// ---- origination ----

func TestCreate_Success(t *testing.T) {
	f := newFixture(t, nil, time.Now().UTC())
	f.loans.GetOpenByCollateralRefFn = func(ctx context.Context, ref string) (*loan.Loan, error) {
		return nil, gorm.ErrRecordNotFound
	}
	var created *loan.Loan
	f.loans.CreateFn = func(ctx context.Context, l *loan.Loan) error {
		created = l
		return nil
	}

	dto, err := f.uc.Create(context.Background(), caller.Borrower(borrowerID), CreateLoanInput{
		CollateralRef:     "token-1",
		PrincipalApproved: 1_000_000,
		AnnualRateBps:     1000,
		TermDays:          365,
	})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if len(dto.LoanID) != 32 {
		t.Fatalf("loan id length = %d", len(dto.LoanID))
	}
	if dto.Status != string(loan.StatusDraft) {
		t.Fatalf("status = %s, want draft", dto.Status)
	}
	if created == nil || created.BorrowerID != borrowerID {
		t.Fatalf("created = %+v", created)
	}
}

func TestCreate_RejectsSecondLoanOnSameCollateral(t *testing.T) {
	f := newFixture(t, nil, time.Now().UTC())
	f.loans.GetOpenByCollateralRefFn = func(ctx context.Context, ref string) (*loan.Loan, error) {
		return &loan.Loan{LoanID: loanRef, CollateralRef: ref, Status: loan.StatusActive}, nil
	}

	_, err := f.uc.Create(context.Background(), caller.Borrower(borrowerID), CreateLoanInput{
		CollateralRef:     "token-1",
		PrincipalApproved: 500_000,
	})
	if !errors.Is(err, loan.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCreate_RequiresBorrowerCaller(t *testing.T) {
	f := newFixture(t, nil, time.Now().UTC())
	_, err := f.uc.Create(context.Background(), caller.Admin(), CreateLoanInput{
		CollateralRef:     "token-1",
		PrincipalApproved: 500_000,
	})
	if !errors.Is(err, loan.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLifecycle_DraftToActive(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &loan.Loan{
		ID: 1, LoanID: loanRef, BorrowerID: borrowerID,
		CollateralRef: "token-1", PrincipalApproved: 1_000_000,
		AnnualRateBps: 1000, TermDays: 180, Status: loan.StatusDraft,
	}
	f := newFixture(t, l, t0)
	ctx := context.Background()

	if _, err := f.uc.Submit(ctx, caller.Borrower(borrowerID), loanRef); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if _, err := f.uc.Approve(ctx, caller.Admin(), loanRef); err != nil {
		t.Fatalf("Approve err: %v", err)
	}
	dto, err := f.uc.Disburse(ctx, caller.Admin(), loanRef)
	if err != nil {
		t.Fatalf("Disburse err: %v", err)
	}

	if dto.Status != string(loan.StatusActive) {
		t.Fatalf("status = %s, want active", dto.Status)
	}
	if f.registry.LockCalls != 1 {
		t.Fatalf("lock calls = %d, want 1", f.registry.LockCalls)
	}
	if l.DisbursedAt == nil || !l.DisbursedAt.Equal(t0) {
		t.Fatalf("disbursed_at = %v", l.DisbursedAt)
	}
	wantDue := t0.AddDate(0, 0, 180)
	if l.DueAt == nil || !l.DueAt.Equal(wantDue) {
		t.Fatalf("due_at = %v, want %v", l.DueAt, wantDue)
	}
}

func TestApprove_RequiresAdmin(t *testing.T) {
	l := &loan.Loan{ID: 1, LoanID: loanRef, BorrowerID: borrowerID, Status: loan.StatusPendingApproval}
	f := newFixture(t, l, time.Now().UTC())

	_, err := f.uc.Approve(context.Background(), caller.Borrower(borrowerID), loanRef)
	if !errors.Is(err, loan.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if l.Status != loan.StatusPendingApproval {
		t.Fatalf("status changed to %s", l.Status)
	}
}

func TestDisburse_RejectsInvalidTransition(t *testing.T) {
	l := &loan.Loan{ID: 1, LoanID: loanRef, BorrowerID: borrowerID, Status: loan.StatusDraft}
	f := newFixture(t, l, time.Now().UTC())

	_, err := f.uc.Disburse(context.Background(), caller.Admin(), loanRef)
	if !errors.Is(err, loan.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
	if f.registry.LockCalls != 0 {
		t.Fatalf("collateral locked on a rejected transition")
	}
}

// ---- repayment ----

func TestRecordRepayment_FullRepayReleasesCollateral(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	now := t0.AddDate(0, 0, 180)
	f := newFixture(t, l, now)

	// Principal plus 180 days of 10% simple interest.
	out, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 1_049_315,
	})
	if err != nil {
		t.Fatalf("RecordRepayment err: %v", err)
	}

	if out.Status != string(loan.StatusRepaid) {
		t.Fatalf("status = %s, want repaid", out.Status)
	}
	if out.RemainingDebt != 0 {
		t.Fatalf("remaining = %d, want 0", out.RemainingDebt)
	}
	if !out.CollateralReleased || f.registry.UnlockCalls != 1 {
		t.Fatalf("released = %v unlock calls = %d", out.CollateralReleased, f.registry.UnlockCalls)
	}
	if out.Breakdown.Sum() != 1_049_315 {
		t.Fatalf("breakdown sums to %d", out.Breakdown.Sum())
	}
	// 1000 bps of the 49_315 interest portion goes to the protocol.
	if out.Breakdown.ProtocolFeeAmount != 4_931 || out.Breakdown.InterestAmount != 44_384 {
		t.Fatalf("fee = %d interest = %d", out.Breakdown.ProtocolFeeAmount, out.Breakdown.InterestAmount)
	}
	if out.Breakdown.PrincipalAmount != 1_000_000 {
		t.Fatalf("principal = %d", out.Breakdown.PrincipalAmount)
	}
	if f.treasury.FeeCalls != 1 {
		t.Fatalf("fee calls = %d, want 1", f.treasury.FeeCalls)
	}
	// No tx ref supplied, so the rail settled the transfer.
	if f.rail.Calls != 1 || out.TxRef != "rail-tx-mock" {
		t.Fatalf("rail calls = %d tx ref = %q", f.rail.Calls, out.TxRef)
	}
	if l.TotalRepaid != 1_049_315 {
		t.Fatalf("total repaid = %d", l.TotalRepaid)
	}
}

func TestRecordRepayment_PartialKeepsLoanActive(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	out, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 100_000,
		TxRef:  "external-tx-1",
	})
	if err != nil {
		t.Fatalf("RecordRepayment err: %v", err)
	}
	if out.Status != string(loan.StatusActive) {
		t.Fatalf("status = %s, want active", out.Status)
	}
	// Interest is settled first: 49_315 of the 100_000, the rest on principal.
	if got := out.Breakdown.InterestAmount + out.Breakdown.ProtocolFeeAmount; got != 49_315 {
		t.Fatalf("interest portion = %d, want 49315", got)
	}
	if out.Breakdown.PrincipalAmount != 50_685 {
		t.Fatalf("principal = %d, want 50685", out.Breakdown.PrincipalAmount)
	}
	if out.CollateralReleased || f.registry.UnlockCalls != 0 {
		t.Fatalf("collateral must stay locked on partial repayment")
	}
	if f.rail.Calls != 0 || out.TxRef != "external-tx-1" {
		t.Fatalf("rail calls = %d tx ref = %q", f.rail.Calls, out.TxRef)
	}
}

func TestRecordRepayment_TotalRepaidTracksLedger(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 90))

	amounts := []int64{50_000, 120_000, 30_000}
	var want int64
	for _, a := range amounts {
		if _, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
			LoanID: loanRef, Amount: a, TxRef: "tx",
		}); err != nil {
			t.Fatalf("RecordRepayment(%d) err: %v", a, err)
		}
		want += a
	}

	if l.TotalRepaid != want {
		t.Fatalf("total repaid = %d, want %d", l.TotalRepaid, want)
	}
	var ledger int64
	for _, p := range l.Payments {
		ledger += p.Amount
	}
	if ledger != want {
		t.Fatalf("ledger sums to %d, want %d", ledger, want)
	}
	if f.appendCalls != len(amounts) {
		t.Fatalf("append calls = %d, want %d", f.appendCalls, len(amounts))
	}
}

func TestRecordRepayment_OverpayBeyondToleranceRejected(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	// Total debt is 1_049_315; tolerance is 50 bps of it (5_246).
	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 1_049_315 + 5_247,
		TxRef:  "tx",
	})
	if !errors.Is(err, loan.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if f.appendCalls != 0 || l.TotalRepaid != 0 {
		t.Fatalf("rejected repayment still hit the ledger: appends=%d repaid=%d", f.appendCalls, l.TotalRepaid)
	}
}

func TestRecordRepayment_OverpayWithoutTxRefNeverHitsRail(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	// No tx_ref means the usecase would pull the funds itself; an amount the
	// allocation is going to reject must be caught before any transfer.
	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 2_000_000,
	})
	if !errors.Is(err, loan.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if f.rail.Calls != 0 {
		t.Fatalf("rail calls = %d, funds pulled for a doomed repayment", f.rail.Calls)
	}
	if f.appendCalls != 0 || len(f.rec.Created) != 0 {
		t.Fatalf("appends = %d reconcile tasks = %d", f.appendCalls, len(f.rec.Created))
	}
}

func TestRecordRepayment_RefundQueuedWhenLoanFlipsAfterSettlement(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	// The pre-check sees an active loan, but by the time the row lock is held
	// a liquidation has won the race.
	f.loans.GetByLoanIDForUpdateFn = func(ctx context.Context, ref string) (*loan.Loan, error) {
		flipped := *l
		flipped.Status = loan.StatusLiquidated
		return &flipped, nil
	}

	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 100_000,
	})
	if !errors.Is(err, loan.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
	if f.rail.Calls != 1 {
		t.Fatalf("rail calls = %d, want 1", f.rail.Calls)
	}
	if f.appendCalls != 0 {
		t.Fatalf("appends = %d, rejected repayment hit the ledger", f.appendCalls)
	}
	// The pulled funds must come back through a refund task.
	if len(f.rec.Created) != 1 {
		t.Fatalf("reconcile tasks = %d, want 1", len(f.rec.Created))
	}
	task := f.rec.Created[0]
	if task.Kind != reconcile.KindRefund || task.Amount != 100_000 || task.PayeeRef != borrowerID {
		t.Fatalf("task = %+v", task)
	}
}

func TestRecordRepayment_InBandOverpayClosesLoan(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	out, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef,
		Amount: 1_049_315 + 5_246,
		TxRef:  "tx",
	})
	if err != nil {
		t.Fatalf("RecordRepayment err: %v", err)
	}
	if out.Status != string(loan.StatusRepaid) || out.RemainingDebt != 0 {
		t.Fatalf("status = %s remaining = %d", out.Status, out.RemainingDebt)
	}
	if out.Breakdown.PrincipalAmount != 1_000_000+5_246 {
		t.Fatalf("principal = %d, residual must fold into it", out.Breakdown.PrincipalAmount)
	}
}

func TestRecordRepayment_WrongBorrowerRejected(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 30))

	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower("cccccccccccccccccccccccccccccccc"), RepayInput{
		LoanID: loanRef, Amount: 10_000,
	})
	if !errors.Is(err, loan.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	// Funds must never move on an unauthorized call.
	if f.rail.Calls != 0 || f.appendCalls != 0 {
		t.Fatalf("rail = %d appends = %d", f.rail.Calls, f.appendCalls)
	}
}

func TestRecordRepayment_RejectsNonActiveLoan(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	l.Status = loan.StatusLiquidated
	f := newFixture(t, l, t0.AddDate(0, 0, 30))

	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef, Amount: 10_000,
	})
	if !errors.Is(err, loan.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
}

func TestRecordRepayment_BelowMinimumRejected(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, disbursedLoan(t0), t0.AddDate(0, 0, 30))

	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef, Amount: 999,
	})
	if !errors.Is(err, loan.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRecordRepayment_UnknownLoan(t *testing.T) {
	f := newFixture(t, nil, time.Now().UTC())
	_, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: "dddddddddddddddddddddddddddddddd", Amount: 10_000,
	})
	if !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestRecordRepayment_FeeFailureQueuesReconciliation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))
	f.treasury.CollectFeeFn = func(ctx context.Context, ref string, amount int64, kind string) error {
		return errors.New("treasury down")
	}

	out, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef, Amount: 100_000, TxRef: "tx",
	})
	if err != nil {
		t.Fatalf("repayment must survive a fee posting failure: %v", err)
	}
	if len(f.rec.Created) != 1 {
		t.Fatalf("reconcile tasks = %d, want 1", len(f.rec.Created))
	}
	task := f.rec.Created[0]
	if task.Kind != reconcile.KindFee || task.Amount != out.Breakdown.ProtocolFeeAmount || task.LoanRef != loanRef {
		t.Fatalf("task = %+v", task)
	}
}

func TestRecordRepayment_UnlockFailureQueuesReconciliation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))
	f.registry.UnlockFn = func(ctx context.Context, tokenRef string) error {
		return errors.New("registry down")
	}

	out, err := f.uc.RecordRepayment(context.Background(), caller.Borrower(borrowerID), RepayInput{
		LoanID: loanRef, Amount: 1_049_315, TxRef: "tx",
	})
	if err != nil {
		t.Fatalf("full repayment must survive an unlock failure: %v", err)
	}
	if out.Status != string(loan.StatusRepaid) {
		t.Fatalf("status = %s, want repaid", out.Status)
	}
	if out.CollateralReleased {
		t.Fatalf("release must be reported false when the unlock failed")
	}
	var unlockTasks int
	for _, task := range f.rec.Created {
		if task.Kind == reconcile.KindUnlock && task.TokenRef == "token-1" {
			unlockTasks++
		}
	}
	if unlockTasks != 1 {
		t.Fatalf("unlock reconcile tasks = %d, want 1", unlockTasks)
	}
}

// ---- reads ----

func TestGetSummary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 180))

	s, err := f.uc.GetSummary(context.Background(), loanRef)
	if err != nil {
		t.Fatalf("GetSummary err: %v", err)
	}
	if s.TotalDebt != 1_049_315 || s.PrincipalOutstanding != 1_000_000 || s.InterestOutstanding != 49_315 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Overdue {
		t.Fatalf("loan due in the future reported overdue")
	}
}

func TestEarlyDiscount(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := disbursedLoan(t0)
	f := newFixture(t, l, t0.AddDate(0, 0, 90))

	d, err := f.uc.EarlyDiscount(context.Background(), loanRef)
	if err != nil {
		t.Fatalf("EarlyDiscount err: %v", err)
	}
	// 90 of 365 days: interest 24_657, discount 2000 bps of it.
	if d.DiscountAmount != 4_931 {
		t.Fatalf("discount = %d, want 4931", d.DiscountAmount)
	}
	if d.PayoffAmount != 1_000_000+24_657-4_931 {
		t.Fatalf("payoff = %d", d.PayoffAmount)
	}
}
