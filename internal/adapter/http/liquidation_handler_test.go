package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agrilend-settlement/internal/domain/collab"
	liqDomain "agrilend-settlement/internal/domain/liquidation"
	loanDomain "agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/uow"
	"agrilend-settlement/internal/testutil/collabmock"
	"agrilend-settlement/internal/testutil/liqmock"
	"agrilend-settlement/internal/testutil/loanmock"
	"agrilend-settlement/internal/testutil/recmock"
	"agrilend-settlement/internal/testutil/uowmock"
	"agrilend-settlement/internal/usecase/liquidation"
	"agrilend-settlement/internal/usecase/risk"
)

// newLiquidationUsecase serves one overdue-eligible loan with a healthy-value
// oracle and an in-memory record store.
func newLiquidationUsecase(l *loanDomain.Loan) *liquidation.Usecase {
	byRef := func(ctx context.Context, ref string) (*loanDomain.Loan, error) {
		if l != nil && ref == l.LoanID {
			return l, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
	loans := &loanmock.Repo{GetByLoanIDFn: byRef, GetByLoanIDForUpdateFn: byRef}

	records := make(map[uint64]*liqDomain.Record)
	liqs := &liqmock.Repo{
		CreateFn: func(ctx context.Context, r *liqDomain.Record) error {
			records[r.LoanID] = r
			return nil
		},
		GetByLoanIDFn: func(ctx context.Context, loanID uint64) (*liqDomain.Record, error) {
			if r, ok := records[loanID]; ok {
				return r, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
	}
	oracle := &collabmock.Oracle{CurrentValueFn: func(ctx context.Context, ref string) (collab.ValuationData, error) {
		return collabmock.FreshValuation(2_000_000), nil
	}}
	u := uowmock.New(uow.Repos{Loans: loans, Liquidations: liqs, Reconcile: &recmock.Repo{}})
	return liquidation.NewUsecase(u, &collabmock.Registry{}, oracle, &collabmock.Attestor{}, &collabmock.Treasury{},
		risk.Params{GracePeriodDays: 30, HealthRatioThreshold: decimal.NewFromFloat(1.2)},
		acctParams(), decimal.NewFromFloat(0.8),
		"0x00000000000000000000000000000000000000aa", discardLogger())
}

func eligibleLoan(ref string) *loanDomain.Loan {
	due := time.Now().UTC().AddDate(0, 0, -45)
	disbursed := due.AddDate(0, 0, -90)
	return &loanDomain.Loan{
		ID: 1, LoanID: ref, BorrowerID: strings.Repeat("b", 32),
		CollateralRef: "token-1", PrincipalApproved: 1_000_000, AnnualRateBps: 0,
		Status: loanDomain.StatusActive, DisbursedAt: &disbursed, DueAt: &due,
	}
}

func liqCtx(e *echo.Echo, method, role, ref string, body *strings.Reader) (echo.Context, *httptest.ResponseRecorder) {
	var req *stdhttp.Request
	if body != nil {
		req = httptest.NewRequest(method, "/", body)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	req.Header.Set("X-Caller-Role", role)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/liquidations/:loan_id")
	c.SetParamNames("loan_id")
	c.SetParamValues(ref)
	return c, rec
}

func TestTrigger_Created(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	l := eligibleLoan(ref)
	h := NewLiquidationHandler(newLiquidationUsecase(l))

	c, rec := liqCtx(e, stdhttp.MethodPost, "admin", ref, nil)
	if err := h.Trigger(c); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var got liqDomain.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if got.Reason != liqDomain.ReasonOverdue || got.LoanRef != ref {
		t.Fatalf("record = %+v", got)
	}
	if l.Status != loanDomain.StatusLiquidated {
		t.Fatalf("loan status = %s", l.Status)
	}
}

func TestTrigger_ForbiddenForBorrower(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	h := NewLiquidationHandler(newLiquidationUsecase(eligibleLoan(ref)))

	c, rec := liqCtx(e, stdhttp.MethodPost, "borrower", ref, nil)
	if err := h.Trigger(c); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if rec.Code != stdhttp.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestTrigger_DoubleLiquidationConflict(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	h := NewLiquidationHandler(newLiquidationUsecase(eligibleLoan(ref)))

	c, rec := liqCtx(e, stdhttp.MethodPost, "admin", ref, nil)
	if err := h.Trigger(c); err != nil {
		t.Fatalf("first Trigger error: %v", err)
	}
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}

	c, rec = liqCtx(e, stdhttp.MethodPost, "admin", ref, nil)
	if err := h.Trigger(c); err != nil {
		t.Fatalf("second Trigger error: %v", err)
	}
	if rec.Code != stdhttp.StatusConflict {
		t.Fatalf("second status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body["error"] != "already_liquidated" {
		t.Fatalf("error kind = %s", body["error"])
	}
}

func TestCheckEligibility_OK(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	h := NewLiquidationHandler(newLiquidationUsecase(eligibleLoan(ref)))

	c, rec := liqCtx(e, stdhttp.MethodGet, "scheduler", ref, nil)
	if err := h.CheckEligibility(c); err != nil {
		t.Fatalf("CheckEligibility error: %v", err)
	}
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var v risk.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if !v.IsEligible || v.Reason != liqDomain.ReasonOverdue {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestTriggerBulk_RejectsMalformedIDs(t *testing.T) {
	e := newEchoWithValidator()
	h := NewLiquidationHandler(newLiquidationUsecase(nil))

	c, rec := liqCtx(e, stdhttp.MethodPost, "admin", "", strings.NewReader(`{"loan_ids":["nope"]}`))
	if err := h.TriggerBulk(c); err != nil {
		t.Fatalf("TriggerBulk error: %v", err)
	}
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEmergency_BadReasonRejected(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	h := NewLiquidationHandler(newLiquidationUsecase(eligibleLoan(ref)))

	c, rec := liqCtx(e, stdhttp.MethodPost, "admin", ref, strings.NewReader(`{"reason":"meteor_strike"}`))
	if err := h.Emergency(c); err != nil {
		t.Fatalf("Emergency error: %v", err)
	}
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	e := newEchoWithValidator()
	ref := strings.Repeat("a", 32)
	h := NewLiquidationHandler(newLiquidationUsecase(eligibleLoan(ref)))

	c, rec := liqCtx(e, stdhttp.MethodGet, "admin", ref, nil)
	if err := h.GetRecord(c); err != nil {
		t.Fatalf("GetRecord error: %v", err)
	}
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
