package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"agrilend-settlement/internal/usecase/repayment"
)

type LoanHandler struct{ uc *repayment.Usecase }

func NewLoanHandler(uc *repayment.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type createLoanReq struct {
	CollateralRef     string `json:"collateral_ref" validate:"required"`
	PrincipalApproved int64  `json:"principal_approved" validate:"required,gt=0"`
	AnnualRateBps     int64  `json:"annual_rate_bps" validate:"gte=0,lte=50000"`
	TermDays          int    `json:"term_days" validate:"gte=0"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.Create(c.Request().Context(), callerFrom(c), repayment.CreateLoanInput{
		CollateralRef:     req.CollateralRef,
		PrincipalApproved: req.PrincipalApproved,
		AnnualRateBps:     req.AnnualRateBps,
		TermDays:          req.TermDays,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) SubmitLoan(c echo.Context) error {
	dto, err := h.uc.Submit(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	dto, err := h.uc.Approve(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) DisburseLoan(c echo.Context) error {
	dto, err := h.uc.Disburse(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) MarkDefaulted(c echo.Context) error {
	dto, err := h.uc.MarkDefaulted(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type repayReq struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	TxRef  string `json:"tx_ref"`
}

func (h *LoanHandler) RecordRepayment(c echo.Context) error {
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	out, err := h.uc.RecordRepayment(c.Request().Context(), callerFrom(c), repayment.RepayInput{
		LoanID: c.Param("loan_id"),
		Amount: req.Amount,
		TxRef:  req.TxRef,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *LoanHandler) GetSummary(c echo.Context) error {
	out, err := h.uc.GetSummary(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *LoanHandler) GetEarlyDiscount(c echo.Context) error {
	out, err := h.uc.EarlyDiscount(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
