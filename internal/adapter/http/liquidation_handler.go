package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	liqDomain "agrilend-settlement/internal/domain/liquidation"
	"agrilend-settlement/internal/usecase/liquidation"
)

type LiquidationHandler struct{ uc *liquidation.Usecase }

func NewLiquidationHandler(uc *liquidation.Usecase) *LiquidationHandler {
	return &LiquidationHandler{uc: uc}
}

func (h *LiquidationHandler) CheckEligibility(c echo.Context) error {
	v, err := h.uc.CheckEligibility(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *LiquidationHandler) ListEligible(c echo.Context) error {
	vs, err := h.uc.ListEligible(c.Request().Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"eligible": vs})
}

func (h *LiquidationHandler) Trigger(c echo.Context) error {
	rec, err := h.uc.Trigger(c.Request().Context(), callerFrom(c), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type emergencyReq struct {
	Reason string `json:"reason"`
}

func (h *LiquidationHandler) Emergency(c echo.Context) error {
	var req emergencyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	rec, err := h.uc.Emergency(c.Request().Context(), callerFrom(c), c.Param("loan_id"), liqDomain.Reason(req.Reason))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type bulkReq struct {
	LoanIDs []string `json:"loan_ids" validate:"required,min=1,dive,hex32"`
}

func (h *LiquidationHandler) TriggerBulk(c echo.Context) error {
	var req bulkReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	results, err := h.uc.TriggerBulk(c.Request().Context(), callerFrom(c), req.LoanIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (h *LiquidationHandler) GetRecord(c echo.Context) error {
	rec, err := h.uc.GetRecord(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *LiquidationHandler) Stats(c echo.Context) error {
	stats, err := h.uc.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
