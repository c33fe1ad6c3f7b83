package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"agrilend-settlement/internal/domain/caller"
	"agrilend-settlement/internal/domain/collab"
	liqDomain "agrilend-settlement/internal/domain/liquidation"
	loanDomain "agrilend-settlement/internal/domain/loan"
)

// callerFrom builds the capability context from request headers. Unknown or
// malformed headers yield an empty context that fails every authorization
// check downstream.
func callerFrom(c echo.Context) caller.Context {
	role := strings.ToLower(strings.TrimSpace(c.Request().Header.Get("X-Caller-Role")))
	switch role {
	case "admin":
		return caller.Admin()
	case "scheduler":
		return caller.Scheduler()
	case "borrower":
		b := strings.TrimSpace(c.Request().Header.Get("X-Borrower-Id"))
		if reHex32.MatchString(b) {
			return caller.Borrower(b)
		}
	}
	return caller.Context{}
}

// writeError maps the domain error taxonomy onto HTTP statuses. Every error
// carries its machine-readable kind plus the human-readable reason.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, loanDomain.ErrNotFound), errors.Is(err, liqDomain.ErrNoRecord):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, loanDomain.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, loanDomain.ErrInvalidState):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, liqDomain.ErrAlreadyLiquidated):
		status, kind = http.StatusConflict, "already_liquidated"
	case errors.Is(err, liqDomain.ErrNotEligible):
		status, kind = http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, loanDomain.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, collab.ErrStaleValuation):
		status, kind = http.StatusBadGateway, "stale_valuation"
	case errors.Is(err, collab.ErrCollaborator):
		status, kind = http.StatusBadGateway, "collaborator_failure"
	}
	return c.JSON(status, map[string]string{"error": kind, "reason": err.Error()})
}

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
