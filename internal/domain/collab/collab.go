// Package collab declares the contracts of the external collaborators the
// settlement core depends on. Every cross-boundary effect goes through one of
// these interfaces; nothing here holds state.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrCollaborator wraps any downstream call failure.
	ErrCollaborator = errors.New("collaborator call failed")
	// ErrStaleValuation marks a valuation unusable for risk decisions.
	ErrStaleValuation = errors.New("stale or low-confidence valuation")
)

type TransactionRef string

// ValuationData is the price oracle's answer for one collateral token.
// Amount is in the smallest payment unit; Confidence is 0..1.
type ValuationData struct {
	Amount     int64           `json:"amount"`
	Confidence decimal.Decimal `json:"confidence"`
	IsStale    bool            `json:"is_stale"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// Usable reports whether the valuation may feed an eligibility check.
func (v ValuationData) Usable(minConfidence decimal.Decimal) bool {
	return !v.IsStale && v.Confidence.GreaterThanOrEqual(minConfidence)
}

// CollateralRegistry is the token registry's lock surface. Lock and Unlock are
// idempotent: locking a token already locked for the same loan succeeds.
type CollateralRegistry interface {
	Lock(ctx context.Context, tokenRef, loanRef string) error
	Unlock(ctx context.Context, tokenRef string) error
	Seize(ctx context.Context, tokenRef, recipient string) error
}

type PriceOracle interface {
	CurrentValue(ctx context.Context, collateralRef string) (ValuationData, error)
}

// PaymentRail moves value on its native ledger. The loan ledger itself never
// moves funds; it records a payment only after settlement. TransferOut returns
// pulled funds when a repayment could not be recorded.
type PaymentRail interface {
	TransferIn(ctx context.Context, payer string, amount int64) (TransactionRef, error)
	TransferOut(ctx context.Context, payee string, amount int64) (TransactionRef, error)
}

type AttestationService interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

type Treasury interface {
	RecordLoss(ctx context.Context, loanRef string, amount int64) error
	CollectFee(ctx context.Context, loanRef string, amount int64, feeKind string) error
}
