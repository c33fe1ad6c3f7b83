// Package collabmock provides function-backed mocks for every collaborator
// contract, with call counters so tests can assert how often a boundary was
// crossed.
package collabmock

import (
	"context"

	"github.com/shopspring/decimal"

	"agrilend-settlement/internal/domain/collab"
)

type Registry struct {
	LockFn   func(ctx context.Context, tokenRef, loanRef string) error
	UnlockFn func(ctx context.Context, tokenRef string) error
	SeizeFn  func(ctx context.Context, tokenRef, recipient string) error

	LockCalls, UnlockCalls, SeizeCalls int
}

func (m *Registry) Lock(ctx context.Context, tokenRef, loanRef string) error {
	m.LockCalls++
	if m.LockFn != nil {
		return m.LockFn(ctx, tokenRef, loanRef)
	}
	return nil
}

func (m *Registry) Unlock(ctx context.Context, tokenRef string) error {
	m.UnlockCalls++
	if m.UnlockFn != nil {
		return m.UnlockFn(ctx, tokenRef)
	}
	return nil
}

func (m *Registry) Seize(ctx context.Context, tokenRef, recipient string) error {
	m.SeizeCalls++
	if m.SeizeFn != nil {
		return m.SeizeFn(ctx, tokenRef, recipient)
	}
	return nil
}

type Oracle struct {
	CurrentValueFn func(ctx context.Context, collateralRef string) (collab.ValuationData, error)
	Calls          int
}

func (m *Oracle) CurrentValue(ctx context.Context, collateralRef string) (collab.ValuationData, error) {
	m.Calls++
	if m.CurrentValueFn != nil {
		return m.CurrentValueFn(ctx, collateralRef)
	}
	return collab.ValuationData{}, nil
}

// FreshValuation is a convenient high-confidence, non-stale answer.
func FreshValuation(amount int64) collab.ValuationData {
	return collab.ValuationData{Amount: amount, Confidence: decimal.NewFromFloat(0.99), IsStale: false}
}

type Rail struct {
	TransferInFn  func(ctx context.Context, payer string, amount int64) (collab.TransactionRef, error)
	TransferOutFn func(ctx context.Context, payee string, amount int64) (collab.TransactionRef, error)
	Calls         int
	OutCalls      int
}

func (m *Rail) TransferIn(ctx context.Context, payer string, amount int64) (collab.TransactionRef, error) {
	m.Calls++
	if m.TransferInFn != nil {
		return m.TransferInFn(ctx, payer, amount)
	}
	return "rail-tx-mock", nil
}

func (m *Rail) TransferOut(ctx context.Context, payee string, amount int64) (collab.TransactionRef, error) {
	m.OutCalls++
	if m.TransferOutFn != nil {
		return m.TransferOutFn(ctx, payee, amount)
	}
	return "rail-refund-mock", nil
}

type Attestor struct {
	SignFn func(ctx context.Context, message []byte) ([]byte, error)
	Calls  int
}

func (m *Attestor) Sign(ctx context.Context, message []byte) ([]byte, error) {
	m.Calls++
	if m.SignFn != nil {
		return m.SignFn(ctx, message)
	}
	return []byte{0x01, 0x02, 0x03}, nil
}

type Treasury struct {
	RecordLossFn func(ctx context.Context, loanRef string, amount int64) error
	CollectFeeFn func(ctx context.Context, loanRef string, amount int64, feeKind string) error

	LossCalls, FeeCalls int
}

func (m *Treasury) RecordLoss(ctx context.Context, loanRef string, amount int64) error {
	m.LossCalls++
	if m.RecordLossFn != nil {
		return m.RecordLossFn(ctx, loanRef, amount)
	}
	return nil
}

func (m *Treasury) CollectFee(ctx context.Context, loanRef string, amount int64, feeKind string) error {
	m.FeeCalls++
	if m.CollectFeeFn != nil {
		return m.CollectFeeFn(ctx, loanRef, amount, feeKind)
	}
	return nil
}
