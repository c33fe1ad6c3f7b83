// Package reconcile retries collaborator postings that failed after an
// irreversible step: treasury losses and fees, collateral unlocks, and rail
// refunds. Retries are bounded; a task that exhausts its attempts is marked
// abandoned and surfaced for manual review instead of looping forever.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agrilend-settlement/internal/domain/collab"
	"agrilend-settlement/internal/domain/reconcile"
)

const batchSize = 50

type Worker struct {
	repo        reconcile.Repository
	treasury    collab.Treasury
	registry    collab.CollateralRegistry
	rail        collab.PaymentRail
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

func NewWorker(repo reconcile.Repository, treasury collab.Treasury, registry collab.CollateralRegistry,
	rail collab.PaymentRail, interval time.Duration, maxAttempts int, logger *slog.Logger) *Worker {
	return &Worker{
		repo:        repo,
		treasury:    treasury,
		registry:    registry,
		rail:        rail,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source; tests only.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Start blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconciliation worker started", "interval", w.interval, "max_attempts", w.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopping")
			return
		case <-ticker.C:
			if err := w.RunCycle(ctx); err != nil {
				w.logger.Error("reconciliation cycle failed", "error", err)
			}
		}
	}
}

// RunCycle processes one batch of due tasks.
func (w *Worker) RunCycle(ctx context.Context) error {
	now := w.now()
	tasks, err := w.repo.ListDue(ctx, now, batchSize)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		w.process(ctx, t)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, t *reconcile.Task) {
	err := w.deliver(ctx, t)
	now := w.now()
	if err == nil {
		t.Status = reconcile.StatusDone
		t.LastError = ""
		if serr := w.repo.Save(ctx, t); serr != nil {
			w.logger.Error("failed to mark reconcile task done", "task_id", t.TaskID, "error", serr)
		}
		w.logger.Info("reconcile task delivered", "task_id", t.TaskID, "kind", t.Kind, "loan_id", t.LoanRef)
		return
	}

	t.Attempts++
	t.LastError = err.Error()
	if t.Attempts >= w.maxAttempts {
		t.Status = reconcile.StatusAbandoned
		w.logger.Error("reconcile task abandoned, needs manual review",
			"task_id", t.TaskID, "kind", t.Kind, "loan_id", t.LoanRef,
			"attempts", t.Attempts, "error", err)
	} else {
		// Linear backoff keeps arithmetic obvious in the audit trail.
		t.NextRetryAt = now.Add(time.Duration(t.Attempts) * w.interval)
	}
	if serr := w.repo.Save(ctx, t); serr != nil {
		w.logger.Error("failed to save reconcile task", "task_id", t.TaskID, "error", serr)
	}
}

func (w *Worker) deliver(ctx context.Context, t *reconcile.Task) error {
	switch t.Kind {
	case reconcile.KindLoss:
		return w.treasury.RecordLoss(ctx, t.LoanRef, t.Amount)
	case reconcile.KindFee:
		return w.treasury.CollectFee(ctx, t.LoanRef, t.Amount, t.FeeKind)
	case reconcile.KindUnlock:
		return w.registry.Unlock(ctx, t.TokenRef)
	case reconcile.KindRefund:
		_, err := w.rail.TransferOut(ctx, t.PayeeRef, t.Amount)
		return err
	default:
		return fmt.Errorf("unknown reconcile kind %q", t.Kind)
	}
}
