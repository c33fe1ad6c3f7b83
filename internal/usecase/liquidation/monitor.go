package liquidation

import (
	"context"
	"log/slog"
	"time"

	"agrilend-settlement/internal/domain/caller"
)

// Monitor is the scheduled sweep: list eligible loans, then liquidate them in
// bulk under the scheduler capability.
type Monitor struct {
	uc       *Usecase
	interval time.Duration
	logger   *slog.Logger
}

func NewMonitor(uc *Usecase, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{uc: uc, interval: interval, logger: logger}
}

// Start blocks until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("liquidation monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liquidation monitor stopping")
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle does one sweep. Per-loan failures are reported by TriggerBulk and
// never abort the cycle.
func (m *Monitor) RunCycle(ctx context.Context) {
	sched := caller.Scheduler()
	verdicts, err := m.uc.ListEligible(ctx, sched)
	if err != nil {
		m.logger.Error("eligibility sweep failed", "error", err)
		return
	}
	if len(verdicts) == 0 {
		return
	}

	refs := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		refs = append(refs, v.LoanRef)
	}
	results, err := m.uc.TriggerBulk(ctx, sched, refs)
	if err != nil {
		m.logger.Error("bulk liquidation failed", "error", err)
		return
	}
	var ok, failed int
	for _, r := range results {
		if r.Error == "" {
			ok++
		} else {
			failed++
		}
	}
	m.logger.Info("liquidation sweep finished", "eligible", len(refs), "liquidated", ok, "failed", failed)
}
