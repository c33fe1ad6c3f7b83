// Package recmock is an in-memory reconcile repository for tests: it records
// every created task so assertions can inspect what was queued.
package recmock

import (
	"context"
	"time"

	domain "agrilend-settlement/internal/domain/reconcile"
)

type Repo struct {
	CreateFn func(ctx context.Context, t *domain.Task) error
	SaveFn   func(ctx context.Context, t *domain.Task) error

	Created []*domain.Task
	Saved   []*domain.Task
}

func (m *Repo) Create(ctx context.Context, t *domain.Task) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(ctx, t); err != nil {
			return err
		}
	}
	m.Created = append(m.Created, t)
	return nil
}

func (m *Repo) Save(ctx context.Context, t *domain.Task) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(ctx, t); err != nil {
			return err
		}
	}
	m.Saved = append(m.Saved, t)
	return nil
}

func (m *Repo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	out := make([]*domain.Task, 0)
	for _, t := range m.Created {
		if t.Status == domain.StatusPending && !t.NextRetryAt.After(now) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
