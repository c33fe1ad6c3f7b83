package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	recDomain "agrilend-settlement/internal/domain/reconcile"
)

type ReconcileRepository struct{ db *gorm.DB }

func NewReconcileRepository(db *gorm.DB) *ReconcileRepository {
	return &ReconcileRepository{db: db}
}

func (r *ReconcileRepository) Create(ctx context.Context, t *recDomain.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *ReconcileRepository) Save(ctx context.Context, t *recDomain.Task) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *ReconcileRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*recDomain.Task, error) {
	var out []*recDomain.Task
	res := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", recDomain.StatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&out)
	return out, res.Error
}
