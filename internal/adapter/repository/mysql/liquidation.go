package mysql

import (
	"context"

	"gorm.io/gorm"

	liqDomain "agrilend-settlement/internal/domain/liquidation"
)

type LiquidationRepository struct{ db *gorm.DB }

func NewLiquidationRepository(db *gorm.DB) *LiquidationRepository {
	return &LiquidationRepository{db: db}
}

func (r *LiquidationRepository) Create(ctx context.Context, rec *liqDomain.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *LiquidationRepository) GetByLoanID(ctx context.Context, loanID uint64) (*liqDomain.Record, error) {
	var out liqDomain.Record
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	return &out, res.Error
}

func (r *LiquidationRepository) GetByLoanRef(ctx context.Context, loanRef string) (*liqDomain.Record, error) {
	var out liqDomain.Record
	res := r.db.WithContext(ctx).Where("loan_ref = ?", loanRef).First(&out)
	return &out, res.Error
}

func (r *LiquidationRepository) Stats(ctx context.Context) (*liqDomain.Statistics, error) {
	var row struct {
		Total     int64
		Debt      int64
		Recovered int64
	}
	res := r.db.WithContext(ctx).
		Model(&liqDomain.Record{}).
		Select("COUNT(*) AS total, COALESCE(SUM(outstanding_debt),0) AS debt, COALESCE(SUM(collateral_value),0) AS recovered").
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	stats := &liqDomain.Statistics{
		TotalLiquidations:        row.Total,
		TotalDebtLiquidated:      row.Debt,
		TotalCollateralRecovered: row.Recovered,
	}
	stats.ComputeRecoveryRate()
	return stats, nil
}
