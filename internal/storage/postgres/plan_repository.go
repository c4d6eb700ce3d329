package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnonline/commerce/internal/domain"
)

type planRepository struct {
	db querier
}

// NewPlanRepository создаёт PostgreSQL-реализацию PlanRepository.
func NewPlanRepository(store *Store) domain.PlanRepository {
	return &planRepository{db: store.DB()}
}

func (r *planRepository) All(ctx context.Context) ([]domain.Plan, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, monthly_price_id, yearly_price_id
		FROM plans
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := make([]domain.Plan, 0)
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.MonthlyPriceID, &p.YearlyPriceID); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) Get(ctx context.Context, id string) (domain.Plan, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var p domain.Plan
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, monthly_price_id, yearly_price_id
		FROM plans
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Slug, &p.Name, &p.MonthlyPriceID, &p.YearlyPriceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Plan{}, domain.ErrPlanNotFound
		}
		return domain.Plan{}, fmt.Errorf("select plan: %w", err)
	}
	return p, nil
}

var _ domain.PlanRepository = (*planRepository)(nil)
