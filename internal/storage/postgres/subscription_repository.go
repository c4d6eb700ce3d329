package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnonline/commerce/internal/domain"
)

type subscriptionRepository struct {
	db querier
}

// NewSubscriptionRepository создаёт PostgreSQL-реализацию SubscriptionRepository.
func NewSubscriptionRepository(store *Store) domain.SubscriptionRepository {
	return &subscriptionRepository{db: store.DB()}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub domain.Subscription) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, plan_id, external_id, cycle, status,
			period_start, period_end, canceled_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		sub.ID, sub.UserID, sub.PlanID, sub.ExternalID, string(sub.Cycle), string(sub.Status),
		sub.PeriodStart, sub.PeriodEnd, sub.CanceledAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Уникальность по user_id: не более одной подписки на пользователя.
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (domain.Subscription, error) {
	return r.getWhere(ctx, `WHERE external_id = $1`, externalID)
}

func (r *subscriptionRepository) GetByUser(ctx context.Context, userID string) (domain.Subscription, error) {
	return r.getWhere(ctx, `WHERE user_id = $1`, userID)
}

func (r *subscriptionRepository) getWhere(ctx context.Context, where string, arg any) (domain.Subscription, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		sub        domain.Subscription
		cycle      string
		status     string
		canceledAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, external_id, cycle, status,
		       period_start, period_end, canceled_at, created_at, updated_at
		FROM subscriptions `+where, arg).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.ExternalID, &cycle, &status,
		&sub.PeriodStart, &sub.PeriodEnd, &canceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}

	sub.Cycle = domain.BillingCycle(cycle)
	sub.Status = domain.SubscriptionStatus(status)
	if canceledAt.Valid {
		t := canceledAt.Time
		sub.CanceledAt = &t
	}
	return sub, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, sub domain.Subscription) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET plan_id = $1,
		    external_id = $2,
		    cycle = $3,
		    status = $4,
		    period_start = $5,
		    period_end = $6,
		    canceled_at = $7,
		    updated_at = $8
		WHERE id = $9
	`,
		sub.PlanID, sub.ExternalID, string(sub.Cycle), string(sub.Status),
		sub.PeriodStart, sub.PeriodEnd, sub.CanceledAt, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("subscription rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

var _ domain.SubscriptionRepository = (*subscriptionRepository)(nil)
