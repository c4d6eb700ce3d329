package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnonline/commerce/internal/domain"
)

type paymentRepository struct {
	db querier
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

const paymentColumns = `
	id, order_id, intent_id, status, amount_minor, refunded_minor,
	currency, failure_reason, created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, intent_id, status, amount_minor, refunded_minor,
			currency, failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		payment.ID, payment.OrderID, payment.IntentID, string(payment.Status),
		payment.AmountMinor, payment.RefundedMinor, payment.Currency,
		payment.FailureReason, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return r.getWhere(ctx, `WHERE id = $1`, id)
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	if intentID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.getWhere(ctx, `WHERE intent_id = $1`, intentID)
}

// GetActiveByOrder возвращает платёж текущей попытки оплаты: последний
// не-failed платёж заказа.
func (r *paymentRepository) GetActiveByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.getWhere(ctx, `
		WHERE order_id = $1 AND status <> 'failed'
		ORDER BY created_at DESC
		LIMIT 1`, orderID)
}

func (r *paymentRepository) getWhere(ctx context.Context, where string, arg any) (domain.Payment, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var payment domain.Payment
	var status string

	err := r.db.QueryRowContext(ctx, `SELECT`+paymentColumns+` FROM payments `+where, arg).Scan(
		&payment.ID, &payment.OrderID, &payment.IntentID, &status,
		&payment.AmountMinor, &payment.RefundedMinor, &payment.Currency,
		&payment.FailureReason, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	payment.Status = domain.PaymentStatus(status)
	return payment, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET intent_id = $1,
		    status = $2,
		    refunded_minor = $3,
		    failure_reason = $4,
		    updated_at = $5
		WHERE id = $6
	`,
		payment.IntentID, string(payment.Status), payment.RefundedMinor,
		payment.FailureReason, payment.UpdatedAt, payment.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
