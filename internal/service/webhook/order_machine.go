package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// OrderPaymentMachine применяет платёжные события к паре Order/Payment.
// Платёж ищется по charge intent события; неизвестный intent отбрасывается,
// такое событие может принадлежать другой системе.
type OrderPaymentMachine struct {
	logger *log.Entry
}

// NewOrderPaymentMachine создаёт машину состояний заказа и платежа.
func NewOrderPaymentMachine(logger *log.Entry) *OrderPaymentMachine {
	if logger == nil {
		logger = log.WithField("component", "order-machine")
	}
	return &OrderPaymentMachine{logger: logger}
}

// ApplySuccess отмечает платёж оплаченным, заказ подтверждённым и очищает
// исходную корзину. Возвращает подтверждённый заказ для побочных эффектов.
func (m *OrderPaymentMachine) ApplySuccess(ctx context.Context, r domain.Repositories, data *domain.PaymentEventData) (domain.Order, error) {
	payment, err := r.Payments.GetByIntentID(ctx, data.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return domain.Order{}, &DropError{Reason: "unknown_intent", Err: err}
		}
		return domain.Order{}, err
	}

	order, err := r.Orders.Get(ctx, payment.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	// Повтор с другим event id: состояние уже конечное, эффектов нет.
	if payment.Status == domain.PaymentStatusPaid && order.Status == domain.OrderStatusConfirmed {
		return order, nil
	}
	if payment.Status != domain.PaymentStatusPending {
		return domain.Order{}, &DropError{Reason: "payment_not_pending", Err: domain.ErrIllegalTransition}
	}
	if !order.CanTransition(domain.OrderStatusConfirmed) {
		return domain.Order{}, &DropError{Reason: "order_not_pending", Err: domain.ErrIllegalTransition}
	}

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusPaid
	payment.UpdatedAt = now
	if err := r.Payments.Save(ctx, payment); err != nil {
		return domain.Order{}, fmt.Errorf("save payment: %w", err)
	}

	order.Status = domain.OrderStatusConfirmed
	order.UpdatedAt = now
	if err := r.Orders.Save(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	// Оплаченная корзина очищается только здесь: незавершённая оплата
	// оставляет её пригодной для повторной попытки.
	if order.CartID != "" {
		if err := r.Carts.Clear(ctx, order.CartID); err != nil && !errors.Is(err, domain.ErrCartNotFound) {
			return domain.Order{}, fmt.Errorf("clear cart: %w", err)
		}
	}

	m.enqueue(ctx, r, "order", order.ID, "order.confirmed", map[string]any{
		"order_id":    order.ID,
		"owner_key":   order.OwnerKey,
		"total_minor": order.TotalMinor,
		"currency":    order.Currency,
	})

	m.logger.WithField("order_id", order.ID).WithField("intent_id", data.IntentID).Info("payment confirmed")
	return order, nil
}

// ApplyFailure отмечает попытку оплаты неудачной. Заказ остаётся pending,
// новый checkout создаст новый платёж.
func (m *OrderPaymentMachine) ApplyFailure(ctx context.Context, r domain.Repositories, data *domain.PaymentEventData) error {
	payment, err := r.Payments.GetByIntentID(ctx, data.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return &DropError{Reason: "unknown_intent", Err: err}
		}
		return err
	}

	if payment.Status == domain.PaymentStatusFailed {
		return nil
	}
	if payment.Status != domain.PaymentStatusPending {
		return &DropError{Reason: "payment_not_pending", Err: domain.ErrIllegalTransition}
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = data.FailureReason
	payment.UpdatedAt = time.Now().UTC()
	if err := r.Payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}

	m.enqueue(ctx, r, "payment", payment.ID, "payment.failed", map[string]any{
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
		"reason":     data.FailureReason,
	})

	m.logger.WithField("order_id", payment.OrderID).WithField("reason", data.FailureReason).Info("payment failed")
	return nil
}

func (m *OrderPaymentMachine) enqueue(ctx context.Context, r domain.Repositories, aggregateType, aggregateID, eventType string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		m.logger.WithError(err).WithField("event_type", eventType).Warn("enqueue outbox event failed")
	}
}
