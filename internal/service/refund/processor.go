package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/metrics"
)

const defaultRefundTimeout = 10 * time.Second

// Request — запрос на возврат по заказу. Нулевая сумма означает полный
// возврат остатка.
type Request struct {
	OrderID     string
	AmountMinor int64
	Reason      string
}

// Result — итог применённого возврата.
type Result struct {
	PaymentID     string
	RefundedMinor int64
	FullRefund    bool
	PaymentStatus domain.PaymentStatus
	OrderStatus   domain.OrderStatus
}

// Processor применяет возвраты: административные (с вызовом внешнего
// процессора) и пришедшие событием charge.refunded. Обе ветки проходят
// одно и то же вычисление полного/частичного возврата.
type Processor struct {
	uow           domain.UnitOfWork
	payments      domain.PaymentRepository
	charges       domain.ChargeProcessor
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	refundTimeout time.Duration
}

// NewProcessor создаёт процессор возвратов.
func NewProcessor(
	uow domain.UnitOfWork,
	payments domain.PaymentRepository,
	charges domain.ChargeProcessor,
	logger *log.Entry,
	m *metrics.CheckoutMetrics,
) *Processor {
	if logger == nil {
		logger = log.WithField("component", "refund")
	}
	return &Processor{
		uow:           uow,
		payments:      payments,
		charges:       charges,
		logger:        logger,
		metrics:       m,
		refundTimeout: defaultRefundTimeout,
	}
}

// Refund выполняет административный возврат: сначала возврат на стороне
// процессора, затем локальное состояние. Блокировки через сетевой вызов
// не удерживаются.
func (p *Processor) Refund(ctx context.Context, req Request) (Result, error) {
	payment, err := p.payments.GetActiveByOrder(ctx, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	if !payment.Refundable() {
		return Result{}, domain.ErrNoPaidPayment
	}

	amount := req.AmountMinor
	if amount == 0 {
		amount = payment.RemainingMinor()
	}
	if amount < 0 {
		return Result{}, domain.ErrRefundAmountInvalid
	}
	if amount > payment.RemainingMinor() {
		return Result{}, domain.ErrRefundExceedsRemaining
	}

	callCtx, cancel := context.WithTimeout(ctx, p.refundTimeout)
	defer cancel()

	start := time.Now()
	refundID, err := p.charges.CreateRefund(callCtx, domain.ProcessorRefundRequest{
		IntentID:    payment.IntentID,
		AmountMinor: amount,
		Currency:    payment.Currency,
		Reason:      req.Reason,
	})
	if p.metrics != nil {
		p.metrics.RecordProcessorCall("create_refund", time.Since(start))
	}
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = p.uow.Within(ctx, func(r domain.Repositories) error {
		result, err = p.apply(ctx, r, payment.ID, amount)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if p.metrics != nil {
		p.metrics.RecordRefund("admin")
	}
	p.logger.WithField("order_id", req.OrderID).WithField("refund_id", refundID).
		WithField("amount_minor", amount).Info("admin refund applied")
	return result, nil
}

// ApplyEvent применяет возврат из события charge.refunded внутри уже
// открытой атомарной единицы. Возврат ищется по charge intent события.
func (p *Processor) ApplyEvent(ctx context.Context, r domain.Repositories, data *domain.PaymentEventData) (Result, error) {
	payment, err := r.Payments.GetByIntentID(ctx, data.IntentID)
	if err != nil {
		return Result{}, err
	}

	amount := data.AmountMinor
	if amount == 0 {
		amount = payment.RemainingMinor()
	}

	result, err := p.apply(ctx, r, payment.ID, amount)
	if err != nil {
		return Result{}, err
	}
	if p.metrics != nil {
		p.metrics.RecordRefund("event")
	}
	return result, nil
}

// apply — общее вычисление полного/частичного возврата. Заказ переходит в
// refunded только при полном возврате; частичный оставляет заказ confirmed.
func (p *Processor) apply(ctx context.Context, r domain.Repositories, paymentID string, amountMinor int64) (Result, error) {
	payment, err := r.Payments.Get(ctx, paymentID)
	if err != nil {
		return Result{}, err
	}

	full, err := payment.ApplyRefund(amountMinor)
	if err != nil {
		return Result{}, err
	}
	payment.UpdatedAt = time.Now().UTC()
	if err := r.Payments.Save(ctx, payment); err != nil {
		return Result{}, fmt.Errorf("save payment: %w", err)
	}

	order, err := r.Orders.Get(ctx, payment.OrderID)
	if err != nil {
		return Result{}, err
	}
	if full {
		if !order.CanTransition(domain.OrderStatusRefunded) {
			return Result{}, domain.ErrIllegalTransition
		}
		order.Status = domain.OrderStatusRefunded
		order.UpdatedAt = time.Now().UTC()
		if err := r.Orders.Save(ctx, order); err != nil {
			return Result{}, fmt.Errorf("save order: %w", err)
		}
	}

	p.enqueueRefunded(ctx, r, payment, full)

	return Result{
		PaymentID:     payment.ID,
		RefundedMinor: payment.RefundedMinor,
		FullRefund:    full,
		PaymentStatus: payment.Status,
		OrderStatus:   order.Status,
	}, nil
}

func (p *Processor) enqueueRefunded(ctx context.Context, r domain.Repositories, payment domain.Payment, full bool) {
	payload, err := json.Marshal(map[string]any{
		"order_id":       payment.OrderID,
		"payment_id":     payment.ID,
		"refunded_minor": payment.RefundedMinor,
		"full":           full,
	})
	if err != nil {
		return
	}
	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "payment",
		AggregateID:   payment.ID,
		EventType:     "payment.refunded",
		Payload:       payload,
	}); err != nil {
		p.logger.WithError(err).WithField("payment_id", payment.ID).Warn("enqueue payment.refunded failed")
	}
}
