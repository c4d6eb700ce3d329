package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/metrics"
	"github.com/learnonline/commerce/internal/service/cart"
)

const (
	defaultIntentTimeout = 10 * time.Second
	defaultRetryBackoff  = 200 * time.Millisecond
)

// Result — данные для завершения оплаты на стороне клиента.
type Result struct {
	OrderID      string
	PaymentID    string
	ClientSecret string
}

// OrderView — заказ вместе с активной попыткой оплаты.
type OrderView struct {
	Order   domain.Order
	Payment domain.Payment
}

// Orchestrator проводит checkout: повторная валидация позиций, атомарное
// создание Order+Payment, запрос charge intent у процессора с компенсацией
// при сбое. Корзина очищается только по событию успешной оплаты.
type Orchestrator struct {
	carts         domain.CartRepository
	cartService   *cart.Service
	uow           domain.UnitOfWork
	orders        domain.OrderRepository
	payments      domain.PaymentRepository
	processor     domain.ChargeProcessor
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	intentTimeout time.Duration
	retryBackoff  time.Duration
}

// Options задаёт параметры оркестратора checkout.
type Options struct {
	Logger        *log.Entry
	Metrics       *metrics.CheckoutMetrics
	IntentTimeout time.Duration
	RetryBackoff  time.Duration
}

// Option настраивает Orchestrator.
type Option func(*Options)

// WithLogger задаёт logger для оркестратора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики checkout.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithIntentTimeout задаёт таймаут вызова процессора.
func WithIntentTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.IntentTimeout = timeout
	}
}

// WithRetryBackoff задаёт паузу перед повторным вызовом процессора.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(opts *Options) {
		opts.RetryBackoff = backoff
	}
}

// NewOrchestrator создаёт оркестратор checkout.
func NewOrchestrator(
	carts domain.CartRepository,
	cartService *cart.Service,
	uow domain.UnitOfWork,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	processor domain.ChargeProcessor,
	options ...Option,
) *Orchestrator {
	opts := Options{
		IntentTimeout: defaultIntentTimeout,
		RetryBackoff:  defaultRetryBackoff,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if opts.IntentTimeout <= 0 {
		opts.IntentTimeout = defaultIntentTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	return &Orchestrator{
		carts:         carts,
		cartService:   cartService,
		uow:           uow,
		orders:        orders,
		payments:      payments,
		processor:     processor,
		logger:        logger,
		metrics:       opts.Metrics,
		intentTimeout: opts.IntentTimeout,
		retryBackoff:  opts.RetryBackoff,
	}
}

// Checkout оформляет корзину владельца.
func (o *Orchestrator) Checkout(ctx context.Context, ownerKey string) (Result, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
		defer func() {
			o.metrics.RecordCheckoutDuration(time.Since(start))
			o.metrics.RecordCheckoutFinished()
		}()
	}

	result, err := o.checkout(ctx, ownerKey)
	if o.metrics != nil {
		if err != nil {
			o.metrics.RecordCheckoutFailed()
		} else {
			o.metrics.RecordCheckoutCompleted()
		}
	}
	return result, err
}

func (o *Orchestrator) checkout(ctx context.Context, ownerKey string) (Result, error) {
	if ownerKey == "" {
		return Result{}, domain.ErrOwnerKeyRequired
	}

	cartRow, err := o.carts.GetOrCreate(ctx, ownerKey)
	if err != nil {
		return Result{}, fmt.Errorf("load cart: %w", err)
	}
	if len(cartRow.Items) == 0 {
		return Result{}, domain.ErrCartEmpty
	}

	priced, totals, err := o.cartService.Revalidate(ctx, cartRow)
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		OwnerKey:      ownerKey,
		CartID:        cartRow.ID,
		Status:        domain.OrderStatusPending,
		Currency:      totals.Subtotal.Currency,
		SubtotalMinor: totals.Subtotal.AmountMinor,
		TotalMinor:    totals.Subtotal.AmountMinor,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, p := range priced {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ProductID:  p.Item.ProductID,
			VariantID:  p.Item.VariantID,
			CourseID:   p.Item.CourseID,
			Name:       p.Title,
			Qty:        p.Item.Qty,
			PriceMinor: p.UnitPrice.AmountMinor,
			CreatedAt:  now,
		})
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Result{}, errs[0]
	}

	payment := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Status:      domain.PaymentStatusPending,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.uow.Within(ctx, func(r domain.Repositories) error {
		if err := r.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := r.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	}); err != nil {
		return Result{}, err
	}

	intent, err := o.createIntent(ctx, domain.IntentRequest{
		OrderID:     order.ID,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
	})
	if err != nil {
		o.compensate(ctx, order.ID, payment.ID)
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("checkout failed at processor")
		return Result{}, err
	}

	payment.IntentID = intent.ID
	payment.UpdatedAt = time.Now().UTC()
	if err := o.payments.Save(ctx, payment); err != nil {
		// Пара без intent id не дождётся события успеха: удаляем её и
		// аннулируем intent, чтобы клиент не оплатил осиротевший заказ.
		o.voidIntent(ctx, intent.ID)
		o.compensate(ctx, order.ID, payment.ID)
		return Result{}, fmt.Errorf("attach intent to payment: %w", err)
	}

	o.logger.WithField("order_id", order.ID).WithField("total_minor", order.TotalMinor).Info("checkout created pending order")
	return Result{
		OrderID:      order.ID,
		PaymentID:    payment.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// createIntent вызывает процессор с таймаутом и одним повтором на
// транзиентной ошибке.
func (o *Orchestrator) createIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	intent, err := o.createIntentOnce(ctx, req)
	if err == nil {
		return intent, nil
	}
	if !isTransient(err) {
		return domain.Intent{}, err
	}

	select {
	case <-ctx.Done():
		return domain.Intent{}, ctx.Err()
	case <-time.After(o.retryBackoff):
	}

	o.logger.WithError(err).WithField("order_id", req.OrderID).Warn("retrying processor intent")
	return o.createIntentOnce(ctx, req)
}

func (o *Orchestrator) createIntentOnce(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.intentTimeout)
	defer cancel()

	start := time.Now()
	intent, err := o.processor.CreateIntent(callCtx, req)
	if o.metrics != nil {
		o.metrics.RecordProcessorCall("create_intent", time.Since(start))
	}
	return intent, err
}

func isTransient(err error) bool {
	if pe, ok := domain.AsProcessorError(err); ok {
		return pe.Temporary
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// voidIntent аннулирует intent, который не удалось привязать к платежу.
func (o *Orchestrator) voidIntent(ctx context.Context, intentID string) {
	callCtx, cancel := context.WithTimeout(ctx, o.intentTimeout)
	defer cancel()

	if err := o.processor.CancelIntent(callCtx, intentID); err != nil {
		o.logger.WithError(err).WithField("intent_id", intentID).Warn("cancel intent failed")
	}
}

// compensate удаляет пару Order+Payment, оставшуюся без charge intent.
func (o *Orchestrator) compensate(ctx context.Context, orderID, paymentID string) {
	err := o.uow.Within(ctx, func(r domain.Repositories) error {
		if err := r.Payments.Delete(ctx, paymentID); err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		if err := r.Orders.Delete(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Error("checkout compensation failed")
	}
}

// CancelOrder отменяет заказ административным действием. Разрешено
// только из pending или confirmed до исполнения.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var cancelled domain.Order
	err := o.uow.Within(ctx, func(r domain.Repositories) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.CanTransition(domain.OrderStatusCancelled) {
			return domain.ErrIllegalTransition
		}
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = time.Now().UTC()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	o.logger.WithField("order_id", orderID).Info("order cancelled by admin")
	return cancelled, nil
}

// GetOrder возвращает заказ с активным платежом.
func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}

	payment, err := o.payments.GetActiveByOrder(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return OrderView{}, err
	}
	return OrderView{Order: order, Payment: payment}, nil
}
