package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/service/cart"
	"github.com/learnonline/commerce/internal/service/processor"
	"github.com/learnonline/commerce/internal/storage/memory"
)

type testEnv struct {
	orchestrator *Orchestrator
	cartService  *cart.Service
	carts        domain.CartRepository
	orders       domain.OrderRepository
	payments     domain.PaymentRepository
	mock         *processor.MockProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog := memory.NewCatalogRepository()
	catalog.PutProduct(domain.Product{
		ID: "p-shirt", Name: "Shirt", PriceMinor: 2500, Currency: "USD", Active: true,
	})
	catalog.PutCourse(domain.Course{
		ID: "c-go", Title: "Go Basics", PriceMinor: 9900, Currency: "USD", Published: true,
	})

	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	payments := memory.NewPaymentRepository()
	enrollments := memory.NewEnrollmentRepository()
	uow := memory.NewUnitOfWork(domain.Repositories{
		Carts:         carts,
		Orders:        orders,
		Payments:      payments,
		Subscriptions: memory.NewSubscriptionRepository(),
		Events:        memory.NewProcessedEventRepository(),
		Outbox:        memory.NewOutboxRepository(),
	})

	cartService := cart.NewService(carts, catalog, enrollments, nil)
	mock := processor.NewMockProcessor()
	orchestrator := NewOrchestrator(
		carts, cartService, uow, orders, payments, mock,
		WithIntentTimeout(time.Second),
		WithRetryBackoff(time.Millisecond),
	)

	return &testEnv{
		orchestrator: orchestrator,
		cartService:  cartService,
		carts:        carts,
		orders:       orders,
		payments:     payments,
		mock:         mock,
	}
}

func TestCheckoutCreatesPendingOrderAndPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 2}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	result, err := env.orchestrator.Checkout(ctx, owner)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.ClientSecret == "" {
		t.Fatal("expected client secret for payment completion")
	}

	order, err := env.orders.Get(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("order not found: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	// 25.00 × 2 = 5000 минорных единиц.
	if order.TotalMinor != 5000 {
		t.Fatalf("expected total 5000, got %d", order.TotalMinor)
	}
	if len(order.Items) != 1 || order.Items[0].PriceMinor != 2500 {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}

	payment, err := env.payments.Get(ctx, result.PaymentID)
	if err != nil {
		t.Fatalf("payment not found: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", payment.Status)
	}
	if payment.AmountMinor != order.TotalMinor {
		t.Fatalf("payment amount %d does not match order total %d", payment.AmountMinor, order.TotalMinor)
	}
	if payment.IntentID != env.mock.Intent.ID {
		t.Fatalf("expected intent id attached, got %q", payment.IntentID)
	}

	if env.mock.LastIntentReq.OrderID != order.ID {
		t.Fatalf("intent request not tagged with order id: %+v", env.mock.LastIntentReq)
	}
	if env.mock.LastIntentReq.AmountMinor != 5000 {
		t.Fatalf("unexpected intent amount: %d", env.mock.LastIntentReq.AmountMinor)
	}

	// Корзина остаётся нетронутой до события успешной оплаты.
	view, err := env.cartService.GetOrCreate(ctx, owner)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("cart must stay intact after checkout, got %d items", len(view.Items))
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orchestrator.Checkout(context.Background(), domain.UserOwnerKey("u-1"))
	if !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestCheckoutCompensatesOnProcessorFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	env.mock.IntentErr = &domain.ProcessorError{Message: "card declined", Temporary: false}

	_, err := env.orchestrator.Checkout(ctx, owner)
	pe, ok := domain.AsProcessorError(err)
	if !ok {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if pe.Message != "card declined" {
		t.Fatalf("processor message lost: %q", pe.Message)
	}
	// Постоянная ошибка не повторяется.
	if env.mock.IntentCalls != 1 {
		t.Fatalf("expected single intent call, got %d", env.mock.IntentCalls)
	}

	// Пара Order+Payment откатилась целиком.
	if _, err := env.payments.GetActiveByOrder(ctx, env.mock.LastIntentReq.OrderID); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected payment removed, got %v", err)
	}
	if _, err := env.orders.Get(ctx, env.mock.LastIntentReq.OrderID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order removed, got %v", err)
	}

	// Корзина пригодна для повторной попытки.
	view, err := env.cartService.GetOrCreate(ctx, owner)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("cart must survive failed checkout, got %d items", len(view.Items))
	}
}

func TestCheckoutRetriesTransientError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	transient := &transientOnceProcessor{inner: env.mock}
	env.orchestrator.processor = transient

	result, err := env.orchestrator.Checkout(ctx, owner)
	if err != nil {
		t.Fatalf("checkout with transient error failed: %v", err)
	}
	if transient.calls != 2 {
		t.Fatalf("expected retry after transient error, got %d calls", transient.calls)
	}
	if result.OrderID == "" {
		t.Fatal("expected order id in result")
	}
}

func TestCheckoutMixedCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{CourseID: "c-go"}); err != nil {
		t.Fatalf("add course failed: %v", err)
	}

	result, err := env.orchestrator.Checkout(ctx, owner)
	if err != nil {
		t.Fatalf("mixed checkout failed: %v", err)
	}

	order, err := env.orders.Get(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("order not found: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected two order items, got %d", len(order.Items))
	}
	if order.TotalMinor != 2500+9900 {
		t.Fatalf("unexpected total: %d", order.TotalMinor)
	}
}

// transientOnceProcessor отвечает транзиентной ошибкой на первый вызов.
type transientOnceProcessor struct {
	inner domain.ChargeProcessor
	calls int
}

func (p *transientOnceProcessor) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	p.calls++
	if p.calls == 1 {
		return domain.Intent{}, &domain.ProcessorError{Message: "connection reset", Temporary: true}
	}
	return p.inner.CreateIntent(ctx, req)
}

func (p *transientOnceProcessor) CreateRefund(ctx context.Context, req domain.ProcessorRefundRequest) (string, error) {
	return p.inner.CreateRefund(ctx, req)
}

func (p *transientOnceProcessor) CancelIntent(ctx context.Context, intentID string) error {
	return p.inner.CancelIntent(ctx, intentID)
}

// failingSavePayments отвечает ошибкой хранилища на каждый Save.
type failingSavePayments struct {
	domain.PaymentRepository
}

func (f *failingSavePayments) Save(ctx context.Context, payment domain.Payment) error {
	return errors.New("storage unavailable")
}

func TestCheckoutVoidsIntentWhenAttachFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	env.orchestrator.payments = &failingSavePayments{PaymentRepository: env.payments}

	if _, err := env.orchestrator.Checkout(ctx, owner); err == nil {
		t.Fatal("expected checkout error when intent cannot be attached")
	}

	// Intent аннулирован, пара Order+Payment не осталась висеть pending.
	if env.mock.CancelCalls != 1 {
		t.Fatalf("expected one cancel intent call, got %d", env.mock.CancelCalls)
	}
	if env.mock.LastCancelID != env.mock.Intent.ID {
		t.Fatalf("unexpected cancelled intent: %q", env.mock.LastCancelID)
	}
	orderID := env.mock.LastIntentReq.OrderID
	if _, err := env.orders.Get(ctx, orderID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order removed, got %v", err)
	}
	if _, err := env.payments.GetActiveByOrder(ctx, orderID); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected payment removed, got %v", err)
	}
}

func TestCancelOrderWhilePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	result, err := env.orchestrator.Checkout(ctx, owner)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	cancelled, err := env.orchestrator.CancelOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("cancel order failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", cancelled.Status)
	}

	order, err := env.orders.Get(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("cancellation not persisted, got %s", order.Status)
	}
}

func TestCancelOrderRefusedAfterDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := domain.UserOwnerKey("u-1")

	if _, err := env.cartService.AddItem(ctx, owner, cart.AddItemRequest{ProductID: "p-shirt", Qty: 1}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	result, err := env.orchestrator.Checkout(ctx, owner)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	order, err := env.orders.Get(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	order.Status = domain.OrderStatusDelivered
	if err := env.orders.Save(ctx, order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	if _, err := env.orchestrator.CancelOrder(ctx, result.OrderID); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}
