package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/service/cart"
	"github.com/learnonline/commerce/internal/service/checkout"
	"github.com/learnonline/commerce/internal/service/fulfillment"
	"github.com/learnonline/commerce/internal/service/processor"
	"github.com/learnonline/commerce/internal/service/refund"
	"github.com/learnonline/commerce/internal/service/webhook"
	"github.com/learnonline/commerce/internal/storage/memory"
)

const lifecycleWebhookSecret = "whsec_lifecycle_test"

// CommerceLifecycleTestSuite тестирует полный жизненный цикл покупки:
// корзина, checkout, платёжные события, побочные эффекты и возвраты.
type CommerceLifecycleTestSuite struct {
	suite.Suite

	carts         domain.CartRepository
	orders        domain.OrderRepository
	payments      domain.PaymentRepository
	subscriptions domain.SubscriptionRepository
	enrollments   domain.EnrollmentRepository
	outbox        domain.OutboxRepository

	cartService  *cart.Service
	orchestrator *checkout.Orchestrator
	refunds      *refund.Processor
	gateway      *webhook.Gateway
	mock         *processor.MockProcessor
	mailer       *fulfillment.MockMailer
}

func (suite *CommerceLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	catalog := memory.NewCatalogRepository()
	catalog.PutProduct(domain.Product{
		ID:       "p-laptop",
		Name:     "Laptop Pro",
		Currency: "USD",
		Active:   true,
		Variants: []domain.Variant{
			{ID: "v-16gb", ProductID: "p-laptop", Name: "16GB", PriceMinor: 199900},
		},
		PriceMinor: 199900,
	})
	catalog.PutCourse(domain.Course{
		ID: "c-go", Title: "Go Basics", Currency: "USD", Published: true, PriceMinor: 9900,
	})
	plans := memory.NewPlanRepository(domain.Plan{
		ID:             "pro",
		Slug:           "pro",
		Name:           "Pro Plan",
		MonthlyPriceID: "price_pro_month",
		YearlyPriceID:  "price_pro_year",
	})

	suite.carts = memory.NewCartRepository()
	suite.orders = memory.NewOrderRepository()
	suite.payments = memory.NewPaymentRepository()
	suite.subscriptions = memory.NewSubscriptionRepository()
	suite.enrollments = memory.NewEnrollmentRepository()
	suite.outbox = memory.NewOutboxRepository()

	uow := memory.NewUnitOfWork(domain.Repositories{
		Carts:         suite.carts,
		Orders:        suite.orders,
		Payments:      suite.payments,
		Subscriptions: suite.subscriptions,
		Events:        memory.NewProcessedEventRepository(),
		Outbox:        suite.outbox,
	})

	suite.cartService = cart.NewService(suite.carts, catalog, suite.enrollments, logger)
	suite.mock = processor.NewMockProcessor()
	suite.orchestrator = checkout.NewOrchestrator(
		suite.carts, suite.cartService, uow, suite.orders, suite.payments, suite.mock,
		checkout.WithLogger(logger),
		checkout.WithIntentTimeout(time.Second),
		checkout.WithRetryBackoff(time.Millisecond),
	)

	suite.mailer = fulfillment.NewMockMailer()
	dispatcher := fulfillment.NewDispatcher(suite.enrollments, suite.mailer, suite.outbox, logger)
	suite.refunds = refund.NewProcessor(uow, suite.payments, suite.mock, logger, nil)
	suite.gateway = webhook.NewGateway(
		webhook.NewVerifier(func() (string, error) { return lifecycleWebhookSecret, nil }),
		uow,
		webhook.NewOrderPaymentMachine(logger),
		webhook.NewSubscriptionMachine(webhook.NewResolverChain(plans), logger),
		suite.refunds,
		dispatcher,
		logger,
		nil,
	)
}

// deliver подписывает и доставляет событие процессора в gateway.
func (suite *CommerceLifecycleTestSuite) deliver(body string) error {
	raw := []byte(body)
	return suite.gateway.Process(context.Background(), raw, webhook.Sign(lifecycleWebhookSecret, raw))
}

// checkoutOrder собирает корзину покупателя и проводит checkout.
func (suite *CommerceLifecycleTestSuite) checkoutOrder(userID string) checkout.Result {
	ctx := context.Background()
	ownerKey := domain.UserOwnerKey(userID)

	_, err := suite.cartService.AddItem(ctx, ownerKey, cart.AddItemRequest{
		ProductID: "p-laptop", VariantID: "v-16gb", Qty: 1,
	})
	require.NoError(suite.T(), err)
	_, err = suite.cartService.AddItem(ctx, ownerKey, cart.AddItemRequest{
		CourseID: "c-go", Qty: 1,
	})
	require.NoError(suite.T(), err)

	result, err := suite.orchestrator.Checkout(ctx, ownerKey)
	require.NoError(suite.T(), err)
	return result
}

func (suite *CommerceLifecycleTestSuite) TestSuccessfulPurchaseLifecycle() {
	ctx := context.Background()

	result := suite.checkoutOrder("customer-123")

	order, err := suite.orders.Get(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)
	require.Equal(suite.T(), int64(209800), order.TotalMinor) // $1999.00 + $99.00

	// Событие успешной оплаты подтверждает заказ
	err = suite.deliver(fmt.Sprintf(
		`{"id":"evt-1","type":"payment.succeeded","data":{"intent_id":%q,"amount":209800,"currency":"USD"}}`,
		suite.mock.Intent.ID))
	require.NoError(suite.T(), err)

	order, err = suite.orders.Get(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusConfirmed, order.Status)

	payment, err := suite.payments.GetActiveByOrder(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.PaymentStatusPaid, payment.Status)

	// Побочные эффекты: зачисление на курс, письмо, корзина очищена
	enrolled, err := suite.enrollments.Exists(ctx, "c-go", "customer-123")
	require.NoError(suite.T(), err)
	require.True(suite.T(), enrolled)
	require.Len(suite.T(), suite.mailer.Sent(), 1)

	view, err := suite.cartService.GetOrCreate(ctx, domain.UserOwnerKey("customer-123"))
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), view.Items)

	// Outbox содержит события подтверждения и зачисления
	pending, err := suite.outbox.PullPending(ctx, 10)
	require.NoError(suite.T(), err)
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	require.Contains(suite.T(), types, "order.confirmed")
	require.Contains(suite.T(), types, "course.enrolled")
}

func (suite *CommerceLifecycleTestSuite) TestDuplicateEventIsIdempotent() {
	ctx := context.Background()

	result := suite.checkoutOrder("customer-123")

	body := fmt.Sprintf(
		`{"id":"evt-dup","type":"payment.succeeded","data":{"intent_id":%q,"amount":209800,"currency":"USD"}}`,
		suite.mock.Intent.ID)
	require.NoError(suite.T(), suite.deliver(body))
	require.NoError(suite.T(), suite.deliver(body))

	order, err := suite.orders.Get(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusConfirmed, order.Status)
	require.Len(suite.T(), suite.mailer.Sent(), 1)
}

func (suite *CommerceLifecycleTestSuite) TestFailedPaymentKeepsOrderPending() {
	ctx := context.Background()

	result := suite.checkoutOrder("customer-456")

	err := suite.deliver(fmt.Sprintf(
		`{"id":"evt-2","type":"payment.failed","data":{"intent_id":%q,"failure_reason":"card_declined"}}`,
		suite.mock.Intent.ID))
	require.NoError(suite.T(), err)

	payment, err := suite.payments.GetActiveByOrder(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.PaymentStatusFailed, payment.Status)
	require.Equal(suite.T(), "card_declined", payment.FailureReason)

	// Заказ ждёт повторной попытки оплаты, корзина не очищена
	order, err := suite.orders.Get(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)

	view, err := suite.cartService.GetOrCreate(ctx, domain.UserOwnerKey("customer-456"))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), view.Items, 2)
}

func (suite *CommerceLifecycleTestSuite) TestAdminRefundLifecycle() {
	ctx := context.Background()

	result := suite.checkoutOrder("customer-123")
	require.NoError(suite.T(), suite.deliver(fmt.Sprintf(
		`{"id":"evt-3","type":"payment.succeeded","data":{"intent_id":%q,"amount":209800,"currency":"USD"}}`,
		suite.mock.Intent.ID)))

	// Частичный возврат
	partial, err := suite.refunds.Refund(ctx, refund.Request{
		OrderID: result.OrderID, AmountMinor: 9900, Reason: "course refund",
	})
	require.NoError(suite.T(), err)
	require.False(suite.T(), partial.FullRefund)
	require.Equal(suite.T(), domain.OrderStatusPartiallyRefunded, partial.OrderStatus)

	// Возврат остатка: нулевая сумма означает весь остаток
	full, err := suite.refunds.Refund(ctx, refund.Request{
		OrderID: result.OrderID, Reason: "order canceled",
	})
	require.NoError(suite.T(), err)
	require.True(suite.T(), full.FullRefund)
	require.Equal(suite.T(), domain.OrderStatusRefunded, full.OrderStatus)
	require.Equal(suite.T(), int64(199900), full.RefundedMinor)
	require.Equal(suite.T(), 2, suite.mock.RefundCalls)

	// Возврат поверх полностью возвращённого платежа отклоняется
	_, err = suite.refunds.Refund(ctx, refund.Request{OrderID: result.OrderID})
	require.Error(suite.T(), err)
}

func (suite *CommerceLifecycleTestSuite) TestSubscriptionLifecycle() {
	ctx := context.Background()

	created := `{"id":"evt-sub-1","type":"subscription.created","data":{
		"subscription_id":"sub_ext_1","price_id":"price_pro_month","interval":"month",
		"status":"active","period_start":1756400000,"period_end":1759078400,
		"metadata":{"user_id":"customer-123"}}}`
	require.NoError(suite.T(), suite.deliver(created))

	sub, err := suite.subscriptions.GetByExternalID(ctx, "sub_ext_1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "customer-123", sub.UserID)
	require.Equal(suite.T(), "pro", sub.PlanID)
	require.Equal(suite.T(), domain.SubscriptionStatusActive, sub.Status)
	require.Equal(suite.T(), domain.BillingCycleMonthly, sub.Cycle)

	updated := `{"id":"evt-sub-2","type":"subscription.updated","data":{
		"subscription_id":"sub_ext_1","price_id":"price_pro_month","interval":"month",
		"status":"past_due","period_start":1756400000,"period_end":1759078400,
		"metadata":{"user_id":"customer-123"}}}`
	require.NoError(suite.T(), suite.deliver(updated))

	sub, err = suite.subscriptions.GetByExternalID(ctx, "sub_ext_1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.SubscriptionStatusPastDue, sub.Status)

	deleted := `{"id":"evt-sub-3","type":"subscription.deleted","data":{
		"subscription_id":"sub_ext_1","status":"canceled","canceled_at":1756500000,
		"metadata":{"user_id":"customer-123"}}}`
	require.NoError(suite.T(), suite.deliver(deleted))

	sub, err = suite.subscriptions.GetByExternalID(ctx, "sub_ext_1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(suite.T(), sub.CanceledAt)
}

func (suite *CommerceLifecycleTestSuite) TestExternalRefundEvent() {
	ctx := context.Background()

	result := suite.checkoutOrder("customer-123")
	require.NoError(suite.T(), suite.deliver(fmt.Sprintf(
		`{"id":"evt-4","type":"payment.succeeded","data":{"intent_id":%q,"amount":209800,"currency":"USD"}}`,
		suite.mock.Intent.ID)))

	// Возврат, инициированный в кабинете процессора, приходит событием
	require.NoError(suite.T(), suite.deliver(fmt.Sprintf(
		`{"id":"evt-5","type":"charge.refunded","data":{"intent_id":%q,"amount":209800,"currency":"USD"}}`,
		suite.mock.Intent.ID)))

	order, err := suite.orders.Get(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusRefunded, order.Status)

	payment, err := suite.payments.GetActiveByOrder(ctx, result.OrderID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.PaymentStatusRefunded, payment.Status)
	// Внешний возврат не зовёт процессор повторно
	require.Equal(suite.T(), 0, suite.mock.RefundCalls)
}

func (suite *CommerceLifecycleTestSuite) TestRejectsBadSignature() {
	body := []byte(`{"id":"evt-bad","type":"payment.succeeded","data":{"intent_id":"pi_x"}}`)
	err := suite.gateway.Process(context.Background(), body, "bad-signature")
	require.ErrorIs(suite.T(), err, domain.ErrSignatureInvalid)
}

func TestCommerceLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(CommerceLifecycleTestSuite))
}
