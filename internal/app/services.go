package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/metrics"
	"github.com/learnonline/commerce/internal/service/cart"
	"github.com/learnonline/commerce/internal/service/checkout"
	"github.com/learnonline/commerce/internal/service/fulfillment"
	"github.com/learnonline/commerce/internal/service/processor"
	"github.com/learnonline/commerce/internal/service/refund"
	"github.com/learnonline/commerce/internal/service/webhook"
)

// insecureDevCredentialKey используется, когда COMMERCE_CREDENTIAL_KEY не задан.
// Годится только для локальной разработки.
const insecureDevCredentialKey = "commerce-dev-credential-key-32b!"

// services — собранный граф сервисов приложения.
type services struct {
	cart       *cart.Service
	checkout   *checkout.Orchestrator
	refunds    *refund.Processor
	gateway    *webhook.Gateway
	procConfig *processor.Config
	dispatcher *fulfillment.Dispatcher
}

// buildServices собирает сервисы поверх выбранных хранилищ.
func buildServices(ctx context.Context, deps *runtimeDependencies, cfg Config, logger *log.Entry) (*services, error) {
	key := []byte(cfg.CredentialKey)
	if len(key) != 32 {
		if cfg.CredentialKey != "" {
			return nil, fmt.Errorf("credential key must be exactly 32 bytes, got %d", len(cfg.CredentialKey))
		}
		logger.Warn("credential key is not set, using insecure development key")
		key = []byte(insecureDevCredentialKey)
	}
	sealer, err := processor.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("init credential sealer: %w", err)
	}

	factory := func(creds processor.Credentials) domain.ChargeProcessor {
		if cfg.ProcessorBaseURL == "" {
			// NOTE: без базового URL процессора работаем на mock-клиенте,
			// для разработки и демо.
			return processor.NewMockProcessor()
		}
		return processor.NewHTTPClient(cfg.ProcessorBaseURL, creds.SecretKey)
	}
	procConfig := processor.NewConfig(deps.credentials, sealer, factory, logger.WithField("component", "processor-config"))
	if err := procConfig.Load(ctx); err != nil {
		return nil, fmt.Errorf("load processor credentials: %w", err)
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()
	eventMetrics := metrics.NewEventMetrics()

	cartService := cart.NewService(deps.carts, deps.catalog, deps.enrollments, logger.WithField("component", "cart"))

	charges := procConfig.AsChargeProcessor()
	orchestrator := checkout.NewOrchestrator(
		deps.carts, cartService, deps.uow, deps.orders, deps.payments, charges,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(checkoutMetrics),
	)

	dispatcher := fulfillment.NewDispatcher(
		deps.enrollments,
		fulfillment.NewLogMailer(logger.WithField("component", "mailer")),
		deps.outbox,
		logger.WithField("component", "fulfillment"),
	)

	refunds := refund.NewProcessor(deps.uow, deps.payments, charges,
		logger.WithField("component", "refund"), checkoutMetrics)

	gateway := webhook.NewGateway(
		webhook.NewVerifier(procConfig.WebhookSecret),
		deps.uow,
		webhook.NewOrderPaymentMachine(logger.WithField("component", "order-machine")),
		webhook.NewSubscriptionMachine(webhook.NewResolverChain(deps.plans), logger.WithField("component", "subscription-machine")),
		refunds,
		dispatcher,
		logger.WithField("component", "webhook-gateway"),
		eventMetrics,
	)

	return &services{
		cart:       cartService,
		checkout:   orchestrator,
		refunds:    refunds,
		gateway:    gateway,
		procConfig: procConfig,
		dispatcher: dispatcher,
	}, nil
}
