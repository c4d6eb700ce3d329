package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/storage/memory"
	"github.com/learnonline/commerce/internal/storage/postgres"
)

// runtimeDependencies содержит хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	carts         domain.CartRepository
	orders        domain.OrderRepository
	payments      domain.PaymentRepository
	subscriptions domain.SubscriptionRepository
	events        domain.ProcessedEventRepository
	outbox        domain.OutboxRepository
	enrollments   domain.EnrollmentRepository
	plans         domain.PlanRepository
	credentials   domain.CredentialRepository
	catalog       domain.CatalogRepository
	uow           domain.UnitOfWork

	store *postgres.Store // nil для memory
}

// close освобождает ресурсы хранилища.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}

// initRuntimeDependencies создаёт хранилища по выбранному драйверу.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return initMemoryDependencies(logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func initMemoryDependencies(logger *log.Entry) *runtimeDependencies {
	catalog := memory.NewCatalogRepository()
	plans := memory.NewPlanRepository(domain.Plan{
		ID:             "pro",
		Slug:           "pro",
		Name:           "Pro Plan",
		MonthlyPriceID: "price_pro_month",
		YearlyPriceID:  "price_pro_year",
	})
	seedDemoCatalog(catalog)

	deps := &runtimeDependencies{
		carts:         memory.NewCartRepository(),
		orders:        memory.NewOrderRepository(),
		payments:      memory.NewPaymentRepository(),
		subscriptions: memory.NewSubscriptionRepository(),
		events:        memory.NewProcessedEventRepository(),
		outbox:        memory.NewOutboxRepository(),
		enrollments:   memory.NewEnrollmentRepository(),
		plans:         plans,
		credentials:   memory.NewCredentialRepository(),
		catalog:       catalog,
	}
	deps.uow = memory.NewUnitOfWork(domain.Repositories{
		Carts:         deps.carts,
		Orders:        deps.orders,
		Payments:      deps.payments,
		Subscriptions: deps.subscriptions,
		Events:        deps.events,
		Outbox:        deps.outbox,
	})

	logger.Info("in-memory storage initialized")
	return deps
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres driver selected but DSN is empty")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	deps := &runtimeDependencies{
		carts:         postgres.NewCartRepository(store),
		orders:        postgres.NewOrderRepository(store),
		payments:      postgres.NewPaymentRepository(store),
		subscriptions: postgres.NewSubscriptionRepository(store),
		events:        postgres.NewProcessedEventRepository(store),
		outbox:        postgres.NewOutboxRepository(store),
		enrollments:   postgres.NewEnrollmentRepository(store),
		plans:         postgres.NewPlanRepository(store),
		credentials:   postgres.NewCredentialRepository(store),
		// Каталог ведётся внешней частью платформы; адаптер здесь —
		// in-memory снапшот, наполняемый извне.
		catalog: memory.NewCatalogRepository(),
		uow:     postgres.NewUnitOfWork(store),
		store:   store,
	}

	logger.Info("postgres storage initialized")
	return deps, nil
}

// seedDemoCatalog наполняет in-memory каталог демо-данными.
// NOTE: только для разработки; production каталог приходит из платформы.
func seedDemoCatalog(catalog interface {
	PutProduct(domain.Product)
	PutCourse(domain.Course)
}) {
	catalog.PutProduct(domain.Product{
		ID:       "p-tshirt",
		Name:     "Logo T-Shirt",
		Currency: "USD",
		Active:   true,
		Variants: []domain.Variant{
			{ID: "v-s", ProductID: "p-tshirt", Name: "Small", PriceMinor: 2500},
			{ID: "v-l", ProductID: "p-tshirt", Name: "Large", PriceMinor: 2700},
		},
		PriceMinor: 2500,
	})
	catalog.PutCourse(domain.Course{
		ID:         "c-go-basics",
		Title:      "Go Basics",
		Currency:   "USD",
		Published:  true,
		PriceMinor: 9900,
	})
}
