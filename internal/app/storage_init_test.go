package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/learnonline/commerce/internal/health"
	"github.com/learnonline/commerce/internal/domain"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverMemory

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-init"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer deps.close(log.WithField("test", "memory-init"))

	if deps.carts == nil || deps.orders == nil || deps.payments == nil || deps.subscriptions == nil {
		t.Fatal("core repositories must be initialized")
	}
	if deps.events == nil || deps.outbox == nil || deps.enrollments == nil || deps.plans == nil {
		t.Fatal("supporting repositories must be initialized")
	}
	if deps.credentials == nil || deps.catalog == nil || deps.uow == nil {
		t.Fatal("credentials, catalog and unit of work must be initialized")
	}
	if deps.store != nil {
		t.Fatal("memory driver must not open a postgres store")
	}
}

func TestInitRuntimeDependencies_EmptyDriverDefaultsToMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = ""

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-init"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.store != nil {
		t.Fatal("empty driver must fall back to memory")
	}
}

func TestInitRuntimeDependencies_MemorySeedsDemoCatalog(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-init"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	product, err := deps.catalog.ProductByID(ctx, "p-tshirt")
	if err != nil {
		t.Fatalf("demo product must be seeded: %v", err)
	}
	if len(product.Variants) != 2 {
		t.Errorf("expected 2 demo variants, got %d", len(product.Variants))
	}
	if _, err := deps.catalog.CourseByID(ctx, "c-go-basics"); err != nil {
		t.Fatalf("demo course must be seeded: %v", err)
	}
	if _, err := deps.plans.Get(ctx, "pro"); err != nil {
		t.Fatalf("demo plan must be seeded: %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresWithoutDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = ""

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err == nil || !strings.Contains(err.Error(), "DSN is empty") {
		t.Fatalf("expected empty DSN error, got %v", err)
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "bad-driver"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	if deps.store == nil {
		t.Fatal("expected non-nil postgres store")
	}
	checker := healthcheck.NewSimpleChecker("storage", func() error {
		return deps.store.Ping(context.Background())
	})
	if check := checker.Check(); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage, got %+v", check)
	}
}

func TestMemoryUnitOfWork_SeesSameRepositories(t *testing.T) {
	cfg := DefaultConfig()
	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "uow"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	var createdID string
	err = deps.uow.Within(ctx, func(repos domain.Repositories) error {
		cart, err := repos.Carts.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
		if err != nil {
			return err
		}
		createdID = cart.ID
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := deps.carts.Get(ctx, createdID); err != nil {
		t.Fatalf("cart created inside unit of work must be visible outside: %v", err)
	}
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("COMMERCE_POSTGRES_TEST_DSN"))
}
