package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/storage/memory"
)

func newSubscription() domain.Subscription {
	now := time.Now().UTC()
	return domain.Subscription{
		ID:          "sub-1",
		UserID:      "user-1",
		PlanID:      "pro",
		ExternalID:  "sub_ext_1",
		Cycle:       domain.BillingCycleMonthly,
		Status:      domain.SubscriptionStatusActive,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSubscriptionRepository_CreateGet(t *testing.T) {
	repo := memory.NewSubscriptionRepository()
	ctx := context.Background()
	sub := newSubscription()

	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	byExternal, err := repo.GetByExternalID(ctx, sub.ExternalID)
	if err != nil {
		t.Fatalf("get by external id failed: %v", err)
	}
	if byExternal.ID != sub.ID {
		t.Fatalf("expected id %s, got %s", sub.ID, byExternal.ID)
	}

	byUser, err := repo.GetByUser(ctx, sub.UserID)
	if err != nil {
		t.Fatalf("get by user failed: %v", err)
	}
	if byUser.ID != sub.ID {
		t.Fatalf("expected id %s, got %s", sub.ID, byUser.ID)
	}
}

func TestSubscriptionRepository_OnePerUser(t *testing.T) {
	repo := memory.NewSubscriptionRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newSubscription()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second := newSubscription()
	second.ID = "sub-2"
	second.ExternalID = "sub_ext_2"
	if err := repo.Create(ctx, second); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict for second subscription of same user, got %v", err)
	}
}

func TestSubscriptionRepository_Save(t *testing.T) {
	repo := memory.NewSubscriptionRepository()
	ctx := context.Background()
	sub := newSubscription()
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub.Status = domain.SubscriptionStatusPastDue
	if err := repo.Save(ctx, sub); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	stored, err := repo.GetByExternalID(ctx, sub.ExternalID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %s", stored.Status)
	}
}

func TestSubscriptionRepository_NotFound(t *testing.T) {
	repo := memory.NewSubscriptionRepository()
	ctx := context.Background()

	if _, err := repo.GetByExternalID(ctx, "missing"); !errors.Is(err, domain.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if err := repo.Save(ctx, newSubscription()); !errors.Is(err, domain.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound on save, got %v", err)
	}
}
