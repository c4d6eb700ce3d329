package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/learnonline/commerce/internal/domain"
	"github.com/learnonline/commerce/internal/storage/memory"
)

func TestCartRepository_GetOrCreate(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, err := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	if cart.ID == "" {
		t.Fatal("expected cart id to be assigned")
	}

	again, err := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	if err != nil {
		t.Fatalf("repeated get or create failed: %v", err)
	}
	if again.ID != cart.ID {
		t.Fatalf("expected same cart %s, got %s", cart.ID, again.ID)
	}
}

func TestCartRepository_GetOrCreate_EmptyOwner(t *testing.T) {
	repo := memory.NewCartRepository()

	_, err := repo.GetOrCreate(context.Background(), "  ")
	if !errors.Is(err, domain.ErrOwnerKeyRequired) {
		t.Fatalf("expected ErrOwnerKeyRequired, got %v", err)
	}
}

func TestCartRepository_AddItemUpsert(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, err := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}

	first, err := repo.AddItem(ctx, domain.CartItem{
		CartID: cart.ID, ProductID: "p-1", VariantID: "v-1", Qty: 2,
	})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	// Та же комбинация product+variant увеличивает количество
	second, err := repo.AddItem(ctx, domain.CartItem{
		CartID: cart.ID, ProductID: "p-1", VariantID: "v-1", Qty: 3,
	})
	if err != nil {
		t.Fatalf("repeated add failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert into item %s, got %s", first.ID, second.ID)
	}
	if second.Qty != 5 {
		t.Fatalf("expected qty 5, got %d", second.Qty)
	}

	// Другой вариант того же товара — отдельная строка
	other, err := repo.AddItem(ctx, domain.CartItem{
		CartID: cart.ID, ProductID: "p-1", VariantID: "v-2", Qty: 1,
	})
	if err != nil {
		t.Fatalf("add other variant failed: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("expected separate row for other variant")
	}
}

func TestCartRepository_AddCourseIsNoOpOnRepeat(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, err := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}

	first, err := repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, CourseID: "c-1", Qty: 1})
	if err != nil {
		t.Fatalf("add course failed: %v", err)
	}

	second, err := repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, CourseID: "c-1", Qty: 1})
	if err != nil {
		t.Fatalf("repeated add failed: %v", err)
	}
	if second.ID != first.ID || second.Qty != 1 {
		t.Fatalf("expected course row unchanged, got %+v", second)
	}
}

func TestCartRepository_AddItemValidation(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, err := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}

	if _, err := repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, Qty: 1}); !errors.Is(err, domain.ErrItemRefRequired) {
		t.Fatalf("expected ErrItemRefRequired for empty ref, got %v", err)
	}
	if _, err := repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, ProductID: "p-1", Qty: 0}); !errors.Is(err, domain.ErrQtyInvalid) {
		t.Fatalf("expected ErrQtyInvalid for zero qty, got %v", err)
	}
	if _, err := repo.AddItem(ctx, domain.CartItem{CartID: "missing", ProductID: "p-1", Qty: 1}); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartRepository_SetQty(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, _ := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	item, err := repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, ProductID: "p-1", Qty: 2})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	if err := repo.SetQty(ctx, item.ID, 7); err != nil {
		t.Fatalf("set qty failed: %v", err)
	}
	stored, err := repo.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if stored.Qty != 7 {
		t.Fatalf("expected qty 7, got %d", stored.Qty)
	}

	// Нулевое количество удаляет позицию
	if err := repo.SetQty(ctx, item.ID, 0); err != nil {
		t.Fatalf("set qty to zero failed: %v", err)
	}
	if _, err := repo.GetItem(ctx, item.ID); !errors.Is(err, domain.ErrCartItemNotFound) {
		t.Fatalf("expected item removed, got %v", err)
	}
}

func TestCartRepository_Clear(t *testing.T) {
	repo := memory.NewCartRepository()
	ctx := context.Background()

	cart, _ := repo.GetOrCreate(ctx, domain.UserOwnerKey("u-1"))
	_, _ = repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, ProductID: "p-1", Qty: 1})
	_, _ = repo.AddItem(ctx, domain.CartItem{CartID: cart.ID, CourseID: "c-1", Qty: 1})

	if err := repo.Clear(ctx, cart.ID); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	stored, err := repo.Get(ctx, cart.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(stored.Items))
	}

	if err := repo.Clear(ctx, "missing"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}
