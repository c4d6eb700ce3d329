package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnonline/commerce/internal/domain"
)

// cartRepositoryInMemory — in-memory реализация CartRepository для локальной
// разработки и тестов. Upsert-семантика AddItem сериализуется мьютексом —
// тот же эффект, что уникальный индекс в PostgreSQL.
type cartRepositoryInMemory struct {
	mu       sync.RWMutex
	byOwner  map[string]string // ownerKey -> cartID
	carts    map[string]domain.Cart
	items    map[string]domain.CartItem // itemID -> item
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		byOwner: make(map[string]string),
		carts:   make(map[string]domain.Cart),
		items:   make(map[string]domain.CartItem),
	}
}

func (r *cartRepositoryInMemory) GetOrCreate(ctx context.Context, ownerKey string) (domain.Cart, error) {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return domain.Cart{}, domain.ErrOwnerKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byOwner[ownerKey]; ok {
		return r.loadLocked(id)
	}

	now := time.Now().UTC()
	cart := domain.Cart{
		ID:        uuid.NewString(),
		OwnerKey:  ownerKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.carts[cart.ID] = cart
	r.byOwner[ownerKey] = cart.ID
	return cart, nil
}

func (r *cartRepositoryInMemory) Get(ctx context.Context, id string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadLocked(id)
}

// loadLocked собирает корзину с позициями; вызывается под мьютексом.
func (r *cartRepositoryInMemory) loadLocked(id string) (domain.Cart, error) {
	cart, ok := r.carts[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}

	cart.Items = nil
	for _, item := range r.items {
		if item.CartID == id {
			cart.Items = append(cart.Items, item)
		}
	}
	return cart, nil
}

func (r *cartRepositoryInMemory) AddItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if errs := item.Validate(); len(errs) > 0 {
		return domain.CartItem{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[item.CartID]; !ok {
		return domain.CartItem{}, domain.ErrCartNotFound
	}

	// Upsert: существующая комбинация увеличивает количество, не плодя строк.
	for id, existing := range r.items {
		if existing.CartID != item.CartID {
			continue
		}
		if item.IsProduct() && existing.ProductID == item.ProductID && existing.VariantID == item.VariantID {
			existing.Qty += item.Qty
			r.items[id] = existing
			return existing, nil
		}
		if item.IsCourse() && existing.CourseID == item.CourseID {
			// Количество курса фиксировано, повторное добавление — no-op.
			return existing, nil
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *cartRepositoryInMemory) SetQty(ctx context.Context, itemID string, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return domain.ErrCartItemNotFound
	}
	if qty == 0 {
		delete(r.items, itemID)
		return nil
	}
	if qty < 0 {
		return domain.ErrQtyInvalid
	}
	item.Qty = qty
	r.items[itemID] = item
	return nil
}

func (r *cartRepositoryInMemory) RemoveItem(ctx context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[itemID]; !ok {
		return domain.ErrCartItemNotFound
	}
	delete(r.items, itemID)
	return nil
}

func (r *cartRepositoryInMemory) GetItem(ctx context.Context, itemID string) (domain.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return domain.CartItem{}, domain.ErrCartItemNotFound
	}
	return item, nil
}

func (r *cartRepositoryInMemory) Clear(ctx context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[cartID]; !ok {
		return domain.ErrCartNotFound
	}
	for id, item := range r.items {
		if item.CartID == cartID {
			delete(r.items, id)
		}
	}
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
