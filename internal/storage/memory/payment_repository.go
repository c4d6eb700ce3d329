package memory

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

type paymentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Payment
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items: make(map[string]domain.Payment),
	}
}

func (r *paymentRepositoryInMemory) Create(ctx context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[payment.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[payment.ID] = payment
	return nil
}

func (r *paymentRepositoryInMemory) Get(ctx context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	if intentID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, payment := range r.items {
		if payment.IntentID == intentID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

// GetActiveByOrder возвращает платёж текущей попытки оплаты: последний
// не-failed платёж заказа.
func (r *paymentRepositoryInMemory) GetActiveByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found  bool
		result domain.Payment
	)
	for _, payment := range r.items {
		if payment.OrderID != orderID || payment.Status == domain.PaymentStatusFailed {
			continue
		}
		if !found || payment.CreatedAt.After(result.CreatedAt) {
			result = payment
			found = true
		}
	}
	if !found {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return result, nil
}

func (r *paymentRepositoryInMemory) Save(ctx context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.items[payment.ID] = payment
	return nil
}

func (r *paymentRepositoryInMemory) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(r.items, id)
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
