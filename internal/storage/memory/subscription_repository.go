package memory

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

type subscriptionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Subscription // по внутреннему ID
}

// NewSubscriptionRepository возвращает in-memory репозиторий подписок.
func NewSubscriptionRepository() domain.SubscriptionRepository {
	return &subscriptionRepositoryInMemory{
		items: make(map[string]domain.Subscription),
	}
}

func (r *subscriptionRepositoryInMemory) Create(ctx context.Context, sub domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Не более одной подписки на пользователя.
	for _, existing := range r.items {
		if existing.UserID == sub.UserID || existing.ExternalID == sub.ExternalID {
			return domain.ErrVersionConflict
		}
	}
	r.items[sub.ID] = sub
	return nil
}

func (r *subscriptionRepositoryInMemory) GetByExternalID(ctx context.Context, externalID string) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.items {
		if sub.ExternalID == externalID {
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrSubscriptionNotFound
}

func (r *subscriptionRepositoryInMemory) GetByUser(ctx context.Context, userID string) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.items {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrSubscriptionNotFound
}

func (r *subscriptionRepositoryInMemory) Save(ctx context.Context, sub domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[sub.ID]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	r.items[sub.ID] = sub
	return nil
}

var _ domain.SubscriptionRepository = (*subscriptionRepositoryInMemory)(nil)
