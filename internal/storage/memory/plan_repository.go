package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

type planRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Plan
}

// NewPlanRepository создаёт in-memory репозиторий тарифных планов.
func NewPlanRepository(plans ...domain.Plan) *planRepositoryInMemory {
	repo := &planRepositoryInMemory{items: make(map[string]domain.Plan)}
	for _, p := range plans {
		repo.items[p.ID] = p
	}
	return repo
}

// Put добавляет или заменяет план (для сидинга в тестах).
func (r *planRepositoryInMemory) Put(p domain.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = p
}

func (r *planRepositoryInMemory) All(ctx context.Context) ([]domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Plan, 0, len(r.items))
	for _, p := range r.items {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *planRepositoryInMemory) Get(ctx context.Context, id string) (domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return p, nil
}

var _ domain.PlanRepository = (*planRepositoryInMemory)(nil)
