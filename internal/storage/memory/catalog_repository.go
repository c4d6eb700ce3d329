package memory

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

// catalogRepositoryInMemory — in-memory каталог товаров и курсов. Витрина
// каталога живёт во внешней части платформы, поэтому здесь только фикстуры
// для разработки и тестов.
type catalogRepositoryInMemory struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	courses  map[string]domain.Course
}

// NewCatalogRepository создаёт пустой in-memory каталог.
func NewCatalogRepository() *catalogRepositoryInMemory {
	return &catalogRepositoryInMemory{
		products: make(map[string]domain.Product),
		courses:  make(map[string]domain.Course),
	}
}

// PutProduct добавляет или заменяет товар (для сидинга в тестах).
func (r *catalogRepositoryInMemory) PutProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

// PutCourse добавляет или заменяет курс (для сидинга в тестах).
func (r *catalogRepositoryInMemory) PutCourse(c domain.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[c.ID] = c
}

func (r *catalogRepositoryInMemory) ProductByID(ctx context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *catalogRepositoryInMemory) CourseByID(ctx context.Context, id string) (domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.courses[id]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return c, nil
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
