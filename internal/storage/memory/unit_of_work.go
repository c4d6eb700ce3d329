package memory

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

// unitOfWorkInMemory сериализует применение событий глобальным мьютексом.
// Настоящей транзакционности у карт в памяти нет, поэтому атомарность
// "реестр + мутация" обеспечивается взаимным исключением: конкурентные
// дубликаты видят запись реестра первого победителя.
type unitOfWorkInMemory struct {
	mu    sync.Mutex
	repos domain.Repositories
}

// NewUnitOfWork собирает unit of work поверх общих in-memory репозиториев.
func NewUnitOfWork(repos domain.Repositories) domain.UnitOfWork {
	return &unitOfWorkInMemory{repos: repos}
}

func (u *unitOfWorkInMemory) Within(ctx context.Context, fn func(r domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(u.repos)
}

var _ domain.UnitOfWork = (*unitOfWorkInMemory)(nil)
