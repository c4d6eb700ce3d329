package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnonline/commerce/internal/domain"
)

// unitOfWork выполняет fn в одной транзакции БД: репозитории внутри fn
// привязаны к *sql.Tx, так что запись в реестр событий и мутация состояния
// фиксируются или откатываются вместе.
type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork создаёт транзакционный unit of work поверх Store.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{db: store.DB()}
}

func (u *unitOfWork) Within(ctx context.Context, fn func(r domain.Repositories) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	repos := domain.Repositories{
		Carts:         &cartRepository{db: tx},
		Orders:        &orderRepository{db: tx},
		Payments:      &paymentRepository{db: tx},
		Subscriptions: &subscriptionRepository{db: tx},
		Events:        &processedEventRepository{db: tx},
		Outbox:        &outboxRepository{db: tx},
	}

	if err := fn(repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
