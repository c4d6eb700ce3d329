package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

type processedEventRepository struct {
	db querier
}

// NewProcessedEventRepository создаёт PostgreSQL-реализацию реестра событий.
func NewProcessedEventRepository(store *Store) domain.ProcessedEventRepository {
	return &processedEventRepository{db: store.DB()}
}

// Record вставляет идентификатор события под уникальным ограничением.
// Гонка конкурентных доставок одного события решается базой: первый INSERT
// выигрывает, второй видит конфликт и трактует его как "уже обработано".
func (r *processedEventRepository) Record(ctx context.Context, event domain.ProcessedEvent) error {
	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		return domain.ErrEventIDRequired
	}

	now := time.Now().UTC()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}
	if event.TTLAt.IsZero() {
		event.TTLAt = now.Add(30 * 24 * time.Hour)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (id, event_type, received_at, ttl_at)
		VALUES ($1,$2,$3,$4)
	`, event.ID, string(event.Type), event.ReceivedAt, event.TTLAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEventAlreadyProcessed
		}
		return fmt.Errorf("record processed event: %w", err)
	}
	return nil
}

func (r *processedEventRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM processed_events
			WHERE id IN (
				SELECT id
				FROM processed_events
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM processed_events
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired processed events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("processed events rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.ProcessedEventRepository = (*processedEventRepository)(nil)
