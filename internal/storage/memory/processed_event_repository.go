package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

// processedEventRepositoryInMemory — in-memory реестр применённых событий.
// Мьютекс даёт ту же гарантию гонки дубликатов, что уникальный индекс в
// PostgreSQL: из двух конкурентных Record выигрывает ровно один.
type processedEventRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.ProcessedEvent
}

// NewProcessedEventRepository создаёт in-memory реализацию реестра событий.
func NewProcessedEventRepository() domain.ProcessedEventRepository {
	return &processedEventRepositoryInMemory{
		items: make(map[string]domain.ProcessedEvent),
	}
}

func (r *processedEventRepositoryInMemory) Record(ctx context.Context, event domain.ProcessedEvent) error {
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

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[event.ID]; exists {
		return domain.ErrEventAlreadyProcessed
	}
	r.items[event.ID] = event
	return nil
}

func (r *processedEventRepositoryInMemory) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, event := range r.items {
		if event.TTLAt.After(before) {
			continue
		}
		delete(r.items, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

var _ domain.ProcessedEventRepository = (*processedEventRepositoryInMemory)(nil)
