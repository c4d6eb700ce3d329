package memory

import (
	"context"
	"sync"

	"github.com/learnonline/commerce/internal/domain"
)

type credentialRepositoryInMemory struct {
	mu     sync.RWMutex
	sealed []byte
}

// NewCredentialRepository создаёт in-memory хранилище запечатанных учётных
// данных процессора.
func NewCredentialRepository() domain.CredentialRepository {
	return &credentialRepositoryInMemory{}
}

func (r *credentialRepositoryInMemory) Load(ctx context.Context) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sealed) == 0 {
		return nil, domain.ErrCredentialsNotFound
	}
	return append([]byte(nil), r.sealed...), nil
}

func (r *credentialRepositoryInMemory) Save(ctx context.Context, sealed []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = append([]byte(nil), sealed...)
	return nil
}

var _ domain.CredentialRepository = (*credentialRepositoryInMemory)(nil)
