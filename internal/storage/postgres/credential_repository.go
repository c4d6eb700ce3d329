package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

type credentialRepository struct {
	db querier
}

// NewCredentialRepository создаёт PostgreSQL-хранилище запечатанных учётных
// данных процессора (единственная строка).
func NewCredentialRepository(store *Store) domain.CredentialRepository {
	return &credentialRepository{db: store.DB()}
}

func (r *credentialRepository) Load(ctx context.Context) ([]byte, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var sealed []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT sealed FROM processor_credentials WHERE id = 1
	`).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("load processor credentials: %w", err)
	}
	return sealed, nil
}

func (r *credentialRepository) Save(ctx context.Context, sealed []byte) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processor_credentials (id, sealed, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET sealed = EXCLUDED.sealed, updated_at = EXCLUDED.updated_at
	`, sealed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save processor credentials: %w", err)
	}
	return nil
}

var _ domain.CredentialRepository = (*credentialRepository)(nil)
