package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnonline/commerce/internal/domain"
)

type enrollmentRepository struct {
	db querier
}

// NewEnrollmentRepository создаёт PostgreSQL-реализацию EnrollmentRepository.
func NewEnrollmentRepository(store *Store) domain.EnrollmentRepository {
	return &enrollmentRepository{db: store.DB()}
}

// Create создаёт запись на курс. Идемпотентность по (course, user) даёт
// уникальное ограничение: повтор возвращает created=false без ошибки.
func (r *enrollmentRepository) Create(ctx context.Context, enrollment domain.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, course_id, user_id, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (course_id, user_id) DO NOTHING
	`, enrollment.ID, enrollment.CourseID, enrollment.UserID, enrollment.OrderID, enrollment.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enrollment rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *enrollmentRepository) Exists(ctx context.Context, courseID, userID string) (bool, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM enrollments WHERE course_id = $1 AND user_id = $2
	`, courseID, userID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check enrollment exists: %w", err)
}

var _ domain.EnrollmentRepository = (*enrollmentRepository)(nil)
