package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnonline/commerce/internal/domain"
)

type enrollmentRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Enrollment // ключ course|user
}

// NewEnrollmentRepository создаёт in-memory репозиторий записей на курсы.
func NewEnrollmentRepository() domain.EnrollmentRepository {
	return &enrollmentRepositoryInMemory{
		items: make(map[string]domain.Enrollment),
	}
}

func enrollmentKey(courseID, userID string) string {
	return courseID + "|" + userID
}

// Create создаёт запись; повтор для той же пары (course, user) — no-op.
func (r *enrollmentRepositoryInMemory) Create(ctx context.Context, enrollment domain.Enrollment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := enrollmentKey(enrollment.CourseID, enrollment.UserID)
	if _, exists := r.items[key]; exists {
		return false, nil
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	r.items[key] = enrollment
	return true, nil
}

func (r *enrollmentRepositoryInMemory) Exists(ctx context.Context, courseID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[enrollmentKey(courseID, userID)]
	return ok, nil
}

var _ domain.EnrollmentRepository = (*enrollmentRepositoryInMemory)(nil)
