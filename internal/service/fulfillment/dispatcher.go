package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// Dispatcher выполняет побочные эффекты подтверждённого заказа: записи на
// курсы и письмо-подтверждение. Вызывается строго после фиксации финансовой
// транзакции; сбой любого эффекта логируется и не откатывает оплату.
type Dispatcher struct {
	enrollments domain.EnrollmentRepository
	mailer      domain.Mailer
	outbox      domain.OutboxRepository // опционально: события course.enrolled
	logger      *log.Entry
}

// NewDispatcher создаёт диспетчер побочных эффектов.
func NewDispatcher(
	enrollments domain.EnrollmentRepository,
	mailer domain.Mailer,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "fulfillment")
	}
	return &Dispatcher{
		enrollments: enrollments,
		mailer:      mailer,
		outbox:      outbox,
		logger:      logger,
	}
}

// Dispatch запускает оба эффекта. Каждый идемпотентен и может быть
// повторён при redelivery события оплаты.
func (d *Dispatcher) Dispatch(ctx context.Context, order domain.Order) {
	d.enroll(ctx, order)
	d.notify(ctx, order)
}

func (d *Dispatcher) enroll(ctx context.Context, order domain.Order) {
	userID := order.UserID()

	for _, item := range order.Items {
		if !item.IsCourse() {
			continue
		}
		if userID == "" {
			// Анонимный заказ: привязать курс не к кому, доступ выдаётся
			// после привязки заказа к аккаунту.
			d.logger.WithField("order_id", order.ID).WithField("course_id", item.CourseID).
				Warn("skipping enrollment for anonymous order")
			continue
		}

		created, err := d.enrollments.Create(ctx, domain.Enrollment{
			ID:        uuid.NewString(),
			CourseID:  item.CourseID,
			UserID:    userID,
			OrderID:   order.ID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			d.logger.WithError(err).WithField("order_id", order.ID).WithField("course_id", item.CourseID).
				Error("enrollment side effect failed")
			continue
		}
		if !created {
			continue
		}

		d.logger.WithField("order_id", order.ID).WithField("course_id", item.CourseID).Info("user enrolled in course")
		d.enqueueEnrolled(ctx, order, item.CourseID, userID)
	}
}

func (d *Dispatcher) enqueueEnrolled(ctx context.Context, order domain.Order, courseID, userID string) {
	if d.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"order_id":  order.ID,
		"course_id": courseID,
		"user_id":   userID,
	})
	if err != nil {
		return
	}
	if _, err := d.outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "enrollment",
		AggregateID:   order.ID,
		EventType:     "course.enrolled",
		Payload:       payload,
	}); err != nil {
		d.logger.WithError(err).WithField("order_id", order.ID).Warn("enqueue course.enrolled failed")
	}
}

func (d *Dispatcher) notify(ctx context.Context, order domain.Order) {
	if d.mailer == nil {
		return
	}
	if err := d.mailer.SendOrderConfirmation(ctx, order.OwnerKey, order.ID, order.Total()); err != nil {
		d.logger.WithError(err).WithField("order_id", order.ID).Error("order confirmation email failed")
	}
}
