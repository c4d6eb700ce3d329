package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// SubscriptionMachine применяет события жизненного цикла подписки.
type SubscriptionMachine struct {
	resolver *ResolverChain
	logger   *log.Entry
}

// NewSubscriptionMachine создаёт машину состояний подписки.
func NewSubscriptionMachine(resolver *ResolverChain, logger *log.Entry) *SubscriptionMachine {
	if logger == nil {
		logger = log.WithField("component", "subscription-machine")
	}
	return &SubscriptionMachine{resolver: resolver, logger: logger}
}

// ApplyCreated создаёт подписку, определив план через цепочку резолверов.
// Нерешённый план отбрасывает событие целиком: полузаполненная подписка
// не создаётся. Строка подписки у пользователя одна: повторная подписка
// после отмены перезаписывает её новым внешним идентификатором.
func (m *SubscriptionMachine) ApplyCreated(ctx context.Context, r domain.Repositories, data *domain.SubscriptionEventData) error {
	if data.UserID == "" {
		return &DropError{Reason: "subscription_without_user", Err: domain.ErrEventMalformed}
	}

	if existing, err := r.Subscriptions.GetByExternalID(ctx, data.ExternalID); err == nil {
		// Повтор created с другим event id: подписка уже есть.
		m.logger.WithField("subscription_id", existing.ID).Debug("subscription already exists")
		return nil
	} else if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return err
	}

	plan, err := m.resolver.Resolve(ctx, data)
	if err != nil {
		if errors.Is(err, domain.ErrPlanUnresolved) {
			return &DropError{Reason: "plan_unresolved", Err: err}
		}
		return err
	}

	now := time.Now().UTC()
	sub := domain.Subscription{
		ID:          uuid.NewString(),
		UserID:      data.UserID,
		PlanID:      plan.ID,
		ExternalID:  data.ExternalID,
		Cycle:       domain.BillingCycleFromInterval(data.Interval),
		Status:      domain.MapSubscriptionStatus(data.Status),
		PeriodStart: data.PeriodStart,
		PeriodEnd:   data.PeriodEnd,
		CanceledAt:  data.CanceledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if current, err := r.Subscriptions.GetByUser(ctx, data.UserID); err == nil {
		sub.ID = current.ID
		sub.CreatedAt = current.CreatedAt
		if err := r.Subscriptions.Save(ctx, sub); err != nil {
			return fmt.Errorf("replace subscription: %w", err)
		}
	} else if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return err
	} else if err := r.Subscriptions.Create(ctx, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	m.enqueue(ctx, r, sub, "subscription.created")
	m.logger.WithField("user_id", sub.UserID).WithField("plan_id", sub.PlanID).Info("subscription created")
	return nil
}

// ApplyUpdated переносит внешний статус и границы периода на подписку.
func (m *SubscriptionMachine) ApplyUpdated(ctx context.Context, r domain.Repositories, data *domain.SubscriptionEventData) error {
	sub, err := r.Subscriptions.GetByExternalID(ctx, data.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return &DropError{Reason: "unknown_subscription", Err: err}
		}
		return err
	}

	sub.Status = domain.MapSubscriptionStatus(data.Status)
	if data.Interval != "" {
		sub.Cycle = domain.BillingCycleFromInterval(data.Interval)
	}
	if !data.PeriodStart.IsZero() {
		sub.PeriodStart = data.PeriodStart
	}
	if !data.PeriodEnd.IsZero() {
		sub.PeriodEnd = data.PeriodEnd
	}
	if data.CanceledAt != nil {
		sub.CanceledAt = data.CanceledAt
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := r.Subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	m.enqueue(ctx, r, sub, "subscription.updated")
	return nil
}

// ApplyDeleted отменяет подписку и ставит отметку времени. Строка
// сохраняется как история.
func (m *SubscriptionMachine) ApplyDeleted(ctx context.Context, r domain.Repositories, data *domain.SubscriptionEventData) error {
	sub, err := r.Subscriptions.GetByExternalID(ctx, data.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return &DropError{Reason: "unknown_subscription", Err: err}
		}
		return err
	}

	now := time.Now().UTC()
	sub.Status = domain.SubscriptionStatusCanceled
	if data.CanceledAt != nil {
		sub.CanceledAt = data.CanceledAt
	} else {
		sub.CanceledAt = &now
	}
	sub.UpdatedAt = now

	if err := r.Subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	m.enqueue(ctx, r, sub, "subscription.canceled")
	m.logger.WithField("user_id", sub.UserID).Info("subscription canceled")
	return nil
}

// ApplyInvoiceFailed переводит подписку в past_due по неоплаченному счёту.
func (m *SubscriptionMachine) ApplyInvoiceFailed(ctx context.Context, r domain.Repositories, data *domain.InvoiceEventData) error {
	sub, err := r.Subscriptions.GetByExternalID(ctx, data.SubscriptionExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return &DropError{Reason: "unknown_subscription", Err: err}
		}
		return err
	}

	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil
	}
	sub.Status = domain.SubscriptionStatusPastDue
	sub.UpdatedAt = time.Now().UTC()

	if err := r.Subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	m.enqueue(ctx, r, sub, "subscription.updated")
	m.logger.WithField("user_id", sub.UserID).Warn("subscription past due after failed invoice")
	return nil
}

func (m *SubscriptionMachine) enqueue(ctx context.Context, r domain.Repositories, sub domain.Subscription, eventType string) {
	payload, err := json.Marshal(map[string]string{
		"subscription_id": sub.ID,
		"user_id":         sub.UserID,
		"plan_id":         sub.PlanID,
		"status":          string(sub.Status),
	})
	if err != nil {
		return
	}
	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "subscription",
		AggregateID:   sub.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		m.logger.WithError(err).WithField("event_type", eventType).Warn("enqueue outbox event failed")
	}
}
