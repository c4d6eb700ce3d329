package domain

import (
	"strings"
	"time"
)

// SubscriptionStatus один к одному отображает статусы жизненного цикла
// подписки у внешнего процессора.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// MapSubscriptionStatus переводит внешний статус во внутренний.
// Неизвестные статусы намеренно трактуются как active: ложная активность
// дешевле ложной отмены при переименовании статусов на стороне процессора.
func MapSubscriptionStatus(external string) SubscriptionStatus {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(external))) {
	case SubscriptionStatusActive:
		return SubscriptionStatusActive
	case SubscriptionStatusPastDue:
		return SubscriptionStatusPastDue
	case SubscriptionStatusCanceled:
		return SubscriptionStatusCanceled
	case SubscriptionStatusTrialing:
		return SubscriptionStatusTrialing
	case SubscriptionStatusPaused:
		return SubscriptionStatusPaused
	case SubscriptionStatusIncomplete:
		return SubscriptionStatusIncomplete
	case SubscriptionStatusIncompleteExpired:
		return SubscriptionStatusIncompleteExpired
	default:
		return SubscriptionStatusActive
	}
}

// BillingCycle — периодичность списаний.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// BillingCycleFromInterval выводит цикл из recurring-интервала события.
func BillingCycleFromInterval(interval string) BillingCycle {
	if strings.EqualFold(strings.TrimSpace(interval), "year") ||
		strings.EqualFold(strings.TrimSpace(interval), "yearly") {
		return BillingCycleYearly
	}
	return BillingCycleMonthly
}

// Subscription — подписка пользователя на тарифный план. Не более одной
// подписки на пользователя; отменённая подписка сохраняется как история.
type Subscription struct {
	ID          string
	UserID      string
	PlanID      string
	ExternalID  string // идентификатор подписки на стороне процессора
	Cycle       BillingCycle
	Status      SubscriptionStatus
	PeriodStart time.Time
	PeriodEnd   time.Time
	CanceledAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Plan — тарифный план с внешними идентификаторами цен для месячного и
// годового циклов.
type Plan struct {
	ID             string
	Slug           string
	Name           string
	MonthlyPriceID string
	YearlyPriceID  string
}

// MatchesPriceID сообщает, принадлежит ли внешний price id этому плану.
func (p Plan) MatchesPriceID(priceID string) bool {
	if priceID == "" {
		return false
	}
	return p.MonthlyPriceID == priceID || p.YearlyPriceID == priceID
}
