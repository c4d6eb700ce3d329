package domain

import "time"

// EventType — тип внешнего события от платёжного процессора.
type EventType string

const (
	EventPaymentSucceeded     EventType = "payment.succeeded"
	EventPaymentFailed        EventType = "payment.failed"
	EventChargeRefunded       EventType = "charge.refunded"
	EventSubscriptionCreated  EventType = "subscription.created"
	EventSubscriptionUpdated  EventType = "subscription.updated"
	EventSubscriptionDeleted  EventType = "subscription.deleted"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
)

// Known сообщает, относится ли тип к обрабатываемому набору.
func (t EventType) Known() bool {
	switch t {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded,
		EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventInvoicePaymentFailed:
		return true
	default:
		return false
	}
}

// Event — верифицированное событие процессора, разобранное на границе в
// закрытое множество типизированных вариантов. Ровно одно из полей
// Payment/Subscription/Invoice заполнено в зависимости от типа.
type Event struct {
	ID           string
	Type         EventType
	OccurredAt   time.Time
	Payment      *PaymentEventData
	Subscription *SubscriptionEventData
	Invoice      *InvoiceEventData
}

// PaymentEventData — данные событий payment.* и charge.refunded.
type PaymentEventData struct {
	IntentID      string
	AmountMinor   int64
	Currency      string
	FailureReason string
}

// SubscriptionEventData — данные событий subscription.*.
type SubscriptionEventData struct {
	ExternalID  string
	UserID      string // из метаданных подписки
	PlanID      string // из метаданных; может отсутствовать
	PriceID     string
	ProductName string
	Interval    string // recurring-интервал: month | year
	Status      string // внешний статус жизненного цикла
	PeriodStart time.Time
	PeriodEnd   time.Time
	CanceledAt  *time.Time
}

// InvoiceEventData — данные события invoice.payment_failed.
type InvoiceEventData struct {
	SubscriptionExternalID string
	AmountMinor            int64
	Currency               string
}

// ProcessedEvent — запись идемпотентного реестра: идентификатор события,
// которое уже было применено. Повторная доставка того же ID — no-op.
type ProcessedEvent struct {
	ID         string
	Type       EventType
	ReceivedAt time.Time
	TTLAt      time.Time
}
