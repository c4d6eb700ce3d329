package webhook

import (
	"encoding/json"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

// envelope — внешний конверт события: {"id","type","created","data"}.
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type paymentPayload struct {
	IntentID      string `json:"intent_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason"`
}

type subscriptionPayload struct {
	SubscriptionID string            `json:"subscription_id"`
	PriceID        string            `json:"price_id"`
	ProductName    string            `json:"product_name"`
	Interval       string            `json:"interval"`
	Status         string            `json:"status"`
	PeriodStart    int64             `json:"period_start"`
	PeriodEnd      int64             `json:"period_end"`
	CanceledAt     int64             `json:"canceled_at"`
	Metadata       map[string]string `json:"metadata"`
}

type invoicePayload struct {
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// DecodeEvent разбирает сырое тело в типизированное событие. Произвольные
// metadata-словари не протаскиваются дальше границы: известные ключи
// извлекаются здесь, остальное отбрасывается. Событие неизвестного типа
// не ошибка — вызывающий решает, подтверждать ли его.
func DecodeEvent(body []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Event{}, domain.ErrEventMalformed
	}
	if env.ID == "" {
		return domain.Event{}, domain.ErrEventIDRequired
	}

	event := domain.Event{
		ID:   env.ID,
		Type: domain.EventType(env.Type),
	}
	if env.Created > 0 {
		event.OccurredAt = time.Unix(env.Created, 0).UTC()
	}
	if !event.Type.Known() {
		return event, nil
	}

	switch event.Type {
	case domain.EventPaymentSucceeded, domain.EventPaymentFailed, domain.EventChargeRefunded:
		var p paymentPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return domain.Event{}, domain.ErrEventMalformed
		}
		if p.IntentID == "" {
			return domain.Event{}, domain.ErrEventMalformed
		}
		event.Payment = &domain.PaymentEventData{
			IntentID:      p.IntentID,
			AmountMinor:   p.Amount,
			Currency:      p.Currency,
			FailureReason: p.FailureReason,
		}

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var p subscriptionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return domain.Event{}, domain.ErrEventMalformed
		}
		if p.SubscriptionID == "" {
			return domain.Event{}, domain.ErrEventMalformed
		}
		data := &domain.SubscriptionEventData{
			ExternalID:  p.SubscriptionID,
			UserID:      p.Metadata["user_id"],
			PlanID:      p.Metadata["plan_id"],
			PriceID:     p.PriceID,
			ProductName: p.ProductName,
			Interval:    p.Interval,
			Status:      p.Status,
		}
		if p.PeriodStart > 0 {
			data.PeriodStart = time.Unix(p.PeriodStart, 0).UTC()
		}
		if p.PeriodEnd > 0 {
			data.PeriodEnd = time.Unix(p.PeriodEnd, 0).UTC()
		}
		if p.CanceledAt > 0 {
			canceled := time.Unix(p.CanceledAt, 0).UTC()
			data.CanceledAt = &canceled
		}
		event.Subscription = data

	case domain.EventInvoicePaymentFailed:
		var p invoicePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return domain.Event{}, domain.ErrEventMalformed
		}
		event.Invoice = &domain.InvoiceEventData{
			SubscriptionExternalID: p.SubscriptionID,
			AmountMinor:            p.Amount,
			Currency:               p.Currency,
		}
	}

	return event, nil
}
