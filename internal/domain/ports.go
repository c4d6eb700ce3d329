package domain

import (
	"context"
	"time"
)

// IntentRequest — запрос на создание charge intent у процессора.
// OrderID передаётся как клиентские метаданные для сверки по событиям.
type IntentRequest struct {
	OrderID     string
	AmountMinor int64
	Currency    string
}

// Intent — созданный процессором charge intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// ProcessorRefundRequest — запрос на возврат средств у процессора.
type ProcessorRefundRequest struct {
	IntentID    string
	AmountMinor int64
	Currency    string
	Reason      string
}

// ChargeProcessor описывает взаимодействие с внешним платёжным процессором.
// Исходы приходят асинхронно подписанными событиями, синхронные вызовы
// ограничены таймаутом на стороне вызывающего.
type ChargeProcessor interface {
	// CreateIntent создаёт попытку списания на сумму заказа.
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// CreateRefund инициирует возврат по ранее оплаченному intent.
	CreateRefund(ctx context.Context, req ProcessorRefundRequest) (string, error)
	// CancelIntent аннулирует неоплаченный intent, оставшийся без заказа.
	CancelIntent(ctx context.Context, intentID string) error
}

// Mailer отправляет подтверждение заказа. Сбой отправки логируется и никогда
// не влияет на финансовое состояние.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, ownerKey, orderID string, total Money) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
