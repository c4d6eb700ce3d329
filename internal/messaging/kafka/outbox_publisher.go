package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

// ErrOutboxPublisherNotReady возвращается при публикации без producer.
var ErrOutboxPublisherNotReady = errors.New("kafka outbox publisher is not initialized")

// outboxEnvelope — wire-формат записи в topic коммерц-событий.
// Payload передаётся как есть, без повторной сериализации.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустой topic означает TopicCommerceEvents.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicCommerceEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish заворачивает сообщение в envelope и отправляет его под ключом
// агрегата, чтобы события одного агрегата попадали в одну partition.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return ErrOutboxPublisherNotReady
	}

	return p.producer.PublishEvent(p.topic, partitionKey(event), outboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	})
}

// partitionKey выбирает ключ партиционирования: ID агрегата,
// либо ID самой записи, если агрегат не задан.
func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
