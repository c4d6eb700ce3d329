package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderConfirmed EventType = "order.confirmed"
	EventTypeOrderRefunded  EventType = "order.refunded"

	// Payment события
	EventTypePaymentFailed   EventType = "payment.failed"
	EventTypePaymentRefunded EventType = "payment.refunded"

	// Subscription события
	EventTypeSubscriptionCreated  EventType = "subscription.created"
	EventTypeSubscriptionUpdated  EventType = "subscription.updated"
	EventTypeSubscriptionCanceled EventType = "subscription.canceled"

	// Fulfillment события
	EventTypeCourseEnrolled EventType = "course.enrolled"
)

// Topics для Kafka
const (
	TopicCommerceEvents  = "commerce.events"
	TopicDeadLetterQueue = "commerce.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CommerceEvent представляет доменное событие, опубликованное из outbox.
type CommerceEvent struct {
	EventType     EventType              `json:"event_type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewCommerceEvent создает новое доменное событие
func NewCommerceEvent(eventType EventType, aggregateType, aggregateID string, metadata map[string]interface{}) *CommerceEvent {
	return &CommerceEvent{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Timestamp:     time.Now(),
		Metadata:      metadata,
	}
}
