package app

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/messaging/kafka"
)

// splitBrokers разбирает строку вида "host1:9092, host2:9092" в список адресов.
func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// initKafkaProducer создаёт producer, если заданы брокеры. Пустой список
// означает работу без Kafka: outbox-сообщения остаются в хранилище.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(addrs)
	if err != nil {
		logger.WithError(err).Warn("kafka producer unavailable, continuing without publishing")
		return nil, err
	}

	logger.WithField("brokers", addrs).Info("kafka producer initialized")
	return producer, nil
}

// auditEventHandler пишет каждое опубликованное событие коммерции в лог.
// Нечитаемое тело возвращает ошибку: после retry оно уйдёт в DLQ.
func auditEventHandler(logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseCommerceEvent(message)
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"event_type":     string(event.EventType),
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		}).Info("commerce event published")
		return nil
	}
}

// initKafkaConsumer создаёт consumer аудита событий, если задана группа.
// Неразобранные сообщения переносятся в DLQ через producer.
func initKafkaConsumer(brokers, group string, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 || group == "" {
		return nil, nil
	}

	auditLogger := logger.WithField("component", "event-audit")
	consumer, err := kafka.NewConsumerWithDLQ(
		addrs,
		group,
		[]string{kafka.TopicCommerceEvents},
		auditEventHandler(auditLogger),
		producer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("kafka consumer unavailable, continuing without event audit")
		return nil, err
	}

	logger.WithField("group", group).Info("kafka event audit consumer initialized")
	return consumer, nil
}

// closeKafka закрывает producer; nil допустим.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
		return
	}
	logger.Info("kafka producer closed")
}
