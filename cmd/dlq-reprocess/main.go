// Команда dlq-reprocess перечитывает сообщения из DLQ-топика и возвращает
// их в основной топик событий. По умолчанию работает в режиме dry-run:
// кандидаты только логируются, публикация включается флагом -execute.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — сообщение, готовое к повторной публикации.
type candidate struct {
	topic string
	key   string
	value []byte
}

// Формат DLQ-записи consumer-а: исходное сообщение целиком.
type consumerDLQRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// Формат DLQ-записи outbox-воркера: конверт с вложенным payload события.
type outboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Интерфейсы сужают sarama до того, что нужно для сканирования партиций;
// в тестах подменяются фейками.
type brokerClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
	Close() error
}

type replaySink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// Точка подмены для тестов.
var connect = func(cfg config) (brokerClient, partitionSource, replaySink, error) {
	clientCfg := sarama.NewConfig()
	clientCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, clientCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: rawConsumer}

	if !cfg.execute {
		return client, source, nil, nil
	}

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.RequiredAcks = sarama.WaitForAll
	producerCfg.Producer.Retry.Max = 5
	producerCfg.Producer.Return.Successes = true
	producerCfg.Producer.Compression = sarama.CompressionSnappy
	producerCfg.Producer.Idempotent = true
	producerCfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerCfg)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCommerceEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, source, sink, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return replay(ctx, cfg, client, source, sink)
}

type scanTotals struct {
	processed int
	replayed  int
	skipped   int
}

func (t *scanTotals) add(other scanTotals) {
	t.processed += other.processed
	t.replayed += other.replayed
	t.skipped += other.skipped
}

func replay(ctx context.Context, cfg config, client brokerClient, source partitionSource, sink replaySink) error {
	if client == nil || source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var totals scanTotals
	for _, partition := range partitions {
		if totals.processed >= cfg.limit {
			break
		}
		part, err := scanPartition(ctx, cfg, client, source, sink, partition, cfg.limit-totals.processed)
		if err != nil {
			return err
		}
		totals.add(part)
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": totals.processed,
		"replayed":  totals.replayed,
		"skipped":   totals.skipped,
	}).Info("dlq replay finished")

	return nil
}

// scanPartition читает до limit сообщений одной партиции. Чтение завершается
// по достижении верхней границы оффсетов, лимита или idle-таймаута.
func scanPartition(
	ctx context.Context,
	cfg config,
	client brokerClient,
	source partitionSource,
	sink replaySink,
	partition int32,
	limit int,
) (scanTotals, error) {
	var totals scanTotals
	if limit <= 0 {
		return totals, nil
	}

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return totals, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return totals, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return totals, nil
	}

	start := oldest
	if cfg.fromNewest {
		if start = newest - int64(limit); start < oldest {
			start = oldest
		}
	}

	reader, err := source.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return totals, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for totals.processed < limit {
		select {
		case <-ctx.Done():
			return totals, ctx.Err()
		case err := <-reader.Errors():
			if err != nil {
				return totals, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil {
				return totals, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			if msg.Offset >= newest {
				return totals, nil
			}

			totals.processed++
			next, ok, err := decodeDLQMessage(msg, cfg.targetTopic)
			if err != nil {
				totals.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			if !ok {
				totals.skipped++
				continue
			}

			if cfg.execute {
				if err := publish(sink, next); err != nil {
					return totals, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": next.topic,
					"key":          next.key,
				}).Info("dlq replay candidate")
			}
			totals.replayed++

			if msg.Offset+1 >= newest {
				return totals, nil
			}
		case <-idle.C:
			return totals, nil
		}
	}

	return totals, nil
}

func publish(sink replaySink, c candidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     c.topic,
		Key:       sarama.StringEncoder(c.key),
		Value:     sarama.ByteEncoder(c.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeDLQMessage распознаёт оба формата DLQ и строит сообщение для повтора.
// Сначала пробуем запись consumer-а, затем конверт outbox-воркера.
func decodeDLQMessage(msg *sarama.ConsumerMessage, defaultTopic string) (candidate, bool, error) {
	var rec consumerDLQRecord
	if err := json.Unmarshal(msg.Value, &rec); err == nil && rec.OriginalValue != "" {
		topic := strings.TrimSpace(rec.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return candidate{topic: topic, key: rec.OriginalKey, value: []byte(rec.OriginalValue)}, true, nil
	}

	var env outboxEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || len(env.Payload) == 0 {
		return candidate{}, false, nil
	}

	var rec2 outboxDLQRecord
	if err := json.Unmarshal(env.Payload, &rec2); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(rec2.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	out := outboxEnvelope{
		ID:            coalesce(rec2.OutboxID, env.ID),
		AggregateType: coalesce(rec2.AggregateType, env.AggregateType),
		AggregateID:   coalesce(rec2.AggregateID, env.AggregateID),
		EventType:     coalesce(rec2.EventType, env.EventType),
		Payload:       rec2.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := out.AggregateID
	if key == "" {
		key = out.ID
	}
	return candidate{topic: defaultTopic, key: key, value: encoded}, true, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
