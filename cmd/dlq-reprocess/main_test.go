package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldFlags := flag.CommandLine
	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldFlags
	}()

	fn()
}

func consumerDLQMessage(key string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Value: []byte(`{"original_topic":"commerce.events","original_key":"` + key + `","original_value":"{\"id\":\"evt-1\"}"}`),
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers= broker-1:9092, ,broker-2:9092 ",
		"-source-topic=commerce.dlq",
		"-target-topic=commerce.events",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig() unexpected error: %v", err)
		}
		if len(cfg.brokers) != 2 || cfg.brokers[0] != "broker-1:9092" || cfg.brokers[1] != "broker-2:9092" {
			t.Errorf("brokers = %v", cfg.brokers)
		}
		if cfg.limit != 10 || !cfg.execute || !cfg.fromNewest {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.idleTimeout != 3*time.Second {
			t.Errorf("idleTimeout = %s, want 3s", cfg.idleTimeout)
		}
	})
}

func TestReadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "no brokers",
			args:    []string{"-brokers="},
			wantErr: "kafka brokers are required",
		},
		{
			name:    "empty source topic",
			args:    []string{"-brokers=b:9092", "-source-topic="},
			wantErr: "source-topic is required",
		},
		{
			name:    "empty target topic",
			args:    []string{"-brokers=b:9092", "-target-topic="},
			wantErr: "target-topic is required",
		},
		{
			name:    "zero limit",
			args:    []string{"-brokers=b:9092", "-limit=0"},
			wantErr: "limit must be > 0",
		},
		{
			name:    "zero idle timeout",
			args:    []string{"-brokers=b:9092", "-idle-timeout=0s"},
			wantErr: "idle-timeout must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlagArgs(t, tt.args, func() {
				_, err := readConfig()
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("readConfig() error = %v, want %q", err, tt.wantErr)
				}
			})
		})
	}
}

func TestDecodeDLQMessage_ConsumerRecord(t *testing.T) {
	got, ok, err := decodeDLQMessage(consumerDLQMessage("order-1"), "fallback-topic")
	if err != nil || !ok {
		t.Fatalf("decodeDLQMessage() = ok=%v err=%v, want candidate", ok, err)
	}
	if got.topic != "commerce.events" || got.key != "order-1" {
		t.Errorf("candidate = %+v", got)
	}
	if string(got.value) != `{"id":"evt-1"}` {
		t.Errorf("value = %s", got.value)
	}
}

func TestDecodeDLQMessage_ConsumerRecordWithoutTopic(t *testing.T) {
	msg := &sarama.ConsumerMessage{
		Value: []byte(`{"original_key":"k","original_value":"{\"id\":\"evt\"}"}`),
	}
	got, ok, err := decodeDLQMessage(msg, "fallback-topic")
	if err != nil || !ok {
		t.Fatalf("decodeDLQMessage() = ok=%v err=%v", ok, err)
	}
	if got.topic != "fallback-topic" {
		t.Errorf("topic = %s, want fallback-topic", got.topic)
	}
}

func TestDecodeDLQMessage_OutboxRecord(t *testing.T) {
	envelope := map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "order.confirmed",
		"payload": map[string]any{
			"outbox_id":      "outbox-1",
			"aggregate_type": "order",
			"aggregate_id":   "order-1",
			"event_type":     "order.confirmed",
			"payload":        map[string]any{"status": "confirmed"},
			"publish_error":  "timeout",
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: raw}, "commerce.events")
	if err != nil || !ok {
		t.Fatalf("decodeDLQMessage() = ok=%v err=%v", ok, err)
	}
	if got.topic != "commerce.events" || got.key != "order-1" {
		t.Errorf("candidate = %+v", got)
	}

	var out outboxEnvelope
	if err := json.Unmarshal(got.value, &out); err != nil {
		t.Fatalf("replay envelope is not valid JSON: %v", err)
	}
	if out.EventType != "order.confirmed" || out.ID != "outbox-1" {
		t.Errorf("envelope = %+v", out)
	}
}

func TestDecodeDLQMessage_OutboxRecordWithoutInnerPayload(t *testing.T) {
	raw := []byte(`{"id":"outbox-1","payload":{"outbox_id":"outbox-1","event_type":"order.confirmed"}}`)

	_, ok, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: raw}, "commerce.events")
	if err == nil || ok {
		t.Errorf("decodeDLQMessage() = ok=%v err=%v, want error", ok, err)
	}
}

func TestDecodeDLQMessage_UnknownFormatSkipped(t *testing.T) {
	_, ok, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, "commerce.events")
	if err != nil || ok {
		t.Errorf("decodeDLQMessage() = ok=%v err=%v, want skip", ok, err)
	}
}

func TestCoalesce(t *testing.T) {
	if got := coalesce("", "  ", "x", "y"); got != "x" {
		t.Errorf("coalesce() = %q, want x", got)
	}
	if got := coalesce("", " "); got != "" {
		t.Errorf("coalesce() = %q, want empty", got)
	}
}

func TestPublish(t *testing.T) {
	if err := publish(nil, candidate{}); err == nil {
		t.Error("publish() expected error for nil sink")
	}

	sink := &fakeSink{}
	if err := publish(sink, candidate{topic: "t", key: "k", value: []byte(`{}`)}); err != nil {
		t.Fatalf("publish() unexpected error: %v", err)
	}
	if sink.calls != 1 || sink.last == nil || sink.last.Topic != "t" {
		t.Errorf("sink state = calls=%d last=%+v", sink.calls, sink.last)
	}

	sink.sendErr = errors.New("send failed")
	if err := publish(sink, candidate{topic: "t"}); err == nil {
		t.Error("publish() expected send error")
	}
}

func TestScanPartition_DryRun(t *testing.T) {
	client := &fakeClient{offsets: map[int32][2]int64{0: {0, 2}}}
	source := &fakeSource{readers: map[int32]partitionReader{
		0: drainedReader(consumerDLQMessage("order-1")),
	}}
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", idleTimeout: 20 * time.Millisecond}

	totals, err := scanPartition(context.Background(), cfg, client, source, nil, 0, 10)
	if err != nil {
		t.Fatalf("scanPartition() unexpected error: %v", err)
	}
	if totals.processed != 1 || totals.replayed != 1 || totals.skipped != 0 {
		t.Errorf("totals = %+v", totals)
	}
	if len(source.calls) != 1 || source.calls[0].offset != 0 {
		t.Errorf("consume calls = %+v", source.calls)
	}
}

func TestScanPartition_ExecutePublishes(t *testing.T) {
	client := &fakeClient{offsets: map[int32][2]int64{0: {0, 2}}}
	source := &fakeSource{readers: map[int32]partitionReader{
		0: drainedReader(consumerDLQMessage("order-1")),
	}}
	sink := &fakeSink{}
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", execute: true, idleTimeout: 20 * time.Millisecond}

	totals, err := scanPartition(context.Background(), cfg, client, source, sink, 0, 10)
	if err != nil {
		t.Fatalf("scanPartition() unexpected error: %v", err)
	}
	if totals.replayed != 1 || sink.calls != 1 {
		t.Errorf("replayed=%d sink calls=%d, want 1/1", totals.replayed, sink.calls)
	}
}

func TestScanPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", execute: true, idleTimeout: 20 * time.Millisecond}
	client := &fakeClient{offsets: map[int32][2]int64{0: {0, 2}}}

	brokenClient := &fakeClient{offsetErr: errors.New("offset boom")}
	if _, err := scanPartition(context.Background(), cfg, brokenClient, &fakeSource{}, &fakeSink{}, 0, 1); err == nil {
		t.Error("expected offset error")
	}

	brokenSource := &fakeSource{consumeErr: errors.New("consume boom")}
	if _, err := scanPartition(context.Background(), cfg, client, brokenSource, &fakeSink{}, 0, 1); err == nil {
		t.Error("expected consume error")
	}

	errReader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage),
		errs:     make(chan *sarama.ConsumerError, 1),
	}
	errReader.errs <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	source := &fakeSource{readers: map[int32]partitionReader{0: errReader}}
	if _, err := scanPartition(context.Background(), cfg, client, source, &fakeSink{}, 0, 1); err == nil {
		t.Error("expected consumer error branch")
	}

	badPayload := drainedReader(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","payload":"not-an-object"}`)})
	source = &fakeSource{readers: map[int32]partitionReader{0: badPayload}}
	totals, err := scanPartition(context.Background(), cfg, client, source, &fakeSink{}, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error for bad payload: %v", err)
	}
	if totals.skipped != 1 {
		t.Errorf("skipped = %d, want 1", totals.skipped)
	}

	source = &fakeSource{readers: map[int32]partitionReader{0: drainedReader(consumerDLQMessage("order-1"))}}
	failingSink := &fakeSink{sendErr: errors.New("send boom")}
	if _, err := scanPartition(context.Background(), cfg, client, source, failingSink, 0, 1); err == nil {
		t.Error("expected publish error")
	}
}

func TestScanPartition_IdleTimeout(t *testing.T) {
	client := &fakeClient{offsets: map[int32][2]int64{0: {0, 2}}}
	silent := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage),
		errs:     make(chan *sarama.ConsumerError),
	}
	source := &fakeSource{readers: map[int32]partitionReader{0: silent}}
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", idleTimeout: 10 * time.Millisecond}

	totals, err := scanPartition(context.Background(), cfg, client, source, nil, 0, 1)
	if err != nil {
		t.Fatalf("scanPartition() unexpected error: %v", err)
	}
	if totals.processed != 0 {
		t.Errorf("processed = %d, want 0", totals.processed)
	}
}

func TestScanPartition_ContextCanceled(t *testing.T) {
	client := &fakeClient{offsets: map[int32][2]int64{0: {0, 2}}}
	silent := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage),
		errs:     make(chan *sarama.ConsumerError),
	}
	source := &fakeSource{readers: map[int32]partitionReader{0: silent}}
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", idleTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := scanPartition(ctx, cfg, client, source, nil, 0, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestReplay(t *testing.T) {
	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", limit: 1, idleTimeout: 20 * time.Millisecond}

	if err := replay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Error("expected missing deps error")
	}

	client := &fakeClient{
		partitions: []int32{2, 0},
		offsets:    map[int32][2]int64{0: {0, 2}, 2: {0, 2}},
	}
	source := &fakeSource{readers: map[int32]partitionReader{
		0: drainedReader(consumerDLQMessage("order-1")),
		2: drainedReader(consumerDLQMessage("order-2")),
	}}

	if err := replay(context.Background(), cfg, client, source, nil); err != nil {
		t.Fatalf("replay() unexpected error: %v", err)
	}
	// limit=1 закрывает прогон после первой (по сортировке) партиции.
	if len(source.calls) != 1 || source.calls[0].partition != 0 {
		t.Errorf("consume calls = %+v", source.calls)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := replay(context.Background(), executeCfg, client, source, nil); err == nil {
		t.Error("execute mode must require a producer")
	}

	empty := &fakeClient{}
	if err := replay(context.Background(), cfg, empty, source, nil); err != nil {
		t.Errorf("replay() with no partitions error = %v, want nil", err)
	}
}

func TestRun_ClosesDependencies(t *testing.T) {
	oldConnect := connect
	defer func() { connect = oldConnect }()

	cfg := config{sourceTopic: "commerce.dlq", targetTopic: "commerce.events", limit: 1, idleTimeout: 20 * time.Millisecond}

	connect = func(config) (brokerClient, partitionSource, replaySink, error) {
		return nil, nil, nil, errors.New("connect failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "connect failed") {
		t.Fatalf("run() error = %v, want connect failed", err)
	}

	client := &fakeClient{partitions: []int32{0}, offsets: map[int32][2]int64{0: {0, 2}}}
	source := &fakeSource{readers: map[int32]partitionReader{0: drainedReader(consumerDLQMessage("order-1"))}}
	sink := &fakeSink{}

	connect = func(config) (brokerClient, partitionSource, replaySink, error) {
		return client, source, sink, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run() unexpected error: %v", err)
	}
	if !client.closed || !source.closed || !sink.closed {
		t.Errorf("deps closed: client=%v source=%v sink=%v", client.closed, source.closed, sink.closed)
	}
}

func TestMain_DryRunWithStubbedConnect(t *testing.T) {
	oldConnect := connect
	defer func() { connect = oldConnect }()

	client := &fakeClient{partitions: []int32{0}, offsets: map[int32][2]int64{0: {0, 2}}}
	source := &fakeSource{readers: map[int32]partitionReader{0: drainedReader(consumerDLQMessage("order-1"))}}
	connect = func(config) (brokerClient, partitionSource, replaySink, error) {
		return client, source, nil, nil
	}

	withFlagArgs(t, []string{"-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}, func() {
		main()
	})
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

// --- фейки kafka-зависимостей ---

type fakeClient struct {
	partitions []int32
	offsets    map[int32][2]int64 // [oldest, newest]
	offsetErr  error
	closed     bool
}

func (c *fakeClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if c.offsetErr != nil {
		return 0, c.offsetErr
	}
	r := c.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r[0], nil
	case sarama.OffsetNewest:
		return r[1], nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (c *fakeClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), c.partitions...), nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type fakeSource struct {
	readers    map[int32]partitionReader
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *fakeSource) ConsumePartition(_ string, partition int32, offset int64) (partitionReader, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	r, ok := s.readers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return r, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeReader struct {
	messages chan *sarama.ConsumerMessage
	errs     chan *sarama.ConsumerError
}

func (r *fakeReader) Messages() <-chan *sarama.ConsumerMessage { return r.messages }
func (r *fakeReader) Errors() <-chan *sarama.ConsumerError     { return r.errs }
func (r *fakeReader) Close() error                             { return nil }

// drainedReader отдаёт перечисленные сообщения и закрытые каналы.
func drainedReader(messages ...*sarama.ConsumerMessage) *fakeReader {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	errCh := make(chan *sarama.ConsumerError)
	close(errCh)
	return &fakeReader{messages: msgCh, errs: errCh}
}

type fakeSink struct {
	sendErr error
	calls   int
	closed  bool
	last    *sarama.ProducerMessage
}

func (s *fakeSink) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.last = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}
