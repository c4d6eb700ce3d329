package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics содержит метрики приёма событий процессора.
type EventMetrics struct {
	received          *prometheus.CounterVec
	applied           *prometheus.CounterVec
	duplicates        prometheus.Counter
	rejected          *prometheus.CounterVec
	signatureFailures prometheus.Counter
	unknownType       prometheus.Counter
}

// NewEventMetrics создаёт новый экземпляр метрик событий.
func NewEventMetrics() *EventMetrics {
	return newEventMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEventMetricsWithRegisterer(registerer prometheus.Registerer) *EventMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EventMetrics{
		received: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_events_received_total",
			Help: "Total number of processor events received grouped by type",
		}, []string{"type"}),
		applied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_events_applied_total",
			Help: "Total number of processor events applied grouped by type",
		}, []string{"type"}),
		duplicates: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_events_duplicate_total",
			Help: "Total number of duplicate processor events acknowledged",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_events_rejected_total",
			Help: "Total number of events dropped for business reasons grouped by reason",
		}, []string{"reason"}),
		signatureFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_events_signature_failures_total",
			Help: "Total number of events with invalid signature",
		}),
		unknownType: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_events_unknown_type_total",
			Help: "Total number of events with unrecognized type",
		}),
	}
}

// RecordReceived увеличивает счётчик принятых событий.
func (m *EventMetrics) RecordReceived(eventType string) {
	m.received.WithLabelValues(eventType).Inc()
}

// RecordApplied увеличивает счётчик применённых событий.
func (m *EventMetrics) RecordApplied(eventType string) {
	m.applied.WithLabelValues(eventType).Inc()
}

// RecordDuplicate увеличивает счётчик идемпотентных повторов.
func (m *EventMetrics) RecordDuplicate() {
	m.duplicates.Inc()
}

// RecordRejected увеличивает счётчик отброшенных по бизнес-причинам событий.
func (m *EventMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordSignatureFailure увеличивает счётчик ошибок подписи.
func (m *EventMetrics) RecordSignatureFailure() {
	m.signatureFailures.Inc()
}

// RecordUnknownType увеличивает счётчик событий неизвестного типа.
func (m *EventMetrics) RecordUnknownType() {
	m.unknownType.Inc()
}
