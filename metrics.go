package mqttier

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricLabels are the labels attached to a metric.
type MetricLabels map[string]string

// Metrics creates the client's instruments. Adapters for Prometheus or
// OpenTelemetry implement it outside this package.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a value that goes up and down.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
	Value() float64
}

// Histogram records observations.
type Histogram interface {
	Observe(value float64)
	ObserveDuration(d time.Duration)
	Count() uint64
	Sum() float64
}

// Client metric names.
const (
	MetricMessagesSent      = "mqttier_messages_sent_total"
	MetricMessagesReceived  = "mqttier_messages_received_total"
	MetricPublishFailures   = "mqttier_publish_failures_total"
	MetricPublishRetries    = "mqttier_publish_retries_total"
	MetricReconnects        = "mqttier_reconnects_total"
	MetricInflight          = "mqttier_inflight_messages"
	MetricQueued            = "mqttier_queued_operations"
	MetricPublishAckSeconds = "mqttier_publish_ack_seconds"
	MetricRequestSeconds    = "mqttier_request_seconds"
)

// clientMetrics holds the instruments the event loop updates.
type clientMetrics struct {
	sent, received, failures, retries, reconnects Counter

	inflight, queued Gauge

	ackLatency, requestLatency Histogram
}

func newClientMetrics(m Metrics) *clientMetrics {
	if m == nil {
		m = NoOpMetrics{}
	}
	return &clientMetrics{
		sent:           m.Counter(MetricMessagesSent, nil),
		received:       m.Counter(MetricMessagesReceived, nil),
		failures:       m.Counter(MetricPublishFailures, nil),
		retries:        m.Counter(MetricPublishRetries, nil),
		reconnects:     m.Counter(MetricReconnects, nil),
		inflight:       m.Gauge(MetricInflight, nil),
		queued:         m.Gauge(MetricQueued, nil),
		ackLatency:     m.Histogram(MetricPublishAckSeconds, nil),
		requestLatency: m.Histogram(MetricRequestSeconds, nil),
	}
}

// NoOpMetrics discards everything. It is the default.
type NoOpMetrics struct{}

func (NoOpMetrics) Counter(string, MetricLabels) Counter     { return noOpInstrument{} }
func (NoOpMetrics) Gauge(string, MetricLabels) Gauge         { return noOpInstrument{} }
func (NoOpMetrics) Histogram(string, MetricLabels) Histogram { return noOpInstrument{} }

type noOpInstrument struct{}

func (noOpInstrument) Inc()                          {}
func (noOpInstrument) Add(float64)                   {}
func (noOpInstrument) Set(float64)                   {}
func (noOpInstrument) Observe(float64)               {}
func (noOpInstrument) ObserveDuration(time.Duration) {}
func (noOpInstrument) Value() float64                { return 0 }
func (noOpInstrument) Count() uint64                 { return 0 }
func (noOpInstrument) Sum() float64                  { return 0 }

// MemoryMetrics keeps instruments in memory, for tests and debugging.
type MemoryMetrics struct {
	mu          sync.Mutex
	instruments map[string]*memoryInstrument
}

func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{instruments: make(map[string]*memoryInstrument)}
}

func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return m.get(name, labels)
}

func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return m.get(name, labels)
}

func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	return m.get(name, labels)
}

// Value returns the current value of the named instrument, zero when it
// was never created.
func (m *MemoryMetrics) Value(name string, labels MetricLabels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.instruments[labelsKey(name, labels)]; ok {
		return in.Value()
	}
	return 0
}

func (m *MemoryMetrics) get(name string, labels MetricLabels) *memoryInstrument {
	key := labelsKey(name, labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instruments[key]
	if !ok {
		in = &memoryInstrument{}
		m.instruments[key] = in
	}
	return in
}

// labelsKey builds a stable key from name and sorted labels.
func labelsKey(name string, labels MetricLabels) string {
	if len(labels) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("|" + k + "=" + labels[k])
	}
	return b.String()
}

// memoryInstrument serves as counter, gauge and histogram. For a
// histogram Value is the sum of observations.
type memoryInstrument struct {
	bits  atomic.Uint64
	count atomic.Uint64
}

func (in *memoryInstrument) Inc() { in.Add(1) }

func (in *memoryInstrument) Add(delta float64) {
	for {
		old := in.bits.Load()
		if in.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

func (in *memoryInstrument) Set(value float64) { in.bits.Store(math.Float64bits(value)) }

func (in *memoryInstrument) Observe(value float64) {
	in.count.Add(1)
	in.Add(value)
}

func (in *memoryInstrument) ObserveDuration(d time.Duration) { in.Observe(d.Seconds()) }

func (in *memoryInstrument) Value() float64 { return math.Float64frombits(in.bits.Load()) }
func (in *memoryInstrument) Count() uint64  { return in.count.Load() }
func (in *memoryInstrument) Sum() float64   { return in.Value() }
