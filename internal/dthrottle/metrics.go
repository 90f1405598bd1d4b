package dthrottle

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Metrics records counters for the admission and gossip paths. A nil
// *InMemoryMetrics is valid and every method becomes a no-op, mirroring
// the teacher's metrics.go convention of nil-receiver safety.
type Metrics interface {
	IncAdmission(result string)
	IncReportSent(entries int)
	IncReportReceived(entries int)
	IncConnection(transport string)
	IncDisconnection(transport string)
}

// InMemoryMetrics is a process-local Metrics implementation, grounded on
// metrics.go's InMemoryMetrics (sync.Map of atomic counters keyed by a
// formatted label string).
type InMemoryMetrics struct {
	counters sync.Map
}

// NewInMemoryMetrics constructs an in-memory metrics recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncAdmission increments a counter for an admission result ("admit" or
// "reject").
func (m *InMemoryMetrics) IncAdmission(result string) {
	m.inc(fmt.Sprintf("admission|%s", result))
}

// IncReportSent increments the outbound-report counter and adds entries
// to the reported-tag-count total.
func (m *InMemoryMetrics) IncReportSent(entries int) {
	m.inc("report_sent")
	m.add("report_sent_entries", int64(entries))
}

// IncReportReceived increments the inbound-report counter and adds
// entries to the received-tag-count total.
func (m *InMemoryMetrics) IncReportReceived(entries int) {
	m.inc("report_received")
	m.add("report_received_entries", int64(entries))
}

// IncConnection increments a per-transport connection counter.
func (m *InMemoryMetrics) IncConnection(transport string) {
	m.inc(fmt.Sprintf("connection|%s", transport))
}

// IncDisconnection increments a per-transport disconnection counter.
func (m *InMemoryMetrics) IncDisconnection(transport string) {
	m.inc(fmt.Sprintf("disconnection|%s", transport))
}

// Snapshot exports all counters as a plain map, for the admin /metrics
// endpoint.
func (m *InMemoryMetrics) Snapshot() map[string]int64 {
	result := map[string]int64{}
	if m == nil {
		return result
	}
	m.counters.Range(func(key, value any) bool {
		k, _ := key.(string)
		counter, _ := value.(*atomic.Int64)
		if k != "" && counter != nil {
			result[k] = counter.Load()
		}
		return true
	})
	return result
}

func (m *InMemoryMetrics) inc(key string) {
	m.add(key, 1)
}

func (m *InMemoryMetrics) add(key string, delta int64) {
	if m == nil || key == "" {
		return
	}
	m.counter(key).Add(delta)
}

func (m *InMemoryMetrics) counter(key string) *atomic.Int64 {
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			return counter
		}
	}
	counter := &atomic.Int64{}
	actual, _ := m.counters.LoadOrStore(key, counter)
	stored, _ := actual.(*atomic.Int64)
	return stored
}

// NopMetrics discards everything.
type NopMetrics struct{}

// IncAdmission discards the event.
func (NopMetrics) IncAdmission(string) {}

// IncReportSent discards the event.
func (NopMetrics) IncReportSent(int) {}

// IncReportReceived discards the event.
func (NopMetrics) IncReportReceived(int) {}

// IncConnection discards the event.
func (NopMetrics) IncConnection(string) {}

// IncDisconnection discards the event.
func (NopMetrics) IncDisconnection(string) {}
