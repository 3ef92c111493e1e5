package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu             sync.Mutex
	startedAt      time.Time
	requestCount   map[string]int64
	errorCount     map[string]int64
	transitions    map[string]int64
	deliveries     map[string]int64
	sweptSessions  int64
	sweptRemarks   int64
	autoConfirmed  int64
	duplicateDrops int64
}

// MetricsSnapshot is a copy of the counters at one point in time.
type MetricsSnapshot struct {
	UptimeSeconds  float64          `json:"uptime_seconds"`
	Requests       map[string]int64 `json:"requests"`
	Errors         map[string]int64 `json:"errors"`
	Transitions    map[string]int64 `json:"transitions"`
	Deliveries     map[string]int64 `json:"deliveries"`
	SweptSessions  int64            `json:"swept_sessions"`
	SweptRemarks   int64            `json:"swept_remarks"`
	AutoConfirmed  int64            `json:"auto_confirmed"`
	DuplicateDrops int64            `json:"duplicate_drops"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		transitions:  make(map[string]int64),
		deliveries:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts committed status changes.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[from+"->"+to]++
}

// RecordDelivery counts chat deliveries per destination kind and outcome.
func (m *Metrics) RecordDelivery(kind string, ok bool) {
	if m == nil {
		return
	}
	key := kind + "|ok"
	if !ok {
		key = kind + "|failed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[key]++
}

// RecordSweep counts reclaimed ephemeral state.
func (m *Metrics) RecordSweep(sessions, remarks int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweptSessions += int64(sessions)
	m.sweptRemarks += int64(remarks)
}

// RecordAutoConfirmed counts tickets confirmed by the scheduler.
func (m *Metrics) RecordAutoConfirmed(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoConfirmed += int64(n)
}

// RecordDuplicate counts inbound updates dropped as redeliveries.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicateDrops++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startedAt).Seconds(),
		Requests:       copyCounts(m.requestCount),
		Errors:         copyCounts(m.errorCount),
		Transitions:    copyCounts(m.transitions),
		Deliveries:     copyCounts(m.deliveries),
		SweptSessions:  m.sweptSessions,
		SweptRemarks:   m.sweptRemarks,
		AutoConfirmed:  m.autoConfirmed,
		DuplicateDrops: m.duplicateDrops,
	}
}

// Keys returns the sorted keys of a counter map, handy for stable rendering.
func Keys(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
