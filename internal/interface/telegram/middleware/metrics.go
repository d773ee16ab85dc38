package middleware

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// In-process counters per action, served by the health endpoint.
// ══════════════════════════════════════════════════════════════════════════════

// Metrics collects per-action request counts and latencies.
type Metrics struct {
	startedAt time.Time

	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	gateRejections atomic.Int64
	rateLimited    atomic.Int64
	panics         atomic.Int64

	mu      sync.Mutex
	actions map[string]*actionMetrics
}

type actionMetrics struct {
	count    int64
	errors   int64
	total    time.Duration
	max      time.Duration
	lastSeen time.Time
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now(),
		actions:   make(map[string]*actionMetrics),
	}
}

// Observe records one handled action.
func (m *Metrics) Observe(action string, d time.Duration, err error) {
	m.totalRequests.Add(1)
	if err != nil {
		m.totalErrors.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	am, ok := m.actions[action]
	if !ok {
		am = &actionMetrics{}
		m.actions[action] = am
	}
	am.count++
	if err != nil {
		am.errors++
	}
	am.total += d
	if d > am.max {
		am.max = d
	}
	am.lastSeen = time.Now()
}

// GateRejected counts a time gate denial.
func (m *Metrics) GateRejected() { m.gateRejections.Add(1) }

// RateLimited counts a rate limiter denial.
func (m *Metrics) RateLimited() { m.rateLimited.Add(1) }

// Panicked counts a recovered handler panic.
func (m *Metrics) Panicked() { m.panics.Add(1) }

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Uptime         string           `json:"uptime"`
	TotalRequests  int64            `json:"total_requests"`
	TotalErrors    int64            `json:"total_errors"`
	GateRejections int64            `json:"gate_rejections"`
	RateLimited    int64            `json:"rate_limited"`
	Panics         int64            `json:"panics"`
	Actions        []ActionSnapshot `json:"actions"`
}

// ActionSnapshot holds the counters of one action.
type ActionSnapshot struct {
	Action    string    `json:"action"`
	Count     int64     `json:"count"`
	Errors    int64     `json:"errors"`
	AvgMillis float64   `json:"avg_ms"`
	MaxMillis float64   `json:"max_ms"`
	LastSeen  time.Time `json:"last_seen"`
}

// Snapshot returns the current counters, actions sorted by count.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Uptime:         time.Since(m.startedAt).Round(time.Second).String(),
		TotalRequests:  m.totalRequests.Load(),
		TotalErrors:    m.totalErrors.Load(),
		GateRejections: m.gateRejections.Load(),
		RateLimited:    m.rateLimited.Load(),
		Panics:         m.panics.Load(),
	}

	m.mu.Lock()
	for name, am := range m.actions {
		as := ActionSnapshot{
			Action:    name,
			Count:     am.count,
			Errors:    am.errors,
			MaxMillis: float64(am.max) / float64(time.Millisecond),
			LastSeen:  am.lastSeen,
		}
		if am.count > 0 {
			as.AvgMillis = float64(am.total) / float64(am.count) / float64(time.Millisecond)
		}
		s.Actions = append(s.Actions, as)
	}
	m.mu.Unlock()

	sort.Slice(s.Actions, func(i, j int) bool {
		if s.Actions[i].Count != s.Actions[j].Count {
			return s.Actions[i].Count > s.Actions[j].Count
		}
		return s.Actions[i].Action < s.Actions[j].Action
	})
	return s
}
