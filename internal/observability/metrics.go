package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and sweeps.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	sweepRuns             int64
	ticketsEvaluated      int64
	classificationChanges int64
	evaluationFailures    int64
	lastSweepDuration     time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
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

// RecordSweep folds one completed escalation sweep into the counters.
func (m *Metrics) RecordSweep(evaluated, changed, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepRuns++
	m.ticketsEvaluated += int64(evaluated)
	m.classificationChanges += int64(changed)
	m.evaluationFailures += int64(failed)
	m.lastSweepDuration = duration
}

// SweepStats returns the accumulated sweep counters.
func (m *Metrics) SweepStats() (runs, evaluated, changed, failed int64, last time.Duration) {
	if m == nil {
		return 0, 0, 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepRuns, m.ticketsEvaluated, m.classificationChanges, m.evaluationFailures, m.lastSweepDuration
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
