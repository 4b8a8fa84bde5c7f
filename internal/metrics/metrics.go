// Package metrics provides a minimal Prometheus-text-format registry for
// service instrumentation.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

type counterVec struct {
	mu     sync.RWMutex
	values map[string]uint64
}

func newCounterVec() *counterVec {
	return &counterVec{values: make(map[string]uint64)}
}

func (c *counterVec) inc(label string) {
	c.mu.Lock()
	c.values[label]++
	c.mu.Unlock()
}

func (c *counterVec) snapshot() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

type counter struct {
	mu    sync.Mutex
	value uint64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.value++
	c.mu.Unlock()
}

func (c *counter) snapshot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

var (
	violations     = newCounterVec()
	payments       = newCounterVec()
	pollerCycles   = &counter{}
	pollerFailures = &counter{}
)

// IncViolation counts a RecordViolation outcome by status label.
func IncViolation(status string) { violations.inc(status) }

// IncPayment counts a RecordPayment outcome by status label.
func IncPayment(status string) { payments.inc(status) }

// IncPollerCycle counts one completed poller cycle.
func IncPollerCycle() { pollerCycles.inc() }

// IncPollerFailure counts a failed poller cycle (fetch, decode, or store).
func IncPollerFailure() { pollerFailures.inc() }

// Handler serves the registry in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeVec(w, "ledger_violations_total", "RecordViolation outcomes by status.", "status", violations)
		writeVec(w, "ledger_payments_total", "RecordPayment outcomes by status.", "status", payments)
		writeScalar(w, "ledger_poller_cycles_total", "Completed camera poller cycles.", pollerCycles)
		writeScalar(w, "ledger_poller_failures_total", "Failed camera poller cycles.", pollerFailures)
	})
}

func writeVec(w http.ResponseWriter, name, help, label string, vec *counterVec) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	snap := vec.snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, k, snap[k])
	}
}

func writeScalar(w http.ResponseWriter, name, help string, c *counter) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, c.snapshot())
}
