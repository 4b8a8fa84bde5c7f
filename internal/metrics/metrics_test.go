package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCounters(t *testing.T) {
	IncViolation("added")
	IncViolation("added")
	IncViolation("wait")
	IncPayment("paid")
	IncPollerCycle()
	IncPollerFailure()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `ledger_violations_total{status="added"} 2`)
	assert.Contains(t, body, `ledger_violations_total{status="wait"} 1`)
	assert.Contains(t, body, `ledger_payments_total{status="paid"} 1`)
	assert.Contains(t, body, "ledger_poller_cycles_total 1")
	assert.Contains(t, body, "ledger_poller_failures_total 1")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
