package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/speeding-violation-ledger/internal/detector"
	"github.com/platewatch/speeding-violation-ledger/internal/ledger"
	"github.com/platewatch/speeding-violation-ledger/internal/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	eng := ledger.NewLedger(memory.NewMemoryLedgerStore(), ledger.Config{Buffer: 5 * time.Second})
	router := NewRouter(eng, detector.NewChain(nil, nil), nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestNewViolationFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/new_violation", `{"plate":"ka01ab1234"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "added", body["status"])
	assert.Equal(t, "KA01AB1234", body["plate"])

	// an immediate repeat is debounced
	resp, body = postJSON(t, srv.URL+"/api/new_violation", `{"plate":"KA01AB1234"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "wait", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// legacy clients send the plate in "number"
	resp, body = postJSON(t, srv.URL+"/api/new_violation", `{"number":"MH12XY99"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "MH12XY99", body["plate"])
}

func TestNewViolationExplicitTimestamp(t *testing.T) {
	srv := newTestServer(t)

	ts1 := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	resp, _ := postJSON(t, srv.URL+"/api/new_violation", fmt.Sprintf(`{"plate":"DL3C4567","timestamp":%q}`, ts1))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// one hour later the window has long reopened
	resp, body := postJSON(t, srv.URL+"/api/new_violation", `{"plate":"DL3C4567"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "updated", body["status"])
}

func TestNewViolationValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/new_violation", `{"plate":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/new_violation", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/new_violation", `{"plate":"AB123","timestamp":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewViolationImage(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/new_violation_image", "camera 4 capture: KL-4021")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "added", body["status"])
	assert.Equal(t, "KL-4021", body["plate"])

	resp, body = postJSON(t, srv.URL+"/api/new_violation_image", "nothing recognizable")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no_plate", body["status"])
}

func TestPayFineFlow(t *testing.T) {
	srv := newTestServer(t)

	_, _ = postJSON(t, srv.URL+"/api/new_violation", `{"plate":"WB20CC42","amount":200}`)

	resp, body := postJSON(t, srv.URL+"/api/pay_fine", `{"plate":"WB20CC42","amount":500}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "excess", body["status"])

	resp, body = postJSON(t, srv.URL+"/api/pay_fine", `{"plate":"WB20CC42","amount":200}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", body["status"])

	resp, body = postJSON(t, srv.URL+"/api/pay_fine", `{"plate":"WB20CC42","amount":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no_dues", body["status"])

	resp, body = postJSON(t, srv.URL+"/api/pay_fine", `{"plate":"GHOST1","amount":10}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_record", body["status"])

	resp, _ = postJSON(t, srv.URL+"/api/pay_fine", `{"plate":"WB20CC42","amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetVehicle(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/get_vehicle?plate=GHOST1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/get_vehicle")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, _ = postJSON(t, srv.URL+"/api/new_violation", `{"plate":"TN10BB77"}`)

	var entry struct {
		Plate   string `json:"plate"`
		Balance string `json:"balance"`
		History []struct {
			Kind string `json:"kind"`
		} `json:"history"`
	}
	resp = getJSON(t, srv.URL+"/api/get_vehicle?plate=tn10bb77", &entry)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TN10BB77", entry.Plate)
	assert.Equal(t, "100", entry.Balance)
	require.Len(t, entry.History, 1)
	assert.Equal(t, "FINE", entry.History[0].Kind)

	// a since cutoff in the future filters everything out
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	resp = getJSON(t, srv.URL+"/api/get_vehicle?plate=TN10BB77&since="+future, &entry)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, entry.History, 0)

	resp, err = http.Get(srv.URL + "/api/get_vehicle?plate=TN10BB77&since=whenever")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecentViolations(t *testing.T) {
	srv := newTestServer(t)

	for i, plate := range []string{"AA11", "BB22", "CC33"} {
		ts := time.Now().UTC().Add(time.Duration(i-3) * time.Minute).Format(time.RFC3339)
		resp, _ := postJSON(t, srv.URL+"/api/new_violation", fmt.Sprintf(`{"plate":%q,"timestamp":%q}`, plate, ts))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var rows []struct {
		Plate   string `json:"plate"`
		Balance string `json:"balance"`
	}
	resp := getJSON(t, srv.URL+"/api/recent_violations", &rows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 3)
	assert.Equal(t, "CC33", rows[0].Plate)

	resp = getJSON(t, srv.URL+"/api/recent_violations?limit=2", &rows)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rows, 2)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
