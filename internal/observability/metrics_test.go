package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/chat", http.MethodPost, http.StatusOK, time.Millisecond)
	m.ObserveExchange("chat", nil, time.Second)
	m.IncExtractionFailed()
	m.IncWSMessage("in", "chat")
}

func TestMetricsCountExchanges(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveExchange("analyze", nil, time.Second)
	m.ObserveExchange("analyze", errors.New("boom"), time.Second)
	m.ObserveExchange("chat", nil, time.Second)
	m.IncExtractionFailed()

	body := scrape(t, m)
	for _, want := range []string{
		`test_exchanges_total{kind="analyze",outcome="error"} 1`,
		`test_exchanges_total{kind="analyze",outcome="ok"} 1`,
		`test_extraction_failures_total 1`,
		`test_model_latency_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestMetricsHandlerExposesNamespace(t *testing.T) {
	m := NewMetrics("agrotest")
	m.ObserveRequest("/analyze", http.MethodPost, http.StatusBadRequest, 5*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, `agrotest_http_requests_total{method="POST",route="/analyze",status="400"} 1`) {
		t.Fatalf("metric not exposed:\n%s", body)
	}
}

func TestIndependentInstancesDoNotConflict(t *testing.T) {
	NewMetrics("dup")
	NewMetrics("dup")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}
