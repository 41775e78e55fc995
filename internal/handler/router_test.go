package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RavenWorks247/AgroPredict/internal/handler/relay"
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/internal/service/analysis"
	chatservice "github.com/RavenWorks247/AgroPredict/internal/service/chat"
	"github.com/RavenWorks247/AgroPredict/internal/service/extract"
	sessionservice "github.com/RavenWorks247/AgroPredict/internal/service/session"
	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

func newTestRouter() http.Handler {
	store := storage.NewMemoryStore()
	contexts := chatservice.NewService(store, chatservice.Options{})
	metrics := observability.NewMetrics("routertest")
	advisor := analysis.NewService(extract.New(nil), nil, contexts, metrics)

	return NewRouter(Services{
		Advisor:  advisor,
		Contexts: contexts,
		Records:  sessionservice.NewService(store),
		Metrics:  metrics,
	})
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "routertest_http_requests_total") {
		t.Fatalf("metrics not served: %d", resp.Code)
	}
}

func TestRouterPreflightAndCORS(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/analyze", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(`{}`))))
	if resp.Code != http.StatusBadRequest || resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected response %d %v", resp.Code, resp.Header())
	}
}

func TestRouterServesAllEndpoints(t *testing.T) {
	r := newTestRouter()

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/analyze"},
		{http.MethodPost, "/chat"},
		{http.MethodGet, "/context"},
		{http.MethodPost, "/clear_context"},
		{http.MethodPost, "/save_session"},
		{http.MethodGet, "/load_session"},
		{http.MethodGet, "/list_sessions"},
	} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(`{}`))))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400 for empty request, got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestRelayRouter(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer backend.Close()

	r := NewRelayRouter(relay.New(backend.URL, time.Second), observability.NewMetrics("relaytest"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"message":"hi"}`))))
	if resp.Code != http.StatusOK || resp.Body.String() != `{"response":"ok"}` {
		t.Fatalf("unexpected relay response %d %s", resp.Code, resp.Body.String())
	}
}
