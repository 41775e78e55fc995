package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type backendCall struct {
	path  string
	query string
	body  string
	reqID string
}

type recorder struct {
	mu    sync.Mutex
	calls []backendCall
}

func (rec *recorder) all() []backendCall {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]backendCall(nil), rec.calls...)
}

func setup(t *testing.T, backend http.HandlerFunc, timeout time.Duration) (*chi.Mux, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, backendCall{path: r.URL.Path, query: r.URL.RawQuery, body: string(body), reqID: r.Header.Get("X-Request-Id")})
		rec.mu.Unlock()
		backend(w, r)
	}))
	t.Cleanup(srv.Close)

	r := chi.NewRouter()
	New(srv.URL+"/", timeout).RegisterRoutes(r)
	return r, rec
}

func okJSON(payload string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}
}

func send(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func errorOf(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
	return body["error"]
}

func TestForwardSentenceToAnalyze(t *testing.T) {
	r, rec := setup(t, okJSON(`{"crop_analysis":"X"}`), time.Second)

	resp := send(r, http.MethodPost, "/", `{"sentence":"rice in Punjab","session_id":"s1","user_id":"u1"}`)
	calls := rec.all()

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != `{"crop_analysis":"X"}` {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
	if len(calls) != 1 || calls[0].path != "/analyze" {
		t.Fatalf("unexpected backend calls: %+v", calls)
	}
	if calls[0].body != `{"sentence":"rice in Punjab","session_id":"s1","user_id":"u1"}` {
		t.Fatalf("body not forwarded verbatim: %s", calls[0].body)
	}
	if calls[0].reqID == "" {
		t.Fatal("missing request id")
	}
}

func TestForwardMessageToChat(t *testing.T) {
	r, rec := setup(t, okJSON(`{"response":"ok"}`), time.Second)

	resp := send(r, http.MethodPost, "/", `{"message":"hi","session_id":"s1","user_id":"u1"}`)
	calls := rec.all()

	if resp.Code != http.StatusOK || calls[0].path != "/chat" {
		t.Fatalf("unexpected routing: %d %+v", resp.Code, calls)
	}
}

func TestForwardRejectsBadRequests(t *testing.T) {
	r, rec := setup(t, okJSON(`{}`), time.Second)

	cases := map[string]string{
		"nope":          msgInvalidJSON,
		"{}":            msgInvalidJSON,
		`{"other":"x"}`: msgUnknownShape,
	}
	for body, want := range cases {
		resp := send(r, http.MethodPost, "/", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, resp.Code)
		}
		if got := errorOf(t, resp); got != want {
			t.Fatalf("unexpected error for %q: %s", body, got)
		}
	}
	if calls := rec.all(); len(calls) != 0 {
		t.Fatalf("backend must not be called, got %d calls", len(calls))
	}
}

func TestForwardBackendError(t *testing.T) {
	r, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Could not extract crop and region from the sentence"}`, http.StatusBadRequest)
	}, time.Second)

	resp := send(r, http.MethodPost, "/", `{"sentence":"x","session_id":"s1","user_id":"u1"}`)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := errorOf(t, resp); got != "Error from Gemini service" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestForwardBackendTimeout(t *testing.T) {
	r, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, 20*time.Millisecond)

	resp := send(r, http.MethodPost, "/", `{"message":"hi","session_id":"s1","user_id":"u1"}`)

	if got := errorOf(t, resp); got != "Failed to communicate with Gemini service" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestContextForwardsQuery(t *testing.T) {
	r, rec := setup(t, okJSON(`{"context":[]}`), time.Second)

	resp := send(r, http.MethodGet, "/context?user_id=u1&session_id=s1", "")
	calls := rec.all()

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if calls[0].path != "/context" || calls[0].query != "user_id=u1&session_id=s1" {
		t.Fatalf("unexpected backend call: %+v", calls[0])
	}
}

func TestContextBackendError(t *testing.T) {
	r, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Please provide user_id and session_id"}`, http.StatusBadRequest)
	}, time.Second)

	resp := send(r, http.MethodGet, "/context", "")

	if got := errorOf(t, resp); got != "Error retrieving context from Gemini service" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestPreflight(t *testing.T) {
	r, _ := setup(t, okJSON(`{}`), time.Second)

	resp := send(r, http.MethodOptions, "/", "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Methods") != http.MethodPost || resp.Header().Get("Access-Control-Max-Age") != "3600" {
		t.Fatalf("unexpected headers: %v", resp.Header())
	}

	resp = send(r, http.MethodOptions, "/context", "")
	if resp.Header().Get("Access-Control-Allow-Methods") != http.MethodGet {
		t.Fatalf("unexpected headers: %v", resp.Header())
	}
}
