package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type scriptedQA struct {
	mu      sync.Mutex
	answers map[string]string
	fail    map[string]error
	seen    []string
}

func (s *scriptedQA) Answer(_ context.Context, question, passage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, passage)
	if err := s.fail[question]; err != nil {
		return "", err
	}
	return s.answers[question], nil
}

func TestExtractReturnsAnswersVerbatim(t *testing.T) {
	qa := &scriptedQA{answers: map[string]string{
		CropQuestion:   " rice ",
		RegionQuestion: "Punjab",
		TimeQuestion:   "monsoon\n",
	}}

	got, err := New(qa).Extract(context.Background(), "Can I grow rice in Punjab during monsoon?")
	if err != nil {
		t.Fatalf("Extract err: %v", err)
	}

	want := Entities{Crop: " rice ", Region: "Punjab", Time: "monsoon\n"}
	if got != want {
		t.Fatalf("unexpected entities: %+v", got)
	}
	for _, passage := range qa.seen {
		if passage != "Can I grow rice in Punjab during monsoon?" {
			t.Fatalf("sentence must be the context, got %q", passage)
		}
	}
	if len(qa.seen) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qa.seen))
	}
}

func TestExtractAllowsEmptyAnswers(t *testing.T) {
	qa := &scriptedQA{answers: map[string]string{CropQuestion: "maize"}}

	got, err := New(qa).Extract(context.Background(), "maize please")
	if err != nil {
		t.Fatalf("Extract err: %v", err)
	}
	if got.Crop != "maize" || got.Region != "" || got.Time != "" {
		t.Fatalf("unexpected entities: %+v", got)
	}
}

func TestExtractFailsWhenAnyQuestionFails(t *testing.T) {
	boom := errors.New("model loading")
	qa := &scriptedQA{
		answers: map[string]string{CropQuestion: "rice", RegionQuestion: "Punjab"},
		fail:    map[string]error{TimeQuestion: boom},
	}

	if _, err := New(qa).Extract(context.Background(), "rice in Punjab"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
}

func TestHuggingFaceQAObjectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deepset/roberta-base-squad2" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf_token" {
			t.Errorf("missing bearer token")
		}
		var req qaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Inputs.Context != "wheat in Kansas" {
			t.Errorf("unexpected context: %s", req.Inputs.Context)
		}
		_, _ = w.Write([]byte(`{"score":0.9,"start":0,"end":5,"answer":"wheat"}`))
	}))
	defer srv.Close()

	qa := NewHuggingFaceQA(srv.URL+"/", "deepset/roberta-base-squad2", "hf_token")
	answer, err := qa.Answer(context.Background(), CropQuestion, "wheat in Kansas")
	if err != nil {
		t.Fatalf("Answer err: %v", err)
	}
	if answer != "wheat" {
		t.Fatalf("unexpected answer: %s", answer)
	}
}

func TestHuggingFaceQAListResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"score":0.8,"answer":"Kansas"},{"score":0.1,"answer":"wheat"}]`))
	}))
	defer srv.Close()

	answer, err := NewHuggingFaceQA(srv.URL, "m", "").Answer(context.Background(), RegionQuestion, "wheat in Kansas")
	if err != nil {
		t.Fatalf("Answer err: %v", err)
	}
	if answer != "Kansas" {
		t.Fatalf("unexpected answer: %s", answer)
	}
}

func TestHuggingFaceQAFollowsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	qa := NewHuggingFaceQA(srv.URL, "m", "")
	if qa.client.Timeout != 0 {
		t.Fatalf("client timeout must come from the caller, got %s", qa.client.Timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := qa.Answer(ctx, CropQuestion, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHuggingFaceQAErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHuggingFaceQA(srv.URL, "m", "").Answer(context.Background(), CropQuestion, "x")
	if !errors.Is(err, ErrQAFailed) {
		t.Fatalf("expected ErrQAFailed, got %v", err)
	}
}
