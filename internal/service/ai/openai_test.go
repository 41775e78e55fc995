package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	geminimodel "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/RavenWorks247/AgroPredict/internal/config"
)

func TestOpenAIGenerate(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Wheat is fine."},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
	}))
	defer srv.Close()

	m, err := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIChatModel err: %v", err)
	}

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.UserMessage("wheat?"),
		schema.AssistantMessage("sure", nil),
		schema.UserMessage("in winter?"),
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Content != "Wheat is fine." {
		t.Fatalf("unexpected content: %q", msg.Content)
	}
	if captured.Model != "gpt-test" || len(captured.Messages) != 3 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Messages[1].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("unexpected role: %s", captured.Messages[1].Role)
	}
}

func TestNewChatModelSelectsProvider(t *testing.T) {
	gemini, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderGemini, GeminiAPIKey: "k", GeminiModel: "m"})
	if err != nil {
		t.Fatalf("NewChatModel err: %v", err)
	}
	if _, ok := gemini.(*geminimodel.ChatModel); !ok {
		t.Fatalf("expected gemini model, got %T", gemini)
	}

	oa, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, OpenAIAPIKey: "k", OpenAIModel: "m"})
	if err != nil {
		t.Fatalf("NewChatModel err: %v", err)
	}
	if _, ok := oa.(*OpenAIChatModel); !ok {
		t.Fatalf("expected openai model, got %T", oa)
	}
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	if _, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderGemini, GeminiModel: "m"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
