package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
)

var ErrEmptyReply = errors.New("model returned an empty reply")

// Session is a multi-turn conversation with the completion model.
type Session interface {
	Send(ctx context.Context, text string) (string, error)
}

// Backend opens completion sessions.
type Backend interface {
	StartSession(ctx context.Context) (Session, error)
}

// Resumer is implemented by backends that can seed a session with stored turns
// instead of replaying them through the model.
type Resumer interface {
	ResumeSession(ctx context.Context, turns []chat.Turn) (Session, error)
}

type chatBackend struct {
	model model.BaseChatModel
}

type resumingBackend struct {
	chatBackend
}

// NewBackend wraps an eino chat model. When resume is set the returned backend
// also implements Resumer.
func NewBackend(m model.BaseChatModel, resume bool) Backend {
	b := chatBackend{model: m}
	if resume {
		return &resumingBackend{chatBackend: b}
	}
	return &b
}

func (b *chatBackend) StartSession(ctx context.Context) (Session, error) {
	return &chatSession{model: b.model}, nil
}

func (b *resumingBackend) ResumeSession(ctx context.Context, turns []chat.Turn) (Session, error) {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleHuman:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return &chatSession{model: b.model, history: history}, nil
}

// chatSession keeps the running message list. Each Send carries the whole
// list so the model sees prior exchanges.
type chatSession struct {
	model model.BaseChatModel

	mu      sync.Mutex
	history []*schema.Message
}

func (s *chatSession) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input := make([]*schema.Message, 0, len(s.history)+1)
	input = append(input, s.history...)
	input = append(input, schema.UserMessage(text))

	reply, err := s.model.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	out := replyText(reply)
	if out == "" {
		return "", ErrEmptyReply
	}

	s.history = append(input, schema.AssistantMessage(out, nil))
	return out, nil
}

// replyText joins the text parts of a reply. Models that answer with several
// parts leave Content empty and fill MultiContent instead.
func replyText(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}

	var b strings.Builder
	for _, part := range msg.MultiContent {
		if part.Type == schema.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
