package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/internal/service/ai"
	chatservice "github.com/RavenWorks247/AgroPredict/internal/service/chat"
	"github.com/RavenWorks247/AgroPredict/internal/service/extract"
)

var (
	ErrExtractionFailed = errors.New("could not extract crop and region from the sentence")
	ErrInvalidInput     = errors.New("text must not be empty")
)

// Extractor pulls crop, region and time out of a sentence.
type Extractor interface {
	Extract(ctx context.Context, sentence string) (extract.Entities, error)
}

// Service runs analyze and chat exchanges against the completion backend while
// the context manager keeps the rolling history.
type Service struct {
	extractor Extractor
	backend   ai.Backend
	contexts  *chatservice.Service
	metrics   *observability.Metrics
}

func NewService(extractor Extractor, backend ai.Backend, contexts *chatservice.Service, metrics *observability.Metrics) *Service {
	return &Service{
		extractor: extractor,
		backend:   backend,
		contexts:  contexts,
		metrics:   metrics,
	}
}

// Analyze extracts the entities from sentence and asks for a suitability
// analysis within the session.
func (s *Service) Analyze(ctx context.Context, userID, sessionID, sentence string) (string, error) {
	if strings.TrimSpace(sentence) == "" {
		return "", ErrInvalidInput
	}

	entities, err := s.extractor.Extract(ctx, sentence)
	if err != nil {
		return "", err
	}
	crop, region := strings.TrimSpace(entities.Crop), strings.TrimSpace(entities.Region)
	if crop == "" || region == "" {
		s.metrics.IncExtractionFailed()
		log.Printf("[analysis] extraction incomplete user=%s session=%s crop=%q region=%q", userID, sessionID, entities.Crop, entities.Region)
		return "", ErrExtractionFailed
	}

	text, err := BuildAnalysisPrompt(ctx, crop, region, entities.Time)
	if err != nil {
		return "", err
	}

	return s.exchange(ctx, "analyze", userID, sessionID, text)
}

// Chat sends a follow-up message within the session.
func (s *Service) Chat(ctx context.Context, userID, sessionID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrInvalidInput
	}
	return s.exchange(ctx, "chat", userID, sessionID, message)
}

func (s *Service) exchange(ctx context.Context, kind, userID, sessionID, text string) (string, error) {
	start := time.Now()
	reply, err := s.contexts.Converse(ctx, userID, sessionID, text, func(ctx context.Context, history []chat.Turn) (string, error) {
		return s.reply(ctx, history, text)
	})
	s.metrics.ObserveExchange(kind, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s exchange: %w", kind, err)
	}

	log.Printf("[analysis] %s user=%s session=%s reply_length=%d", kind, userID, sessionID, len(reply))
	return reply, nil
}

// reply opens a completion session primed with history and sends text. Backends
// that cannot resume get every surviving human turn replayed in order; their
// answers to the replays are discarded.
func (s *Service) reply(ctx context.Context, history []chat.Turn, text string) (string, error) {
	var (
		session ai.Session
		err     error
	)

	if resumer, ok := s.backend.(ai.Resumer); ok {
		session, err = resumer.ResumeSession(ctx, history)
		if err != nil {
			return "", fmt.Errorf("resume session: %w", err)
		}
	} else {
		session, err = s.backend.StartSession(ctx)
		if err != nil {
			return "", fmt.Errorf("start session: %w", err)
		}
		for _, turn := range history {
			if turn.Role != chat.RoleHuman {
				continue
			}
			if _, err := session.Send(ctx, turn.Content); err != nil {
				return "", fmt.Errorf("replay history: %w", err)
			}
		}
	}

	return session.Send(ctx, text)
}
