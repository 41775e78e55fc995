package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRecord   = errors.New("session data must be valid JSON")
)

const recordFile = "/data.json"

// Service saves and restores whole session records. Records are opaque JSON
// documents and are never capped or expired.
type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Save overwrites the record of the session.
func (s *Service) Save(ctx context.Context, userID, sessionID string, data json.RawMessage) error {
	if !json.Valid(data) {
		return ErrInvalidRecord
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if err := s.store.Write(ctx, storage.SessionKey(userID, sessionID), buf.Bytes()); err != nil {
		return fmt.Errorf("save session %s/%s: %w", userID, sessionID, err)
	}
	return nil
}

// Load returns the record exactly as it was saved.
func (s *Service) Load(ctx context.Context, userID, sessionID string) (json.RawMessage, error) {
	data, err := s.store.Read(ctx, storage.SessionKey(userID, sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", userID, sessionID, err)
	}
	return json.RawMessage(data), nil
}

// List returns the user's saved sessions ordered by session id.
func (s *Service) List(ctx context.Context, userID string) ([]chat.SessionSummary, error) {
	prefix := storage.SessionPrefix(userID)
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions %s: %w", userID, err)
	}

	summaries := make([]chat.SessionSummary, 0, len(objects))
	for _, obj := range objects {
		id, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, prefix), recordFile)
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		summaries = append(summaries, chat.SessionSummary{ID: id, CreatedAt: obj.CreatedAt})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}
