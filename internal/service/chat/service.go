package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

const (
	DefaultMaxTurns = 10
	DefaultExpiry   = time.Hour
)

var ErrKeyRequired = errors.New("user id and session id are required")

// Options tunes the context window.
type Options struct {
	MaxTurns int
	Expiry   time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// ReplyFunc produces the assistant text for a new human turn given the
// surviving history.
type ReplyFunc func(ctx context.Context, history []chat.Turn) (string, error)

type contextKey struct {
	userID    string
	sessionID string
}

// entry is the cached window of one session. mu serializes every operation on
// the key; loaded records whether storage has been consulted. dead marks an
// entry already dropped from the map.
type entry struct {
	mu     sync.Mutex
	loaded bool
	dead   bool
	turns  []chat.Turn
}

// Service owns the rolling conversation context of every (user, session)
// pair. The cache is process-local and written through to the store on every
// mutation. A non-empty window loaded once is never re-read from storage, so
// writes made by other processes stay invisible until restart. Empty windows
// are dropped from the cache when released.
type Service struct {
	store    storage.Store
	maxTurns int
	expiry   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[contextKey]*entry
}

// NewService builds the context manager over the given store.
func NewService(store storage.Store, opts Options) *Service {
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		store:    store,
		maxTurns: maxTurns,
		expiry:   expiry,
		now:      now,
		entries:  make(map[contextKey]*entry),
	}
}

// MaxTurns reports the cap on retained turns.
func (s *Service) MaxTurns() int {
	return s.maxTurns
}

// Expiry reports the age after which turns are pruned.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// EnsureLoaded pulls the stored context into the cache on first use.
func (s *Service) EnsureLoaded(ctx context.Context, userID, sessionID string) error {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	return s.ensureLoaded(ctx, key, e)
}

// PruneExpired drops turns older than the expiry from the front of the window.
func (s *Service) PruneExpired(ctx context.Context, userID, sessionID string) error {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	return s.prune(ctx, key, e)
}

// AppendExchange records one human/assistant exchange and persists the window.
func (s *Service) AppendExchange(ctx context.Context, userID, sessionID, human, assistant string) error {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	return s.appendExchange(ctx, key, e, human, assistant)
}

// History returns the surviving turns without timestamps.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]chat.Message, error) {
	turns, err := s.Turns(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return chat.Messages(turns), nil
}

// Turns returns a copy of the surviving turns.
func (s *Service) Turns(ctx context.Context, userID, sessionID string) ([]chat.Turn, error) {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.release(key, e)

	if err := s.prune(ctx, key, e); err != nil {
		return nil, err
	}
	return append([]chat.Turn(nil), e.turns...), nil
}

// Clear empties the window and removes the stored record.
func (s *Service) Clear(ctx context.Context, userID, sessionID string) error {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return err
	}
	defer s.release(key, e)

	if err := s.store.Delete(ctx, storage.ContextKey(key.userID, key.sessionID)); err != nil {
		return fmt.Errorf("clear context %s/%s: %w", key.userID, key.sessionID, err)
	}
	e.turns = nil
	e.loaded = true
	return nil
}

// Converse runs reply against the current history and appends the resulting
// exchange, holding the key for the whole call so that concurrent requests on
// one session cannot interleave.
func (s *Service) Converse(ctx context.Context, userID, sessionID, human string, reply ReplyFunc) (string, error) {
	key, e, err := s.lock(userID, sessionID)
	if err != nil {
		return "", err
	}
	defer s.release(key, e)

	if err := s.prune(ctx, key, e); err != nil {
		return "", err
	}

	assistant, err := reply(ctx, append([]chat.Turn(nil), e.turns...))
	if err != nil {
		return "", err
	}

	if err := s.appendExchange(ctx, key, e, human, assistant); err != nil {
		return "", err
	}
	return assistant, nil
}

// lock returns the key's entry with its mutex held.
func (s *Service) lock(userID, sessionID string) (contextKey, *entry, error) {
	if userID == "" || sessionID == "" {
		return contextKey{}, nil, ErrKeyRequired
	}

	key := contextKey{userID: userID, sessionID: sessionID}

	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry{}
			s.entries[key] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.dead {
			return key, e, nil
		}
		// 被释放的空条目，重新取
		e.mu.Unlock()
	}
}

// release unlocks e, first dropping it from the cache when its window is empty.
func (s *Service) release(key contextKey, e *entry) {
	if len(e.turns) == 0 {
		s.mu.Lock()
		if s.entries[key] == e {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		e.dead = true
	}
	e.mu.Unlock()
}

func (s *Service) ensureLoaded(ctx context.Context, key contextKey, e *entry) error {
	if e.loaded {
		return nil
	}

	data, err := s.store.Read(ctx, storage.ContextKey(key.userID, key.sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		e.turns = nil
		e.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("load context %s/%s: %w", key.userID, key.sessionID, err)
	}

	turns, err := decodeTurns(data)
	if err != nil {
		return fmt.Errorf("decode context %s/%s: %w", key.userID, key.sessionID, err)
	}

	e.turns = s.truncate(turns)
	e.loaded = true
	return nil
}

func (s *Service) prune(ctx context.Context, key contextKey, e *entry) error {
	if err := s.ensureLoaded(ctx, key, e); err != nil {
		return err
	}

	now := s.now()
	drop := 0
	for drop < len(e.turns) && now.Sub(e.turns[drop].CreatedAt) > s.expiry {
		drop++
	}
	if drop > 0 {
		e.turns = append([]chat.Turn(nil), e.turns[drop:]...)
	}
	return nil
}

// appendExchange persists before touching the cache so that a failed write
// leaves cache and storage agreeing.
func (s *Service) appendExchange(ctx context.Context, key contextKey, e *entry, human, assistant string) error {
	if err := s.prune(ctx, key, e); err != nil {
		return err
	}

	now := s.now()
	next := make([]chat.Turn, 0, len(e.turns)+2)
	next = append(next, e.turns...)
	next = append(next,
		chat.Turn{Role: chat.RoleHuman, Content: human, CreatedAt: now},
		chat.Turn{Role: chat.RoleAssistant, Content: assistant, CreatedAt: now},
	)
	next = s.truncate(next)

	data, err := encodeTurns(next)
	if err != nil {
		return fmt.Errorf("encode context %s/%s: %w", key.userID, key.sessionID, err)
	}
	if err := s.store.Write(ctx, storage.ContextKey(key.userID, key.sessionID), data); err != nil {
		return fmt.Errorf("persist context %s/%s: %w", key.userID, key.sessionID, err)
	}

	e.turns = next
	return nil
}

// truncate keeps the newest maxTurns turns.
func (s *Service) truncate(turns []chat.Turn) []chat.Turn {
	if len(turns) <= s.maxTurns {
		return turns
	}
	return append([]chat.Turn(nil), turns[len(turns)-s.maxTurns:]...)
}

// storedTurn is the durable encoding; timestamp is fractional Unix seconds.
type storedTurn struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

func encodeTurns(turns []chat.Turn) ([]byte, error) {
	stored := make([]storedTurn, 0, len(turns))
	for _, turn := range turns {
		stored = append(stored, storedTurn{
			Role:      string(turn.Role),
			Content:   turn.Content,
			Timestamp: float64(turn.CreatedAt.UnixNano()) / float64(time.Second),
		})
	}
	return json.Marshal(stored)
}

func decodeTurns(data []byte) ([]chat.Turn, error) {
	var stored []storedTurn
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	turns := make([]chat.Turn, 0, len(stored))
	for _, item := range stored {
		sec, frac := math.Modf(item.Timestamp)
		turns = append(turns, chat.Turn{
			Role:      parseRole(item.Role),
			Content:   item.Content,
			CreatedAt: time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(),
		})
	}
	return turns, nil
}

// parseRole accepts the "ai" label written by earlier deployments.
func parseRole(raw string) chat.Role {
	switch raw {
	case "ai", "assistant", "model":
		return chat.RoleAssistant
	case "human", "user":
		return chat.RoleHuman
	default:
		return chat.Role(raw)
	}
}
