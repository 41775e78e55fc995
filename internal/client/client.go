// Package client talks to the AgroPredict backend (or the relay in front of
// it) over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

// SessionIDLayout formats new session ids from the local clock.
const SessionIDLayout = "20060102_150405"

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// SavedSession is one entry of a session listing.
type SavedSession struct {
	ID        string
	CreatedAt string
}

// Client is a thin typed wrapper over the backend endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewSessionID returns a fresh session id for t.
func NewSessionID(t time.Time) string {
	return t.Format(SessionIDLayout)
}

// Analyze returns the suitability analysis for sentence.
func (c *Client) Analyze(ctx context.Context, userID, sessionID, sentence string) (string, error) {
	var out struct {
		CropAnalysis string `json:"crop_analysis"`
	}
	body := map[string]string{"sentence": sentence, "session_id": sessionID, "user_id": userID}
	if err := c.doJSON(ctx, http.MethodPost, "/analyze", nil, body, &out); err != nil {
		return "", err
	}
	return out.CropAnalysis, nil
}

// Chat sends a follow-up message.
func (c *Client) Chat(ctx context.Context, userID, sessionID, message string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	body := map[string]string{"message": message, "session_id": sessionID, "user_id": userID}
	if err := c.doJSON(ctx, http.MethodPost, "/chat", nil, body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Context returns the live conversation window.
func (c *Client) Context(ctx context.Context, userID, sessionID string) ([]chat.Message, error) {
	var out struct {
		Context []chat.Message `json:"context"`
	}
	query := url.Values{"user_id": {userID}, "session_id": {sessionID}}
	if err := c.doJSON(ctx, http.MethodGet, "/context", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Context, nil
}

// ClearContext drops the conversation window and returns the server message.
func (c *Client) ClearContext(ctx context.Context, userID, sessionID string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	body := map[string]string{"session_id": sessionID, "user_id": userID}
	if err := c.doJSON(ctx, http.MethodPost, "/clear_context", nil, body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// SaveSession stores record under the session.
func (c *Client) SaveSession(ctx context.Context, userID, sessionID string, record chat.SessionRecord) error {
	body := map[string]any{"user_id": userID, "session_id": sessionID, "session_data": record}
	return c.doJSON(ctx, http.MethodPost, "/save_session", nil, body, nil)
}

// LoadSession fetches a saved record. A missing record satisfies IsNotFound.
func (c *Client) LoadSession(ctx context.Context, userID, sessionID string) (chat.SessionRecord, error) {
	var record chat.SessionRecord
	query := url.Values{"user_id": {userID}, "session_id": {sessionID}}
	if err := c.doJSON(ctx, http.MethodGet, "/load_session", query, nil, &record); err != nil {
		return chat.SessionRecord{}, err
	}
	return record, nil
}

// ListSessions returns the user's saved sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]SavedSession, error) {
	var out map[string]string
	query := url.Values{"user_id": {userID}}
	if err := c.doJSON(ctx, http.MethodGet, "/list_sessions", query, nil, &out); err != nil {
		return nil, err
	}

	sessions := make([]SavedSession, 0, len(out))
	for id, created := range out {
		sessions = append(sessions, SavedSession{ID: id, CreatedAt: created})
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt > sessions[j].CreatedAt
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload utils.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		} else {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
