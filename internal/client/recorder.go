package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
)

// Recorder runs exchanges and keeps the saved session record in step, the
// way the browser UI did after every analyze and chat.
type Recorder struct {
	client *Client
	now    func() time.Time
}

// NewRecorder wraps c. A nil now uses time.Now.
func NewRecorder(c *Client, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{client: c, now: now}
}

// Analyze runs an analysis and saves a fresh record with an empty chat.
func (r *Recorder) Analyze(ctx context.Context, userID, sessionID, sentence string) (string, error) {
	result, err := r.client.Analyze(ctx, userID, sessionID, sentence)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(map[string]string{"crop_analysis": result})
	if err != nil {
		return "", fmt.Errorf("encode analysis result: %w", err)
	}

	record := chat.SessionRecord{
		Timestamp:      r.now().Format(time.RFC3339Nano),
		AnalysisInput:  sentence,
		AnalysisResult: raw,
		ChatMessages:   []chat.Message{},
	}
	if err := r.client.SaveSession(ctx, userID, sessionID, record); err != nil {
		return result, fmt.Errorf("save session: %w", err)
	}
	return result, nil
}

// Chat sends message and appends the exchange to the saved record. A session
// with no saved record yet starts one.
func (r *Recorder) Chat(ctx context.Context, userID, sessionID, message string) (string, error) {
	reply, err := r.client.Chat(ctx, userID, sessionID, message)
	if err != nil {
		return "", err
	}

	record, err := r.client.LoadSession(ctx, userID, sessionID)
	if err != nil && !IsNotFound(err) {
		return reply, fmt.Errorf("load session: %w", err)
	}

	record.Timestamp = r.now().Format(time.RFC3339Nano)
	record.ChatMessages = append(record.ChatMessages,
		chat.Message{Role: "user", Content: message},
		chat.Message{Role: string(chat.RoleAssistant), Content: reply},
	)
	if err := r.client.SaveSession(ctx, userID, sessionID, record); err != nil {
		return reply, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}
