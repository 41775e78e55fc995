package chat

import (
	"encoding/json"
	"time"
)

// SessionRecord is the saved state of one advisor session as the client keeps
// it. The backend stores it verbatim and never interprets the fields.
type SessionRecord struct {
	Timestamp      string          `json:"timestamp,omitempty"`
	AnalysisInput  string          `json:"analysis_input"`
	AnalysisResult json.RawMessage `json:"analysis_result,omitempty"`
	ChatMessages   []Message       `json:"chat_messages"`
}

// SessionSummary describes a saved session found by a listing.
type SessionSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
