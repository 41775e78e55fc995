package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a rolling session context. Turns are never edited
// after they are appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is the role/content view of a turn returned to clients.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message drops the bookkeeping timestamp.
func (t Turn) Message() Message {
	return Message{Role: string(t.Role), Content: t.Content}
}

// Messages converts turns in order.
func Messages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turn.Message())
	}
	return out
}
