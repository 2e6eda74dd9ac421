package domain

import "time"

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatMessage is append-only: rows are created by user input or by the
// chat composer and never mutated afterwards.
type ChatMessage struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	UserID     string    `json:"user_id"`
	Role       ChatRole  `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChatRequest struct {
	AnalysisID string
	UserID     string
	Message    string
}

type ChatReply struct {
	AnalysisID string      `json:"analysis_id"`
	Message    ChatMessage `json:"message"`
}
