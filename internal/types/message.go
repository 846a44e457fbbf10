package types

import "time"

// Role is a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat turn stored inside a session.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	CharacterID string    `json:"character_id,omitempty"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
	// ResponseTime is the generation latency in seconds.
	ResponseTime float64        `json:"response_time,omitempty"`
	ModelUsed    string         `json:"model_used,omitempty"`
	Provider     string         `json:"provider_used,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
	SessionArchived SessionStatus = "archived"
)
