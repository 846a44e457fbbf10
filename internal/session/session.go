// Package session manages in-memory chat sessions with LRU eviction,
// idle expiry, and optional write-through persistence.
package session

import (
	"time"
	"unicode/utf8"

	"github.com/easeaico/project-chara/internal/prompt"
	"github.com/easeaico/project-chara/internal/types"
)

const (
	defaultMaxMessages = 50

	// 中文字符约1.5个token
	tokensPerRune = 1.5
)

// Session is one user's conversation with a character.
type Session struct {
	ID          string `json:"id"`
	CharacterID string `json:"character_id"`

	Status       types.SessionStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	LastActiveAt time.Time           `json:"last_active_at"`

	Messages []types.Message `json:"messages"`

	TotalMessages     int     `json:"total_messages"`
	UserMessages      int     `json:"user_messages"`
	AssistantMessages int     `json:"assistant_messages"`
	TotalTokens       int     `json:"total_tokens"`
	TotalResponseTime float64 `json:"total_response_time"`

	// MaxMessages caps the retained history. IdleTimeout is how long
	// the session may sit untouched before it is archived; zero
	// disables expiry.
	MaxMessages int           `json:"max_messages"`
	IdleTimeout time.Duration `json:"auto_archive_after"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Summary is the list-view projection of a session.
type Summary struct {
	ID                 string              `json:"id"`
	CharacterID        string              `json:"character_id"`
	CharacterName      string              `json:"character_name,omitempty"`
	Status             types.SessionStatus `json:"status"`
	CreatedAt          time.Time           `json:"created_at"`
	LastActiveAt       time.Time           `json:"last_active_at"`
	TotalMessages      int                 `json:"total_messages"`
	LastMessagePreview string              `json:"last_message_preview,omitempty"`
}

// CreateOptions tunes a new session.
type CreateOptions struct {
	MaxMessages int
	IdleTimeout time.Duration
}

// addMessage appends a message, updates the counters, and trims the
// history to MaxMessages while keeping system messages.
func (s *Session) addMessage(msg types.Message, now time.Time) {
	s.Messages = append(s.Messages, msg)
	s.TotalMessages++
	s.UpdatedAt = now
	s.LastActiveAt = now

	switch msg.Role {
	case types.RoleUser:
		s.UserMessages++
	case types.RoleAssistant:
		s.AssistantMessages++
	}
	s.TotalTokens += msg.TokensUsed
	s.TotalResponseTime += msg.ResponseTime

	if len(s.Messages) <= s.MaxMessages {
		return
	}

	var system, other []types.Message
	for _, m := range s.Messages {
		if m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}
	keep := s.MaxMessages - len(system)
	if keep > 0 {
		if len(other) > keep {
			other = other[len(other)-keep:]
		}
		s.Messages = append(system, other...)
	} else {
		s.Messages = system[:s.MaxMessages]
	}
}

// ContextMessages returns the newest turns that fit the token budget,
// in chronological order. The newest message is always included so a
// tight budget never produces an empty context.
func (s *Session) ContextMessages(maxTokens int) []prompt.Message {
	var kept []prompt.Message
	var used float64
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		cost := tokensPerRune * float64(utf8.RuneCountInString(msg.Content))
		if used+cost > float64(maxTokens) && len(kept) > 0 {
			break
		}
		kept = append(kept, prompt.Message{Role: msg.Role, Content: msg.Content})
		used += cost
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func (s *Session) expired(now time.Time) bool {
	if s.IdleTimeout <= 0 {
		return false
	}
	return now.Sub(s.LastActiveAt) > s.IdleTimeout
}

func (s *Session) summary() Summary {
	preview := ""
	if n := len(s.Messages); n > 0 {
		preview = s.Messages[n-1].Content
		if runes := []rune(preview); len(runes) > 50 {
			preview = string(runes[:50]) + "..."
		}
	}
	return Summary{
		ID:                 s.ID,
		CharacterID:        s.CharacterID,
		Status:             s.Status,
		CreatedAt:          s.CreatedAt,
		LastActiveAt:       s.LastActiveAt,
		TotalMessages:      s.TotalMessages,
		LastMessagePreview: preview,
	}
}
