package memory

import "time"

// Type classifies what a memory is about.
type Type string

const (
	TypeFactual      Type = "factual"
	TypeEmotional    Type = "emotional"
	TypeBehavioral   Type = "behavioral"
	TypePreference   Type = "preference"
	TypeRelationship Type = "relationship"
)

// Importance grades how long a memory is worth keeping.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// rank orders importance for eviction. Higher is more important.
func (i Importance) rank() int {
	switch i {
	case ImportanceCritical:
		return 4
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	default:
		return 1
	}
}

// retentionPeriods maps importance to how long the memory lives.
var retentionPeriods = map[Importance]time.Duration{
	ImportanceCritical: 365 * 24 * time.Hour,
	ImportanceHigh:     90 * 24 * time.Hour,
	ImportanceMedium:   30 * 24 * time.Hour,
	ImportanceLow:      7 * 24 * time.Hour,
}

// Item is one extracted memory.
type Item struct {
	ID              string     `json:"id"`
	CharacterID     string     `json:"character_id"`
	SessionID       string     `json:"session_id"`
	Type            Type       `json:"memory_type"`
	Importance      Importance `json:"importance"`
	Content         string     `json:"content"`
	Context         string     `json:"context"`
	Keywords        []string   `json:"keywords"`
	RelatedEmotions []string   `json:"related_emotions"`
	AccessCount     int        `json:"access_count"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccessed    time.Time  `json:"last_accessed"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// RecalledItem is one similarity hit from the durable archive.
type RecalledItem struct {
	Content       string    `json:"content"`
	Type          string    `json:"type"`
	Similarity    float64   `json:"similarity"`
	SalienceScore float64   `json:"salience_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats summarizes a session's memory store.
type Stats struct {
	TotalMemories      int                `json:"total_memories"`
	ByType             map[Type]int       `json:"by_type,omitempty"`
	ByImportance       map[Importance]int `json:"by_importance,omitempty"`
	MostAccessed       string             `json:"most_accessed,omitempty"`
	AverageAccessCount float64            `json:"average_access_count"`
}
