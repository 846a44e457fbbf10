// Package state tracks the evolving per-session state of a character:
// familiarity, mood, energy, trust, topic preferences, and the small
// set of special memories that feed back into the prompt.
package state

import "time"

// RelationshipLevel is the discrete relationship stage.
type RelationshipLevel string

const (
	LevelStranger     RelationshipLevel = "stranger"
	LevelAcquaintance RelationshipLevel = "acquaintance"
	LevelFriend       RelationshipLevel = "friend"
	LevelCloseFriend  RelationshipLevel = "close_friend"
	LevelSpecial      RelationshipLevel = "special"
)

// Mood is the character's coarse mood on a five-step scale.
type Mood string

const (
	MoodTerrible Mood = "terrible"
	MoodBad      Mood = "bad"
	MoodNeutral  Mood = "neutral"
	MoodGood     Mood = "good"
	MoodGreat    Mood = "great"
)

// moodScale orders moods from worst to best. Mood only ever moves one
// step along this scale per interaction.
var moodScale = []Mood{MoodTerrible, MoodBad, MoodNeutral, MoodGood, MoodGreat}

// relationshipThresholds are the development score cutoffs per level.
var relationshipThresholds = []struct {
	level RelationshipLevel
	score float64
}{
	{LevelSpecial, 150},
	{LevelCloseFriend, 80},
	{LevelFriend, 30},
	{LevelAcquaintance, 10},
}

// CharacterState is the full dynamic state of one character within one
// session. All scores stay clamped: familiarity/energy/trust in
// [0,100].
type CharacterState struct {
	CharacterID          string             `json:"character_id"`
	SessionID            string             `json:"session_id"`
	RelationshipLevel    RelationshipLevel  `json:"relationship_level"`
	FamiliarityScore     float64            `json:"familiarity_score"`
	Mood                 Mood               `json:"mood"`
	EnergyLevel          float64            `json:"energy_level"`
	LastInteraction      time.Time          `json:"last_interaction"`
	InteractionCount     int                `json:"interaction_count"`
	PositiveInteractions int                `json:"positive_interactions"`
	NegativeInteractions int                `json:"negative_interactions"`
	TrustLevel           float64            `json:"trust_level"`
	TopicPreferences     map[string]float64 `json:"topic_preferences"`
	SpecialMemories      []string           `json:"special_memories"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Summary is the read-only projection exposed over the API.
type Summary struct {
	RelationshipLevel    RelationshipLevel `json:"relationship_level"`
	FamiliarityScore     float64           `json:"familiarity_score"`
	Mood                 Mood              `json:"mood"`
	EnergyLevel          float64           `json:"energy_level"`
	TrustLevel           float64           `json:"trust_level"`
	InteractionCount     int               `json:"interaction_count"`
	PositiveRatio        float64           `json:"positive_ratio"`
	PreferredTopics      []string          `json:"preferred_topics"`
	SpecialMemoriesCount int               `json:"special_memories_count"`
	DaysSinceCreation    int               `json:"days_since_creation"`
}

func improveMood(m Mood) Mood {
	for i, level := range moodScale {
		if level == m && i < len(moodScale)-1 {
			return moodScale[i+1]
		}
	}
	return m
}

func worsenMood(m Mood) Mood {
	for i, level := range moodScale {
		if level == m && i > 0 {
			return moodScale[i-1]
		}
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
