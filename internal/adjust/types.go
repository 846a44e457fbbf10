// Package adjust derives response adjustment directives from the
// conversation's emotional, temporal, relational, topical, and
// behavioral context.
package adjust

import (
	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/state"
	"github.com/easeaico/project-chara/internal/types"
)

// AdjustmentType names a response dimension that can be steered.
type AdjustmentType string

const (
	AdjustTone       AdjustmentType = "tone"
	AdjustFormality  AdjustmentType = "formality"
	AdjustEnthusiasm AdjustmentType = "enthusiasm"
	AdjustIntimacy   AdjustmentType = "intimacy"
	AdjustDirectness AdjustmentType = "directness"
)

// directiveOrder fixes the rendering order of the adjustment block.
var directiveOrder = []AdjustmentType{
	AdjustTone,
	AdjustIntimacy,
	AdjustFormality,
	AdjustEnthusiasm,
	AdjustDirectness,
}

// EmotionalContext captures the user's emotional signal.
type EmotionalContext struct {
	CurrentEmotion   emotion.State `json:"current_emotion"`
	EmotionIntensity float64       `json:"emotion_intensity"`
	EmotionTrend     string        `json:"emotion_trend"`
	EmotionStability bool          `json:"emotion_stability"`
}

// TemporalContext captures the conversation's pace and urgency.
type TemporalContext struct {
	SessionDurationHours float64 `json:"session_duration"`
	ResponsePace         string  `json:"response_pace"`
	TimeSensitive        bool    `json:"time_sensitive"`
	ConversationLength   int     `json:"conversation_length"`
}

// RelationalContext captures where the relationship stands.
type RelationalContext struct {
	RelationshipLevel   state.RelationshipLevel `json:"relationship_level"`
	FamiliarityScore    float64                 `json:"familiarity_score"`
	TrustLevel          float64                 `json:"trust_level"`
	MentionedCharacters []string                `json:"mentioned_characters"`
	RelationshipContext string                  `json:"relationship_context"`
}

// TopicalContext captures what is being talked about.
type TopicalContext struct {
	CurrentTopic   string   `json:"current_topic"`
	TopicHistory   []string `json:"topic_history"`
	TopicShift     bool     `json:"topic_shift"`
	SensitiveTopic bool     `json:"sensitive_topic"`
}

// UserPatterns summarizes how the user writes.
type UserPatterns struct {
	FormalityPreference  string  `json:"formality_preference"`
	AverageMessageLength float64 `json:"average_message_length"`
	QuestionFrequency    float64 `json:"question_frequency"`
}

// BehavioralContext captures user habits and character consistency.
type BehavioralContext struct {
	UserPatterns       UserPatterns `json:"user_patterns"`
	ConsistencyScore   float64      `json:"consistency_score"`
	InteractionQuality float64      `json:"interaction_quality"`
}

// ContextAnalysis bundles all five context dimensions.
type ContextAnalysis struct {
	Emotional  EmotionalContext  `json:"emotional"`
	Temporal   TemporalContext   `json:"temporal"`
	Relational RelationalContext `json:"relational"`
	Topical    TopicalContext    `json:"topical"`
	Behavioral BehavioralContext `json:"behavioral"`
}

// HistoryMessage is the minimal view of a past turn the adjuster needs.
type HistoryMessage struct {
	Role    types.Role
	Content string
}
