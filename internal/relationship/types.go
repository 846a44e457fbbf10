// Package relationship maintains the network of relationships between
// characters and renders it into prompt context.
package relationship

import "time"

// Type is the kind of relationship between two characters.
type Type string

const (
	TypeNeutral   Type = "neutral"
	TypeFriendly  Type = "friendly"
	TypeRomantic  Type = "romantic"
	TypeRival     Type = "rival"
	TypeEnemy     Type = "enemy"
	TypeFamily    Type = "family"
	TypeColleague Type = "colleague"
	TypeMentor    Type = "mentor"
)

// InteractionType is the kind of interaction between two characters.
type InteractionType string

const (
	InteractionConversation InteractionType = "conversation"
	InteractionCooperation  InteractionType = "cooperation"
	InteractionConflict     InteractionType = "conflict"
	InteractionSupport      InteractionType = "support"
	InteractionTeaching     InteractionType = "teaching"
	InteractionCompetition  InteractionType = "competition"
)

// Outcome grades an interaction's effect on the relationship.
type Outcome string

const (
	OutcomePositive Outcome = "positive"
	OutcomeNegative Outcome = "negative"
	OutcomeNeutral  Outcome = "neutral"
)

// Relationship is the evolving relation between a pair of characters.
// Affinity stays in [-100,100], trust in [0,100].
type Relationship struct {
	CharacterAID         string    `json:"character_a_id"`
	CharacterBID         string    `json:"character_b_id"`
	Type                 Type      `json:"relationship_type"`
	AffinityScore        float64   `json:"affinity_score"`
	TrustLevel           float64   `json:"trust_level"`
	InteractionCount     int       `json:"interaction_count"`
	PositiveInteractions int       `json:"positive_interactions"`
	NegativeInteractions int       `json:"negative_interactions"`
	LastInteraction      time.Time `json:"last_interaction"`
	Notes                []string  `json:"relationship_notes"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// InteractionRecord is the audit trail of one interaction.
type InteractionRecord struct {
	ID           string          `json:"id"`
	CharacterAID string          `json:"character_a_id"`
	CharacterBID string          `json:"character_b_id"`
	Type         InteractionType `json:"interaction_type"`
	Context      string          `json:"context"`
	Outcome      Outcome         `json:"outcome"`
	ImpactScore  float64         `json:"impact_score"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SimulationResult predicts how an interaction between two characters
// would go.
type SimulationResult struct {
	Characters         []string `json:"characters"`
	Topic              string   `json:"topic"`
	PredictedOutcome   Outcome  `json:"predicted_outcome"`
	CompatibilityScore float64  `json:"compatibility_score"`
	CurrentAffinity    float64  `json:"current_affinity"`
	Suggestions        []string `json:"interaction_suggestions"`
	PotentialConflicts []string `json:"potential_conflicts"`
}

// NetworkSummary aggregates the whole relationship network.
type NetworkSummary struct {
	TotalRelationships  int          `json:"total_relationships"`
	RelationshipTypes   map[Type]int `json:"relationship_types"`
	MostInteractivePair string       `json:"most_interactive_pair,omitempty"`
	TotalInteractions   int          `json:"total_interactions"`
	NetworkDensity      float64      `json:"network_density"`
}
