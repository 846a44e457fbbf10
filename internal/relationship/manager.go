package relationship

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-chara/internal/types"
)

// seed is a predefined relationship between two known characters.
type seed struct {
	a, b     string
	relType  Type
	affinity float64
	trust    float64
	notes    []string
}

// predefined relationships from the shipped character roster.
var predefined = []seed{
	{
		a: "rei_ayanami", b: "asuka_langley",
		relType: TypeRival, affinity: -10, trust: 30,
		notes: []string{"同为EVA驾驶员", "性格差异导致的微妙竞争关系"},
	},
	{
		a: "rei_ayanami", b: "miku_hatsune",
		relType: TypeNeutral, affinity: 5, trust: 50,
		notes: []string{"来自不同世界", "缺乏直接交集"},
	},
	{
		a: "asuka_langley", b: "miku_hatsune",
		relType: TypeFriendly, affinity: 15, trust: 60,
		notes: []string{"都很有活力", "可能会因为音乐话题产生共鸣"},
	},
}

// compatibilityMatrix scores trait pairings for interaction simulation.
// Unknown pairings score zero.
var compatibilityMatrix = map[string]map[string]float64{
	"活泼开朗": {"冷淡": -20, "内敛": -10, "活泼开朗": 30, "温柔": 20},
	"冷淡":   {"活泼开朗": -20, "强势": -15, "冷淡": 10, "神秘": 15},
	"强势好胜": {"温柔": 10, "强势好胜": -10, "冷淡": -5, "活泼开朗": 15},
	"温柔":   {"强势好胜": 10, "冷淡": 5, "温柔": 25, "活泼开朗": 20},
	"神秘莫测": {"冷淡": 15, "神秘莫测": 5, "活泼开朗": -10},
}

var typeDescriptions = map[Type]string{
	TypeNeutral:   "一般关系",
	TypeFriendly:  "友好关系",
	TypeRomantic:  "亲密关系",
	TypeRival:     "竞争关系",
	TypeEnemy:     "敌对关系",
	TypeFamily:    "家人关系",
	TypeColleague: "同事关系",
	TypeMentor:    "师生关系",
}

// Manager owns the pairwise relationship map and interaction log.
type Manager struct {
	mu            sync.RWMutex
	relationships map[string]*Relationship
	interactions  []InteractionRecord
	nowFunc       func() time.Time
}

// NewManager returns a Manager with the predefined roster seeded.
func NewManager() *Manager {
	m := &Manager{
		relationships: make(map[string]*Relationship),
		nowFunc:       time.Now,
	}
	m.seedPredefined()
	return m
}

func (m *Manager) seedPredefined() {
	now := m.nowFunc()
	for _, s := range predefined {
		key := pairKey(s.a, s.b)
		if _, exists := m.relationships[key]; exists {
			continue
		}
		m.relationships[key] = &Relationship{
			CharacterAID:    s.a,
			CharacterBID:    s.b,
			Type:            s.relType,
			AffinityScore:   s.affinity,
			TrustLevel:      s.trust,
			LastInteraction: now,
			Notes:           s.notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
}

// pairKey is order independent: (a,b) and (b,a) share one relationship.
func pairKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// Get returns the relationship between two characters, or nil when
// none exists. Self relationships are not allowed.
func (m *Manager) Get(characterA, characterB string) *Relationship {
	if characterA == characterB {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relationships[pairKey(characterA, characterB)]
	if !ok {
		return nil
	}
	copied := *rel
	return &copied
}

// RecordInteraction logs an interaction and updates the pair's
// relationship, creating a neutral one on first contact.
func (m *Manager) RecordInteraction(
	characterA, characterB string,
	interactionType InteractionType,
	context string,
	outcome Outcome,
	impact float64,
) *Relationship {
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.interactions = append(m.interactions, InteractionRecord{
		ID:           uuid.NewString(),
		CharacterAID: characterA,
		CharacterBID: characterB,
		Type:         interactionType,
		Context:      context,
		Outcome:      outcome,
		ImpactScore:  impact,
		Timestamp:    now,
	})

	key := pairKey(characterA, characterB)
	rel, ok := m.relationships[key]
	if !ok {
		rel = &Relationship{
			CharacterAID: characterA,
			CharacterBID: characterB,
			Type:         TypeNeutral,
			TrustLevel:   50,
			CreatedAt:    now,
		}
		m.relationships[key] = rel
	}

	rel.InteractionCount++
	rel.LastInteraction = now
	rel.UpdatedAt = now

	magnitude := impact
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch outcome {
	case OutcomePositive:
		rel.PositiveInteractions++
		rel.AffinityScore = clamp(rel.AffinityScore+magnitude, -100, 100)
		rel.TrustLevel = clamp(rel.TrustLevel+magnitude*0.5, 0, 100)
	case OutcomeNegative:
		rel.NegativeInteractions++
		rel.AffinityScore = clamp(rel.AffinityScore-magnitude, -100, 100)
		rel.TrustLevel = clamp(rel.TrustLevel-magnitude*0.3, 0, 100)
	}

	rel.Type = determineType(rel)

	copied := *rel
	return &copied
}

// determineType recomputes the relationship type from affinity, trust,
// and the positive ratio, anchored on the predefined base type.
func determineType(rel *Relationship) Type {
	affinity := rel.AffinityScore
	trust := rel.TrustLevel

	interactions := rel.InteractionCount
	if interactions < 1 {
		interactions = 1
	}
	positiveRatio := float64(rel.PositiveInteractions) / float64(interactions)

	base := TypeNeutral
	for _, s := range predefined {
		if pairKey(s.a, s.b) == pairKey(rel.CharacterAID, rel.CharacterBID) {
			base = s.relType
			break
		}
	}

	switch {
	case affinity > 70 && trust > 80:
		if base == TypeFriendly {
			return TypeRomantic
		}
		return TypeFriendly
	case affinity < -50:
		if base == TypeRival {
			return TypeEnemy
		}
		return TypeRival
	case affinity > 30 && positiveRatio > 0.7:
		return TypeFriendly
	case affinity < -20 && positiveRatio < 0.3:
		return TypeRival
	default:
		return base
	}
}

// RelationshipsOf lists every relationship the character takes part in.
func (m *Manager) RelationshipsOf(characterID string) []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Relationship
	for _, rel := range m.relationships {
		if rel.CharacterAID == characterID || rel.CharacterBID == characterID {
			result = append(result, *rel)
		}
	}
	return result
}

// PromptContext renders the <character_relationships> block for the
// primary character against the mentioned ones, or "" when there is
// nothing to say.
func (m *Manager) PromptContext(primaryCharacterID string, mentioned []string) string {
	var parts []string
	for _, other := range mentioned {
		if other == primaryCharacterID {
			continue
		}
		rel := m.Get(primaryCharacterID, other)
		if rel == nil {
			continue
		}

		otherID := rel.CharacterBID
		if otherID == primaryCharacterID {
			otherID = rel.CharacterAID
		}
		parts = append(parts, fmt.Sprintf("与%s的关系: %s", otherID, describe(rel)))
	}

	if len(parts) == 0 {
		return ""
	}
	return "\n\n<character_relationships>\n" + strings.Join(parts, "\n") + "\n</character_relationships>"
}

func describe(rel *Relationship) string {
	base, ok := typeDescriptions[rel.Type]
	if !ok {
		base = "未知关系"
	}

	var affinityDesc string
	switch {
	case rel.AffinityScore > 50:
		affinityDesc = "很亲近"
	case rel.AffinityScore > 0:
		affinityDesc = "比较亲近"
	case rel.AffinityScore > -30:
		affinityDesc = "有些疏远"
	default:
		affinityDesc = "很疏远"
	}

	var trustDesc string
	switch {
	case rel.TrustLevel > 70:
		trustDesc = "高度信任"
	case rel.TrustLevel > 40:
		trustDesc = "一般信任"
	default:
		trustDesc = "缺乏信任"
	}

	return fmt.Sprintf("%s(%s, %s)", base, affinityDesc, trustDesc)
}

// Simulate predicts how an interaction between two characters on a
// topic would play out.
func (m *Manager) Simulate(characterA, characterB *types.Character, topic string) SimulationResult {
	rel := m.Get(characterA.ID, characterB.ID)

	traitsA := characterA.CoreTraits()
	traitsB := characterB.CoreTraits()
	compatibility := personalityCompatibility(traitsA, traitsB)

	var baseAffinity float64
	if rel != nil {
		baseAffinity = rel.AffinityScore
	}

	interactionScore := (compatibility*0.4 + baseAffinity*0.6) / 100

	outcome := OutcomeNeutral
	if interactionScore > 0.3 {
		outcome = OutcomePositive
	} else if interactionScore < -0.3 {
		outcome = OutcomeNegative
	}

	return SimulationResult{
		Characters:         []string{characterA.Name, characterB.Name},
		Topic:              topic,
		PredictedOutcome:   outcome,
		CompatibilityScore: compatibility,
		CurrentAffinity:    baseAffinity,
		Suggestions:        interactionSuggestions(characterA.Name, characterB.Name, topic, interactionScore),
		PotentialConflicts: potentialConflicts(traitsA, traitsB),
	}
}

func personalityCompatibility(traitsA, traitsB []string) float64 {
	var total float64
	comparisons := 0
	for _, a := range traitsA {
		row, ok := compatibilityMatrix[a]
		if !ok {
			continue
		}
		for _, b := range traitsB {
			total += row[b]
			comparisons++
		}
	}
	if comparisons == 0 {
		comparisons = 1
	}
	return total / float64(comparisons)
}

func interactionSuggestions(nameA, nameB, topic string, score float64) []string {
	switch {
	case score > 0.3:
		return []string{
			fmt.Sprintf("%s可以主动与%s分享%s相关的想法", nameA, nameB, topic),
			fmt.Sprintf("两人可以就%s进行深入的讨论", topic),
			"鼓励合作和相互支持",
		}
	case score < -0.3:
		return []string{
			fmt.Sprintf("%s在谈论%s时应该保持谨慎", nameA, topic),
			"避免触及敏感话题，保持礼貌距离",
			"寻找共同点来缓解紧张关系",
		}
	default:
		return []string{
			fmt.Sprintf("可以围绕%s进行轻松的交流", topic),
			"保持友好但不过分亲近的态度",
			"观察对方的反应来调整互动方式",
		}
	}
}

func potentialConflicts(traitsA, traitsB []string) []string {
	combos := []struct {
		x, y []string
		desc string
	}{
		{[]string{"强势好胜", "骄傲"}, []string{"强势好胜", "骄傲"}, "双方都很强势，可能产生竞争冲突"},
		{[]string{"冷淡", "疏离"}, []string{"活泼开朗", "热情"}, "性格反差较大，可能产生理解困难"},
		{[]string{"固执", "倔强"}, []string{"固执", "倔强"}, "双方都很固执，容易产生意见分歧"},
	}

	var conflicts []string
	for _, c := range combos {
		if (hasAny(traitsA, c.x) && hasAny(traitsB, c.y)) ||
			(hasAny(traitsB, c.x) && hasAny(traitsA, c.y)) {
			conflicts = append(conflicts, c.desc)
		}
	}
	return conflicts
}

// NetworkSummary aggregates the current relationship network.
func (m *Manager) NetworkSummary() NetworkSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := NetworkSummary{
		TotalRelationships: len(m.relationships),
		RelationshipTypes:  make(map[Type]int),
		TotalInteractions:  len(m.interactions),
	}

	var mostInteractive *Relationship
	for _, rel := range m.relationships {
		summary.RelationshipTypes[rel.Type]++
		if mostInteractive == nil || rel.InteractionCount > mostInteractive.InteractionCount {
			mostInteractive = rel
		}
	}
	if mostInteractive != nil {
		summary.MostInteractivePair = mostInteractive.CharacterAID + " & " + mostInteractive.CharacterBID
	}

	// Density against the complete graph of the three-member roster.
	summary.NetworkDensity = float64(summary.TotalRelationships) / 3.0
	return summary
}

func hasAny(traits, want []string) bool {
	for _, t := range traits {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
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
