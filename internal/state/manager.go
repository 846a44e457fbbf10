package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/easeaico/project-chara/internal/kv"
	"github.com/easeaico/project-chara/internal/types"
)

const (
	initialEnergy = 75.0
	initialTrust  = 50.0

	maxSpecialMemories = 10
	idleDecayAfter     = time.Hour
)

// topicKeywords classifies user messages into preference topics.
var topicKeywords = map[string][]string{
	"日常":   {"吃饭", "睡觉", "天气", "工作", "学习", "今天"},
	"情感":   {"喜欢", "讨厌", "爱", "恨", "感情", "心情"},
	"兴趣":   {"音乐", "电影", "游戏", "书", "运动", "爱好"},
	"私人":   {"家人", "朋友", "秘密", "梦想", "过去", "未来"},
	"角色相关": {"EVA", "驾驶", "司令", "真嵌", "歌曲", "表演"},
}

// specialIndicators mark a user message as worth keeping verbatim.
var specialIndicators = []string{
	"我喜欢你", "我爱你", "生日", "重要", "秘密",
	"第一次", "特别", "难忘", "永远", "承诺",
}

// moodEnergyModifier adjusts the energy target per mood.
var moodEnergyModifier = map[Mood]float64{
	MoodGreat:    10,
	MoodGood:     5,
	MoodNeutral:  0,
	MoodBad:      -5,
	MoodTerrible: -10,
}

// Manager owns character state keyed by character and session. Writes
// go through the manager's mutex; the store only sees whole snapshots.
type Manager struct {
	mu      sync.Mutex
	store   kv.Store[CharacterState]
	nowFunc func() time.Time
}

// NewManager returns a Manager on top of store.
func NewManager(store kv.Store[CharacterState]) *Manager {
	return &Manager{store: store, nowFunc: time.Now}
}

func stateKey(characterID, sessionID string) string {
	return characterID + "_" + sessionID
}

// Get returns the state for the pair, creating the initial state on
// first access.
func (m *Manager) Get(ctx context.Context, characterID, sessionID string) (CharacterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx, characterID, sessionID)
}

func (m *Manager) getLocked(ctx context.Context, characterID, sessionID string) (CharacterState, error) {
	key := stateKey(characterID, sessionID)
	st, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return CharacterState{}, fmt.Errorf("failed to load character state: %w", err)
	}
	if ok {
		return st, nil
	}

	now := m.nowFunc()
	st = CharacterState{
		CharacterID:       characterID,
		SessionID:         sessionID,
		RelationshipLevel: LevelStranger,
		FamiliarityScore:  0,
		Mood:              MoodNeutral,
		EnergyLevel:       initialEnergy,
		LastInteraction:   now,
		TrustLevel:        initialTrust,
		TopicPreferences:  make(map[string]float64),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.Set(ctx, key, st); err != nil {
		return CharacterState{}, fmt.Errorf("failed to init character state: %w", err)
	}
	return st, nil
}

// UpdateAfterInteraction applies one interaction to the state and
// persists the result. quality is the 0-1 interaction quality score.
func (m *Manager) UpdateAfterInteraction(
	ctx context.Context,
	character *types.Character,
	sessionID string,
	userMessage string,
	quality float64,
) (CharacterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.getLocked(ctx, character.ID, sessionID)
	if err != nil {
		return CharacterState{}, err
	}

	now := m.nowFunc()
	previousInteraction := st.LastInteraction

	st.InteractionCount++
	st.LastInteraction = now
	st.UpdatedAt = now

	if quality > 0.6 {
		st.PositiveInteractions++
		st.Mood = improveMood(st.Mood)
		st.TrustLevel = clamp(st.TrustLevel+2, 0, 100)
	} else if quality < 0.4 {
		st.NegativeInteractions++
		st.Mood = worsenMood(st.Mood)
		st.TrustLevel = clamp(st.TrustLevel-1, 0, 100)
	}

	st.FamiliarityScore = clamp(st.FamiliarityScore+quality*2, 0, 100)
	st.RelationshipLevel = relationshipLevelFor(st)

	updateTopicPreferences(&st, userMessage)
	checkSpecialMemory(&st, userMessage)
	m.updateEnergy(&st, character, previousInteraction)

	if err := m.store.Set(ctx, stateKey(character.ID, sessionID), st); err != nil {
		return CharacterState{}, fmt.Errorf("failed to save character state: %w", err)
	}
	return st, nil
}

func relationshipLevelFor(st CharacterState) RelationshipLevel {
	score := st.FamiliarityScore + float64(st.PositiveInteractions*2) - float64(st.NegativeInteractions)
	for _, t := range relationshipThresholds {
		if score >= t.score {
			return t.level
		}
	}
	return LevelStranger
}

func updateTopicPreferences(st *CharacterState, userMessage string) {
	lower := strings.ToLower(userMessage)
	for topic, keywords := range topicKeywords {
		var gain float64
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				gain += 0.5
			}
		}
		if gain > 0 {
			st.TopicPreferences[topic] = clamp(st.TopicPreferences[topic]+gain, 0, 10)
		}
	}
}

func checkSpecialMemory(st *CharacterState, userMessage string) {
	lower := strings.ToLower(userMessage)
	for _, indicator := range specialIndicators {
		if !strings.Contains(lower, indicator) {
			continue
		}
		memory := "用户说: " + truncateRunes(userMessage, 50) + "..."
		for _, existing := range st.SpecialMemories {
			if existing == memory {
				return
			}
		}
		st.SpecialMemories = append(st.SpecialMemories, memory)
		if len(st.SpecialMemories) > maxSpecialMemories {
			st.SpecialMemories = st.SpecialMemories[1:]
		}
		return
	}
}

// updateEnergy moves energy one step toward the personality-derived
// target. Idle decay is computed from the interaction time before this
// update, so a long gap actually registers.
func (m *Manager) updateEnergy(st *CharacterState, character *types.Character, previousInteraction time.Time) {
	baseEnergy := float64(character.PersonalityDeep.BigFive.ExtraversionOrDefault() * 10)

	if m.nowFunc().Sub(previousInteraction) > idleDecayAfter {
		st.EnergyLevel = clamp(st.EnergyLevel-5, 30, 100)
	}

	target := baseEnergy + moodEnergyModifier[st.Mood]
	if st.EnergyLevel < target {
		st.EnergyLevel = clamp(st.EnergyLevel+2, 0, 100)
	} else if st.EnergyLevel > target {
		st.EnergyLevel = clamp(st.EnergyLevel-1, 0, 100)
	}
}

// Reset drops the state for the pair.
func (m *Manager) Reset(ctx context.Context, characterID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx, stateKey(characterID, sessionID)); err != nil {
		return fmt.Errorf("failed to reset character state: %w", err)
	}
	return nil
}

// Summarize returns the API projection of the state.
func (m *Manager) Summarize(ctx context.Context, characterID, sessionID string) (Summary, error) {
	st, err := m.Get(ctx, characterID, sessionID)
	if err != nil {
		return Summary{}, err
	}

	positiveRatio := 0.0
	if st.InteractionCount > 0 {
		positiveRatio = float64(st.PositiveInteractions) / float64(st.InteractionCount) * 100
	}

	topics := preferredTopics(st, 3, 0)
	return Summary{
		RelationshipLevel:    st.RelationshipLevel,
		FamiliarityScore:     st.FamiliarityScore,
		Mood:                 st.Mood,
		EnergyLevel:          st.EnergyLevel,
		TrustLevel:           st.TrustLevel,
		InteractionCount:     st.InteractionCount,
		PositiveRatio:        positiveRatio,
		PreferredTopics:      topics,
		SpecialMemoriesCount: len(st.SpecialMemories),
		DaysSinceCreation:    int(m.nowFunc().Sub(st.CreatedAt).Hours() / 24),
	}, nil
}

// preferredTopics lists topics above minScore, highest first, capped
// at limit. Name order breaks score ties to keep output stable.
func preferredTopics(st CharacterState, limit int, minScore float64) []string {
	type scored struct {
		name  string
		score float64
	}
	var topics []scored
	for name, score := range st.TopicPreferences {
		if score > minScore {
			topics = append(topics, scored{name, score})
		}
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].score != topics[j].score {
			return topics[i].score > topics[j].score
		}
		return topics[i].name < topics[j].name
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.name
	}
	return names
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
