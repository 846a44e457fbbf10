// Package emotion tracks per-session emotional state and decides how a
// character reacts to the user's detected emotion.
package emotion

import (
	"fmt"
	"sync"
	"time"

	"github.com/easeaico/project-chara/internal/types"
)

const (
	maxHistory        = 20
	recentWindow      = time.Hour
	consistencyWindow = 30 * time.Minute
)

// reactionRule maps a trait set to the character emotion it produces.
type reactionRule struct {
	traits []string
	result State
}

// reactionTable drives the character response per detected user emotion.
// Rules are checked in order; the first trait match wins.
var reactionTable = map[State][]reactionRule{
	StateSad: {
		{[]string{"温柔", "关怀", "善良"}, StateCaring},
		{[]string{"冷淡", "疏离"}, StateConfused},
	},
	StatePleased: {
		{[]string{"骄傲", "自信", "强势"}, StatePleased},
		{[]string{"活泼", "开朗"}, StateExcited},
	},
	StateAngry: {
		{[]string{"强势", "好胜"}, StateAngry},
		{[]string{"温柔", "冷淡"}, StateConfused},
	},
	StateConfused: {
		{[]string{"聪明", "知性"}, StateCaring},
	},
	StateExcited: {
		{[]string{"活泼", "开朗"}, StateExcited},
		{[]string{"冷淡", "内敛"}, StateConfused},
	},
}

// reactionFallback is used when no trait rule matched for the emotion.
var reactionFallback = map[State]State{
	StateSad:      StateCaring,
	StatePleased:  StatePleased,
	StateAngry:    StateNeutral,
	StateConfused: StateConfused,
	StateExcited:  StatePleased,
}

// defaultReaction covers user emotions with no table entry.
var defaultReaction = []reactionRule{
	{[]string{"活泼", "开朗", "热情"}, StatePleased},
	{[]string{"冷淡", "神秘", "内敛"}, StateNeutral},
}

// Manager tracks emotion history per session and derives character
// reactions from the user's emotion and the character's core traits.
type Manager struct {
	analyzer *Analyzer

	mu       sync.RWMutex
	sessions map[string][]Record

	nowFunc func() time.Time
}

// NewManager returns a Manager with an empty history.
func NewManager() *Manager {
	return &Manager{
		analyzer: NewAnalyzer(),
		sessions: make(map[string][]Record),
		nowFunc:  time.Now,
	}
}

// AnalyzeUserEmotion classifies the user's message.
func (m *Manager) AnalyzeUserEmotion(message string) State {
	return m.analyzer.Analyze(message)
}

// CharacterReaction decides the character's emotional response to the
// user emotion, based on the character's core traits.
func (m *Manager) CharacterReaction(character *types.Character, userEmotion State) State {
	traits := character.CoreTraits()

	if rules, ok := reactionTable[userEmotion]; ok {
		for _, r := range rules {
			if hasAnyTrait(traits, r.traits) {
				return r.result
			}
		}
		return reactionFallback[userEmotion]
	}

	for _, r := range defaultReaction {
		if hasAnyTrait(traits, r.traits) {
			return r.result
		}
	}
	return StateNeutral
}

// RecordInteraction appends one exchange to the session history,
// keeping only the newest records.
func (m *Manager) RecordInteraction(sessionID string, userEmotion, characterEmotion State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.sessions[sessionID], Record{
		Timestamp:        m.nowFunc(),
		UserEmotion:      userEmotion,
		CharacterEmotion: characterEmotion,
	})
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	m.sessions[sessionID] = history
}

// ConsistencyModifier returns an advisory prompt line when the jump
// from the last recorded character emotion to target is too abrupt.
func (m *Manager) ConsistencyModifier(sessionID string, target State) string {
	recent := m.recentEmotions(sessionID, consistencyWindow)
	if len(recent) == 0 {
		return ""
	}

	last := recent[len(recent)-1].CharacterEmotion
	diff := intensityOf(target) - intensityOf(last)
	if diff < 0 {
		diff = -diff
	}
	if diff > 3 {
		return fmt.Sprintf("\n请注意：你的情感状态从%s逐渐转向%s，变化应该自然而不突兀。", last, target)
	}
	return ""
}

// RecentEmotions returns the records within the last hour.
func (m *Manager) RecentEmotions(sessionID string) []Record {
	return m.recentEmotions(sessionID, recentWindow)
}

func (m *Manager) recentEmotions(sessionID string, window time.Duration) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.nowFunc().Add(-window)
	var recent []Record
	for _, r := range m.sessions[sessionID] {
		if r.Timestamp.After(cutoff) {
			recent = append(recent, r)
		}
	}
	return recent
}

// ClearSession drops the emotion history for a session.
func (m *Manager) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Statistics reports interaction totals and the character emotion
// distribution for a session.
func (m *Manager) Statistics(sessionID string) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.sessions[sessionID]
	stats := Stats{
		TotalInteractions: len(history),
		Distribution:      make(map[State]float64),
	}
	if len(history) == 0 {
		return stats
	}

	counts := make(map[State]int)
	trend := make([]State, 0, len(history))
	for _, r := range history {
		counts[r.CharacterEmotion]++
		trend = append(trend, r.CharacterEmotion)
	}
	for state, count := range counts {
		stats.Distribution[state] = float64(count) / float64(len(history)) * 100
	}
	if len(trend) > 5 {
		trend = trend[len(trend)-5:]
	}
	stats.RecentTrend = trend
	return stats
}

func hasAnyTrait(traits, want []string) bool {
	for _, t := range traits {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}
