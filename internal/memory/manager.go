// Package memory extracts durable facts from conversations and serves
// them back ranked by relevance to the current message.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	maxMemoriesPerSession = 100
	defaultRelevantLimit  = 5
	promptMemoryLimit     = 3
	promptRecallLimit     = 2
	recallThreshold       = 0.3
)

// Archiver persists high-value memories outside the process. Optional;
// a nil Archiver disables archiving.
type Archiver interface {
	Archive(ctx context.Context, item Item) error
}

// Recaller searches the durable archive by semantic similarity.
// Optional; a nil Recaller limits recall to in-process memories.
type Recaller interface {
	SearchSimilar(ctx context.Context, characterID, query string, topK int, threshold float64) ([]RecalledItem, error)
}

// Manager stores per-session memories and answers relevance queries.
type Manager struct {
	mu       sync.Mutex
	memories map[string][]Item

	archiver Archiver
	recall   Recaller
	nowFunc  func() time.Time
}

// NewManager returns a Manager. archiver and recaller may be nil.
func NewManager(archiver Archiver, recaller Recaller) *Manager {
	return &Manager{
		memories: make(map[string][]Item),
		archiver: archiver,
		recall:   recaller,
		nowFunc:  time.Now,
	}
}

func sessionKey(characterID, sessionID string) string {
	return characterID + "_" + sessionID
}

// ExtractFromConversation analyzes both sides of an exchange, stores
// the extracted memories, and returns them. Critical and high items
// are also handed to the archiver when one is configured.
func (m *Manager) ExtractFromConversation(
	ctx context.Context,
	characterID, sessionID string,
	userMessage, characterResponse string,
) []Item {
	now := m.nowFunc()

	var extracted []Item
	extracted = append(extracted, analyzeMessage(userMessage, characterID, sessionID, "user", now)...)
	extracted = append(extracted, analyzeMessage(characterResponse, characterID, sessionID, "character", now)...)

	key := sessionKey(characterID, sessionID)
	m.mu.Lock()
	m.memories[key] = append(m.memories[key], extracted...)
	m.cleanupLocked(key)
	m.mu.Unlock()

	if m.archiver != nil {
		for _, item := range extracted {
			if item.Importance != ImportanceCritical && item.Importance != ImportanceHigh {
				continue
			}
			if err := m.archiver.Archive(ctx, item); err != nil {
				slog.Warn("failed to archive memory", "memory_id", item.ID, "error", err)
			}
		}
	}

	return extracted
}

func analyzeMessage(message, characterID, sessionID, source string, now time.Time) []Item {
	if strings.TrimSpace(message) == "" {
		return nil
	}

	importance := determineImportance(message)
	keywords := extractKeywords(message)
	emotions := detectEmotions(message)
	content := truncateRunes(message, 200)

	var items []Item
	for _, memType := range classifyTypes(message) {
		items = append(items, Item{
			ID:              fmt.Sprintf("%s_%s", uuid.NewString(), memType),
			CharacterID:     characterID,
			SessionID:       sessionID,
			Type:            memType,
			Importance:      importance,
			Content:         content,
			Context:         fmt.Sprintf("来自%s的消息", source),
			Keywords:        keywords,
			RelatedEmotions: emotions,
			CreatedAt:       now,
			LastAccessed:    now,
			ExpiresAt:       now.Add(retentionPeriods[importance]),
		})
	}
	return items
}

// RelevantMemories scores all memories against the current message and
// returns the top limit. Scoring is pure; only the returned items get
// their access counters bumped, so repeated queries under a frozen
// clock rank identically.
func (m *Manager) RelevantMemories(characterID, sessionID, currentMessage string, limit int) []Item {
	if limit <= 0 {
		limit = defaultRelevantLimit
	}

	currentKeywords := extractKeywords(currentMessage)
	currentEmotions := detectEmotions(currentMessage)
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(characterID, sessionID)
	items := m.memories[key]

	type scored struct {
		index int
		score float64
	}
	var ranked []scored
	for i := range items {
		score := relevanceScore(items[i], currentKeywords, currentEmotions, now)
		if score > 0 {
			ranked = append(ranked, scored{index: i, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := make([]Item, 0, len(ranked))
	for _, r := range ranked {
		items[r.index].AccessCount++
		items[r.index].LastAccessed = now
		result = append(result, items[r.index])
	}
	return result
}

// relevanceScore combines keyword overlap, emotion overlap, importance
// weight, access frequency, and recency.
func relevanceScore(item Item, currentKeywords, currentEmotions []string, now time.Time) float64 {
	score := float64(overlap(item.Keywords, currentKeywords)) * 10
	score += float64(overlap(item.RelatedEmotions, currentEmotions)) * 15

	switch item.Importance {
	case ImportanceCritical:
		score += 50
	case ImportanceHigh:
		score += 30
	case ImportanceMedium:
		score += 20
	default:
		score += 10
	}

	access := float64(item.AccessCount) * 5
	if access > 25 {
		access = 25
	}
	score += access

	daysAgo := int(now.Sub(item.CreatedAt).Hours() / 24)
	if recency := 30 - daysAgo; recency > 0 {
		score += float64(recency)
	}
	return score
}

// SummaryForPrompt renders the <relevant_memories> block for the
// prompt, or "" when nothing is relevant. Archived memories from the
// durable store are appended after the in-process ones; an archive
// failure is logged and the local memories still serve.
func (m *Manager) SummaryForPrompt(ctx context.Context, characterID, sessionID, currentMessage string) string {
	relevant := m.RelevantMemories(characterID, sessionID, currentMessage, promptMemoryLimit)

	seen := make(map[string]struct{}, len(relevant))
	lines := make([]string, 0, len(relevant)+promptRecallLimit)
	for _, item := range relevant {
		seen[item.Content] = struct{}{}
		lines = append(lines, fmt.Sprintf("记忆(%s): %s", item.Type, item.Content))
	}

	for _, hit := range m.recallArchived(ctx, characterID, currentMessage) {
		if _, dup := seen[hit.Content]; dup {
			continue
		}
		lines = append(lines, fmt.Sprintf("记忆(归档-%s): %s", hit.Type, hit.Content))
	}

	if len(lines) == 0 {
		return ""
	}
	return "\n\n<relevant_memories>\n" + strings.Join(lines, "\n") + "\n</relevant_memories>"
}

func (m *Manager) recallArchived(ctx context.Context, characterID, query string) []RecalledItem {
	if m.recall == nil {
		return nil
	}
	hits, err := m.recall.SearchSimilar(ctx, characterID, query, promptRecallLimit, recallThreshold)
	if err != nil {
		slog.Warn("archive recall failed", "character_id", characterID, "error", err)
		return nil
	}
	return hits
}

// Recall searches the durable archive for memories similar to query.
// Returns nil when no archive is configured.
func (m *Manager) Recall(ctx context.Context, characterID, query string, topK int) ([]RecalledItem, error) {
	if m.recall == nil {
		return nil, nil
	}
	if topK <= 0 {
		topK = defaultRelevantLimit
	}
	return m.recall.SearchSimilar(ctx, characterID, query, topK, recallThreshold)
}

// cleanupLocked drops expired memories, then trims the session to the
// most valuable hundred by importance rank and access count.
func (m *Manager) cleanupLocked(key string) {
	now := m.nowFunc()
	items := m.memories[key]

	valid := items[:0]
	for _, item := range items {
		if item.ExpiresAt.IsZero() || item.ExpiresAt.After(now) {
			valid = append(valid, item)
		}
	}

	if len(valid) > maxMemoriesPerSession {
		sort.SliceStable(valid, func(i, j int) bool {
			if valid[i].Importance.rank() != valid[j].Importance.rank() {
				return valid[i].Importance.rank() > valid[j].Importance.rank()
			}
			return valid[i].AccessCount > valid[j].AccessCount
		})
		valid = valid[:maxMemoriesPerSession]
	}
	m.memories[key] = valid
}

// Statistics reports counts by type and importance for a session.
func (m *Manager) Statistics(characterID, sessionID string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.memories[sessionKey(characterID, sessionID)]
	stats := Stats{TotalMemories: len(items)}
	if len(items) == 0 {
		return stats
	}

	stats.ByType = make(map[Type]int)
	stats.ByImportance = make(map[Importance]int)
	var totalAccess int
	mostAccessed := items[0]
	for _, item := range items {
		stats.ByType[item.Type]++
		stats.ByImportance[item.Importance]++
		totalAccess += item.AccessCount
		if item.AccessCount > mostAccessed.AccessCount {
			mostAccessed = item
		}
	}
	stats.MostAccessed = mostAccessed.Content
	stats.AverageAccessCount = float64(totalAccess) / float64(len(items))
	return stats
}

// ClearSession drops all memories for the pair.
func (m *Manager) ClearSession(characterID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memories, sessionKey(characterID, sessionID))
}

func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	count := 0
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := set[s]; ok {
			count++
		}
	}
	return count
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
