package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/kv"
	"github.com/easeaico/project-chara/internal/types"
)

func frozenClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func newTestManager(store kv.Store[Session], maxSessions int) (*Manager, func(time.Duration)) {
	m := NewManager(store, maxSessions, 24*time.Hour)
	clock, advance := frozenClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	m.nowFunc = clock
	return m, advance
}

func userMessage(content string) types.Message {
	return types.Message{Role: types.RoleUser, Content: content, TokensUsed: 3}
}

func TestCreateAssignsDefaults(t *testing.T) {
	m, _ := newTestManager(nil, 10)

	s, err := m.Create(context.Background(), "rei_ayanami", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(s.ID, "session_") {
		t.Fatalf("unexpected session id: %q", s.ID)
	}
	if s.Status != types.SessionActive || s.MaxMessages != 50 || s.IdleTimeout != 24*time.Hour {
		t.Fatalf("unexpected defaults: %#v", s)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m, _ := newTestManager(nil, 10)

	_, err := m.Get(context.Background(), "session_missing")
	if errs.CodeOf(err) != errs.CodeSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestAddMessageUpdatesCounters(t *testing.T) {
	m, _ := newTestManager(nil, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, "rei_ayanami", nil)

	if _, err := m.AddMessage(ctx, s.ID, userMessage("你好")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	updated, err := m.AddMessage(ctx, s.ID, types.Message{
		Role: types.RoleAssistant, Content: "...你好。", TokensUsed: 5, ResponseTime: 0.8,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if updated.TotalMessages != 2 || updated.UserMessages != 1 || updated.AssistantMessages != 1 {
		t.Fatalf("unexpected counters: %#v", updated)
	}
	if updated.TotalTokens != 8 || updated.TotalResponseTime != 0.8 {
		t.Fatalf("unexpected usage totals: %#v", updated)
	}
}

func TestHistoryTrimKeepsSystemMessages(t *testing.T) {
	m, _ := newTestManager(nil, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, "rei_ayanami", &CreateOptions{MaxMessages: 10})

	if _, err := m.AddMessage(ctx, s.ID, types.Message{Role: types.RoleSystem, Content: "system"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	var latest *Session
	for i := 0; i < 20; i++ {
		var err error
		latest, err = m.AddMessage(ctx, s.ID, userMessage("消息"))
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if len(latest.Messages) != 10 {
		t.Fatalf("expected history trimmed to 10, got %d", len(latest.Messages))
	}
	if latest.Messages[0].Role != types.RoleSystem {
		t.Fatalf("expected system message preserved first, got %#v", latest.Messages[0])
	}
	if latest.TotalMessages != 21 {
		t.Fatalf("trim must not change the running total: %d", latest.TotalMessages)
	}
}

func TestIdleSessionExpires(t *testing.T) {
	m, advance := newTestManager(nil, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, "rei_ayanami", nil)

	advance(25 * time.Hour)
	_, err := m.Get(ctx, s.ID)
	if errs.CodeOf(err) != errs.CodeSessionExpired {
		t.Fatalf("expected SESSION_EXPIRED, got %v", err)
	}

	// Expired sessions are gone afterwards.
	_, err = m.Get(ctx, s.ID)
	if errs.CodeOf(err) != errs.CodeSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND after expiry, got %v", err)
	}
}

func TestLRUEvictsOldestAtCapacity(t *testing.T) {
	m, _ := newTestManager(nil, 2)
	ctx := context.Background()

	first, _ := m.Create(ctx, "a", nil)
	second, _ := m.Create(ctx, "b", nil)

	// Touch the first so the second becomes the eviction candidate.
	if _, err := m.Get(ctx, first.ID); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	third, _ := m.Create(ctx, "c", nil)

	if _, err := m.Get(ctx, second.ID); !errors.As(err, new(*errs.SessionNotFoundError)) {
		t.Fatalf("expected second session evicted, got %v", err)
	}
	for _, id := range []string{first.ID, third.ID} {
		if _, err := m.Get(ctx, id); err != nil {
			t.Fatalf("expected %s to survive: %v", id, err)
		}
	}
}

func TestEvictedSessionRestoredFromStore(t *testing.T) {
	store := kv.NewMemory[Session]()
	m, _ := newTestManager(store, 1)
	ctx := context.Background()

	first, _ := m.Create(ctx, "a", nil)
	if _, err := m.AddMessage(ctx, first.ID, userMessage("记住这句话")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := m.Create(ctx, "b", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	restored, err := m.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("expected restore from store, got %v", err)
	}
	if restored.Status != types.SessionActive {
		t.Fatalf("restored session should be active: %#v", restored)
	}
	if len(restored.Messages) != 1 || restored.Messages[0].Content != "记住这句话" {
		t.Fatalf("restored history lost: %#v", restored.Messages)
	}
}

func TestListSortsByActivity(t *testing.T) {
	m, advance := newTestManager(nil, 10)
	ctx := context.Background()

	first, _ := m.Create(ctx, "a", nil)
	advance(time.Minute)
	second, _ := m.Create(ctx, "b", nil)
	advance(time.Minute)
	if _, err := m.AddMessage(ctx, first.ID, userMessage("hi")); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	all := m.List("")
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("unexpected order: %#v", all)
	}
	if all[0].LastMessagePreview != "hi" {
		t.Fatalf("expected preview, got %#v", all[0])
	}

	filtered := m.List("b")
	if len(filtered) != 1 || filtered[0].ID != second.ID {
		t.Fatalf("unexpected filter result: %#v", filtered)
	}
}

func TestCleanExpiredSweeps(t *testing.T) {
	m, advance := newTestManager(nil, 10)
	ctx := context.Background()

	old, _ := m.Create(ctx, "a", nil)
	advance(25 * time.Hour)
	fresh, _ := m.Create(ctx, "b", nil)

	if n := m.CleanExpired(ctx); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, err := m.Get(ctx, old.ID); errs.CodeOf(err) != errs.CodeSessionNotFound {
		t.Fatalf("expected old session gone, got %v", err)
	}
	if _, err := m.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh session must survive: %v", err)
	}
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(nil, 4)
	ctx := context.Background()

	s, _ := m.Create(ctx, "a", nil)
	m.Create(ctx, "a", nil)
	m.Create(ctx, "b", nil)
	m.AddMessage(ctx, s.ID, userMessage("hi"))

	stats := m.Stats()
	if stats.ActiveSessions != 3 || stats.TotalMessages != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
	if stats.CharacterStats["a"].Sessions != 2 || stats.CharacterStats["a"].Messages != 1 {
		t.Fatalf("unexpected character stats: %#v", stats.CharacterStats)
	}
	if stats.MemoryUsagePercent != 75 {
		t.Fatalf("expected 75%% usage, got %v", stats.MemoryUsagePercent)
	}
}

func TestContextMessagesBudget(t *testing.T) {
	s := &Session{MaxMessages: 50}
	now := time.Now()
	s.addMessage(types.Message{Role: types.RoleUser, Content: strings.Repeat("字", 100)}, now)
	s.addMessage(types.Message{Role: types.RoleAssistant, Content: strings.Repeat("字", 100)}, now)
	s.addMessage(types.Message{Role: types.RoleUser, Content: "最新"}, now)

	// 100 runes cost 150 estimated tokens each, so a 100 budget keeps
	// only the short latest turn.
	kept := s.ContextMessages(100)
	if len(kept) != 1 || kept[0].Content != "最新" {
		t.Fatalf("unexpected context window: %#v", kept)
	}

	all := s.ContextMessages(10000)
	if len(all) != 3 || all[0].Role != types.RoleUser || all[2].Content != "最新" {
		t.Fatalf("expected chronological full window: %#v", all)
	}
}

func TestContextMessagesKeepsNewestOverBudget(t *testing.T) {
	s := &Session{MaxMessages: 50}
	now := time.Now()
	s.addMessage(types.Message{Role: types.RoleAssistant, Content: strings.Repeat("字", 100)}, now)
	s.addMessage(types.Message{Role: types.RoleUser, Content: strings.Repeat("字", 700)}, now)

	// The 700-rune message alone costs more than the budget, but the
	// latest turn must still reach the model.
	kept := s.ContextMessages(1000)
	if len(kept) != 1 || kept[0].Role != types.RoleUser {
		t.Fatalf("expected the newest message kept: %#v", kept)
	}
}
