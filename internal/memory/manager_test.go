package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDetermineImportanceCriticalBeatsHigh(t *testing.T) {
	// 喜欢 is a high trigger, 承诺 a critical one; critical must win.
	if got := determineImportance("我喜欢你，这是我的承诺"); got != ImportanceCritical {
		t.Fatalf("expected critical, got %v", got)
	}
}

func TestDetermineImportanceExclamations(t *testing.T) {
	if got := determineImportance("快看！！！"); got != ImportanceHigh {
		t.Fatalf("expected high, got %v", got)
	}
}

func TestDetermineImportanceLongMessage(t *testing.T) {
	long := strings.Repeat("今天天气", 30)
	if got := determineImportance(long); got != ImportanceMedium {
		t.Fatalf("expected medium, got %v", got)
	}
}

func TestDetermineImportanceDefaultLow(t *testing.T) {
	if got := determineImportance("嗯"); got != ImportanceLow {
		t.Fatalf("expected low, got %v", got)
	}
}

func TestClassifyTypesMultiLabel(t *testing.T) {
	types := classifyTypes("我喜欢和朋友一起听音乐，很开心")
	has := func(want Type) bool {
		for _, tp := range types {
			if tp == want {
				return true
			}
		}
		return false
	}
	if !has(TypeEmotional) || !has(TypePreference) || !has(TypeRelationship) {
		t.Fatalf("expected emotional+preference+relationship, got %#v", types)
	}
}

func TestClassifyTypesDefaultFactual(t *testing.T) {
	types := classifyTypes("嗯嗯")
	if len(types) != 1 || types[0] != TypeFactual {
		t.Fatalf("expected factual default, got %#v", types)
	}
}

func TestExtractKeywordsFiltersStopWords(t *testing.T) {
	keywords := extractKeywords("我喜欢音乐")
	for _, kw := range keywords {
		if kw == "我" {
			t.Fatalf("stop word leaked into keywords: %#v", keywords)
		}
	}
}

func TestExtractPreferenceMemory(t *testing.T) {
	m := NewManager(nil, nil)
	items := m.ExtractFromConversation(context.Background(), "rei_ayanami", "s1", "我喜欢音乐", "")

	if len(items) == 0 {
		t.Fatal("expected at least one memory")
	}
	var found bool
	for _, item := range items {
		if item.Type == TypePreference || item.Type == TypeFactual {
			found = true
		}
		if item.Importance != ImportanceHigh {
			t.Fatalf("喜欢 should grade high, got %v", item.Importance)
		}
	}
	if !found {
		t.Fatalf("expected preference or factual memory, got %#v", items)
	}
}

func TestExtractAnalyzesBothSides(t *testing.T) {
	m := NewManager(nil, nil)
	items := m.ExtractFromConversation(context.Background(), "rei_ayanami", "s1",
		"我喜欢音乐", "我也喜欢音乐")

	var fromUser, fromCharacter bool
	for _, item := range items {
		switch item.Context {
		case "来自user的消息":
			fromUser = true
		case "来自character的消息":
			fromCharacter = true
		}
	}
	if !fromUser || !fromCharacter {
		t.Fatalf("expected memories from both sides, got %#v", items)
	}
}

func TestRelevantMemoriesScoringIsIdempotent(t *testing.T) {
	m := NewManager(nil, nil)
	frozen := time.Now()
	m.nowFunc = func() time.Time { return frozen }

	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")
	m.ExtractFromConversation(context.Background(), "c", "s", "我讨厌下雨", "")

	first := m.RelevantMemories("c", "s", "说说音乐吧", 5)
	second := m.RelevantMemories("c", "s", "说说音乐吧", 5)

	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("result sets differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("ranking changed between identical queries: %v vs %v", first[i].ID, second[i].ID)
		}
	}
}

func TestRelevantMemoriesRecordsAccessOnlyOnReturned(t *testing.T) {
	m := NewManager(nil, nil)
	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")
	m.ExtractFromConversation(context.Background(), "c", "s", "我讨厌下雨", "")

	total := m.Statistics("c", "s").TotalMemories
	if total < 2 {
		t.Fatalf("expected several memories, got %d", total)
	}

	returned := m.RelevantMemories("c", "s", "音乐", 1)
	if len(returned) != 1 {
		t.Fatalf("expected one memory, got %d", len(returned))
	}
	if returned[0].AccessCount != 1 {
		t.Fatalf("expected access recorded on returned item, got %d", returned[0].AccessCount)
	}

	// Only the single returned item was touched.
	stats := m.Statistics("c", "s")
	want := 1.0 / float64(total)
	if stats.AverageAccessCount != want {
		t.Fatalf("expected average access %v, got %v", want, stats.AverageAccessCount)
	}
}

func TestRetentionWindowExpiresLowMemories(t *testing.T) {
	m := NewManager(nil, nil)
	base := time.Now()
	m.nowFunc = func() time.Time { return base }

	m.ExtractFromConversation(context.Background(), "c", "s", "嗯", "")
	if stats := m.Statistics("c", "s"); stats.TotalMemories == 0 {
		t.Fatal("expected a low-importance memory")
	}

	// Low importance retention is 7 days; the next extraction 8 days
	// later sweeps it out.
	m.nowFunc = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	m.ExtractFromConversation(context.Background(), "c", "s", "这是我们的承诺", "")

	stats := m.Statistics("c", "s")
	if stats.ByImportance[ImportanceLow] != 0 {
		t.Fatalf("expected low memories swept, got %#v", stats.ByImportance)
	}
	if stats.ByImportance[ImportanceCritical] == 0 {
		t.Fatalf("expected critical memory kept, got %#v", stats.ByImportance)
	}
}

func TestCleanupKeepsHighestImportance(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	// Overflow the session with low-importance chatter plus a few
	// critical anchors.
	for i := 0; i < 3; i++ {
		m.ExtractFromConversation(ctx, "c", "s", "永远记住这个承诺", "")
	}
	for i := 0; i < 120; i++ {
		m.ExtractFromConversation(ctx, "c", "s", "嗯", "")
	}

	stats := m.Statistics("c", "s")
	if stats.TotalMemories > maxMemoriesPerSession {
		t.Fatalf("session over cap: %d", stats.TotalMemories)
	}
	if stats.ByImportance[ImportanceCritical] == 0 {
		t.Fatalf("critical memories must survive eviction: %#v", stats.ByImportance)
	}
}

func TestSummaryForPromptFormat(t *testing.T) {
	m := NewManager(nil, nil)
	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")

	block := m.SummaryForPrompt(context.Background(), "c", "s", "音乐")
	if !strings.Contains(block, "<relevant_memories>") {
		t.Fatalf("expected relevant_memories block, got %q", block)
	}
	if !strings.Contains(block, "记忆(") {
		t.Fatalf("expected 记忆(type) lines, got %q", block)
	}
}

func TestSummaryForPromptEmptyWhenNoMemories(t *testing.T) {
	m := NewManager(nil, nil)
	if block := m.SummaryForPrompt(context.Background(), "c", "s", "音乐"); block != "" {
		t.Fatalf("expected empty block, got %q", block)
	}
}

type fakeArchiver struct {
	archived []Item
}

func (a *fakeArchiver) Archive(_ context.Context, item Item) error {
	a.archived = append(a.archived, item)
	return nil
}

func TestArchiverReceivesCriticalAndHigh(t *testing.T) {
	archiver := &fakeArchiver{}
	m := NewManager(archiver, nil)
	ctx := context.Background()

	m.ExtractFromConversation(ctx, "c", "s", "这是我们的承诺", "")
	m.ExtractFromConversation(ctx, "c", "s", "嗯", "")

	if len(archiver.archived) == 0 {
		t.Fatal("expected critical memory archived")
	}
	for _, item := range archiver.archived {
		if item.Importance != ImportanceCritical && item.Importance != ImportanceHigh {
			t.Fatalf("low-value memory archived: %#v", item)
		}
	}
}

type fakeRecaller struct {
	hits    []RecalledItem
	queries []string
	err     error
}

func (r *fakeRecaller) SearchSimilar(_ context.Context, _, query string, topK int, _ float64) ([]RecalledItem, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.hits) > topK {
		return r.hits[:topK], nil
	}
	return r.hits, nil
}

func TestSummaryForPromptIncludesArchivedHits(t *testing.T) {
	recaller := &fakeRecaller{hits: []RecalledItem{
		{Content: "用户上个月说过喜欢钢琴", Type: "preference", Similarity: 0.9},
	}}
	m := NewManager(nil, recaller)

	block := m.SummaryForPrompt(context.Background(), "c", "s", "聊聊音乐")
	if !strings.Contains(block, "记忆(归档-preference): 用户上个月说过喜欢钢琴") {
		t.Fatalf("expected archived hit in block, got %q", block)
	}
	if len(recaller.queries) != 1 || recaller.queries[0] != "聊聊音乐" {
		t.Fatalf("unexpected archive queries: %#v", recaller.queries)
	}
}

func TestSummaryForPromptSkipsDuplicateArchivedContent(t *testing.T) {
	m := NewManager(nil, nil)
	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")
	local := m.RelevantMemories("c", "s", "音乐", 1)
	if len(local) != 1 {
		t.Fatalf("expected one local memory, got %d", len(local))
	}

	recaller := &fakeRecaller{hits: []RecalledItem{{Content: local[0].Content, Type: "factual"}}}
	m.recall = recaller

	block := m.SummaryForPrompt(context.Background(), "c", "s", "音乐")
	if strings.Contains(block, "归档") {
		t.Fatalf("duplicate archived content should be skipped: %q", block)
	}
}

func TestSummaryForPromptSurvivesRecallFailure(t *testing.T) {
	recaller := &fakeRecaller{err: context.DeadlineExceeded}
	m := NewManager(nil, recaller)
	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")

	block := m.SummaryForPrompt(context.Background(), "c", "s", "音乐")
	if !strings.Contains(block, "<relevant_memories>") {
		t.Fatalf("local memories must still serve on recall failure, got %q", block)
	}
}

func TestRecallWithoutArchiveReturnsNil(t *testing.T) {
	m := NewManager(nil, nil)
	hits, err := m.Recall(context.Background(), "c", "音乐", 5)
	if err != nil || hits != nil {
		t.Fatalf("expected nil recall without archive, got %#v, %v", hits, err)
	}
}

func TestRecallDefaultsLimit(t *testing.T) {
	recaller := &fakeRecaller{hits: make([]RecalledItem, 10)}
	m := NewManager(nil, recaller)

	hits, err := m.Recall(context.Background(), "c", "音乐", 0)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if len(hits) != defaultRelevantLimit {
		t.Fatalf("expected default limit %d, got %d", defaultRelevantLimit, len(hits))
	}
}

func TestClearSession(t *testing.T) {
	m := NewManager(nil, nil)
	m.ExtractFromConversation(context.Background(), "c", "s", "我喜欢音乐", "")
	m.ClearSession("c", "s")

	if stats := m.Statistics("c", "s"); stats.TotalMemories != 0 {
		t.Fatalf("expected no memories, got %#v", stats)
	}
}
