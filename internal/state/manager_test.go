package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-chara/internal/kv"
	"github.com/easeaico/project-chara/internal/types"
)

func newTestManager() *Manager {
	return NewManager(kv.NewMemory[CharacterState]())
}

func testCharacter() *types.Character {
	return &types.Character{
		ID:   "rei_ayanami",
		Name: "绫波零",
		PersonalityDeep: types.PersonalityDeep{
			CoreTraits: []string{"冷淡", "神秘"},
			BigFive:    types.BigFive{Extraversion: 3},
		},
	}
}

func TestGetCreatesInitialState(t *testing.T) {
	m := newTestManager()
	st, err := m.Get(context.Background(), "rei_ayanami", "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if st.RelationshipLevel != LevelStranger {
		t.Fatalf("expected stranger, got %v", st.RelationshipLevel)
	}
	if st.FamiliarityScore != 0 || st.Mood != MoodNeutral {
		t.Fatalf("unexpected initial state: %#v", st)
	}
	if st.EnergyLevel != 75 || st.TrustLevel != 50 {
		t.Fatalf("unexpected initial energy/trust: %v/%v", st.EnergyLevel, st.TrustLevel)
	}
}

func TestHighQualityInteractionImprovesState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	st, err := m.UpdateAfterInteraction(ctx, testCharacter(), "s1", "你好", 0.8)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if st.PositiveInteractions != 1 || st.NegativeInteractions != 0 {
		t.Fatalf("unexpected counters: %#v", st)
	}
	if st.Mood != MoodGood {
		t.Fatalf("expected single-step mood move to good, got %v", st.Mood)
	}
	if st.TrustLevel != 52 {
		t.Fatalf("expected trust 52, got %v", st.TrustLevel)
	}
	if st.FamiliarityScore != 1.6 {
		t.Fatalf("expected familiarity 1.6, got %v", st.FamiliarityScore)
	}
}

func TestLowQualityInteractionWorsensState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	st, err := m.UpdateAfterInteraction(ctx, testCharacter(), "s1", "随便", 0.2)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if st.NegativeInteractions != 1 {
		t.Fatalf("unexpected counters: %#v", st)
	}
	if st.Mood != MoodBad {
		t.Fatalf("expected mood bad, got %v", st.Mood)
	}
	if st.TrustLevel != 49 {
		t.Fatalf("expected trust 49, got %v", st.TrustLevel)
	}
}

func TestMoodMovesOneStepAtATime(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	for i := 0; i < 10; i++ {
		st, err := m.UpdateAfterInteraction(ctx, char, "s1", "你好", 0.9)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if st.Mood == MoodGreat && i < 1 {
			t.Fatalf("mood jumped more than one step by turn %d", i)
		}
	}

	st, _ := m.Get(ctx, char.ID, "s1")
	if st.Mood != MoodGreat {
		t.Fatalf("expected great after sustained positives, got %v", st.Mood)
	}
}

func TestRelationshipCrossesAcquaintanceThreshold(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	// quality 0.8: familiarity +1.6 and positive count +1 (worth 2) per
	// turn. Development score after n turns is 3.6n, crossing 10 at n=3.
	var st CharacterState
	var err error
	for i := 0; i < 3; i++ {
		st, err = m.UpdateAfterInteraction(ctx, char, "s1", "你好", 0.8)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}
	if st.RelationshipLevel != LevelAcquaintance {
		t.Fatalf("expected acquaintance at score %.1f, got %v",
			st.FamiliarityScore+float64(st.PositiveInteractions*2), st.RelationshipLevel)
	}
}

func TestFamiliarityClampedAt100(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	for i := 0; i < 80; i++ {
		if _, err := m.UpdateAfterInteraction(ctx, char, "s1", "你好", 1.0); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	st, _ := m.Get(ctx, char.ID, "s1")
	if st.FamiliarityScore != 100 {
		t.Fatalf("expected familiarity clamped at 100, got %v", st.FamiliarityScore)
	}
}

func TestTopicPreferencesAccumulateAndCap(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	for i := 0; i < 30; i++ {
		if _, err := m.UpdateAfterInteraction(ctx, char, "s1", "我喜欢听音乐和看电影", 0.5); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	st, _ := m.Get(ctx, char.ID, "s1")
	if st.TopicPreferences["兴趣"] != 10 {
		t.Fatalf("expected 兴趣 capped at 10, got %v", st.TopicPreferences["兴趣"])
	}
}

func TestSpecialMemoryRecordedAndDeduped(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	for i := 0; i < 3; i++ {
		if _, err := m.UpdateAfterInteraction(ctx, char, "s1", "这是我们的秘密", 0.5); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	st, _ := m.Get(ctx, char.ID, "s1")
	if len(st.SpecialMemories) != 1 {
		t.Fatalf("expected exactly one deduped memory, got %#v", st.SpecialMemories)
	}
	if !strings.HasPrefix(st.SpecialMemories[0], "用户说: ") {
		t.Fatalf("unexpected memory format: %q", st.SpecialMemories[0])
	}
}

func TestIdleGapDecaysEnergy(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	base := time.Now()
	m.nowFunc = func() time.Time { return base }
	if _, err := m.UpdateAfterInteraction(ctx, char, "s1", "你好", 0.5); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	st, _ := m.Get(ctx, char.ID, "s1")
	energyBefore := st.EnergyLevel

	// Return after two idle hours: the -5 decay applies before the
	// step toward the target.
	m.nowFunc = func() time.Time { return base.Add(2 * time.Hour) }
	st, err := m.UpdateAfterInteraction(ctx, char, "s1", "你好", 0.5)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// target = extraversion(3)*10 + neutral(0) = 30, below current, so
	// after decay the gradual -1 also applies.
	want := energyBefore - 5 - 1
	if st.EnergyLevel != want {
		t.Fatalf("expected energy %v after idle decay, got %v", want, st.EnergyLevel)
	}
}

func TestPromptModifiersContainRelationshipText(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	block, err := m.PromptModifiers(ctx, "rei_ayanami", "s1")
	if err != nil {
		t.Fatalf("prompt modifiers failed: %v", err)
	}
	if !strings.Contains(block, "<character_state>") {
		t.Fatalf("expected character_state block, got %q", block)
	}
	if !strings.Contains(block, "初次相遇") {
		t.Fatalf("expected stranger modifier, got %q", block)
	}
}

func TestResetDropsState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	char := testCharacter()

	if _, err := m.UpdateAfterInteraction(ctx, char, "s1", "你好", 0.9); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := m.Reset(ctx, char.ID, "s1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	st, _ := m.Get(ctx, char.ID, "s1")
	if st.InteractionCount != 0 || st.RelationshipLevel != LevelStranger {
		t.Fatalf("expected fresh state after reset, got %#v", st)
	}
}
