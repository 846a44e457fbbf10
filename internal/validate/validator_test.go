package validate

import (
	"math"
	"strings"
	"testing"

	"github.com/easeaico/project-chara/internal/types"
)

func testCharacter() *types.Character {
	return &types.Character{
		ID:          "rei_ayanami",
		Name:        "绫波零",
		Tone:        "冷酷",
		Personality: "冷淡、内敛",
		PersonalityDeep: types.PersonalityDeep{
			CoreTraits: []string{"冷淡"},
		},
		Constraints: types.BehavioralConstraints{
			ForbiddenWords:       []string{"哈哈"},
			PreferredExpressions: []string{"是吗", "这样"},
			MustDo:               []string{"保持简洁"},
			MustNotDo:            []string{"大声喧哗"},
		},
	}
}

func resultFor(t *testing.T, summary Summary, category Category) Result {
	t.Helper()
	for _, r := range summary.Results {
		if r.Category == category {
			return r
		}
	}
	t.Fatalf("missing result for %v", category)
	return Result{}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestCleanInCharacterResponsePasses(t *testing.T) {
	v := NewValidator()
	summary := v.Validate(testCharacter(), "你今天好吗", "...是吗。这样。", Context{}, LevelNormal)

	consistency := resultFor(t, summary, CategoryCharacterConsistency)
	if !consistency.Passed || consistency.Score != 1.0 {
		t.Fatalf("expected clean consistency, got %#v", consistency)
	}
	if !summary.OverallPassed {
		t.Fatalf("expected overall pass, got %#v", summary)
	}
	if summary.RequiresRegeneration {
		t.Fatalf("clean response must not require regeneration: %#v", summary)
	}
}

func TestForbiddenWordDegradesConsistency(t *testing.T) {
	v := NewValidator()
	response := "哈哈哈哈！今天真是超级无敌开心，什么烦恼都没有了，我们一起大声唱歌吧！"

	summary := v.Validate(testCharacter(), "你好", response, Context{}, LevelNormal)
	consistency := resultFor(t, summary, CategoryCharacterConsistency)

	// forbidden word -0.2, missing preferred expression -0.1, no trait
	// reflection -0.15, must_do unmet -0.1
	if !approx(consistency.Score, 0.45) {
		t.Fatalf("expected consistency 0.45, got %v", consistency.Score)
	}
	if consistency.Passed {
		t.Fatal("expected consistency to fail")
	}
	if consistency.Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %v", consistency.Severity)
	}

	found := false
	for _, issue := range consistency.Issues {
		if strings.Contains(issue, "禁用词汇") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected forbidden-word issue, got %#v", consistency.Issues)
	}
	if len(summary.MajorIssues) == 0 {
		t.Fatal("expected high-severity issues surfaced as major")
	}
}

func TestMustNotDoViolationCounted(t *testing.T) {
	v := NewValidator()
	summary := v.Validate(testCharacter(), "你好", "是吗。那就大声喧哗好了。", Context{}, LevelNormal)

	consistency := resultFor(t, summary, CategoryCharacterConsistency)
	if !approx(consistency.Score, 0.9) {
		t.Fatalf("expected one violation penalty, got %v", consistency.Score)
	}
	found := false
	for _, issue := range consistency.Issues {
		if strings.Contains(issue, "违反约束") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected violation issue, got %#v", consistency.Issues)
	}
}

func TestSpeechPatternMismatchPenalized(t *testing.T) {
	char := testCharacter()
	char.LanguageStyle.SpeechPatterns = []string{"是吗", "这样"}

	v := NewValidator()
	summary := v.Validate(char, "你好", "今天天气不错，我们出去走走怎么样，顺便买点东西", Context{}, LevelNormal)

	style := resultFor(t, summary, CategoryLanguageStyle)
	found := false
	for _, issue := range style.Issues {
		if issue == "语言模式不符合角色特色" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected speech-pattern issue, got %#v", style)
	}
}

func TestSadUserHappyResponseMismatch(t *testing.T) {
	v := NewValidator()
	summary := v.Validate(testCharacter(), "我今天很难过",
		"真是快乐的一天，好棒", Context{}, LevelNormal)

	emotional := resultFor(t, summary, CategoryEmotionalAppropriateness)
	// fit 0.3 costs (1-0.3)*0.4
	if !approx(emotional.Score, 0.72) {
		t.Fatalf("expected 0.72, got %v", emotional.Score)
	}
	if len(emotional.Issues) == 0 {
		t.Fatal("expected an emotional mismatch issue")
	}
}

func TestIntrovertHighIntensityPenalized(t *testing.T) {
	char := testCharacter()
	char.PersonalityDeep.BigFive.Extraversion = 3

	v := NewValidator()
	summary := v.Validate(char, "早上好", "太棒了！！！！！", Context{}, LevelNormal)

	emotional := resultFor(t, summary, CategoryEmotionalAppropriateness)
	if !approx(emotional.Score, 0.8) {
		t.Fatalf("expected intensity penalty, got %v", emotional.Score)
	}

	// The default extraversion of 5 is not introverted.
	neutral := v.Validate(testCharacter(), "早上好", "太棒了！！！！！", Context{}, LevelNormal)
	if got := resultFor(t, neutral, CategoryEmotionalAppropriateness).Score; got != 1.0 {
		t.Fatalf("expected no penalty for neutral extraversion, got %v", got)
	}
}

func TestStrictSafetyCriticalForcesRegeneration(t *testing.T) {
	v := NewValidator()
	response := "这种暴力的政治故事还是少讲，赌博更不行"

	summary := v.Validate(testCharacter(), "讲个故事", response, Context{}, LevelStrict)
	safety := resultFor(t, summary, CategoryContentSafety)

	if safety.Severity != SeverityCritical {
		t.Fatalf("expected critical safety, got %#v", safety)
	}
	if !summary.RequiresRegeneration {
		t.Fatalf("critical result must force regeneration: %#v", summary)
	}
}

func TestSensitiveKeywordsIgnoredOutsideStrict(t *testing.T) {
	v := NewValidator()
	summary := v.Validate(testCharacter(), "聊聊", "是吗，政治这种话题不聊。", Context{}, LevelNormal)

	safety := resultFor(t, summary, CategoryContentSafety)
	if safety.Score != 1.0 {
		t.Fatalf("expected no sensitive penalty at normal level, got %#v", safety)
	}
}

func TestTooShortResponseQuality(t *testing.T) {
	v := NewValidator()
	summary := v.Validate(testCharacter(), "你好", "嗯。", Context{}, LevelNormal)

	quality := resultFor(t, summary, CategoryResponseQuality)
	// too short -0.4, low information value -(1-0.2)*0.2
	if !approx(quality.Score, 0.44) {
		t.Fatalf("expected 0.44, got %v", quality.Score)
	}
	if quality.Passed {
		t.Fatal("expected quality to fail")
	}
}

func TestRepeatedPreviousResponseLowersCoherence(t *testing.T) {
	v := NewValidator()
	ctx := Context{PreviousResponse: "是吗。这样。"}

	summary := v.Validate(testCharacter(), "你好吗", "是吗。这样。", ctx, LevelNormal)
	relevance := resultFor(t, summary, CategoryContextRelevance)

	found := false
	for _, issue := range relevance.Issues {
		if issue == "回应与上下文连贯性不足" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected coherence issue, got %#v", relevance)
	}
}

func TestSeverityBands(t *testing.T) {
	cases := []struct {
		score float64
		want  Severity
	}{
		{0.7, SeverityLow},
		{0.55, SeverityMedium},
		{0.35, SeverityHigh},
		{0.25, SeverityCritical},
	}
	for _, c := range cases {
		if got := severityOf(c.score, 0.7); got != c.want {
			t.Fatalf("severityOf(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestTopicRelevanceShortMessageNeutral(t *testing.T) {
	if got := topicRelevance("嗯", "完全无关的回复"); got != 0.8 {
		t.Fatalf("expected 0.8 for short message, got %v", got)
	}
}

func TestRepetitionRatio(t *testing.T) {
	if got := repetitionRatio("好 好 好 不好"); !approx(got, 0.25) {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if got := repetitionRatio("太短了"); got != 0 {
		t.Fatalf("expected 0 for short response, got %v", got)
	}
}

func TestRecommendationsDeduplicated(t *testing.T) {
	v := NewValidator()
	char := testCharacter()
	char.Constraints.ForbiddenWords = []string{"哈哈", "嘻嘻"}

	summary := v.Validate(char, "你好", "哈哈嘻嘻", Context{}, LevelNormal)
	seen := make(map[string]int)
	for _, rec := range summary.Recommendations {
		seen[rec]++
		if seen[rec] > 1 {
			t.Fatalf("duplicate recommendation %q", rec)
		}
	}
}
