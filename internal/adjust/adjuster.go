package adjust

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/state"
	"github.com/easeaico/project-chara/internal/types"
)

// characterNames maps mention aliases to character ids.
var characterNames = map[string]string{
	"绫波零":  "rei_ayanami",
	"明日香":  "asuka_langley",
	"初音未来": "miku_hatsune",
	"零":    "rei_ayanami",
	"未来":   "miku_hatsune",
}

// mentionOrder keeps extraction deterministic.
var mentionOrder = []string{"绫波零", "明日香", "初音未来", "零", "未来"}

// topicMap maps trigger keywords to topic labels.
var topicMap = []struct {
	keyword string
	topic   string
}{
	{"学习", "education"},
	{"工作", "work"},
	{"音乐", "music"},
	{"电影", "entertainment"},
	{"爱好", "hobbies"},
	{"感情", "relationships"},
	{"家人", "family"},
	{"EVA", "eva"},
	{"驾驶", "eva"},
	{"歌曲", "music"},
}

var timeKeywords = []string{"现在", "立刻", "马上", "快", "急", "等不及"}
var formalIndicators = []string{"您", "请", "谢谢", "不好意思"}
var casualIndicators = []string{"哈哈", "嗯", "哦", "吧"}

// intensityIndicators weight punctuation and filler particles.
var intensityIndicators = []struct {
	marker string
	weight float64
}{
	{"!", 0.2}, {"！", 0.2},
	{"?", 0.1}, {"？", 0.1},
	{"...", 0.15}, {"。。。", 0.15},
	{"啊", 0.1}, {"呀", 0.1}, {"哦", 0.1},
}

// EmotionAnalyzer classifies user messages.
type EmotionAnalyzer interface {
	AnalyzeUserEmotion(message string) emotion.State
}

// StateProvider reads the character's per-session state.
type StateProvider interface {
	Get(ctx context.Context, characterID, sessionID string) (state.CharacterState, error)
}

// RelationshipContext renders relationship prompt context.
type RelationshipContext interface {
	PromptContext(primaryCharacterID string, mentioned []string) string
}

// Adjuster analyzes context and emits response adjustment directives.
type Adjuster struct {
	emotions      EmotionAnalyzer
	states        StateProvider
	relationships RelationshipContext
}

// NewAdjuster returns an Adjuster.
func NewAdjuster(emotions EmotionAnalyzer, states StateProvider, relationships RelationshipContext) *Adjuster {
	return &Adjuster{
		emotions:      emotions,
		states:        states,
		relationships: relationships,
	}
}

// AnalyzeContext runs all five context analyses.
func (a *Adjuster) AnalyzeContext(
	ctx context.Context,
	character *types.Character,
	sessionID string,
	userMessage string,
	history []HistoryMessage,
) (ContextAnalysis, error) {
	charState, err := a.states.Get(ctx, character.ID, sessionID)
	if err != nil {
		return ContextAnalysis{}, fmt.Errorf("failed to load state for adjustment: %w", err)
	}

	mentioned := extractMentionedCharacters(userMessage)
	relationshipContext := ""
	if len(mentioned) > 0 {
		relationshipContext = a.relationships.PromptContext(character.ID, mentioned)
	}

	return ContextAnalysis{
		Emotional: EmotionalContext{
			CurrentEmotion:   a.emotions.AnalyzeUserEmotion(userMessage),
			EmotionIntensity: emotionIntensity(userMessage),
			EmotionTrend:     "stable",
			EmotionStability: true,
		},
		Temporal: TemporalContext{
			SessionDurationHours: float64(len(history)) * 2 / 60,
			ResponsePace:         responsePace(len(history)),
			TimeSensitive:        detectTimeSensitivity(history),
			ConversationLength:   len(history),
		},
		Relational: RelationalContext{
			RelationshipLevel:   charState.RelationshipLevel,
			FamiliarityScore:    charState.FamiliarityScore,
			TrustLevel:          charState.TrustLevel,
			MentionedCharacters: mentioned,
			RelationshipContext: relationshipContext,
		},
		Topical: TopicalContext{
			CurrentTopic:   extractTopic(userMessage),
			TopicHistory:   topicHistory(history),
			TopicShift:     detectTopicShift(topicHistory(history)),
			SensitiveTopic: detectSensitiveTopic(userMessage, character),
		},
		Behavioral: BehavioralContext{
			UserPatterns:       analyzeUserPatterns(history),
			ConsistencyScore:   checkCharacterConsistency(character, history),
			InteractionQuality: assessInteractionQuality(history),
		},
	}, nil
}

// directive is one pending adjustment.
type directive struct {
	direction string
	level     float64
	emotion   emotion.State
}

// AdjustmentInstructions renders the <response_adjustments> block, or
// "" when nothing needs steering.
func (a *Adjuster) AdjustmentInstructions(
	ctx context.Context,
	character *types.Character,
	sessionID string,
	userMessage string,
	history []HistoryMessage,
) (string, error) {
	analysis, err := a.AnalyzeContext(ctx, character, sessionID, userMessage, history)
	if err != nil {
		return "", err
	}

	required := requiredAdjustments(analysis)

	var instructions []string
	for _, adjType := range directiveOrder {
		d, ok := required[adjType]
		if !ok {
			continue
		}
		if text := renderDirective(adjType, d); text != "" {
			instructions = append(instructions, text)
		}
	}

	if len(instructions) == 0 {
		return "", nil
	}
	return "\n\n<response_adjustments>\n" + strings.Join(instructions, "\n") + "\n</response_adjustments>", nil
}

func requiredAdjustments(analysis ContextAnalysis) map[AdjustmentType]directive {
	required := make(map[AdjustmentType]directive)

	if analysis.Emotional.EmotionIntensity > 0.7 {
		required[AdjustTone] = directive{
			direction: "emotional",
			level:     analysis.Emotional.EmotionIntensity,
			emotion:   analysis.Emotional.CurrentEmotion,
		}
	}

	familiarity := analysis.Relational.FamiliarityScore
	if familiarity > 70 {
		required[AdjustIntimacy] = directive{direction: "increase", level: familiarity / 100}
		required[AdjustFormality] = directive{direction: "decrease", level: 0.3}
	} else if familiarity < 20 {
		required[AdjustFormality] = directive{direction: "increase", level: 0.7}
	}

	if analysis.Topical.SensitiveTopic {
		required[AdjustDirectness] = directive{direction: "decrease", level: 0.3}
	}

	if analysis.Behavioral.UserPatterns.FormalityPreference == "casual" {
		required[AdjustFormality] = directive{direction: "decrease", level: 0.4}
	}

	return required
}

func renderDirective(adjType AdjustmentType, d directive) string {
	switch adjType {
	case AdjustTone:
		switch d.emotion {
		case emotion.StatePleased:
			return fmt.Sprintf("语调调整：表现得更加愉悦和积极(强度: %.1f)", d.level)
		case emotion.StateSad:
			return fmt.Sprintf("语调调整：表现得更加同情和温柔(强度: %.1f)", d.level)
		case emotion.StateAngry:
			return fmt.Sprintf("语调调整：控制情绪，保持角色特有的表达方式(强度: %.1f)", d.level)
		}
	case AdjustFormality:
		switch d.direction {
		case "increase":
			return fmt.Sprintf("正式度调整：使用更正式和礼貌的表达(程度: %.1f)", d.level)
		case "decrease":
			return fmt.Sprintf("正式度调整：使用更轻松和随意的表达(程度: %.1f)", d.level)
		}
	case AdjustIntimacy:
		switch d.direction {
		case "increase":
			return fmt.Sprintf("亲密度调整：表现得更加亲近和关怀(程度: %.1f)", d.level)
		case "decrease":
			return fmt.Sprintf("亲密度调整：保持适当的距离感(程度: %.1f)", d.level)
		}
	case AdjustEnthusiasm:
		switch d.direction {
		case "increase":
			return fmt.Sprintf("热情度调整：表现得更加积极和兴奋(程度: %.1f)", d.level)
		case "decrease":
			return fmt.Sprintf("热情度调整：保持冷静和克制(程度: %.1f)", d.level)
		}
	case AdjustDirectness:
		switch d.direction {
		case "increase":
			return fmt.Sprintf("直接度调整：更加直白和明确地表达(程度: %.1f)", d.level)
		case "decrease":
			return fmt.Sprintf("直接度调整：使用更加委婉和含蓄的表达(程度: %.1f)", d.level)
		}
	}
	return ""
}

// emotionIntensity scores punctuation and particle density, capped at 1.
func emotionIntensity(message string) float64 {
	var intensity float64
	for _, ind := range intensityIndicators {
		intensity += float64(strings.Count(message, ind.marker)) * ind.weight
	}
	for _, r := range message {
		if unicode.IsUpper(r) {
			intensity += 0.1
			break
		}
	}
	if intensity > 1 {
		intensity = 1
	}
	return intensity
}

func responsePace(messageCount int) string {
	switch {
	case messageCount > 20:
		return "fast"
	case messageCount > 10:
		return "moderate"
	default:
		return "slow"
	}
}

func detectTimeSensitivity(history []HistoryMessage) bool {
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, msg := range recent {
		lower := strings.ToLower(msg.Content)
		for _, kw := range timeKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func extractMentionedCharacters(message string) []string {
	var mentioned []string
	seen := make(map[string]struct{})
	for _, name := range mentionOrder {
		if !strings.Contains(message, name) {
			continue
		}
		id := characterNames[name]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		mentioned = append(mentioned, id)
	}
	return mentioned
}

func extractTopic(message string) string {
	for _, entry := range topicMap {
		if strings.Contains(message, entry.keyword) {
			return entry.topic
		}
	}
	return "general"
}

func topicHistory(history []HistoryMessage) []string {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	topics := make([]string, 0, len(recent))
	for _, msg := range recent {
		topics = append(topics, extractTopic(msg.Content))
	}
	return topics
}

func detectTopicShift(topics []string) bool {
	if len(topics) < 2 {
		return false
	}
	return topics[len(topics)-1] != topics[len(topics)-2]
}

func detectSensitiveTopic(message string, character *types.Character) bool {
	lower := strings.ToLower(message)
	for _, topic := range character.EffectiveForbiddenTopics() {
		if strings.Contains(lower, strings.ToLower(topic)) {
			return true
		}
	}
	return false
}

func analyzeUserPatterns(history []HistoryMessage) UserPatterns {
	var userMessages []string
	for _, msg := range history {
		if msg.Role == types.RoleUser {
			userMessages = append(userMessages, msg.Content)
		}
	}
	if len(userMessages) == 0 {
		return UserPatterns{}
	}

	var formalCount, casualCount, totalLen, questions int
	for _, msg := range userMessages {
		for _, ind := range formalIndicators {
			formalCount += strings.Count(msg, ind)
		}
		for _, ind := range casualIndicators {
			casualCount += strings.Count(msg, ind)
		}
		totalLen += len([]rune(msg))
		if strings.Contains(msg, "?") || strings.Contains(msg, "？") {
			questions++
		}
	}

	preference := "casual"
	if formalCount > casualCount {
		preference = "formal"
	}

	return UserPatterns{
		FormalityPreference:  preference,
		AverageMessageLength: float64(totalLen) / float64(len(userMessages)),
		QuestionFrequency:    float64(questions) / float64(len(userMessages)),
	}
}

func checkCharacterConsistency(character *types.Character, history []HistoryMessage) float64 {
	var charMessages []string
	for _, msg := range history {
		if msg.Role == types.RoleAssistant {
			charMessages = append(charMessages, msg.Content)
		}
	}
	if len(charMessages) == 0 {
		return 1.0
	}

	score := 1.0
	for _, msg := range charMessages {
		for _, forbidden := range character.Constraints.ForbiddenWords {
			if strings.Contains(msg, forbidden) {
				score -= 0.1
			}
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func assessInteractionQuality(history []HistoryMessage) float64 {
	if len(history) < 2 {
		return 0.5
	}

	var userMessages []string
	for _, msg := range history {
		if msg.Role == types.RoleUser {
			userMessages = append(userMessages, msg.Content)
		}
	}
	if len(userMessages) == 0 {
		return 0.5
	}

	var totalLen int
	for _, msg := range userMessages {
		totalLen += len([]rune(msg))
	}
	avgLen := float64(totalLen) / float64(len(userMessages))

	if avgLen > 20 {
		quality := 0.7 + (avgLen-20)/100
		if quality > 1 {
			quality = 1
		}
		return quality
	}
	return 0.5
}
