// Package prompt assembles layered roleplay prompts: the XML system
// prompt, few-shot examples, dynamic context blocks, and the trimmed
// conversation history.
package prompt

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/types"
)

const (
	maxFewShotExamples  = 5
	maxExampleDialogues = 3
	defaultContextChars = 4000

	// 中文字符约1.5个token
	tokensPerRune = 1.5
)

// Message is one turn of the assembled LLM conversation.
type Message struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// Builder assembles prompts from a character card and conversation
// context.
type Builder struct {
	pickFunc func(n int) int
}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{pickFunc: rand.IntN}
}

// SystemPrompt renders the XML system prompt for character.
func (b *Builder) SystemPrompt(character *types.Character) (string, error) {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, newSystemTemplateData(character)); err != nil {
		return "", &errs.PromptBuildError{
			CharacterID: character.ID,
			Reason:      "系统提示词构建失败",
			Err:         err,
		}
	}
	return buf.String(), nil
}

// ContextMessages builds the full message list for one LLM call: the
// system prompt with any dynamic blocks appended, few-shot examples,
// and as much recent history as fits the character's context budget.
// Dynamic blocks arrive pre-rendered (state modifiers, memory summary,
// adjustment instructions) and empty ones are skipped.
func (b *Builder) ContextMessages(character *types.Character, history []Message, dynamicBlocks ...string) ([]Message, error) {
	system, err := b.SystemPrompt(character)
	if err != nil {
		return nil, err
	}
	for _, block := range dynamicBlocks {
		if block != "" {
			system += block
		}
	}

	messages := []Message{{Role: types.RoleSystem, Content: system}}
	messages = append(messages, b.exampleMessages(character)...)
	messages = append(messages, recentWithinBudget(history, contextBudget(character))...)
	return messages, nil
}

// exampleMessages prefers the card's few_shot_examples over the legacy
// example_dialogues.
func (b *Builder) exampleMessages(character *types.Character) []Message {
	examples := character.Prompt.FewShotExamples
	limit := maxFewShotExamples
	if len(examples) == 0 {
		examples = character.ExampleDialogues
		limit = maxExampleDialogues
	}
	if len(examples) > limit {
		examples = examples[:limit]
	}

	messages := make([]Message, 0, 2*len(examples))
	for _, example := range examples {
		if example.User == "" || example.Character == "" {
			continue
		}
		messages = append(messages,
			Message{Role: types.RoleUser, Content: replaceVars(example.User, character.Name, "user")},
			Message{Role: types.RoleAssistant, Content: replaceVars(example.Character, character.Name, "user")},
		)
	}
	return messages
}

// recentWithinBudget walks the history newest first until the token
// estimate exceeds the budget, then returns the kept turns in
// chronological order. System turns are dropped so the rendered system
// prompt stays the only one.
func recentWithinBudget(history []Message, maxTokens float64) []Message {
	var kept []Message
	var used float64
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role == types.RoleSystem {
			continue
		}
		cost := tokensPerRune * float64(utf8.RuneCountInString(msg.Content))
		if used+cost > maxTokens && len(kept) > 0 {
			break
		}
		kept = append(kept, msg)
		used += cost
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func contextBudget(character *types.Character) float64 {
	if character.MaxContextLength > 0 {
		return float64(character.MaxContextLength)
	}
	return defaultContextChars
}

// Greeting picks an opening line matching the character's tone.
func (b *Builder) Greeting(character *types.Character) string {
	tone := strings.ToLower(character.Tone)
	for _, group := range greetings {
		if strings.Contains(tone, group.tone) {
			line := group.lines[b.pickFunc(len(group.lines))]
			return strings.ReplaceAll(line, "{name}", character.Name)
		}
	}
	return "你好，我是" + character.Name + "。有什么我可以帮助你的吗？"
}

// ResponseConstraints renders length and tone constraints appended to
// regeneration requests.
func (b *Builder) ResponseConstraints(character *types.Character) string {
	var constraints []string

	switch {
	case character.MaxTokens <= 200:
		constraints = append(constraints, "请保持回复简洁（50字以内）")
	case character.MaxTokens <= 500:
		constraints = append(constraints, "请保持回复适中（100字左右）")
	default:
		constraints = append(constraints, "可以详细回复，但请保持自然")
	}

	switch {
	case strings.Contains(character.Tone, "傲娇"):
		constraints = append(constraints, "保持傲娇的说话方式，要口是心非")
	case strings.Contains(character.Tone, "温柔"):
		constraints = append(constraints, "保持温柔体贴的语调")
	case strings.Contains(character.Tone, "活泼"):
		constraints = append(constraints, "保持活泼开朗的语调")
	case strings.Contains(character.Tone, "冷酷"):
		constraints = append(constraints, "保持冷静简洁的语调")
	}

	if len(character.Catchphrases) > 0 {
		phrases := character.Catchphrases
		if len(phrases) > 2 {
			phrases = phrases[:2]
		}
		constraints = append(constraints, "适当使用口头禅："+strings.Join(phrases, ", "))
	}

	var sb strings.Builder
	sb.WriteString("【回复要求】")
	for _, c := range constraints {
		sb.WriteString("\n- ")
		sb.WriteString(c)
	}
	return sb.String()
}

// EmotionalStatePrompt renders the card's pattern for the character's
// current emotion, or "" when the card defines none.
func (b *Builder) EmotionalStatePrompt(character *types.Character, current emotion.State) string {
	pattern, ok := character.PersonalityDeep.EmotionalPatterns[string(current)]
	if !ok {
		return ""
	}
	return "\n\n<current_emotional_state>\n请按照以下情感模式回应：" + pattern + "\n</current_emotional_state>"
}

// EnhanceSystemPrompt appends session-level hints to an already built
// system prompt.
func (b *Builder) EnhanceSystemPrompt(base string, messageCount int, userMood emotion.State) string {
	var additions []string
	if messageCount > 10 {
		additions = append(additions, "你们已经聊了一段时间，可以表现得更加熟悉和自在。")
	}
	switch userMood {
	case emotion.StateSad:
		additions = append(additions, "用户似乎心情不好，请给予更多关怀和安慰。")
	case emotion.StateExcited:
		additions = append(additions, "用户情绪高涨，可以表现得更加活跃和热情。")
	}
	if len(additions) == 0 {
		return base
	}
	return base + "\n\n<session_context>\n" + strings.Join(additions, "\n") + "\n</session_context>"
}

// ValidateLength reports whether the estimated token count of messages
// fits maxTokens.
func (b *Builder) ValidateLength(messages []Message, maxTokens int) bool {
	var runes int
	for _, msg := range messages {
		runes += utf8.RuneCountInString(msg.Content)
	}
	return tokensPerRune*float64(runes) <= float64(maxTokens)
}

// ConsistencyCheck post-processes a generated response: forbidden
// words swap in the card's fallback line, and very short responses get
// one preferred word appended.
func (b *Builder) ConsistencyCheck(response string, character *types.Character) string {
	for _, word := range character.Constraints.ForbiddenWords {
		if word != "" && strings.Contains(response, word) {
			slog.Warn("forbidden word in response, using fallback",
				"character_id", character.ID, "word", word)
			if fallback := character.Prompt.FallbackResponse; fallback != "" {
				return fallback
			}
			return "..."
		}
	}

	preferred := character.Constraints.PreferredWords
	if utf8.RuneCountInString(strings.TrimSpace(response)) < 10 && len(preferred) > 0 {
		head := preferred
		if len(head) > 3 {
			head = head[:3]
		}
		for _, word := range head {
			if strings.Contains(response, word) {
				return response
			}
		}
		return response + " " + preferred[0]
	}
	return response
}
