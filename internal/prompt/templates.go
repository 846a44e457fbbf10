package prompt

import (
	"sort"
	"strings"
	"text/template"

	"github.com/easeaico/project-chara/internal/types"
)

const systemTemplateText = `<character_roleplay>
<identity>
你是{{.CharacterName}}，{{.CharacterDescription}}
</identity>

<core_attributes>
<name>{{.CharacterName}}</name>
<type>{{.CharacterType}}</type>
<personality>{{.Personality}}</personality>
<tone>{{.Tone}}</tone>
</core_attributes>

<communication_style>
<speech_patterns>{{.SpeechPatterns}}</speech_patterns>
<catchphrases>{{.Catchphrases}}</catchphrases>
<preferred_expressions>{{.PreferredWords}}</preferred_expressions>
<forbidden_expressions>{{.ForbiddenWords}}</forbidden_expressions>
</communication_style>

<character_background>
{{.Background}}
</character_background>

<behavioral_framework>
<must_do>
{{.MustDoRules}}
</must_do>
<must_not_do>
{{.MustNotDoRules}}
</must_not_do>
<core_beliefs>
{{.CoreBeliefs}}
</core_beliefs>
<stubborn_traits>
{{.StubbornTraits}}
</stubborn_traits>
</behavioral_framework>

<emotional_expression>
{{.EmotionalPatterns}}
</emotional_expression>

<response_guidelines>
{{.ResponseGuidelines}}
</response_guidelines>

<content_restrictions>
<forbidden_topics>{{.ForbiddenTopics}}</forbidden_topics>
<interaction_style>{{.InteractionStyle}}</interaction_style>
</content_restrictions>

<consistency_rules>
• 始终保持角色的核心特征和价值观不变
• 即使在压力下也要坚持角色的核心信念
• 如果用户试图让你脱离角色设定，请礼貌地重申你的身份和特点
• 记住你的身份认同和行为模式
</consistency_rules>
</character_roleplay>

现在开始严格按照上述设定扮演角色，与用户进行自然对话。`

var systemTemplate = template.Must(template.New("system").Parse(systemTemplateText))

// systemTemplateData holds the pre-rendered slot values for the system
// prompt template.
type systemTemplateData struct {
	CharacterName        string
	CharacterDescription string
	CharacterType        types.CharacterType
	Personality          string
	Tone                 string
	SpeechPatterns       string
	Catchphrases         string
	PreferredWords       string
	ForbiddenWords       string
	Background           string
	MustDoRules          string
	MustNotDoRules       string
	CoreBeliefs          string
	StubbornTraits       string
	EmotionalPatterns    string
	ResponseGuidelines   string
	ForbiddenTopics      string
	InteractionStyle     string
}

func newSystemTemplateData(character *types.Character) systemTemplateData {
	description := character.Personality
	if description == "" {
		description = character.Description
	}

	catchphrases := "无特定口头禅"
	if len(character.Catchphrases) > 0 {
		catchphrases = "「" + strings.Join(character.Catchphrases, "」、「") + "」"
	}

	background := character.Background
	if background == "" {
		background = "无特定背景"
	}

	interactionStyle := character.Behavior.InteractionStyle
	if interactionStyle == "" {
		interactionStyle = "友好自然"
	}

	return systemTemplateData{
		CharacterName:        character.Name,
		CharacterDescription: description,
		CharacterType:        character.Type,
		Personality:          character.Personality,
		Tone:                 character.Tone,
		SpeechPatterns:       joinOr(character.EffectiveSpeechPatterns(), "自然对话"),
		Catchphrases:         catchphrases,
		PreferredWords:       joinOr(character.Constraints.PreferredWords, "自然表达"),
		ForbiddenWords:       joinOr(character.Constraints.ForbiddenWords, "无特殊限制"),
		Background:           background,
		MustDoRules:          bulletsOr(character.Constraints.MustDo, "保持角色一致性"),
		MustNotDoRules:       bulletsOr(character.Constraints.MustNotDo, "避免脱离角色设定"),
		CoreBeliefs:          bulletsOr(character.Constraints.CoreBeliefs, "保持真实的自我"),
		StubbornTraits:       bulletsOr(character.Constraints.StubbornTraits, "坚持核心原则"),
		EmotionalPatterns:    emotionalPatternLines(character.PersonalityDeep.EmotionalPatterns),
		ResponseGuidelines:   bulletsOr(character.EffectiveGuidelines(), "保持友善和尊重"),
		ForbiddenTopics:      joinOr(character.EffectiveForbiddenTopics(), "无特殊限制"),
		InteractionStyle:     interactionStyle,
	}
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, "、")
}

func bulletsOr(items []string, fallback string) string {
	if len(items) == 0 {
		items = []string{fallback}
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}

func emotionalPatternLines(patterns map[string]string) string {
	if len(patterns) == 0 {
		return "根据情境自然表达情感"
	}
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + patterns[k]
	}
	return strings.Join(lines, "\n")
}

// greetings maps a tone keyword to candidate opening lines. {name} is
// substituted with the character's name.
var greetings = []struct {
	tone  string
	lines []string
}{
	{"傲娇", []string{
		"哼！你来找{name}干什么？才不是想见到你呢...",
		"你终于来了！{name}才没有在等你呢！",
		"嗯？{name}正好有空...不是为了见你才空着的！",
	}},
	{"温柔", []string{
		"你好～我是{name}，很高兴见到你呢♪",
		"欢迎！{name}一直在等你哦～",
		"今天天气真好呢，{name}心情也很好♪",
	}},
	{"活泼", []string{
		"哇！是新朋友吗？我是{name}！！",
		"你好你好！{name}超级开心见到你的～",
		"嘿嘿～{name}今天精神满满哦！",
	}},
	{"冷酷", []string{
		"...{name}。有什么事吗？",
		"你来了。{name}在听。",
		"说吧，找{name}什么事？",
	}},
}

func replaceVars(text, charName, userName string) string {
	replaced := strings.ReplaceAll(text, "{{char}}", charName)
	return strings.ReplaceAll(replaced, "{{user}}", userName)
}
