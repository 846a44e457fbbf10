package types

import "strings"

// CharacterType classifies the source material of a character.
type CharacterType string

const (
	CharacterTypeAnime    CharacterType = "anime"
	CharacterTypeGame     CharacterType = "game"
	CharacterTypeNovel    CharacterType = "novel"
	CharacterTypeOriginal CharacterType = "original"
)

// DialogueExample is one example exchange used for few-shot prompting.
type DialogueExample struct {
	User      string `json:"user" yaml:"user"`
	Character string `json:"character" yaml:"character"`
}

// BigFive holds 1-10 personality dimension scores. Zero values are
// treated as the neutral 5 by accessors.
type BigFive struct {
	Openness          int `json:"openness" yaml:"openness"`
	Conscientiousness int `json:"conscientiousness" yaml:"conscientiousness"`
	Extraversion      int `json:"extraversion" yaml:"extraversion"`
	Agreeableness     int `json:"agreeableness" yaml:"agreeableness"`
	Neuroticism       int `json:"neuroticism" yaml:"neuroticism"`
}

// ExtraversionOrDefault returns the extraversion score, defaulting to 5.
func (b BigFive) ExtraversionOrDefault() int {
	if b.Extraversion == 0 {
		return 5
	}
	return b.Extraversion
}

// PersonalityDeep is the structured personality block of a character card.
type PersonalityDeep struct {
	CoreTraits        []string          `json:"core_traits" yaml:"core_traits"`
	BigFive           BigFive           `json:"big_five_personality" yaml:"big_five_personality"`
	EmotionalPatterns map[string]string `json:"emotional_patterns" yaml:"emotional_patterns"`
	Values            []string          `json:"values" yaml:"values"`
	Fears             []string          `json:"fears" yaml:"fears"`
	Desires           []string          `json:"desires" yaml:"desires"`
}

// LanguageStyle describes how the character speaks.
type LanguageStyle struct {
	SpeechPatterns []string `json:"speech_patterns" yaml:"speech_patterns"`
	Vocabulary     []string `json:"vocabulary" yaml:"vocabulary"`
	SentenceStyle  string   `json:"sentence_style" yaml:"sentence_style"`
}

// BehavioralConstraints are hard rules the character must follow.
type BehavioralConstraints struct {
	PreferredWords       []string `json:"preferred_words" yaml:"preferred_words"`
	ForbiddenWords       []string `json:"forbidden_words" yaml:"forbidden_words"`
	PreferredExpressions []string `json:"preferred_expressions" yaml:"preferred_expressions"`
	MustDo               []string `json:"must_do" yaml:"must_do"`
	MustNotDo            []string `json:"must_not_do" yaml:"must_not_do"`
	CoreBeliefs          []string `json:"core_beliefs" yaml:"core_beliefs"`
	StubbornTraits       []string `json:"stubborn_traits" yaml:"stubborn_traits"`
}

// PromptConfig carries prompt-assembly extras from the character card.
type PromptConfig struct {
	FewShotExamples  []DialogueExample `json:"few_shot_examples" yaml:"few_shot_examples"`
	FallbackResponse string            `json:"fallback_response" yaml:"fallback_response"`
}

// BehaviorRules override the top-level forbidden topics and guidelines.
type BehaviorRules struct {
	ForbiddenTopics    []string `json:"forbidden_topics" yaml:"forbidden_topics"`
	ResponseGuidelines []string `json:"response_guidelines" yaml:"response_guidelines"`
	InteractionStyle   string   `json:"interaction_style" yaml:"interaction_style"`
}

// Character is a fully parsed character card.
type Character struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Type        CharacterType `json:"type" yaml:"type"`
	AvatarURL   string        `json:"avatar_url" yaml:"avatar_url"`
	Description string        `json:"description" yaml:"description"`
	Personality string        `json:"personality" yaml:"personality"`
	Background  string        `json:"background" yaml:"background"`

	SpeechPatterns []string `json:"speech_patterns" yaml:"speech_patterns"`
	Catchphrases   []string `json:"catchphrases" yaml:"catchphrases"`
	Tone           string   `json:"tone" yaml:"tone"`

	SystemPrompt     string            `json:"system_prompt_text" yaml:"system_prompt_text"`
	ExampleDialogues []DialogueExample `json:"example_dialogues" yaml:"example_dialogues"`

	ForbiddenTopics []string `json:"forbidden_topics" yaml:"forbidden_topics"`
	BehavioralRules []string `json:"behavioral_rules" yaml:"behavioral_rules"`

	MaxContextLength int     `json:"max_context_length" yaml:"max_context_length"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`

	Tags []string `json:"tags" yaml:"tags"`

	PersonalityDeep PersonalityDeep       `json:"personality_deep" yaml:"personality_deep"`
	LanguageStyle   LanguageStyle         `json:"language_style" yaml:"language_style"`
	Constraints     BehavioralConstraints `json:"behavioral_constraints" yaml:"behavioral_constraints"`
	Prompt          PromptConfig          `json:"system_prompt" yaml:"system_prompt"`
	Behavior        BehaviorRules         `json:"behavior_rules" yaml:"behavior_rules"`
}

// CharacterSummary is the list-view projection of a character.
type CharacterSummary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        CharacterType `json:"type"`
	Description string        `json:"description"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Tags        []string      `json:"tags"`
}

// Summary returns the list-view projection of c.
func (c *Character) Summary() CharacterSummary {
	return CharacterSummary{
		ID:          c.ID,
		Name:        c.Name,
		Type:        c.Type,
		Description: c.Description,
		AvatarURL:   c.AvatarURL,
		Tags:        c.Tags,
	}
}

// CoreTraits returns the structured core traits, falling back to
// splitting the free-text personality field on 、 and ，.
func (c *Character) CoreTraits() []string {
	if len(c.PersonalityDeep.CoreTraits) > 0 {
		return c.PersonalityDeep.CoreTraits
	}
	if c.Personality == "" {
		return nil
	}
	fields := strings.FieldsFunc(c.Personality, func(r rune) bool {
		return r == '、' || r == '，' || r == ','
	})
	traits := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			traits = append(traits, f)
		}
	}
	return traits
}

// EffectiveForbiddenTopics prefers the behavior_rules block over the
// top-level list.
func (c *Character) EffectiveForbiddenTopics() []string {
	if len(c.Behavior.ForbiddenTopics) > 0 {
		return c.Behavior.ForbiddenTopics
	}
	return c.ForbiddenTopics
}

// EffectiveGuidelines prefers the behavior_rules block over the
// top-level behavioral rules.
func (c *Character) EffectiveGuidelines() []string {
	if len(c.Behavior.ResponseGuidelines) > 0 {
		return c.Behavior.ResponseGuidelines
	}
	return c.BehavioralRules
}

// EffectiveSpeechPatterns prefers the language_style block over the
// top-level list.
func (c *Character) EffectiveSpeechPatterns() []string {
	if len(c.LanguageStyle.SpeechPatterns) > 0 {
		return c.LanguageStyle.SpeechPatterns
	}
	return c.SpeechPatterns
}
