package state

import (
	"context"
	"strings"
)

var relationshipTexts = map[RelationshipLevel]string{
	LevelStranger:     "这是你们的初次相遇，保持适当的距离和礼貌。",
	LevelAcquaintance: "你们已经认识了，可以稍微亲近一些。",
	LevelFriend:       "你们已经是朋友了，可以更加自在和亲密。",
	LevelCloseFriend:  "你们是很好的朋友，可以分享更多私人想法。",
	LevelSpecial:      "你们有着特殊的关系，可以表现出更深层的情感连接。",
}

var moodTexts = map[Mood]string{
	MoodGreat:    "你今天心情特别好，更加活泼和积极。",
	MoodGood:     "你心情不错，比平时稍微开朗一些。",
	MoodNeutral:  "",
	MoodBad:      "你心情有些不好，可能稍微冷淡或沉默一些。",
	MoodTerrible: "你心情很糟糕，表现得更加内向或易怒。",
}

// PromptModifiers renders the <character_state> block injected into
// the system prompt, or "" when there is nothing worth saying.
func (m *Manager) PromptModifiers(ctx context.Context, characterID, sessionID string) (string, error) {
	st, err := m.Get(ctx, characterID, sessionID)
	if err != nil {
		return "", err
	}

	var modifiers []string

	if text := relationshipTexts[st.RelationshipLevel]; text != "" {
		modifiers = append(modifiers, text)
	}
	if text := moodTexts[st.Mood]; text != "" {
		modifiers = append(modifiers, text)
	}

	if st.EnergyLevel > 80 {
		modifiers = append(modifiers, "你精力充沛，表现得更加有活力。")
	} else if st.EnergyLevel < 30 {
		modifiers = append(modifiers, "你感觉有些疲惫，可能不太有精神。")
	}

	if topics := preferredTopics(st, 2, 5); len(topics) > 0 {
		modifiers = append(modifiers, "你比较喜欢聊"+strings.Join(topics, ", ")+"相关的话题。")
	}

	if len(st.SpecialMemories) > 0 {
		recent := st.SpecialMemories
		if len(recent) > 2 {
			recent = recent[len(recent)-2:]
		}
		modifiers = append(modifiers, "记住这些重要的对话："+strings.Join(recent, "; "))
	}

	if len(modifiers) == 0 {
		return "", nil
	}
	return "\n\n<character_state>\n" + strings.Join(modifiers, "\n") + "\n</character_state>", nil
}

// InteractionSuggestions returns conversation hints derived from the
// current relationship level and topic preferences.
func (m *Manager) InteractionSuggestions(ctx context.Context, characterID, sessionID string) ([]string, error) {
	st, err := m.Get(ctx, characterID, sessionID)
	if err != nil {
		return nil, err
	}

	var suggestions []string
	switch st.RelationshipLevel {
	case LevelStranger:
		suggestions = append(suggestions, "尝试进行自我介绍", "询问对方的基本信息")
	case LevelFriend:
		suggestions = append(suggestions, "分享一些个人想法", "询问对方的兴趣爱好")
	}

	if st.TopicPreferences["角色相关"] > 3 {
		suggestions = append(suggestions, "聊聊角色相关的话题")
	}
	return suggestions, nil
}
