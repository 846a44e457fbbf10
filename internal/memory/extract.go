package memory

import (
	"strings"
	"unicode"
)

// importanceOrder fixes the check order so critical markers always win
// over high and medium ones.
var importanceOrder = []Importance{ImportanceCritical, ImportanceHigh, ImportanceMedium}

var importanceKeywords = map[Importance][]string{
	ImportanceCritical: {
		"我爱你", "我恨你", "生日", "死了", "结婚", "分手",
		"秘密", "永远", "承诺", "重要", "特别",
	},
	ImportanceHigh: {
		"喜欢", "讨厌", "害怕", "担心", "梦想", "希望",
		"家人", "朋友", "工作", "学习", "目标",
	},
	ImportanceMedium: {
		"兴趣", "爱好", "电影", "音乐", "书", "游戏",
		"旅行", "美食", "运动", "计划",
	},
}

var emotionKeywords = map[string][]string{
	"开心": {"开心", "高兴", "快乐", "兴奋", "满足", "喜悦"},
	"难过": {"难过", "伤心", "痛苦", "失落", "沮丧", "哭"},
	"生气": {"生气", "愤怒", "恼火", "烦躁", "讨厌", "气"},
	"害怕": {"害怕", "恐惧", "担心", "紧张", "焦虑", "怕"},
	"惊讶": {"惊讶", "震惊", "意外", "吃惊", "不敢相信"},
}

// emotionOrder keeps detected emotion lists deterministic.
var emotionOrder = []string{"开心", "难过", "生气", "害怕", "惊讶"}

var preferenceIndicators = []string{"喜欢", "不喜欢", "爱好", "兴趣", "最喜欢", "讨厌"}
var factualIndicators = []string{"是", "在", "有", "会", "能", "做", "工作", "学习", "家"}
var relationshipIndicators = []string{"朋友", "家人", "同事", "恋人", "我们", "一起"}

var stopWords = map[string]struct{}{
	"的": {}, "了": {}, "在": {}, "是": {}, "我": {}, "你": {}, "他": {},
	"她": {}, "它": {}, "这": {}, "那": {}, "有": {}, "和": {}, "与": {},
}

// determineImportance grades a message by its trigger keywords, then
// punctuation density, then length.
func determineImportance(message string) Importance {
	lower := strings.ToLower(message)

	for _, importance := range importanceOrder {
		for _, kw := range importanceKeywords[importance] {
			if strings.Contains(lower, kw) {
				return importance
			}
		}
	}

	if strings.ContainsAny(lower, "!！?？") {
		if strings.Count(message, "!")+strings.Count(message, "！") > 2 {
			return ImportanceHigh
		}
	}

	if len([]rune(message)) > 100 {
		return ImportanceMedium
	}
	return ImportanceLow
}

// classifyTypes returns every matching memory type, defaulting to
// factual when nothing matched.
func classifyTypes(message string) []Type {
	lower := strings.ToLower(message)
	var matched []Type

	for _, words := range emotionKeywords {
		if containsAny(lower, words) {
			matched = append(matched, TypeEmotional)
			break
		}
	}
	if containsAny(lower, preferenceIndicators) {
		matched = append(matched, TypePreference)
	}
	if containsAny(lower, factualIndicators) {
		matched = append(matched, TypeFactual)
	}
	if containsAny(lower, relationshipIndicators) {
		matched = append(matched, TypeRelationship)
	}

	if len(matched) == 0 {
		matched = append(matched, TypeFactual)
	}
	return matched
}

// extractKeywords tokenizes on non-word runes, drops stop words and
// single runes, and keeps the first ten tokens.
func extractKeywords(message string) []string {
	words := tokenize(strings.ToLower(message))

	keywords := make([]string, 0, 10)
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len([]rune(w)) <= 1 {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == 10 {
			break
		}
	}
	return keywords
}

// detectEmotions returns the emotion labels present in the message, in
// a fixed order.
func detectEmotions(message string) []string {
	lower := strings.ToLower(message)
	var detected []string
	for _, emotion := range emotionOrder {
		if containsAny(lower, emotionKeywords[emotion]) {
			detected = append(detected, emotion)
		}
	}
	return detected
}

// tokenize splits on any rune that is not a letter, digit, or
// underscore. Contiguous CJK runs stay together as one token.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
