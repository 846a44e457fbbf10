package emotion

import "strings"

// triggers maps a state to the keywords that signal it in user text.
var triggers = map[State][]string{
	StatePleased:  {"谢谢", "太好了", "厉害", "棒", "喜欢", "开心", "高兴"},
	StateSad:      {"难过", "伤心", "失落", "沮丧", "痛苦", "哭", "眼泪"},
	StateAngry:    {"生气", "愤怒", "讨厌", "烦", "恨", "气死了", "受不了"},
	StateConfused: {"不明白", "困惑", "奇怪", "为什么", "怎么回事", "搞不懂"},
}

// Analyzer classifies the emotional tendency of user messages. It is
// purely lexical and deterministic.
type Analyzer struct{}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze returns the dominant emotion of message. Ties break in the
// order of States; no signal at all yields neutral.
func (a *Analyzer) Analyze(message string) State {
	lower := strings.ToLower(message)

	scores := make(map[State]int, len(States))
	for state, words := range triggers {
		for _, w := range words {
			if strings.Contains(lower, strings.ToLower(w)) {
				scores[state]++
			}
		}
	}

	// 问号多表示困惑
	if strings.Count(message, "?") > 1 || strings.Count(message, "？") > 1 {
		scores[StateConfused]++
	}
	// 感叹号多表示激动
	if strings.Count(message, "!") > 2 || strings.Count(message, "！") > 2 {
		scores[StateExcited]++
	}

	best := StateNeutral
	bestScore := 0
	for _, state := range States {
		if scores[state] > bestScore {
			best = state
			bestScore = scores[state]
		}
	}
	return best
}
