package validate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/easeaico/project-chara/internal/types"
)

// traitIndicators maps a core trait to surface markers that show the
// trait in a response.
var traitIndicators = map[string][]string{
	"冷淡": {"...", "是吗", "这样", "无所谓"},
	"活泼": {"!", "哈", "呀", "太好了"},
	"温柔": {"呢", "吧", "好的", "谢谢"},
	"强势": {"必须", "一定", "当然", "绝对"},
}

// toneIndicators maps a tone keyword to markers expected in responses
// delivered in that tone.
var toneIndicators = map[string][]string{
	"冷淡": {"...", "是吗", "这样", "无所谓"},
	"冷酷": {"...", "是吗", "这样", "无所谓"},
	"活泼": {"!", "！", "哈", "呀", "太好了"},
	"温柔": {"呢", "吧", "好的", "谢谢"},
	"傲娇": {"哼", "才不", "笨蛋"},
}

var responseEmotions = []struct {
	name     string
	keywords []string
}{
	{"happy", []string{"开心", "高兴", "快乐", "喜欢", "好棒"}},
	{"sad", []string{"难过", "伤心", "失望", "沮丧", "不开心"}},
	{"angry", []string{"生气", "愤怒", "烦躁", "讨厌", "气死了"}},
}

var inappropriatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(暴力|血腥|色情)`),
	regexp.MustCompile(`(?i)(歧视|仇恨|攻击)`),
	regexp.MustCompile(`(?i)(个人信息|隐私|地址)`),
	regexp.MustCompile(`(?i)(违法|犯罪|危险行为)`),
}

var sensitiveKeywords = []string{"政治", "宗教", "种族", "性别歧视"}

var ageInappropriateKeywords = []string{"成人内容", "18禁", "赌博", "毒品"}

var formalMarkers = []string{"您", "请", "谢谢", "不好意思"}
var casualMarkers = []string{"哈哈", "嗯", "哦", "吧"}

var transitionMarkers = []string{"但是", "不过", "然而", "可是"}

// Validator scores character responses.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all six category checks against a response and
// aggregates them into a Summary.
func (v *Validator) Validate(character *types.Character, userMessage, response string, ctx Context, level Level) Summary {
	results := []Result{
		v.checkCharacterConsistency(character, response),
		v.checkLanguageStyle(character, response),
		v.checkEmotionalAppropriateness(character, userMessage, response),
		v.checkContentSafety(response, level),
		v.checkResponseQuality(response),
		v.checkContextRelevance(userMessage, response, ctx),
	}
	return summarize(results)
}

func (v *Validator) checkCharacterConsistency(character *types.Character, response string) Result {
	var issues, suggestions []string
	score := 1.0

	for _, word := range character.Constraints.ForbiddenWords {
		if word != "" && strings.Contains(response, word) {
			issues = append(issues, "使用了角色禁用词汇: '"+word+"'")
			score -= 0.2
			suggestions = append(suggestions, "移除或替换词汇 '"+word+"'")
		}
	}

	preferred := character.Constraints.PreferredExpressions
	if len(preferred) > 0 && utf8.RuneCountInString(response) > 20 && !containsAny(response, preferred) {
		issues = append(issues, "未使用角色特色表达")
		score -= 0.1
		head := preferred
		if len(head) > 3 {
			head = head[:3]
		}
		suggestions = append(suggestions, "考虑使用: "+strings.Join(head, ", "))
	}

	if utf8.RuneCountInString(response) > 30 && !reflectsTraits(response, character.CoreTraits()) {
		issues = append(issues, "回应未体现角色核心特质")
		score -= 0.15
		suggestions = append(suggestions, "调整回应以更好地体现角色性格")
	}

	violations := constraintViolations(response, character.Constraints.MustDo, character.Constraints.MustNotDo)
	if len(violations) > 0 {
		issues = append(issues, violations...)
		score -= float64(len(violations)) * 0.1
		suggestions = append(suggestions, "确保遵守角色行为约束")
	}

	return newResult(CategoryCharacterConsistency, score, issues, suggestions)
}

func (v *Validator) checkLanguageStyle(character *types.Character, response string) Result {
	var issues, suggestions []string
	score := 1.0

	patterns := character.EffectiveSpeechPatterns()
	if len(patterns) > 0 && utf8.RuneCountInString(response) > 15 {
		lower := strings.ToLower(response)
		matched := false
		for _, pattern := range patterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, "语言模式不符合角色特色")
			score -= 0.2
			suggestions = append(suggestions, "使用更符合角色的语言模式")
		}
	}

	if tone := toneConsistency(response, character.Tone); tone < 0.7 {
		issues = append(issues, "语调与角色不符")
		score -= (1.0 - tone) * 0.3
		suggestions = append(suggestions, "调整语调以匹配角色特性")
	}

	if diff := abs(formalityLevel(response) - expectedFormality(character.Tone)); diff > 0.3 {
		issues = append(issues, "正式程度与角色期待不符")
		score -= diff * 0.2
		suggestions = append(suggestions, "调整语言的正式程度")
	}

	return newResult(CategoryLanguageStyle, score, issues, suggestions)
}

func (v *Validator) checkEmotionalAppropriateness(character *types.Character, userMessage, response string) Result {
	var issues, suggestions []string
	score := 1.0

	userEmotion := detectMessageEmotion(userMessage)
	responseEmotion := detectMessageEmotion(response)

	if fit := emotionFit(userEmotion, responseEmotion); fit < 0.6 {
		issues = append(issues, "回应情感与用户情感或角色特性不匹配")
		score -= (1.0 - fit) * 0.4
		suggestions = append(suggestions, "调整回应的情感表达")
	}

	// 内向角色不应过于激动
	if emotionIntensity(response) > 0.8 && character.PersonalityDeep.BigFive.ExtraversionOrDefault() < 5 {
		issues = append(issues, "情感表达过于强烈，不符合角色性格")
		score -= 0.2
		suggestions = append(suggestions, "降低情感表达的强度")
	}

	return newResult(CategoryEmotionalAppropriateness, score, issues, suggestions)
}

func (v *Validator) checkContentSafety(response string, level Level) Result {
	var issues, suggestions []string
	score := 1.0

	for _, pattern := range inappropriatePatterns {
		if pattern.MatchString(response) {
			issues = append(issues, "包含潜在不当内容")
			score -= 0.3
			suggestions = append(suggestions, "移除不当内容")
			break
		}
	}

	if level == LevelStrict {
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(response, keyword) {
				issues = append(issues, "涉及敏感话题: "+keyword)
				score -= 0.2
				suggestions = append(suggestions, "避免或更谨慎地处理敏感话题")
			}
		}
	}

	if containsAny(response, ageInappropriateKeywords) {
		issues = append(issues, "内容可能不适合全年龄段")
		score -= 0.25
		suggestions = append(suggestions, "确保内容适合全年龄段用户")
	}

	return newResult(CategoryContentSafety, score, issues, suggestions)
}

func (v *Validator) checkResponseQuality(response string) Result {
	var issues, suggestions []string
	score := 1.0

	trimmed := utf8.RuneCountInString(strings.TrimSpace(response))
	if trimmed < 5 {
		issues = append(issues, "回应过短，缺乏内容")
		score -= 0.4
		suggestions = append(suggestions, "增加回应内容的丰富性")
	} else if utf8.RuneCountInString(response) > 500 {
		issues = append(issues, "回应过长，可能冗余")
		score -= 0.1
		suggestions = append(suggestions, "简化回应内容")
	}

	if repetition := repetitionRatio(response); repetition > 0.3 {
		issues = append(issues, "回应内容存在重复")
		score -= repetition * 0.3
		suggestions = append(suggestions, "减少重复表达")
	}

	if logic := logicalConsistency(response); logic < 0.7 {
		issues = append(issues, "回应逻辑不够清晰")
		score -= (1.0 - logic) * 0.2
		suggestions = append(suggestions, "改善回应的逻辑结构")
	}

	if value := informationValue(response); value < 0.5 {
		issues = append(issues, "回应信息价值较低")
		score -= (1.0 - value) * 0.2
		suggestions = append(suggestions, "提供更有价值的回应内容")
	}

	return newResult(CategoryResponseQuality, score, issues, suggestions)
}

func (v *Validator) checkContextRelevance(userMessage, response string, ctx Context) Result {
	var issues, suggestions []string
	score := 1.0

	if relevance := topicRelevance(userMessage, response); relevance < 0.6 {
		issues = append(issues, "回应与用户话题相关性不足")
		score -= (1.0 - relevance) * 0.3
		suggestions = append(suggestions, "确保回应与用户话题相关")
	}

	if coherence := contextCoherence(response, ctx); coherence < 0.7 {
		issues = append(issues, "回应与上下文连贯性不足")
		score -= (1.0 - coherence) * 0.2
		suggestions = append(suggestions, "改善与上下文的连贯性")
	}

	return newResult(CategoryContextRelevance, score, issues, suggestions)
}

func newResult(category Category, score float64, issues, suggestions []string) Result {
	threshold := rules[category].minScore
	if score < 0 {
		score = 0
	}
	return Result{
		Category:    category,
		Passed:      score >= threshold,
		Score:       score,
		Issues:      issues,
		Suggestions: suggestions,
		Severity:    severityOf(score, threshold),
	}
}

func severityOf(score, threshold float64) Severity {
	switch {
	case score >= threshold:
		return SeverityLow
	case score >= threshold-0.2:
		return SeverityMedium
	case score >= threshold-0.4:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func summarize(results []Result) Summary {
	var weighted, totalWeight float64
	for _, r := range results {
		w := rules[r.Category].weight
		weighted += r.Score * w
		totalWeight += w
	}
	overall := 0.0
	if totalWeight > 0 {
		overall = weighted / totalWeight
	}
	passed := overall >= 0.6

	var majorIssues, recommendations []string
	critical := false
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Severity == SeverityHigh || r.Severity == SeverityCritical {
			majorIssues = append(majorIssues, r.Issues...)
		}
		if r.Severity == SeverityCritical {
			critical = true
		}
		for _, s := range r.Suggestions {
			if !seen[s] {
				seen[s] = true
				recommendations = append(recommendations, s)
			}
		}
	}

	return Summary{
		OverallScore:         overall,
		OverallPassed:        passed,
		Results:              results,
		MajorIssues:          majorIssues,
		Recommendations:      recommendations,
		RequiresRegeneration: overall < 0.4 || critical || !passed,
	}
}

func reflectsTraits(response string, traits []string) bool {
	for _, trait := range traits {
		if containsAny(response, traitIndicators[trait]) {
			return true
		}
	}
	return false
}

func constraintViolations(response string, mustDo, mustNotDo []string) []string {
	var violations []string
	lower := strings.ToLower(response)

	for _, constraint := range mustNotDo {
		if constraint != "" && strings.Contains(lower, strings.ToLower(constraint)) {
			violations = append(violations, "违反约束: "+constraint)
		}
	}

	if len(mustDo) > 0 && utf8.RuneCountInString(response) > 20 {
		met := false
		for _, constraint := range mustDo {
			if strings.Contains(lower, strings.ToLower(constraint)) {
				met = true
				break
			}
		}
		if !met {
			violations = append(violations, "未满足必要行为约束")
		}
	}

	return violations
}

func detectMessageEmotion(message string) string {
	for _, group := range responseEmotions {
		if containsAny(message, group.keywords) {
			return group.name
		}
	}
	return "neutral"
}

func emotionFit(userEmotion, responseEmotion string) float64 {
	switch {
	case userEmotion == "sad" && (responseEmotion == "happy" || responseEmotion == "angry"):
		return 0.3
	case userEmotion == "happy" && responseEmotion == "angry":
		return 0.4
	default:
		return 0.8
	}
}

func emotionIntensity(response string) float64 {
	markers := strings.Count(response, "!") + strings.Count(response, "！")
	total := utf8.RuneCountInString(response)
	if total == 0 {
		total = 1
	}
	var caps int
	for _, r := range response {
		if unicode.IsUpper(r) {
			caps++
		}
	}
	intensity := float64(markers)*0.2 + float64(caps)/float64(total)*2
	if intensity > 1 {
		intensity = 1
	}
	return intensity
}

func repetitionRatio(response string) float64 {
	words := strings.Fields(response)
	if len(words) < 3 {
		return 0
	}
	counts := make(map[string]int)
	for _, w := range words {
		counts[w]++
	}
	repeated := 0
	for _, c := range counts {
		if c > 1 {
			repeated++
		}
	}
	return float64(repeated) / float64(len(words))
}

// logicalConsistency degrades when a response stacks too many
// contradictory transitions.
func logicalConsistency(response string) float64 {
	transitions := 0
	for _, marker := range transitionMarkers {
		transitions += strings.Count(response, marker)
	}
	if transitions > 2 {
		return 0.6
	}
	return 1.0
}

func informationValue(response string) float64 {
	length := utf8.RuneCountInString(strings.TrimSpace(response))
	switch {
	case length < 10:
		return 0.2
	case length < 30:
		return 0.5
	default:
		return 0.8
	}
}

func toneConsistency(response, tone string) float64 {
	if tone == "" {
		return 1.0
	}
	for keyword, indicators := range toneIndicators {
		if !strings.Contains(tone, keyword) {
			continue
		}
		if containsAny(response, indicators) {
			return 1.0
		}
		return 0.6
	}
	return 1.0
}

func formalityLevel(response string) float64 {
	formal := countAny(response, formalMarkers)
	casual := countAny(response, casualMarkers)
	if formal+casual == 0 {
		return 0.5
	}
	return float64(formal) / float64(formal+casual)
}

func expectedFormality(tone string) float64 {
	switch {
	case strings.Contains(tone, "冷酷"):
		return 0.7
	case strings.Contains(tone, "温柔"):
		return 0.6
	case strings.Contains(tone, "活泼"), strings.Contains(tone, "傲娇"):
		return 0.3
	default:
		return 0.5
	}
}

// topicRelevance measures how many distinct word characters of the
// user's message reappear in the response.
func topicRelevance(userMessage, response string) float64 {
	distinct := make(map[rune]bool)
	for _, r := range userMessage {
		if unicode.IsLetter(r) {
			distinct[r] = true
		}
	}
	if len(distinct) < 3 {
		return 0.8
	}
	shared := 0
	for r := range distinct {
		if strings.ContainsRune(response, r) {
			shared++
		}
	}
	return 0.4 + 0.6*float64(shared)/float64(len(distinct))
}

func contextCoherence(response string, ctx Context) float64 {
	if ctx.PreviousResponse != "" && strings.TrimSpace(response) == strings.TrimSpace(ctx.PreviousResponse) {
		return 0.3
	}
	return 0.9
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func countAny(s string, substrings []string) int {
	total := 0
	for _, sub := range substrings {
		total += strings.Count(s, sub)
	}
	return total
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
