// Package security holds the request-facing guards: content
// filtering, rate limiting, and token auth.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/project-chara/internal/errs"
)

// 基础敏感词列表
var forbiddenWords = []string{"暴力", "色情", "赌博", "毒品"}

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(攻击|伤害|杀害)`),
	regexp.MustCompile(`(?i)(18禁|成人|色情)`),
}

// ContentFilter rejects unsafe or over-length user input before it
// reaches the pipeline. Rejection is terminal: no state is touched for
// a filtered message.
type ContentFilter struct {
	maxMessageLength int
	enabled          bool
}

// NewContentFilter returns a ContentFilter.
func NewContentFilter(maxMessageLength int, enabled bool) *ContentFilter {
	if maxMessageLength <= 0 {
		maxMessageLength = 2000
	}
	return &ContentFilter{maxMessageLength: maxMessageLength, enabled: enabled}
}

// Check returns nil when content may enter the pipeline.
func (f *ContentFilter) Check(content string) error {
	if !f.enabled {
		return nil
	}

	if length := utf8.RuneCountInString(content); length > f.maxMessageLength {
		return &errs.MessageTooLongError{Length: length, MaxLength: f.maxMessageLength}
	}

	lower := strings.ToLower(content)
	for _, word := range forbiddenWords {
		if strings.Contains(lower, word) {
			return &errs.ContentFilteredError{Reason: "包含敏感词: " + word}
		}
	}
	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(content) {
			return &errs.ContentFilteredError{Reason: "匹配敏感模式: " + pattern.String()}
		}
	}
	return nil
}

// Filter validates content and returns it trimmed.
func (f *ContentFilter) Filter(content string) (string, error) {
	if err := f.Check(content); err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}
