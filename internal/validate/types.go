// Package validate scores generated character responses across six
// weighted categories and decides whether a response needs to be
// regenerated.
package validate

// Level controls how strict the validation pass is.
type Level string

const (
	LevelStrict  Level = "strict"
	LevelNormal  Level = "normal"
	LevelLenient Level = "lenient"
)

// Category names one validated dimension of a response.
type Category string

const (
	CategoryCharacterConsistency     Category = "character_consistency"
	CategoryLanguageStyle            Category = "language_style"
	CategoryEmotionalAppropriateness Category = "emotional_appropriateness"
	CategoryContentSafety            Category = "content_safety"
	CategoryResponseQuality          Category = "response_quality"
	CategoryContextRelevance         Category = "context_relevance"
)

// Severity grades how far a category fell below its passing score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rule fixes a category's contribution to the overall score and its
// passing threshold.
type rule struct {
	weight   float64
	minScore float64
}

var rules = map[Category]rule{
	CategoryCharacterConsistency:     {weight: 0.25, minScore: 0.7},
	CategoryLanguageStyle:            {weight: 0.20, minScore: 0.6},
	CategoryEmotionalAppropriateness: {weight: 0.20, minScore: 0.6},
	CategoryContentSafety:            {weight: 0.15, minScore: 0.8},
	CategoryResponseQuality:          {weight: 0.15, minScore: 0.6},
	CategoryContextRelevance:         {weight: 0.05, minScore: 0.5},
}

// Result is the outcome of one category check.
type Result struct {
	Category    Category `json:"category"`
	Passed      bool     `json:"passed"`
	Score       float64  `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Severity    Severity `json:"severity"`
}

// Summary aggregates all category results for one response.
type Summary struct {
	OverallScore         float64  `json:"overall_score"`
	OverallPassed        bool     `json:"overall_passed"`
	Results              []Result `json:"validation_results"`
	MajorIssues          []string `json:"major_issues"`
	Recommendations      []string `json:"recommendations"`
	RequiresRegeneration bool     `json:"requires_regeneration"`
}

// Context carries the conversation signals the validator can compare a
// response against.
type Context struct {
	PreviousResponse string
	CurrentTopic     string
}
