// Package refusal classifies inbound text against four refusal categories
// before the Conductor's core handling runs, so the Router can short-circuit
// without ever reaching the isolation runner.
package refusal

import "strings"

// Category priority order, highest first: a text matching multiple
// categories is reported under the highest-priority one.
const (
	CategoryHarmful        = "harmful_requests"
	CategoryPersonalInfo   = "personal_info"
	CategoryRomantic       = "romantic"
	CategoryInappropriate  = "inappropriate_content"
)

var categoryPriority = []string{
	CategoryHarmful,
	CategoryPersonalInfo,
	CategoryRomantic,
	CategoryInappropriate,
}

var defaultConfidence = map[string]float64{
	CategoryHarmful:       0.95,
	CategoryPersonalInfo:  0.85,
	CategoryRomantic:      0.7,
	CategoryInappropriate: 0.75,
}

var defaultPatterns = map[string][]string{
	CategoryHarmful: {
		"how to make a bomb", "how to make a weapon", "kill myself", "kill someone",
		"synthesize a poison", "build an explosive", "hurt myself", "harm myself",
		"end my life",
	},
	CategoryPersonalInfo: {
		"social security number", "credit card number", "home address", "my password is",
	},
	CategoryRomantic: {
		"be my girlfriend", "be my boyfriend", "marry me", "i love you romantically",
	},
	CategoryInappropriate: {
		"explicit sexual", "nsfw content", "graphic violence",
	},
}

// Result is what ShouldRefuse returns.
type Result struct {
	ShouldRefuse bool
	Category     string
	Confidence   float64
	Reason       string
}

// Screener holds the category pattern sets. Patterns are case-insensitive
// substring matches, matching the teacher pack's keyword-classifier style
// (no NLP model, a fixed pattern table).
type Screener struct {
	patterns   map[string][]string
	confidence map[string]float64
}

// New constructs a Screener with the default pattern/confidence tables.
func New() *Screener {
	return &Screener{
		patterns:   defaultPatterns,
		confidence: defaultConfidence,
	}
}

// Classify classifies text against every category in priority order and
// returns the first (highest-priority) match.
func (s *Screener) Classify(text string) Result {
	lower := strings.ToLower(text)

	for _, category := range categoryPriority {
		for _, pattern := range s.patterns[category] {
			if strings.Contains(lower, pattern) {
				return Result{
					ShouldRefuse: true,
					Category:     category,
					Confidence:   s.confidence[category],
					Reason:       "matched " + category + " pattern",
				}
			}
		}
	}

	return Result{ShouldRefuse: false}
}

// ShouldRefuse satisfies router.Screener: a flattened 4-tuple view of Classify.
func (s *Screener) ShouldRefuse(text string) (shouldRefuse bool, category string, confidence float64, reason string) {
	r := s.Classify(text)
	return r.ShouldRefuse, r.Category, r.Confidence, r.Reason
}
