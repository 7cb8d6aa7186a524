package services

import (
	"strings"
	"unicode"
)

// ===== EXERCISE ANSWER SCORING =====

// AnswerScore is the graded outcome of a single exercise answer. Credit is
// fractional in [0,1]; Correct means full credit.
type AnswerScore struct {
	Credit  float64 `json:"credit"`
	Correct bool    `json:"correct"`
}

const (
	// partialCreditSimilarity is the Levenshtein similarity cutoff for half
	// credit on fill-in-blank answers.
	partialCreditSimilarity = 0.8

	// orderedPassRatio is the positional-match ratio at which ordered and
	// sentence answers count as correct.
	orderedPassRatio = 0.8
)

// ScoreMultipleChoice grades by trimmed, case-insensitive equality.
func (c *masteryCalculator) ScoreMultipleChoice(expected, actual string) AnswerScore {
	if normalizeAnswer(expected) == normalizeAnswer(actual) && normalizeAnswer(expected) != "" {
		return AnswerScore{Credit: 1, Correct: true}
	}
	return AnswerScore{Credit: 0, Correct: false}
}

// ScoreFillInBlank grades exact matches at full credit and near-misses at
// half credit when the Levenshtein similarity reaches the cutoff.
func (c *masteryCalculator) ScoreFillInBlank(expected, actual string) AnswerScore {
	normExpected := normalizeAnswer(expected)
	normActual := normalizeAnswer(actual)

	if normExpected == "" {
		return AnswerScore{Credit: 0, Correct: false}
	}
	if normExpected == normActual {
		return AnswerScore{Credit: 1, Correct: true}
	}
	if levenshteinSimilarity(normExpected, normActual) >= partialCreditSimilarity {
		return AnswerScore{Credit: 0.5, Correct: false}
	}
	return AnswerScore{Credit: 0, Correct: false}
}

// ScoreDragAndDrop grades an ordered placement by positional match ratio.
func (c *masteryCalculator) ScoreDragAndDrop(expected, actual []string) AnswerScore {
	maxLen := len(expected)
	if len(actual) > maxLen {
		maxLen = len(actual)
	}
	if maxLen == 0 {
		return AnswerScore{Credit: 0, Correct: false}
	}

	matches := 0
	for i := range expected {
		if i < len(actual) && normalizeAnswer(expected[i]) == normalizeAnswer(actual[i]) {
			matches++
		}
	}

	ratio := float64(matches) / float64(maxLen)
	return AnswerScore{Credit: ratio, Correct: ratio >= orderedPassRatio}
}

// ScoreSentenceBuilder blends word-order overlap with two coarse grammar
// checks, punctuation count and leading capitalization, averaged equally.
func (c *masteryCalculator) ScoreSentenceBuilder(expected, actual string) AnswerScore {
	expectedWords := strings.Fields(strings.ToLower(expected))
	actualWords := strings.Fields(strings.ToLower(actual))

	maxWords := len(expectedWords)
	if len(actualWords) > maxWords {
		maxWords = len(actualWords)
	}
	if maxWords == 0 {
		return AnswerScore{Credit: 0, Correct: false}
	}

	matches := 0
	for i := range expectedWords {
		if i < len(actualWords) && expectedWords[i] == actualWords[i] {
			matches++
		}
	}
	orderRatio := float64(matches) / float64(maxWords)

	punctuationScore := 0.0
	if countPunctuation(expected) == countPunctuation(actual) {
		punctuationScore = 1.0
	}

	capitalizationScore := 0.0
	if leadingCapMatches(expected, actual) {
		capitalizationScore = 1.0
	}

	credit := (orderRatio + punctuationScore + capitalizationScore) / 3
	return AnswerScore{Credit: credit, Correct: credit >= orderedPassRatio}
}

// ===== STRING HELPERS =====

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func countPunctuation(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsPunct(r) {
			count++
		}
	}
	return count
}

func leadingCapMatches(a, b string) bool {
	aRunes := []rune(strings.TrimSpace(a))
	bRunes := []rune(strings.TrimSpace(b))
	if len(aRunes) == 0 || len(bRunes) == 0 {
		return len(aRunes) == len(bRunes)
	}
	return unicode.IsUpper(aRunes[0]) == unicode.IsUpper(bRunes[0])
}

// levenshteinSimilarity maps edit distance to [0,1], 1 meaning identical.
func levenshteinSimilarity(a, b string) float64 {
	aRunes := []rune(a)
	bRunes := []rune(b)

	maxLen := len(aRunes)
	if len(bRunes) > maxLen {
		maxLen = len(bRunes)
	}
	if maxLen == 0 {
		return 1
	}

	distance := levenshteinDistance(aRunes, bRunes)
	return 1 - float64(distance)/float64(maxLen)
}

// levenshteinDistance is the classic two-row dynamic program over runes.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			deletion := previous[j] + 1
			insertion := current[j-1] + 1
			substitution := previous[j-1] + cost

			min := deletion
			if insertion < min {
				min = insertion
			}
			if substitution < min {
				min = substitution
			}
			current[j] = min
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}
