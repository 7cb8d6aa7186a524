package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreMultipleChoice(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name     string
		expected string
		actual   string
		credit   float64
		correct  bool
	}{
		{"exact match", "option A", "option A", 1, true},
		{"case insensitive", "Option A", "option a", 1, true},
		{"surrounding whitespace ignored", "option A", "  option A  ", 1, true},
		{"wrong answer", "option A", "option B", 0, false},
		{"empty actual", "option A", "", 0, false},
		{"both empty", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.ScoreMultipleChoice(tt.expected, tt.actual)
			assert.Equal(t, tt.credit, score.Credit)
			assert.Equal(t, tt.correct, score.Correct)
		})
	}
}

func TestScoreFillInBlank(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name     string
		expected string
		actual   string
		credit   float64
		correct  bool
	}{
		{"exact match", "photosynthesis", "photosynthesis", 1, true},
		{"case insensitive match", "Photosynthesis", "photosynthesis", 1, true},
		{"near miss earns half credit", "colour", "color", 0.5, false},
		{"distant answer earns nothing", "photosynthesis", "respiration", 0, false},
		{"empty actual", "photosynthesis", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.ScoreFillInBlank(tt.expected, tt.actual)
			assert.Equal(t, tt.credit, score.Credit)
			assert.Equal(t, tt.correct, score.Correct)
		})
	}
}

func TestScoreDragAndDrop(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name     string
		expected []string
		actual   []string
		credit   float64
		correct  bool
	}{
		{
			name:     "perfect order",
			expected: []string{"a", "b", "c", "d", "e"},
			actual:   []string{"a", "b", "c", "d", "e"},
			credit:   1,
			correct:  true,
		},
		{
			name:     "four of five passes",
			expected: []string{"a", "b", "c", "d", "e"},
			actual:   []string{"a", "b", "c", "d", "x"},
			credit:   0.8,
			correct:  true,
		},
		{
			name:     "three of five fails",
			expected: []string{"a", "b", "c", "d", "e"},
			actual:   []string{"a", "b", "c", "x", "y"},
			credit:   0.6,
			correct:  false,
		},
		{
			name:     "extra items dilute the ratio",
			expected: []string{"a", "b"},
			actual:   []string{"a", "b", "c", "d"},
			credit:   0.5,
			correct:  false,
		},
		{
			name:     "empty answer",
			expected: []string{"a", "b"},
			actual:   nil,
			credit:   0,
			correct:  false,
		},
		{
			name:     "both empty",
			expected: nil,
			actual:   nil,
			credit:   0,
			correct:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.ScoreDragAndDrop(tt.expected, tt.actual)
			assert.InDelta(t, tt.credit, score.Credit, 1e-9)
			assert.Equal(t, tt.correct, score.Correct)
		})
	}
}

func TestScoreSentenceBuilder(t *testing.T) {
	calc := newTestCalculator()

	t.Run("exact sentence is fully correct", func(t *testing.T) {
		score := calc.ScoreSentenceBuilder("The cat sat.", "The cat sat.")
		assert.InDelta(t, 1.0, score.Credit, 1e-9)
		assert.True(t, score.Correct)
	})

	t.Run("missing capitalization drops one component", func(t *testing.T) {
		score := calc.ScoreSentenceBuilder("The cat sat.", "the cat sat.")
		// word order 1, punctuation 1, capitalization 0
		assert.InDelta(t, 2.0/3.0, score.Credit, 1e-9)
		assert.False(t, score.Correct)
	})

	t.Run("wrong word order lowers overlap", func(t *testing.T) {
		score := calc.ScoreSentenceBuilder("The cat sat.", "Sat the cat.")
		// no positional word matches, punctuation 1, capitalization 1
		assert.InDelta(t, 2.0/3.0, score.Credit, 1e-9)
		assert.False(t, score.Correct)
	})

	t.Run("empty answer earns nothing", func(t *testing.T) {
		score := calc.ScoreSentenceBuilder("The cat sat.", "")
		assert.Equal(t, 0.0, score.Credit)
		assert.False(t, score.Correct)
	})
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		a        string
		b        string
		expected float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"color", "colour", 1 - 1.0/6.0},
		{"cat", "dog", 0},
		{"abc", "", 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, levenshteinSimilarity(tt.a, tt.b), 1e-9,
			"%q vs %q", tt.a, tt.b)
	}
}
