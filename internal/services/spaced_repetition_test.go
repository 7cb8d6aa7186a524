package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newAlgorithmCard() *models.ReviewCard {
	return &models.ReviewCard{
		ID:           "card-1",
		UserID:       "user-1",
		ObjectiveID:  "obj-1",
		IntervalDays: 1,
		Repetitions:  0,
		EaseFactor:   2.5,
		DueDate:      testNow,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func TestSpacedRepetition_ClassicProgression(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()

	// First successful review
	card = sr.NextState(card, 0.9, nil, testNow)
	assert.Equal(t, 1, card.Repetitions)
	assert.Equal(t, float64(1), card.IntervalDays)
	assert.Equal(t, 1, card.TotalReviews)
	assert.Equal(t, 1, card.SuccessfulReviews)

	// Second successful review
	card = sr.NextState(card, 0.85, nil, testNow.AddDate(0, 0, 1))
	assert.Equal(t, 2, card.Repetitions)
	assert.Equal(t, float64(6), card.IntervalDays)
	assert.InDelta(t, 2.5, card.EaseFactor, 1e-9)

	// Third successful review grows by the ease factor
	card = sr.NextState(card, 0.9, nil, testNow.AddDate(0, 0, 7))
	assert.Equal(t, 3, card.Repetitions)
	assert.Equal(t, float64(15), card.IntervalDays)

	// Failure contracts the interval instead of resetting it
	card = sr.NextState(card, 0.4, nil, testNow.AddDate(0, 0, 22))
	assert.Equal(t, 0, card.Repetitions)
	assert.Equal(t, float64(3), card.IntervalDays)
	assert.Equal(t, 4, card.TotalReviews)
	assert.Equal(t, 3, card.SuccessfulReviews)
	assert.InDelta(t, 2.18, card.EaseFactor, 1e-9)
}

func TestSpacedRepetition_InputCardNotMutated(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()

	next := sr.NextState(card, 0.9, nil, testNow)

	require.NotSame(t, card, next)
	assert.Equal(t, 0, card.Repetitions)
	assert.Equal(t, 0, card.TotalReviews)
	assert.Nil(t, card.LastReview)
	assert.Nil(t, card.LastScore)
}

func TestSpacedRepetition_DueDateFollowsInterval(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()
	card.Repetitions = 1

	next := sr.NextState(card, 0.9, nil, testNow)

	assert.Equal(t, float64(6), next.IntervalDays)
	assert.Equal(t, testNow.Add(6*24*time.Hour), next.DueDate)
	require.NotNil(t, next.LastReview)
	assert.Equal(t, testNow, *next.LastReview)
	require.NotNil(t, next.LastScore)
	assert.Equal(t, 0.9, *next.LastScore)
}

func TestSpacedRepetition_ResponseTimeShiftsQuality(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())

	base := newAlgorithmCard()
	base.EaseFactor = 2.0

	// Quality 4 leaves a 2.0 ease unchanged
	steady := sr.NextState(base, 0.85, nil, testNow)
	assert.InDelta(t, 2.0, steady.EaseFactor, 1e-9)

	// A very fast answer earns a half-point quality bonus
	fast := sr.NextState(base, 0.85, floatPtr(2), testNow)
	assert.InDelta(t, 2.055, fast.EaseFactor, 1e-9)

	// A very slow answer costs half a point
	slow := sr.NextState(base, 0.85, floatPtr(45), testNow)
	assert.InDelta(t, 1.935, slow.EaseFactor, 1e-9)
}

func TestSpacedRepetition_FailureFloorsAtOneDay(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()
	card.IntervalDays = 1
	card.Repetitions = 1

	next := sr.NextState(card, 0.1, nil, testNow)

	assert.Equal(t, 0, next.Repetitions)
	assert.Equal(t, float64(1), next.IntervalDays)
}

func TestSpacedRepetition_IntervalModifierScalesResult(t *testing.T) {
	opts := config.DefaultSchedulingOptions()
	opts.IntervalModifier = 2.0
	sr := NewSpacedRepetition(opts)

	card := newAlgorithmCard()
	card.Repetitions = 2
	card.IntervalDays = 6

	next := sr.NextState(card, 0.9, nil, testNow)

	assert.Equal(t, float64(30), next.IntervalDays)
}

func TestSpacedRepetition_MaxIntervalClamp(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()
	card.Repetitions = 5
	card.IntervalDays = 300

	next := sr.NextState(card, 0.95, nil, testNow)

	assert.Equal(t, float64(365), next.IntervalDays)
}

// The transition must keep ease and interval inside their domains for any
// score and any valid starting card.
func TestSpacedRepetition_StateBounds(t *testing.T) {
	opts := config.DefaultSchedulingOptions()
	sr := NewSpacedRepetition(opts)

	startCards := []*models.ReviewCard{
		newAlgorithmCard(),
		{UserID: "u", ObjectiveID: "o", IntervalDays: 1, EaseFactor: 1.3},
		{UserID: "u", ObjectiveID: "o", IntervalDays: 180, EaseFactor: 2.5, Repetitions: 8},
		{UserID: "u", ObjectiveID: "o", IntervalDays: 365, EaseFactor: 2.5, Repetitions: 12},
	}

	for _, start := range startCards {
		for score := 0.0; score <= 1.0; score += 0.05 {
			next := sr.NextState(start, score, nil, testNow)

			require.GreaterOrEqual(t, next.EaseFactor, 1.3, "score %.2f", score)
			require.LessOrEqual(t, next.EaseFactor, 2.5, "score %.2f", score)
			require.GreaterOrEqual(t, next.IntervalDays, opts.MinInterval, "score %.2f", score)
			require.LessOrEqual(t, next.IntervalDays, opts.MaxInterval, "score %.2f", score)
			require.LessOrEqual(t, next.SuccessfulReviews, next.TotalReviews)
		}
	}
}

func TestSpacedRepetition_PathologicalScoresAreClamped(t *testing.T) {
	sr := NewSpacedRepetition(config.DefaultSchedulingOptions())
	card := newAlgorithmCard()

	over := sr.NextState(card, 1.7, nil, testNow)
	require.NotNil(t, over.LastScore)
	assert.Equal(t, 1.0, *over.LastScore)
	assert.Equal(t, 1, over.Repetitions)

	under := sr.NextState(card, -3, nil, testNow)
	require.NotNil(t, under.LastScore)
	assert.Equal(t, 0.0, *under.LastScore)
	assert.Equal(t, 0, under.Repetitions)
}

func TestSpacedRepetition_BeginnerContextThreshold(t *testing.T) {
	sr := NewSpacedRepetition(config.SchedulingOptionsForContext("beginner"))

	// 0.75 fails under the default threshold but succeeds for beginners
	assert.True(t, sr.IsSuccess(0.75))

	standard := NewSpacedRepetition(config.DefaultSchedulingOptions())
	assert.False(t, standard.IsSuccess(0.75))
}

// ===== HELPER FUNCTIONS =====

func floatPtr(v float64) *float64 {
	return &v
}
