package services

import (
	"math"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== SPACED REPETITION ALGORITHM =====

// SpacedRepetition is the interval-update transition applied after every
// completed review. NextState is pure: the input card is never mutated and
// the same inputs always produce the same next card.
type SpacedRepetition interface {
	NextState(card *models.ReviewCard, score float64, responseTimeSeconds *float64, now time.Time) *models.ReviewCard
	IsSuccess(score float64) bool
}

type spacedRepetition struct {
	options config.SchedulingOptions
}

func NewSpacedRepetition(options config.SchedulingOptions) SpacedRepetition {
	return &spacedRepetition{options: options.Sanitized()}
}

const (
	// secondSuccessInterval is the classic SM-2 seed for the second
	// successful repetition.
	secondSuccessInterval = 6.0

	// failureContraction shrinks the interval on failure instead of a full
	// reset, preserving some spacing memory.
	failureContraction = 0.2

	fastResponseSeconds = 5.0
	slowResponseSeconds = 30.0
)

func (s *spacedRepetition) IsSuccess(score float64) bool {
	return clampFraction(score) >= s.options.PerformanceThreshold
}

func (s *spacedRepetition) NextState(card *models.ReviewCard, score float64, responseTimeSeconds *float64, now time.Time) *models.ReviewCard {
	next := card.Clone()
	score = clampFraction(score)

	// Ease adjusts on every review, success or failure
	quality := qualityFor(score, responseTimeSeconds)
	next.EaseFactor = clampEase(next.EaseFactor + 0.1 - (5-quality)*(0.08+(5-quality)*0.02))

	var interval float64
	if s.IsSuccess(score) {
		switch next.Repetitions {
		case 0:
			interval = s.options.InitialInterval
		case 1:
			interval = secondSuccessInterval
		default:
			interval = math.Round(next.IntervalDays * next.EaseFactor)
		}
		next.Repetitions++
		next.SuccessfulReviews++
	} else {
		next.Repetitions = 0
		interval = math.Max(1, math.Round(next.IntervalDays*failureContraction))
	}

	// Modifier applies before the clamp so the bounds hold for any modifier
	interval = math.Round(interval * s.options.IntervalModifier)
	interval = math.Max(s.options.MinInterval, math.Min(s.options.MaxInterval, interval))

	reviewedAt := now
	next.IntervalDays = interval
	next.DueDate = now.Add(daysToDuration(interval))
	next.LastReview = &reviewedAt
	next.LastScore = &score
	next.TotalReviews++
	next.UpdatedAt = now

	return next
}

// qualityFor maps a fractional score and optional response time to the
// classic 0..5 quality scale. Very fast answers earn a half-point bonus,
// very slow ones a half-point penalty.
func qualityFor(score float64, responseTimeSeconds *float64) float64 {
	var quality float64
	switch {
	case score >= 0.9:
		quality = 5
	case score >= 0.8:
		quality = 4
	case score >= 0.6:
		quality = 3
	case score >= 0.4:
		quality = 2
	case score >= 0.2:
		quality = 1
	default:
		quality = 0
	}

	if responseTimeSeconds != nil {
		if *responseTimeSeconds < fastResponseSeconds {
			quality += 0.5
		} else if *responseTimeSeconds > slowResponseSeconds {
			quality -= 0.5
		}
	}

	return math.Max(0, math.Min(5, quality))
}

func clampEase(v float64) float64 {
	return math.Max(1.3, math.Min(2.5, v))
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
