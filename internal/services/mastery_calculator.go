package services

import (
	"math"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== MASTERY CALCULATOR SERVICE =====

// MasteryCalculator holds the scoring primitives shared by the evaluator and
// the scheduler. All methods are pure; thresholds and penalty constants come
// from CalculatorConfig.
type MasteryCalculator interface {
	// BasicScore converts raw answer counts to a percentage in [0,100].
	BasicScore(correctAnswers, totalQuestions int) float64

	// WeightedScore combines per-question scores with weights, falling back
	// to the unweighted mean when the weight array is unusable.
	WeightedScore(questionScores, weights []float64) float64

	// ApplyPenalties deducts hint and time-overrun penalties from a base
	// score, clamped to [0,100] and rounded to 2 decimals.
	ApplyPenalties(baseScore float64, hintsUsed, timeSpentSeconds, timeLimitSeconds int) float64

	// MasteryStatus evaluates a percentage score against the threshold for
	// one content type.
	MasteryStatus(score float64, contentType models.MasteryContentType) *models.MasteryStatus

	// Exercise-type answer scorers
	ScoreMultipleChoice(expected, actual string) AnswerScore
	ScoreFillInBlank(expected, actual string) AnswerScore
	ScoreDragAndDrop(expected, actual []string) AnswerScore
	ScoreSentenceBuilder(expected, actual string) AnswerScore
}

type masteryCalculator struct {
	config config.CalculatorConfig
}

func NewMasteryCalculator(cfg config.CalculatorConfig) MasteryCalculator {
	if cfg == (config.CalculatorConfig{}) {
		cfg = config.DefaultCalculatorConfig()
	}
	return &masteryCalculator{config: cfg}
}

// ===== SCORING PRIMITIVES =====

func (c *masteryCalculator) BasicScore(correctAnswers, totalQuestions int) float64 {
	if totalQuestions <= 0 {
		return 0
	}

	score := 100 * float64(correctAnswers) / float64(totalQuestions)
	return clampPercent(score)
}

func (c *masteryCalculator) WeightedScore(questionScores, weights []float64) float64 {
	if len(questionScores) == 0 {
		return 0
	}

	// Unusable weights degrade to the unweighted mean, not an error
	if len(weights) != len(questionScores) {
		return c.unweightedMean(questionScores)
	}

	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}
	if weightSum <= 0 {
		return c.unweightedMean(questionScores)
	}

	var weighted float64
	for i, score := range questionScores {
		weighted += score * weights[i]
	}
	return clampPercent(weighted / weightSum)
}

func (c *masteryCalculator) unweightedMean(scores []float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return clampPercent(sum / float64(len(scores)))
}

func (c *masteryCalculator) ApplyPenalties(baseScore float64, hintsUsed, timeSpentSeconds, timeLimitSeconds int) float64 {
	penalty := c.config.HintPenalty * float64(hintsUsed)

	if timeLimitSeconds > 0 && timeSpentSeconds > timeLimitSeconds {
		overrunRatio := float64(timeSpentSeconds-timeLimitSeconds) / float64(timeLimitSeconds)
		timePenalty := math.Min(c.config.MaxTimePenalty, c.config.TimePenaltyRate*overrunRatio)
		penalty += timePenalty
	}

	result := clampPercent(baseScore - penalty)
	return math.Round(result*100) / 100
}

// ===== MASTERY EVALUATION =====

func (c *masteryCalculator) MasteryStatus(score float64, contentType models.MasteryContentType) *models.MasteryStatus {
	score = clampPercent(score)
	fraction := score / 100

	status := &models.MasteryStatus{
		Score:                 score,
		ContentType:           contentType,
		AchievedMastery:       fraction >= c.thresholdFor(contentType),
		Level:                 c.levelFor(fraction),
		NeedsRemediation:      fraction < c.config.RemediationCutoff,
		EligibleForEnrichment: fraction >= c.config.EnrichmentCutoff,
	}
	status.Recommendations = c.recommendationsFor(status)

	return status
}

func (c *masteryCalculator) thresholdFor(contentType models.MasteryContentType) float64 {
	switch contentType {
	case models.MasteryContentLesson:
		return c.config.LessonThreshold
	case models.MasteryContentUnit:
		return c.config.UnitThreshold
	case models.MasteryContentObjective:
		return c.config.ObjectiveThreshold
	case models.MasteryContentRetention:
		return c.config.RetentionThreshold
	default:
		return c.config.ObjectiveThreshold
	}
}

func (c *masteryCalculator) levelFor(fraction float64) models.MasteryLevel {
	switch {
	case fraction >= c.config.AdvancedBand:
		return models.MasteryLevelAdvanced
	case fraction >= c.config.ProficientBand:
		return models.MasteryLevelProficient
	case fraction >= c.config.ApproachingBand:
		return models.MasteryLevelApproaching
	default:
		return models.MasteryLevelNone
	}
}

// recommendationsFor derives the advice strings from the mastery flags.
// Deterministic so tests can match exactly.
func (c *masteryCalculator) recommendationsFor(status *models.MasteryStatus) []string {
	var recommendations []string

	switch {
	case status.NeedsRemediation:
		recommendations = append(recommendations,
			"Review foundational material before the next attempt",
			"Work through guided practice with step-by-step feedback")
	case !status.AchievedMastery:
		recommendations = append(recommendations,
			"Continue targeted practice on missed items")
	case status.EligibleForEnrichment:
		recommendations = append(recommendations,
			"Ready for enrichment activities",
			"Advance to the next content unit")
	default:
		recommendations = append(recommendations,
			"Maintain mastery with scheduled retention reviews")
	}

	return recommendations
}

// ===== HELPER FUNCTIONS =====

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func clampFraction(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
