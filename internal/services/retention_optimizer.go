package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== RETENTION OPTIMIZER SERVICE =====

// RetentionOptimizer detects performance patterns over review history and
// turns them into schedule recommendations. Deciding and applying are
// separate operations so callers can review before anything mutates.
type RetentionOptimizer interface {
	// AnalyzePatterns classifies each objective's chronological score
	// sequence. Objectives without history emit no pattern.
	AnalyzePatterns(ctx context.Context, userID string, history []models.ReviewOutcome) ([]models.PerformancePattern, error)

	// Recommend maps patterns to concrete schedule recommendations.
	// Engagement is optional and only feeds the motivation heuristic.
	Recommend(ctx context.Context, userID string, patterns []models.PerformancePattern, engagement *models.EngagementMetrics) ([]models.OptimizationRecommendation, error)

	// ApplyRecommendations auto-applies critical and high priority
	// recommendations through the scheduler; medium and low stay advisory.
	ApplyRecommendations(ctx context.Context, userID string, recommendations []models.OptimizationRecommendation) (*models.AppliedOptimization, error)

	// OptimizeUser is the pure decide step for one user. Nothing is applied.
	OptimizeUser(ctx context.Context, userID string, history []models.ReviewOutcome, engagement *models.EngagementMetrics) (*models.OptimizationResult, error)

	// OptimizeUsers runs the decide step for many users on a bounded worker
	// pool. One user's failure never aborts the batch.
	OptimizeUsers(ctx context.Context, inputs []OptimizationInput) (*models.BatchOptimizationResult, error)
}

// OptimizationInput is one user's slice of a batch pass.
type OptimizationInput struct {
	UserID     string                    `json:"user_id" validate:"required"`
	History    []models.ReviewOutcome    `json:"history"`
	Engagement *models.EngagementMetrics `json:"engagement,omitempty"`
}

type retentionOptimizer struct {
	scheduler     RetentionScheduler
	publisher     events.EventPublisher
	logger        *slog.Logger
	serviceLogger *ServiceLogger
}

func NewRetentionOptimizer(scheduler RetentionScheduler, publisher events.EventPublisher, logger *slog.Logger) RetentionOptimizer {
	return &retentionOptimizer{
		scheduler: scheduler,
		publisher: publisher,
		logger:    logger,
		serviceLogger: NewServiceLogger(logger, LogConfig{
			Service:       "learning-progress",
			Component:     "retention-optimizer",
			EnableMetrics: true,
		}),
	}
}

const (
	masteredRecentCutoff   = 0.9
	masteredConsistency    = 0.8
	trendCutoff            = 0.1
	trendConsistency       = 0.6
	volatileConsistency    = 0.4
	remediationAverage     = 0.6
	remediationMinAttempts = 3
	overdueMotivationLimit = 10
	pauseRecommendationDay = 7
)

// ===== PATTERN ANALYSIS =====

func (o *retentionOptimizer) AnalyzePatterns(ctx context.Context, userID string, history []models.ReviewOutcome) ([]models.PerformancePattern, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	byObjective := make(map[string][]models.ReviewOutcome)
	for _, outcome := range history {
		byObjective[outcome.ObjectiveID] = append(byObjective[outcome.ObjectiveID], outcome)
	}

	patterns := make([]models.PerformancePattern, 0, len(byObjective))
	for objectiveID, outcomes := range byObjective {
		sort.Slice(outcomes, func(i, j int) bool {
			return outcomes[i].Date.Before(outcomes[j].Date)
		})

		scores := make([]float64, len(outcomes))
		for i, outcome := range outcomes {
			scores[i] = clampFraction(outcome.Score)
		}

		patterns = append(patterns, analyzeScores(userID, objectiveID, scores))
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].ObjectiveID < patterns[j].ObjectiveID
	})
	return patterns, nil
}

// analyzeScores computes trend, consistency and classification for one
// chronological score sequence.
func analyzeScores(userID, objectiveID string, scores []float64) models.PerformancePattern {
	n := len(scores)

	pattern := models.PerformancePattern{
		UserID:        userID,
		ObjectiveID:   objectiveID,
		AverageScore:  mean(scores),
		RecentScore:   recentMean(scores, 3),
		TotalAttempts: n,
		Trend:         0,
		Consistency:   1,
	}

	if n > 1 {
		// Slope of the least-squares fit over sample index, scaled to the
		// total change across the sequence and clamped to [-1, 1]
		slope := linearSlope(scores)
		pattern.Trend = clampRange(slope*float64(n-1), -1, 1)
		pattern.Consistency = math.Max(0, 1-math.Sqrt(variance(scores))/0.5)
	}

	switch {
	case pattern.RecentScore >= masteredRecentCutoff && pattern.Consistency > masteredConsistency:
		pattern.Pattern = models.PatternMastered
	case pattern.Trend > trendCutoff && pattern.Consistency > trendConsistency:
		pattern.Pattern = models.PatternImproving
	case pattern.Trend < -trendCutoff && pattern.Consistency > trendConsistency:
		pattern.Pattern = models.PatternDeclining
	case pattern.Consistency < volatileConsistency:
		pattern.Pattern = models.PatternVolatile
	default:
		pattern.Pattern = models.PatternStable
	}

	return pattern
}

// ===== RECOMMENDATION GENERATION =====

func (o *retentionOptimizer) Recommend(ctx context.Context, userID string, patterns []models.PerformancePattern, engagement *models.EngagementMetrics) ([]models.OptimizationRecommendation, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	recommendations := make([]models.OptimizationRecommendation, 0, len(patterns))
	for _, pattern := range patterns {
		switch pattern.Pattern {
		case models.PatternDeclining:
			recommendations = append(recommendations, models.OptimizationRecommendation{
				UserID:         userID,
				ObjectiveID:    pattern.ObjectiveID,
				Type:           models.RecommendationIntervalAdjustment,
				Priority:       models.PriorityHigh,
				Reason:         "declining performance trend",
				ExpectedImpact: 0.7,
				Implementation: models.RecommendationAction{
					Description:        "halve the review interval to re-expose the material sooner",
					IntervalMultiplier: 0.5,
				},
			})
		case models.PatternVolatile:
			recommendations = append(recommendations, models.OptimizationRecommendation{
				UserID:         userID,
				ObjectiveID:    pattern.ObjectiveID,
				Type:           models.RecommendationDifficultyChange,
				Priority:       models.PriorityMedium,
				Reason:         "inconsistent scores across recent reviews",
				ExpectedImpact: 0.5,
				Implementation: models.RecommendationAction{
					Description:     "ease down so intervals grow more slowly",
					EaseFactorDelta: -0.1,
				},
			})
		case models.PatternMastered:
			recommendations = append(recommendations, models.OptimizationRecommendation{
				UserID:         userID,
				ObjectiveID:    pattern.ObjectiveID,
				Type:           models.RecommendationIntervalAdjustment,
				Priority:       models.PriorityLow,
				Reason:         "consistently mastered material",
				ExpectedImpact: 0.4,
				Implementation: models.RecommendationAction{
					Description:        "stretch the review interval, retention is solid",
					IntervalMultiplier: 1.5,
				},
			})
		}

		// Fires regardless of the pattern classification
		if pattern.AverageScore < remediationAverage && pattern.TotalAttempts >= remediationMinAttempts {
			recommendations = append(recommendations, models.OptimizationRecommendation{
				UserID:         userID,
				ObjectiveID:    pattern.ObjectiveID,
				Type:           models.RecommendationRemediationFocus,
				Priority:       models.PriorityCritical,
				Reason:         fmt.Sprintf("average score %.2f across %d attempts", pattern.AverageScore, pattern.TotalAttempts),
				ExpectedImpact: 0.9,
				Implementation: models.RecommendationAction{
					Description: "pull the review forward and treat it as remediation",
				},
			})
		}
	}

	if engagement != nil && engagement.StreakDays == 0 && engagement.OverdueReviews > overdueMotivationLimit {
		recommendations = append(recommendations, models.OptimizationRecommendation{
			UserID:         userID,
			Type:           models.RecommendationSchedulePause,
			Priority:       models.PriorityMedium,
			Reason:         fmt.Sprintf("no active streak with %d overdue reviews", engagement.OverdueReviews),
			ExpectedImpact: 0.6,
			Implementation: models.RecommendationAction{
				Description: "pause new reviews briefly to let the learner catch up",
				PauseDays:   pauseRecommendationDay,
			},
		})
	}

	return recommendations, nil
}

// ===== RECOMMENDATION APPLICATION =====

func (o *retentionOptimizer) ApplyRecommendations(ctx context.Context, userID string, recommendations []models.OptimizationRecommendation) (*models.AppliedOptimization, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	now := time.Now()
	result := &models.AppliedOptimization{
		UserID:    userID,
		AppliedAt: now,
	}

	for _, recommendation := range recommendations {
		if !recommendation.Priority.AutoApplicable() || recommendation.ObjectiveID == "" {
			result.Skipped = append(result.Skipped, recommendation)
			continue
		}

		adjustment, err := o.scheduler.ApplyAdjustment(ctx, userID, recommendation.ObjectiveID, scheduleAdjustmentFor(recommendation, now))
		if err != nil {
			o.logger.Warn("Failed to apply optimization recommendation",
				"user_id", userID,
				"objective_id", recommendation.ObjectiveID,
				"type", recommendation.Type,
				"error", err)
			result.Skipped = append(result.Skipped, recommendation)
			continue
		}

		result.Applied = append(result.Applied, recommendation)
		result.Adjustments = append(result.Adjustments, *adjustment)
	}

	o.publishApplied(ctx, result)
	o.logger.Info("Applied optimization recommendations",
		"user_id", userID,
		"applied", len(result.Applied),
		"skipped", len(result.Skipped))

	return result, nil
}

// scheduleAdjustmentFor translates a recommendation into the scheduler's
// adjustment terms. Remediation focus pulls the card due immediately.
func scheduleAdjustmentFor(recommendation models.OptimizationRecommendation, now time.Time) ScheduleAdjustment {
	if recommendation.Type == models.RecommendationRemediationFocus {
		return ScheduleAdjustment{
			RescheduleAt: &now,
			Reason:       recommendation.Reason,
		}
	}
	return ScheduleAdjustment{
		IntervalMultiplier: recommendation.Implementation.IntervalMultiplier,
		EaseDelta:          recommendation.Implementation.EaseFactorDelta,
		Reason:             recommendation.Reason,
	}
}

// ===== DECIDE ORCHESTRATION =====

func (o *retentionOptimizer) OptimizeUser(ctx context.Context, userID string, history []models.ReviewOutcome, engagement *models.EngagementMetrics) (*models.OptimizationResult, error) {
	opLogger := o.serviceLogger.WithOperation(ctx, "optimize_user", userID)

	if userID == "" {
		err := ValidationErrors{*NewValidationError("user_id", "is required", userID)}
		opLogger.LogResult("", "optimization", err)
		return nil, err
	}
	if len(history) == 0 {
		opLogger.LogResult("", "optimization", ErrHistoryUnavailable)
		return nil, ErrHistoryUnavailable
	}

	patterns, err := o.AnalyzePatterns(ctx, userID, history)
	if err != nil {
		opLogger.LogResult("", "optimization", err)
		return nil, err
	}

	recommendations, err := o.Recommend(ctx, userID, patterns, engagement)
	if err != nil {
		opLogger.LogResult("", "optimization", err)
		return nil, err
	}

	opLogger.LogResult("", "optimization", nil)
	return &models.OptimizationResult{
		UserID:          userID,
		Patterns:        patterns,
		Recommendations: recommendations,
		GeneratedAt:     time.Now(),
	}, nil
}

func (o *retentionOptimizer) OptimizeUsers(ctx context.Context, inputs []OptimizationInput) (*models.BatchOptimizationResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoUsersInBatch
	}

	started := time.Now()
	results := make([]*models.OptimizationResult, len(inputs))
	failures := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			// One user's panic or failure must not take the batch down
			defer func() {
				if r := recover(); r != nil {
					o.serviceLogger.LogRecovery(gctx, "optimize_users", input.UserID, r, debug.Stack())
					failures[i] = fmt.Errorf("optimization panicked: %v", r)
				}
			}()

			result, err := o.OptimizeUser(gctx, input.UserID, input.History, input.Engagement)
			results[i] = result
			failures[i] = err
			return nil
		})
	}
	_ = g.Wait()

	batch := &models.BatchOptimizationResult{
		GeneratedAt: time.Now(),
	}
	totalRecommendations := 0
	for i, input := range inputs {
		if failures[i] != nil {
			batch.Failed++
			batch.FailedUserIDs = append(batch.FailedUserIDs, input.UserID)
			o.logger.Warn("User optimization failed",
				"user_id", input.UserID,
				"error", failures[i])
			continue
		}
		batch.Succeeded++
		batch.Results = append(batch.Results, results[i])
		totalRecommendations += len(results[i].Recommendations)
	}

	o.serviceLogger.LogBatchMetrics(ctx, "optimize_users", BatchMetrics{
		TotalDuration:   time.Since(started),
		UsersProcessed:  len(inputs),
		Succeeded:       batch.Succeeded,
		Failed:          batch.Failed,
		Recommendations: totalRecommendations,
	})

	return batch, nil
}

// ===== REGRESSION HELPERS =====

// linearSlope fits y = a + b*x over x = 0..n-1 and returns b.
func linearSlope(scores []float64) float64 {
	n := float64(len(scores))
	if n < 2 {
		return 0
	}

	meanX := (n - 1) / 2
	meanY := mean(scores)

	var numerator, denominator float64
	for i, score := range scores {
		dx := float64(i) - meanX
		numerator += dx * (score - meanY)
		denominator += dx * dx
	}
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func recentMean(scores []float64, window int) float64 {
	if len(scores) > window {
		scores = scores[len(scores)-window:]
	}
	return mean(scores)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (o *retentionOptimizer) publishApplied(ctx context.Context, result *models.AppliedOptimization) {
	if o.publisher == nil {
		return
	}

	appliedTypes := make([]string, 0, len(result.Applied))
	seen := make(map[models.RecommendationType]bool)
	for _, recommendation := range result.Applied {
		if !seen[recommendation.Type] {
			seen[recommendation.Type] = true
			appliedTypes = append(appliedTypes, string(recommendation.Type))
		}
	}

	event := events.NewOptimizationAppliedEvent(result.UserID, len(result.Applied), len(result.Skipped), appliedTypes, result.AppliedAt)
	if err := o.publisher.PublishLearningEvent(ctx, event); err != nil {
		o.logger.Warn("Failed to publish learning event",
			"event_type", events.EventOptimizationApplied,
			"error", err)
	}
}
