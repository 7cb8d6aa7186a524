package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== GAP ANALYZER SERVICE =====

// GapAnalyzer diagnoses latent learning gaps from aggregated progress and
// grading-mistake records. It is a read-only pass: gaps and recommendations
// are advisory output, nothing here mutates learner state.
type GapAnalyzer interface {
	// ExtractErrorPatterns classifies graded mistakes by keyword into error
	// pattern buckets and accumulates frequency per bucket.
	ExtractErrorPatterns(gradingResults []models.GradingResult) []models.ErrorPattern

	// AnalyzeGaps runs all gap detectors over one user's data, unions and
	// dedups their findings, and drops anything below the evidence floor.
	AnalyzeGaps(ctx context.Context, input GapAnalysisInput) (*models.GapAnalysisResult, error)

	// AnalyzeBatch analyzes many users on a bounded worker pool. Individual
	// failures are logged and skipped; the successful subset is returned.
	AnalyzeBatch(ctx context.Context, inputs []GapAnalysisInput) ([]*models.GapAnalysisResult, error)
}

// GapAnalysisInput is everything the detectors need for one user. Progress is
// keyed by objective ID and may omit objectives that were never attempted.
type GapAnalysisInput struct {
	UserID         string `json:"user_id" validate:"required"`
	Objectives     []models.LearningObjective
	Progress       map[string]*models.ObjectiveProgress
	GradingResults []models.GradingResult
}

type gapAnalyzer struct {
	publisher     events.EventPublisher
	logger        *slog.Logger
	serviceLogger *ServiceLogger
}

func NewGapAnalyzer(publisher events.EventPublisher, logger *slog.Logger) GapAnalyzer {
	return &gapAnalyzer{
		publisher: publisher,
		logger:    logger,
		serviceLogger: NewServiceLogger(logger, LogConfig{
			Service:       "learning-progress",
			Component:     "gap-analyzer",
			EnableMetrics: true,
		}),
	}
}

const (
	evidenceFloor            = 0.3
	patternConsistencyWindow = 5.0
	persistenceWindow        = 10.0
	highAttemptCutoff        = 5
	maxPatternExamples       = 3
	fallbackMasteryThreshold = 0.8

	criticalSeverityRatio = 0.3
	majorSeverityRatio    = 0.6
	moderateSeverityRatio = 0.8
)

// ===== ERROR PATTERN EXTRACTION =====

// errorPatternKeywords maps mistake-type keywords to pattern buckets. Order
// matters: the first bucket with a matching keyword wins.
var errorPatternKeywords = []struct {
	pattern  models.ErrorPatternType
	keywords []string
}{
	{models.ErrorPatternAttentionToDetail, []string{"careless", "typo", "detail", "spelling"}},
	{models.ErrorPatternProceduralError, []string{"step", "order", "procedure", "process", "method"}},
	{models.ErrorPatternConsistentMisconception, []string{"concept", "misunderstand", "confus", "misconception"}},
	{models.ErrorPatternComputationalMistake, []string{"calculation", "arithmetic", "compute", "math"}},
}

func (a *gapAnalyzer) ExtractErrorPatterns(gradingResults []models.GradingResult) []models.ErrorPattern {
	type accumulator struct {
		pattern    models.ErrorPattern
		objectives map[string]bool
	}
	byType := make(map[models.ErrorPatternType]*accumulator)

	for _, result := range gradingResults {
		for _, mistake := range result.Mistakes {
			patternType := classifyMistake(mistake.Type)
			acc, ok := byType[patternType]
			if !ok {
				acc = &accumulator{
					pattern:    models.ErrorPattern{Type: patternType},
					objectives: make(map[string]bool),
				}
				byType[patternType] = acc
			}

			acc.pattern.Frequency++
			if mistake.Description != "" && len(acc.pattern.Examples) < maxPatternExamples {
				acc.pattern.Examples = append(acc.pattern.Examples, mistake.Description)
			}
			if result.ObjectiveID != "" && !acc.objectives[result.ObjectiveID] {
				acc.objectives[result.ObjectiveID] = true
				acc.pattern.AffectedObjectives = append(acc.pattern.AffectedObjectives, result.ObjectiveID)
			}
		}
	}

	patterns := make([]models.ErrorPattern, 0, len(byType))
	for _, acc := range byType {
		acc.pattern.Consistency = math.Min(1, float64(acc.pattern.Frequency)/patternConsistencyWindow)
		patterns = append(patterns, acc.pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].Type < patterns[j].Type
	})
	return patterns
}

func classifyMistake(mistakeType string) models.ErrorPatternType {
	lowered := strings.ToLower(mistakeType)
	for _, bucket := range errorPatternKeywords {
		for _, keyword := range bucket.keywords {
			if strings.Contains(lowered, keyword) {
				return bucket.pattern
			}
		}
	}
	return models.ErrorPatternIncompleteUnderstanding
}

// ===== GAP DETECTION =====

func (a *gapAnalyzer) AnalyzeGaps(ctx context.Context, input GapAnalysisInput) (*models.GapAnalysisResult, error) {
	opLogger := a.serviceLogger.WithOperation(ctx, "analyze_gaps", input.UserID)

	if input.UserID == "" {
		err := ValidationErrors{*NewValidationError("user_id", "is required", input.UserID)}
		opLogger.LogResult("", "gap_analysis", err)
		return nil, err
	}
	if len(input.Progress) == 0 && len(input.GradingResults) == 0 {
		opLogger.LogResult("", "gap_analysis", ErrProgressRequired)
		return nil, ErrProgressRequired
	}

	now := time.Now()
	patterns := a.ExtractErrorPatterns(input.GradingResults)
	objectivesByID := make(map[string]models.LearningObjective, len(input.Objectives))
	for _, objective := range input.Objectives {
		objectivesByID[objective.ID] = objective
	}

	// Detectors run independently and their findings are unioned. Order is
	// fixed so dedup keeps the earlier detector's gap on a severity tie.
	gaps := a.detectConceptualGaps(input, now)
	gaps = append(gaps, a.detectProceduralGaps(input.UserID, patterns, objectivesByID, now)...)
	gaps = append(gaps, a.detectPrerequisiteGaps(input, now)...)
	gaps = append(gaps, a.detectApplicationGaps(input, now)...)
	gaps = append(gaps, a.detectPatternGaps(input.UserID, patterns, objectivesByID, now)...)
	gaps = append(gaps, a.detectMetacognitiveGaps(input, now)...)

	gaps = dedupGaps(gaps)
	gaps = dropWeakEvidence(gaps)
	sortGapsByPriority(gaps)

	recommendations := make([]models.GapRecommendation, 0, len(gaps))
	for _, gap := range gaps {
		recommendations = append(recommendations, recommendationForGap(gap))
	}

	result := &models.GapAnalysisResult{
		UserID:          input.UserID,
		IdentifiedGaps:  gaps,
		ErrorPatterns:   patterns,
		Recommendations: recommendations,
		AnalyzedAt:      now,
	}

	if len(gaps) > 0 {
		a.publishGaps(ctx, result)
	}

	a.logger.Info("Gap analysis completed",
		"user_id", input.UserID,
		"gaps", len(gaps),
		"error_patterns", len(patterns))
	opLogger.LogResult("", "gap_analysis", nil)
	return result, nil
}

// detectConceptualGaps flags attempted objectives scoring below their mastery
// threshold.
func (a *gapAnalyzer) detectConceptualGaps(input GapAnalysisInput, now time.Time) []models.LearningGap {
	var gaps []models.LearningGap
	for _, objective := range input.Objectives {
		progress := input.Progress[objective.ID]
		if progress == nil || progress.AttemptCount == 0 || progress.MasteryAchieved {
			continue
		}

		threshold := masteryThresholdPercent(objective)
		if progress.CurrentScore >= threshold {
			continue
		}

		concept := conceptName(objective)
		gaps = append(gaps, a.newGap(gapSeed{
			userID:      input.UserID,
			gapType:     models.GapTypeConceptual,
			severity:    severityForRatio(progress.CurrentScore / threshold),
			description: fmt.Sprintf("Difficulty grasping %s", concept),
			concepts:    []string{concept},
			samples:     progress.AttemptCount,
			consistency: failureConsistency(progress.CurrentScore),
			now:         now,
		}))
	}
	return gaps
}

// detectProceduralGaps flags recurring procedural and computational error
// patterns.
func (a *gapAnalyzer) detectProceduralGaps(userID string, patterns []models.ErrorPattern, objectivesByID map[string]models.LearningObjective, now time.Time) []models.LearningGap {
	var gaps []models.LearningGap
	for _, pattern := range patterns {
		var label, description string
		switch pattern.Type {
		case models.ErrorPatternProceduralError:
			label = "procedural fluency"
			description = "Recurring mistakes in multi-step procedures"
		case models.ErrorPatternComputationalMistake:
			label = "computational accuracy"
			description = "Recurring computational mistakes"
		default:
			continue
		}

		gaps = append(gaps, a.newGap(gapSeed{
			userID:      userID,
			gapType:     models.GapTypeProcedural,
			severity:    severityForFrequency(pattern.Frequency),
			description: description,
			concepts:    patternConcepts(pattern, objectivesByID, label),
			samples:     pattern.Frequency,
			consistency: pattern.Consistency,
			now:         now,
		}))
	}
	return gaps
}

// detectPrerequisiteGaps flags unmastered objectives whose later siblings
// were already attempted. Working ahead of an open prerequisite is the
// strongest progression blocker the analyzer can see.
func (a *gapAnalyzer) detectPrerequisiteGaps(input GapAnalysisInput, now time.Time) []models.LearningGap {
	ordered := make([]models.LearningObjective, len(input.Objectives))
	copy(ordered, input.Objectives)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	var gaps []models.LearningGap
	for i, objective := range ordered {
		progress := input.Progress[objective.ID]
		if progress != nil && progress.MasteryAchieved {
			continue
		}

		laterAttempts := 0
		for _, later := range ordered[i+1:] {
			if laterProgress := input.Progress[later.ID]; laterProgress != nil && laterProgress.AttemptCount > 0 {
				laterAttempts++
			}
		}
		if laterAttempts == 0 {
			continue
		}

		score := 0.0
		ownAttempts := 0
		if progress != nil {
			score = progress.CurrentScore
			ownAttempts = progress.AttemptCount
		}

		concept := conceptName(objective)
		gaps = append(gaps, a.newGap(gapSeed{
			userID:      input.UserID,
			gapType:     models.GapTypePrerequisite,
			severity:    severityForRatio(score / masteryThresholdPercent(objective)),
			description: fmt.Sprintf("Unmastered prerequisite %s while later material is attempted", concept),
			concepts:    []string{concept},
			samples:     ownAttempts + laterAttempts,
			consistency: failureConsistency(score),
			now:         now,
		}))
	}
	return gaps
}

// detectApplicationGaps flags weak higher-order objectives, where knowing the
// material is not the same as being able to use it.
func (a *gapAnalyzer) detectApplicationGaps(input GapAnalysisInput, now time.Time) []models.LearningGap {
	var gaps []models.LearningGap
	for _, objective := range input.Objectives {
		if !objective.Category.IsHigherOrder() {
			continue
		}
		progress := input.Progress[objective.ID]
		if progress == nil || progress.AttemptCount == 0 || progress.MasteryAchieved {
			continue
		}

		threshold := masteryThresholdPercent(objective)
		if progress.CurrentScore >= threshold {
			continue
		}

		concept := conceptName(objective)
		gaps = append(gaps, a.newGap(gapSeed{
			userID:      input.UserID,
			gapType:     models.GapTypeApplication,
			severity:    severityForRatio(progress.CurrentScore / threshold),
			description: fmt.Sprintf("Struggles to apply %s in %s tasks", concept, objective.Category),
			concepts:    []string{concept},
			samples:     progress.AttemptCount,
			consistency: failureConsistency(progress.CurrentScore),
			now:         now,
		}))
	}
	return gaps
}

// detectPatternGaps maps misconception patterns to conceptual gaps and
// attention patterns to metacognitive gaps.
func (a *gapAnalyzer) detectPatternGaps(userID string, patterns []models.ErrorPattern, objectivesByID map[string]models.LearningObjective, now time.Time) []models.LearningGap {
	var gaps []models.LearningGap
	for _, pattern := range patterns {
		var gapType models.GapType
		var label, description string
		switch pattern.Type {
		case models.ErrorPatternConsistentMisconception:
			gapType = models.GapTypeConceptual
			label = "core concepts"
			description = "Consistent misconception showing up across graded work"
		case models.ErrorPatternAttentionToDetail:
			gapType = models.GapTypeMetacognitive
			label = "attention to detail"
			description = "Frequent attention-to-detail slips"
		default:
			continue
		}

		gaps = append(gaps, a.newGap(gapSeed{
			userID:      userID,
			gapType:     gapType,
			severity:    severityForFrequency(pattern.Frequency),
			description: description,
			concepts:    patternConcepts(pattern, objectivesByID, label),
			samples:     pattern.Frequency,
			consistency: pattern.Consistency,
			now:         now,
		}))
	}
	return gaps
}

// detectMetacognitiveGaps flags objectives with many attempts and no mastery,
// which usually means the learner is not adjusting strategy between tries.
func (a *gapAnalyzer) detectMetacognitiveGaps(input GapAnalysisInput, now time.Time) []models.LearningGap {
	var gaps []models.LearningGap
	for _, objective := range input.Objectives {
		progress := input.Progress[objective.ID]
		if progress == nil || progress.MasteryAchieved || progress.AttemptCount < highAttemptCutoff {
			continue
		}

		concept := conceptName(objective)
		gaps = append(gaps, a.newGap(gapSeed{
			userID:      input.UserID,
			gapType:     models.GapTypeMetacognitive,
			severity:    severityForRatio(progress.CurrentScore / masteryThresholdPercent(objective)),
			description: fmt.Sprintf("Repeated attempts on %s without reaching mastery", concept),
			concepts:    []string{concept},
			samples:     progress.AttemptCount,
			consistency: failureConsistency(progress.CurrentScore),
			now:         now,
		}))
	}
	return gaps
}

// ===== GAP CONSTRUCTION =====

type gapSeed struct {
	userID      string
	gapType     models.GapType
	severity    models.GapSeverity
	description string
	concepts    []string
	samples     int
	consistency float64
	now         time.Time
}

func (a *gapAnalyzer) newGap(seed gapSeed) models.LearningGap {
	return models.LearningGap{
		ID:                  uuid.NewString(),
		UserID:              seed.userID,
		Type:                seed.gapType,
		Severity:            seed.severity,
		Description:         seed.description,
		AffectedConcepts:    seed.concepts,
		EvidenceStrength:    evidenceStrength(seed.samples, seed.consistency),
		ImpactOnProgression: impactForGapType(seed.gapType),
		Frequency:           seed.samples,
		PersistenceLevel:    math.Min(1, float64(seed.samples)/persistenceWindow),
		DetectedAt:          seed.now,
	}
}

// evidenceStrength blends sample volume with how consistently the evidence
// points the same way.
func evidenceStrength(samples int, consistency float64) float64 {
	volume := math.Min(1, float64(samples)/patternConsistencyWindow)
	return 0.6*volume + 0.4*clampFraction(consistency)
}

func severityForRatio(ratio float64) models.GapSeverity {
	switch {
	case ratio < criticalSeverityRatio:
		return models.GapSeverityCritical
	case ratio < majorSeverityRatio:
		return models.GapSeverityMajor
	case ratio < moderateSeverityRatio:
		return models.GapSeverityModerate
	default:
		return models.GapSeverityMinor
	}
}

// severityForFrequency converts a mistake count into the same ratio banding
// the score detectors use: ten or more occurrences is as bad as scoring zero.
func severityForFrequency(frequency int) models.GapSeverity {
	return severityForRatio(math.Max(0, 1-float64(frequency)/persistenceWindow))
}

func impactForGapType(gapType models.GapType) float64 {
	switch gapType {
	case models.GapTypePrerequisite:
		return 0.9
	case models.GapTypeConceptual:
		return 0.8
	case models.GapTypeProcedural:
		return 0.6
	case models.GapTypeApplication:
		return 0.5
	case models.GapTypeMetacognitive:
		return 0.4
	default:
		return 0.4
	}
}

// failureConsistency treats a low score as consistent evidence of a gap.
func failureConsistency(scorePercent float64) float64 {
	return clampFraction(1 - scorePercent/100)
}

func masteryThresholdPercent(objective models.LearningObjective) float64 {
	threshold := objective.MasteryThreshold
	if threshold <= 0 {
		threshold = fallbackMasteryThreshold
	}
	return threshold * 100
}

func conceptName(objective models.LearningObjective) string {
	if objective.Title != "" {
		return objective.Title
	}
	return objective.ID
}

// patternConcepts resolves a pattern's affected objectives to readable
// concept names, falling back to a generic label when none are known.
func patternConcepts(pattern models.ErrorPattern, objectivesByID map[string]models.LearningObjective, fallback string) []string {
	if len(pattern.AffectedObjectives) == 0 {
		return []string{fallback}
	}
	concepts := make([]string, 0, len(pattern.AffectedObjectives))
	for _, objectiveID := range pattern.AffectedObjectives {
		if objective, ok := objectivesByID[objectiveID]; ok {
			concepts = append(concepts, conceptName(objective))
			continue
		}
		concepts = append(concepts, objectiveID)
	}
	return concepts
}

// ===== DEDUP, FILTER, PRIORITY =====

func dedupGaps(gaps []models.LearningGap) []models.LearningGap {
	type gapKey struct {
		gapType models.GapType
		concept string
	}
	index := make(map[gapKey]int)
	deduped := make([]models.LearningGap, 0, len(gaps))

	for _, gap := range gaps {
		key := gapKey{gapType: gap.Type, concept: primaryConcept(gap)}
		at, seen := index[key]
		if !seen {
			index[key] = len(deduped)
			deduped = append(deduped, gap)
			continue
		}
		if gap.Severity.Weight() > deduped[at].Severity.Weight() {
			deduped[at] = gap
		}
	}
	return deduped
}

func dropWeakEvidence(gaps []models.LearningGap) []models.LearningGap {
	kept := gaps[:0]
	for _, gap := range gaps {
		if gap.EvidenceStrength < evidenceFloor {
			continue
		}
		kept = append(kept, gap)
	}
	return kept
}

// GapPriority ranks a gap for downstream sorting and filtering. The weights
// are a published contract, do not retune them casually.
func GapPriority(gap models.LearningGap) float64 {
	return 0.4*gap.Severity.Weight() +
		0.3*gap.ImpactOnProgression +
		0.2*gap.EvidenceStrength +
		0.1*gap.PersistenceLevel
}

func sortGapsByPriority(gaps []models.LearningGap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		pi, pj := GapPriority(gaps[i]), GapPriority(gaps[j])
		if pi != pj {
			return pi > pj
		}
		if gaps[i].Type != gaps[j].Type {
			return gaps[i].Type < gaps[j].Type
		}
		return primaryConcept(gaps[i]) < primaryConcept(gaps[j])
	})
}

func primaryConcept(gap models.LearningGap) string {
	if len(gap.AffectedConcepts) == 0 {
		return ""
	}
	return gap.AffectedConcepts[0]
}

// ===== RECOMMENDATIONS =====

func recommendationForGap(gap models.LearningGap) models.GapRecommendation {
	interventions := interventionsForGapType(gap.Type)
	totalMinutes := 0
	for _, intervention := range interventions {
		totalMinutes += intervention.DurationMinutes
	}

	return models.GapRecommendation{
		GapID:   gap.ID,
		GapType: gap.Type,
		Urgency: urgencyForSeverity(gap.Severity),
		Rationale: fmt.Sprintf("%s gap affecting %s (severity %s, evidence %.2f)",
			gap.Type, strings.Join(gap.AffectedConcepts, ", "), gap.Severity, gap.EvidenceStrength),
		Interventions:        interventions,
		EstimatedEffortHours: float64(totalMinutes) / 60,
	}
}

func urgencyForSeverity(severity models.GapSeverity) models.GapUrgency {
	switch severity {
	case models.GapSeverityCritical:
		return models.UrgencyImmediate
	case models.GapSeverityMajor:
		return models.UrgencyHigh
	default:
		return models.UrgencyMedium
	}
}

func interventionsForGapType(gapType models.GapType) []models.Intervention {
	switch gapType {
	case models.GapTypeConceptual:
		return []models.Intervention{
			{Type: models.InterventionConceptualInstruction, Description: "Targeted instruction rebuilding the underlying concept", DurationMinutes: 45},
			{Type: models.InterventionAdaptiveExercises, Description: "Adaptive exercise set reinforcing the concept", DurationMinutes: 30},
		}
	case models.GapTypeProcedural:
		return []models.Intervention{
			{Type: models.InterventionGuidedPractice, Description: "Guided practice with worked procedure examples", DurationMinutes: 40},
			{Type: models.InterventionAdaptiveExercises, Description: "Adaptive exercises drilling the procedure", DurationMinutes: 20},
		}
	case models.GapTypePrerequisite:
		return []models.Intervention{
			{Type: models.InterventionContentReview, Description: "Review of the prerequisite material", DurationMinutes: 60},
			{Type: models.InterventionGuidedPractice, Description: "Guided practice bridging back to current content", DurationMinutes: 30},
		}
	default:
		return []models.Intervention{
			{Type: models.InterventionAdaptiveExercises, Description: "Adaptive exercises at adjusted difficulty", DurationMinutes: 30},
		}
	}
}

// ===== BATCH ANALYSIS =====

func (a *gapAnalyzer) AnalyzeBatch(ctx context.Context, inputs []GapAnalysisInput) ([]*models.GapAnalysisResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoUsersInBatch
	}

	started := time.Now()
	results := make([]*models.GapAnalysisResult, len(inputs))
	failures := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			// One user's panic or failure must not take the batch down
			defer func() {
				if r := recover(); r != nil {
					a.serviceLogger.LogRecovery(gctx, "analyze_gaps_batch", input.UserID, r, debug.Stack())
					failures[i] = fmt.Errorf("gap analysis panicked: %v", r)
				}
			}()

			result, err := a.AnalyzeGaps(gctx, input)
			results[i] = result
			failures[i] = err
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]*models.GapAnalysisResult, 0, len(inputs))
	failed := 0
	totalRecommendations := 0
	for i, input := range inputs {
		if failures[i] != nil {
			failed++
			a.logger.Warn("User gap analysis failed",
				"user_id", input.UserID,
				"error", failures[i])
			continue
		}
		succeeded = append(succeeded, results[i])
		totalRecommendations += len(results[i].Recommendations)
	}

	a.serviceLogger.LogBatchMetrics(ctx, "analyze_gaps_batch", BatchMetrics{
		TotalDuration:   time.Since(started),
		UsersProcessed:  len(inputs),
		Succeeded:       len(succeeded),
		Failed:          failed,
		Recommendations: totalRecommendations,
	})

	return succeeded, nil
}

func (a *gapAnalyzer) publishGaps(ctx context.Context, result *models.GapAnalysisResult) {
	if a.publisher == nil {
		return
	}

	event := events.NewLearningGapsDetectedEvent(result)
	if err := a.publisher.PublishLearningEvent(ctx, event); err != nil {
		a.logger.Warn("Failed to publish learning event",
			"event_type", events.EventLearningGapsDetected,
			"error", err)
	}
}
