package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== PROGRESS EVALUATOR SERVICE =====

// ProgressEvaluator aggregates raw results into objective, lesson and unit
// progress and derives learning-path decisions. Stateless: every call
// rebuilds its view from the inputs alone.
type ProgressEvaluator interface {
	EvaluateObjective(objective *models.LearningObjective, exerciseResults []models.ExerciseResult, assessmentResults []models.AssessmentResult) (*models.ObjectiveProgress, error)
	EvaluateLesson(lesson *models.Lesson, objectiveProgress []models.ObjectiveProgress, exerciseResults []models.ExerciseResult, assessmentResults []models.AssessmentResult) (*models.LessonProgress, error)
	EvaluateUnit(unit *models.Unit, lessonProgress []models.LessonProgress) (*models.UnitProgress, error)
	DecideLearningPath(ctx context.Context, unit *models.Unit, unitProgress *models.UnitProgress, competencyMap *models.CompetencyMap) (*models.LearningPathDecision, error)
	BuildCompetencyMap(userID string, objectives []models.LearningObjective, progresses []models.ObjectiveProgress) (*models.CompetencyMap, error)
}

type progressEvaluator struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewProgressEvaluator(publisher events.EventPublisher, logger *slog.Logger) ProgressEvaluator {
	return &progressEvaluator{
		publisher: publisher,
		logger:    logger,
	}
}

const (
	strugglingScoreCutoff  = 60.0
	enrichmentScoreCutoff  = 90.0
	competencyEvidenceFull = 5.0
)

// ===== OBJECTIVE EVALUATION =====

func (e *progressEvaluator) EvaluateObjective(objective *models.LearningObjective, exerciseResults []models.ExerciseResult, assessmentResults []models.AssessmentResult) (*models.ObjectiveProgress, error) {
	if objective == nil || objective.ID == "" {
		return nil, ErrObjectiveRequired
	}

	progress := &models.ObjectiveProgress{
		ObjectiveID: objective.ID,
		Status:      models.ProgressStatusNotStarted,
	}

	var scores []float64
	var lastActivity time.Time

	for _, result := range exerciseResults {
		if result.ObjectiveID != objective.ID {
			continue
		}
		scores = append(scores, result.Score)
		progress.TimeSpentSeconds += result.TimeSpentSeconds
		progress.AttemptCount += result.Attempts
		progress.UserID = result.UserID
		if result.CompletedAt.After(lastActivity) {
			lastActivity = result.CompletedAt
		}
	}

	for _, result := range assessmentResults {
		if result.ObjectiveID != objective.ID {
			continue
		}
		scores = append(scores, result.Score)
		progress.TimeSpentSeconds += result.TimeSpentSeconds
		progress.AttemptCount++ // one formal assessment counts as one attempt
		progress.UserID = result.UserID
		if result.CompletedAt.After(lastActivity) {
			lastActivity = result.CompletedAt
		}
	}

	progress.CurrentScore = mean(scores)
	progress.Status = statusFor(progress.CurrentScore, objective.MasteryThreshold, anyPositive(scores))
	progress.MasteryAchieved = progress.Status == models.ProgressStatusMastered
	if !lastActivity.IsZero() {
		progress.LastActivityAt = &lastActivity
	}

	return progress, nil
}

// ===== LESSON EVALUATION =====

func (e *progressEvaluator) EvaluateLesson(lesson *models.Lesson, objectiveProgress []models.ObjectiveProgress, exerciseResults []models.ExerciseResult, assessmentResults []models.AssessmentResult) (*models.LessonProgress, error) {
	if lesson == nil || lesson.ID == "" {
		return nil, ErrLessonRequired
	}

	progress := &models.LessonProgress{
		LessonID:   lesson.ID,
		Status:     models.ProgressStatusNotStarted,
		Objectives: objectiveProgress,
	}

	// One combined mean over objective scores and the lesson's own results
	var scores []float64
	for _, op := range objectiveProgress {
		scores = append(scores, op.CurrentScore)
		progress.TimeSpentSeconds += op.TimeSpentSeconds
		progress.UserID = op.UserID
	}
	for _, result := range exerciseResults {
		scores = append(scores, result.Score)
		progress.TimeSpentSeconds += result.TimeSpentSeconds
		progress.UserID = result.UserID
	}
	for _, result := range assessmentResults {
		scores = append(scores, result.Score)
		progress.TimeSpentSeconds += result.TimeSpentSeconds
		progress.UserID = result.UserID
	}

	progress.CurrentScore = mean(scores)
	progress.Status = statusFor(progress.CurrentScore, lesson.MasteryThreshold, anyPositive(scores))

	// Conjunctive gate: averaging must not hide a single weak objective
	if progress.Status == models.ProgressStatusMastered && !allObjectivesMastered(lesson.Objectives, objectiveProgress) {
		progress.Status = models.ProgressStatusInProgress
	}
	progress.MasteryAchieved = progress.Status == models.ProgressStatusMastered

	return progress, nil
}

// ===== UNIT EVALUATION =====

func (e *progressEvaluator) EvaluateUnit(unit *models.Unit, lessonProgress []models.LessonProgress) (*models.UnitProgress, error) {
	if unit == nil || unit.ID == "" {
		return nil, ErrUnitRequired
	}

	progress := &models.UnitProgress{
		UnitID:  unit.ID,
		Status:  models.ProgressStatusNotStarted,
		Lessons: lessonProgress,
	}

	var scores []float64
	for _, lp := range lessonProgress {
		scores = append(scores, lp.CurrentScore)
		progress.TimeSpentSeconds += lp.TimeSpentSeconds
		progress.UserID = lp.UserID
	}

	progress.CurrentScore = mean(scores)
	progress.Status = statusFor(progress.CurrentScore, unit.MasteryThreshold, anyPositive(scores))

	if progress.Status == models.ProgressStatusMastered && !allLessonsMastered(unit.Lessons, lessonProgress) {
		progress.Status = models.ProgressStatusInProgress
	}
	progress.MasteryAchieved = progress.Status == models.ProgressStatusMastered

	return progress, nil
}

// ===== LEARNING PATH DECISION =====

func (e *progressEvaluator) DecideLearningPath(ctx context.Context, unit *models.Unit, unitProgress *models.UnitProgress, competencyMap *models.CompetencyMap) (*models.LearningPathDecision, error) {
	if unit == nil || unit.ID == "" {
		return nil, ErrUnitRequired
	}
	if unitProgress == nil {
		return nil, ErrProgressRequired
	}

	decision := &models.LearningPathDecision{
		UserID:    unitProgress.UserID,
		UnitID:    unit.ID,
		DecidedAt: time.Now(),
	}

	switch {
	case unitProgress.MasteryAchieved:
		decision.Action = models.PathActionProgress
		decision.CanProgress = true
		decision.EnrichmentUnlocked = true
		decision.Reason = fmt.Sprintf("unit mastered with score %.1f", unitProgress.CurrentScore)
		decision.Confidence = 0.95

	case len(strugglingLessons(unitProgress.Lessons)) > 0:
		struggling := strugglingLessons(unitProgress.Lessons)
		decision.Action = models.PathActionRemediate
		decision.RemediationRequired = true
		decision.NextLessonID = struggling[0].LessonID
		decision.RemediationContentKeys = remediationKeys(unit, struggling, competencyMap)
		decision.Reason = fmt.Sprintf("%d lesson(s) below the remediation cutoff", len(struggling))
		decision.Confidence = 0.85

	case nextUnmasteredLesson(unit, unitProgress.Lessons) != "":
		decision.Action = models.PathActionContinue
		decision.CanProgress = true
		decision.NextLessonID = nextUnmasteredLesson(unit, unitProgress.Lessons)
		decision.EnrichmentUnlocked = unitProgress.CurrentScore >= enrichmentScoreCutoff
		decision.Reason = "next lesson in sequence not yet mastered"
		decision.Confidence = 0.8

	default:
		decision.Action = models.PathActionPractice
		decision.Reason = "more practice needed before progression"
		decision.Confidence = 0.7
	}

	e.publishDecision(ctx, decision)
	e.logger.Info("Learning path decided",
		"user_id", decision.UserID,
		"unit_id", decision.UnitID,
		"action", decision.Action,
		"confidence", decision.Confidence)

	return decision, nil
}

// ===== COMPETENCY MAP =====

func (e *progressEvaluator) BuildCompetencyMap(userID string, objectives []models.LearningObjective, progresses []models.ObjectiveProgress) (*models.CompetencyMap, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	byObjective := make(map[string]models.ObjectiveProgress, len(progresses))
	for _, progress := range progresses {
		byObjective[progress.ObjectiveID] = progress
	}

	competencies := make(map[string]models.Competency, len(objectives))
	for _, objective := range objectives {
		progress := byObjective[objective.ID] // zero value when never attempted
		competencies[objective.ID] = models.Competency{
			ObjectiveID:   objective.ID,
			Level:         competencyLevelFor(progress.CurrentScore),
			Score:         progress.CurrentScore,
			Confidence:    competencyConfidence(progress.AttemptCount, progress.CurrentScore),
			EvidenceCount: progress.AttemptCount,
		}
	}

	return &models.CompetencyMap{
		UserID:       userID,
		Competencies: competencies,
		GeneratedAt:  time.Now(),
	}, nil
}

// ===== AGGREGATION HELPERS =====

// statusFor maps a 0..100 score against a fractional threshold.
func statusFor(score, threshold float64, anyActivity bool) models.ProgressStatus {
	if anyActivity && score >= threshold*100 {
		return models.ProgressStatusMastered
	}
	if anyActivity {
		return models.ProgressStatusInProgress
	}
	return models.ProgressStatusNotStarted
}

func anyPositive(scores []float64) bool {
	for _, s := range scores {
		if s > 0 {
			return true
		}
	}
	return false
}

// allObjectivesMastered checks the content's objective list against the
// supplied progresses. An objective without a progress record blocks
// mastery; with no content list the supplied progresses gate directly.
func allObjectivesMastered(objectives []models.LearningObjective, progresses []models.ObjectiveProgress) bool {
	if len(objectives) == 0 {
		for _, progress := range progresses {
			if !progress.MasteryAchieved {
				return false
			}
		}
		return true
	}

	mastered := make(map[string]bool, len(progresses))
	for _, progress := range progresses {
		mastered[progress.ObjectiveID] = progress.MasteryAchieved
	}
	for _, objective := range objectives {
		if !mastered[objective.ID] {
			return false
		}
	}
	return true
}

func allLessonsMastered(lessons []models.Lesson, progresses []models.LessonProgress) bool {
	if len(lessons) == 0 {
		for _, progress := range progresses {
			if !progress.MasteryAchieved {
				return false
			}
		}
		return true
	}

	mastered := make(map[string]bool, len(progresses))
	for _, progress := range progresses {
		mastered[progress.LessonID] = progress.MasteryAchieved
	}
	for _, lesson := range lessons {
		if !mastered[lesson.ID] {
			return false
		}
	}
	return true
}

func strugglingLessons(progresses []models.LessonProgress) []models.LessonProgress {
	var struggling []models.LessonProgress
	for _, progress := range progresses {
		if progress.CurrentScore < strugglingScoreCutoff && progress.Status != models.ProgressStatusNotStarted {
			struggling = append(struggling, progress)
		}
	}
	return struggling
}

// remediationKeys collects remediation content keys for every struggling
// objective inside the struggling lessons. The competency map marks novice
// objectives as struggling even when their score sits above the cutoff.
func remediationKeys(unit *models.Unit, struggling []models.LessonProgress, competencyMap *models.CompetencyMap) []string {
	contentKeys := make(map[string]string)
	for _, lesson := range unit.Lessons {
		for _, objective := range lesson.Objectives {
			if objective.RemediationContentKey != "" {
				contentKeys[objective.ID] = objective.RemediationContentKey
			}
		}
	}

	seen := make(map[string]bool)
	var keys []string
	for _, lesson := range struggling {
		for _, objective := range lesson.Objectives {
			isStruggling := objective.CurrentScore < strugglingScoreCutoff
			if competencyMap != nil {
				if competency, ok := competencyMap.Competencies[objective.ObjectiveID]; ok && competency.Level == models.CompetencyNovice {
					isStruggling = true
				}
			}
			if !isStruggling {
				continue
			}

			key := contentKeys[objective.ObjectiveID]
			if key == "" {
				key = objective.ObjectiveID
			}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// nextUnmasteredLesson returns the first lesson by order index that has no
// mastered progress record, or "" when every lesson is mastered.
func nextUnmasteredLesson(unit *models.Unit, progresses []models.LessonProgress) string {
	mastered := make(map[string]bool, len(progresses))
	for _, progress := range progresses {
		mastered[progress.LessonID] = progress.MasteryAchieved
	}

	ordered := make([]models.Lesson, len(unit.Lessons))
	copy(ordered, unit.Lessons)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	for _, lesson := range ordered {
		if !mastered[lesson.ID] {
			return lesson.ID
		}
	}
	return ""
}

func competencyLevelFor(score float64) models.CompetencyLevel {
	switch {
	case score >= 95:
		return models.CompetencyExpert
	case score >= 90:
		return models.CompetencyAdvanced
	case score >= 80:
		return models.CompetencyProficient
	case score >= 60:
		return models.CompetencyDeveloping
	default:
		return models.CompetencyNovice
	}
}

func competencyConfidence(evidenceCount int, score float64) float64 {
	evidence := math.Min(1, float64(evidenceCount)/competencyEvidenceFull)
	return evidence * (score / 100)
}

func (e *progressEvaluator) publishDecision(ctx context.Context, decision *models.LearningPathDecision) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishLearningEvent(ctx, events.NewLearningPathDecidedEvent(decision)); err != nil {
		e.logger.Warn("Failed to publish learning event",
			"event_type", events.EventLearningPathDecided,
			"error", err)
	}
}
