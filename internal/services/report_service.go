package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

// ===== PROGRESS REPORT SERVICE =====

// ReportService composes the evaluator, scheduler, optimizer and gap analyzer
// into one read model per user and unit. Reports are cached with a TTL; any
// write that changes progress should invalidate through InvalidateUserReports.
type ReportService interface {
	// GetProgressReport returns the composed report, serving from cache when
	// a fresh copy exists.
	GetProgressReport(ctx context.Context, userID, unitID string) (*ProgressReport, error)

	// ExportProgressReport renders the report as an xlsx workbook.
	ExportProgressReport(ctx context.Context, userID, unitID string) ([]byte, error)

	// InvalidateUserReports drops every cached report for the user.
	InvalidateUserReports(ctx context.Context, userID string) error
}

// ProgressReport is the composed read model. Unit carries the content tree so
// exports can resolve lesson and objective titles without another provider
// round trip.
type ProgressReport struct {
	UserID       string                       `json:"user_id"`
	Unit         *models.Unit                 `json:"unit"`
	Progress     *models.UnitProgress         `json:"progress"`
	PathDecision *models.LearningPathDecision `json:"path_decision"`
	Competencies *models.CompetencyMap        `json:"competencies"`
	Schedule     *models.ScheduleMetrics      `json:"schedule,omitempty"`
	Patterns     []models.PerformancePattern  `json:"patterns,omitempty"`
	GapAnalysis  *models.GapAnalysisResult    `json:"gap_analysis,omitempty"`
	GeneratedAt  time.Time                    `json:"generated_at"`
}

type reportService struct {
	content       ContentProvider
	results       ResultsProvider
	grading       GradingProvider
	evaluator     ProgressEvaluator
	scheduler     RetentionScheduler
	optimizer     RetentionOptimizer
	gaps          GapAnalyzer
	reviews       repositories.CompletedReviewRepository
	reportCache   cache.CacheService
	logger        *slog.Logger
	serviceLogger *ServiceLogger
}

func NewReportService(
	content ContentProvider,
	results ResultsProvider,
	grading GradingProvider,
	evaluator ProgressEvaluator,
	scheduler RetentionScheduler,
	optimizer RetentionOptimizer,
	gaps GapAnalyzer,
	reviews repositories.CompletedReviewRepository,
	reportCache cache.CacheService,
	logger *slog.Logger,
) ReportService {
	return &reportService{
		content:     content,
		results:     results,
		grading:     grading,
		evaluator:   evaluator,
		scheduler:   scheduler,
		optimizer:   optimizer,
		gaps:        gaps,
		reviews:     reviews,
		reportCache: reportCache,
		logger:      logger,
		serviceLogger: NewServiceLogger(logger, LogConfig{
			Service:   "learning-progress",
			Component: "report-service",
		}),
	}
}

const reportCacheTTL = 15 * time.Minute

func reportCacheKey(userID, unitID string) string {
	return fmt.Sprintf("report:%s:%s", userID, unitID)
}

// ===== REPORT GENERATION =====

func (s *reportService) GetProgressReport(ctx context.Context, userID, unitID string) (*ProgressReport, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "get_progress_report", userID)

	var verrs ValidationErrors
	if userID == "" {
		verrs = append(verrs, *NewValidationError("user_id", "is required", userID))
	}
	if unitID == "" {
		verrs = append(verrs, *NewValidationError("unit_id", "is required", unitID))
	}
	if len(verrs) > 0 {
		opLogger.LogResult(unitID, "progress_report", verrs)
		return nil, verrs
	}

	key := reportCacheKey(userID, unitID)
	var cached ProgressReport
	switch err := s.reportCache.Get(ctx, key, &cached); {
	case err == nil:
		opLogger.LogResult(unitID, "progress_report", nil)
		return &cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		// A broken cache degrades to recompute, it never fails the read
		s.logger.Warn("Report cache read failed", "key", key, "error", err)
	}

	report, err := s.buildReport(ctx, userID, unitID)
	if err != nil {
		opLogger.LogResult(unitID, "progress_report", err)
		return nil, err
	}

	if err := s.reportCache.Set(ctx, key, report, reportCacheTTL); err != nil {
		s.logger.Warn("Report cache write failed", "key", key, "error", err)
	}

	opLogger.LogResult(unitID, "progress_report", nil)
	return report, nil
}

// buildReport runs the full evaluation chain. The content fetch and the
// evaluation itself are fatal; retention metrics, performance patterns and gap
// analysis are best effort so a broken secondary source still yields a report.
func (s *reportService) buildReport(ctx context.Context, userID, unitID string) (*ProgressReport, error) {
	unit, err := s.content.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unit %s: %w", unitID, err)
	}
	if unit == nil {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrNotFound)
	}

	var lessonProgresses []models.LessonProgress
	var objectives []models.LearningObjective
	var objectiveProgresses []models.ObjectiveProgress

	for i := range unit.Lessons {
		lesson := unit.Lessons[i]

		exercises, err := s.results.GetExerciseResults(ctx, userID, lesson.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get exercise results for lesson %s: %w", lesson.ID, err)
		}
		assessments, err := s.results.GetAssessmentResults(ctx, userID, lesson.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get assessment results for lesson %s: %w", lesson.ID, err)
		}

		var lessonObjectives []models.ObjectiveProgress
		for j := range lesson.Objectives {
			progress, err := s.evaluator.EvaluateObjective(&lesson.Objectives[j], exercises, assessments)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate objective %s: %w", lesson.Objectives[j].ID, err)
			}
			lessonObjectives = append(lessonObjectives, *progress)
		}

		lessonProgress, err := s.evaluator.EvaluateLesson(&lesson, lessonObjectives, exercises, assessments)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate lesson %s: %w", lesson.ID, err)
		}

		lessonProgresses = append(lessonProgresses, *lessonProgress)
		objectives = append(objectives, lesson.Objectives...)
		objectiveProgresses = append(objectiveProgresses, lessonObjectives...)
	}

	unitProgress, err := s.evaluator.EvaluateUnit(unit, lessonProgresses)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate unit %s: %w", unitID, err)
	}
	if unitProgress.UserID == "" {
		// No result carried the user, a unit with zero activity still reports
		unitProgress.UserID = userID
	}

	competencies, err := s.evaluator.BuildCompetencyMap(userID, objectives, objectiveProgresses)
	if err != nil {
		return nil, fmt.Errorf("failed to build competency map: %w", err)
	}

	decision, err := s.evaluator.DecideLearningPath(ctx, unit, unitProgress, competencies)
	if err != nil {
		return nil, fmt.Errorf("failed to decide learning path: %w", err)
	}

	now := time.Now()
	report := &ProgressReport{
		UserID:       userID,
		Unit:         unit,
		Progress:     unitProgress,
		PathDecision: decision,
		Competencies: competencies,
		GeneratedAt:  now,
	}

	if metrics, err := s.scheduler.Metrics(ctx, userID, now); err != nil {
		s.logger.Warn("Failed to compute schedule metrics", "user_id", userID, "error", err)
	} else {
		report.Schedule = metrics
	}

	s.attachPatterns(ctx, report, userID)
	s.attachGapAnalysis(ctx, report, userID, objectives, objectiveProgresses)

	return report, nil
}

func (s *reportService) attachPatterns(ctx context.Context, report *ProgressReport, userID string) {
	history, err := s.reviews.OutcomesByUser(ctx, userID, time.Time{})
	if err != nil {
		s.logger.Warn("Failed to load review history", "user_id", userID, "error", err)
		return
	}
	if len(history) == 0 {
		return
	}

	patterns, err := s.optimizer.AnalyzePatterns(ctx, userID, history)
	if err != nil {
		s.logger.Warn("Failed to analyze performance patterns", "user_id", userID, "error", err)
		return
	}
	report.Patterns = patterns
}

func (s *reportService) attachGapAnalysis(ctx context.Context, report *ProgressReport, userID string, objectives []models.LearningObjective, progresses []models.ObjectiveProgress) {
	objectiveIDs := make([]string, 0, len(objectives))
	for _, objective := range objectives {
		objectiveIDs = append(objectiveIDs, objective.ID)
	}

	gradingResults, err := s.grading.GetGradingResults(ctx, userID, objectiveIDs)
	if err != nil {
		s.logger.Warn("Failed to get grading results", "user_id", userID, "error", err)
		gradingResults = nil
	}

	progressByID := make(map[string]*models.ObjectiveProgress, len(progresses))
	for i := range progresses {
		if progresses[i].AttemptCount > 0 {
			progressByID[progresses[i].ObjectiveID] = &progresses[i]
		}
	}
	if len(progressByID) == 0 && len(gradingResults) == 0 {
		return
	}

	analysis, err := s.gaps.AnalyzeGaps(ctx, GapAnalysisInput{
		UserID:         userID,
		Objectives:     objectives,
		Progress:       progressByID,
		GradingResults: gradingResults,
	})
	if err != nil {
		s.logger.Warn("Failed to analyze learning gaps", "user_id", userID, "error", err)
		return
	}
	report.GapAnalysis = analysis
}

// ===== WORKBOOK EXPORT =====

func (s *reportService) ExportProgressReport(ctx context.Context, userID, unitID string) ([]byte, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "export_progress_report", userID)

	report, err := s.GetProgressReport(ctx, userID, unitID)
	if err != nil {
		opLogger.LogResult(unitID, "progress_report", err)
		return nil, err
	}

	payload, err := renderReportWorkbook(report)
	if err != nil {
		opLogger.LogResult(unitID, "progress_report", err)
		return nil, err
	}

	opLogger.LogAudit(AuditEventExport, unitID, "progress_report", nil, map[string]interface{}{
		"bytes":  len(payload),
		"format": "xlsx",
	})
	opLogger.LogResult(unitID, "progress_report", nil)
	return payload, nil
}

func renderReportWorkbook(report *ProgressReport) ([]byte, error) {
	f := excelize.NewFile()

	progressIndex, err := writeSheet(f, "Progress",
		[]string{"Lesson", "Objective ID", "Objective", "Category", "Status", "Score (%)", "Attempts", "Time Spent (minutes)", "Mastered"},
		progressRows(report))
	if err != nil {
		return nil, err
	}

	if report.Schedule != nil {
		if _, err := writeSheet(f, "Retention",
			[]string{"Total Scheduled", "Due Today", "Overdue", "Upcoming Week", "Avg Retention Rate", "Avg Ease Factor", "Review Time (minutes)"},
			[][]interface{}{{
				report.Schedule.TotalScheduled,
				report.Schedule.DueToday,
				report.Schedule.Overdue,
				report.Schedule.UpcomingWeek,
				report.Schedule.AverageRetentionRate,
				report.Schedule.AverageEaseFactor,
				report.Schedule.TotalReviewTimeMinutes,
			}}); err != nil {
			return nil, err
		}
	}

	if len(report.Patterns) > 0 {
		rows := make([][]interface{}, 0, len(report.Patterns))
		for _, pattern := range report.Patterns {
			rows = append(rows, []interface{}{
				pattern.ObjectiveID,
				string(pattern.Pattern),
				pattern.Trend,
				pattern.Consistency,
				pattern.AverageScore,
				pattern.RecentScore,
				pattern.TotalAttempts,
			})
		}
		if _, err := writeSheet(f, "Review Patterns",
			[]string{"Objective", "Pattern", "Trend", "Consistency", "Average Score", "Recent Score", "Reviews"},
			rows); err != nil {
			return nil, err
		}
	}

	if report.GapAnalysis != nil && len(report.GapAnalysis.IdentifiedGaps) > 0 {
		rows := make([][]interface{}, 0, len(report.GapAnalysis.IdentifiedGaps))
		for _, gap := range report.GapAnalysis.IdentifiedGaps {
			rows = append(rows, []interface{}{
				string(gap.Type),
				string(gap.Severity),
				gap.Description,
				strings.Join(gap.AffectedConcepts, ", "),
				gap.EvidenceStrength,
				gap.Frequency,
			})
		}
		if _, err := writeSheet(f, "Gaps",
			[]string{"Type", "Severity", "Description", "Concepts", "Evidence", "Frequency"},
			rows); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(progressIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func progressRows(report *ProgressReport) [][]interface{} {
	lessonTitles := make(map[string]string)
	objectiveTitles := make(map[string]models.LearningObjective)
	if report.Unit != nil {
		for _, lesson := range report.Unit.Lessons {
			lessonTitles[lesson.ID] = lesson.Title
			for _, objective := range lesson.Objectives {
				objectiveTitles[objective.ID] = objective
			}
		}
	}

	var rows [][]interface{}
	if report.Progress == nil {
		return rows
	}
	for _, lesson := range report.Progress.Lessons {
		lessonTitle := lessonTitles[lesson.LessonID]
		if lessonTitle == "" {
			lessonTitle = lesson.LessonID
		}
		for _, objective := range lesson.Objectives {
			content := objectiveTitles[objective.ObjectiveID]
			title := content.Title
			if title == "" {
				title = objective.ObjectiveID
			}

			mastered := "No"
			if objective.MasteryAchieved {
				mastered = "Yes"
			}

			rows = append(rows, []interface{}{
				lessonTitle,
				objective.ObjectiveID,
				title,
				string(content.Category),
				string(objective.Status),
				objective.CurrentScore,
				objective.AttemptCount,
				objective.TimeSpentSeconds / 60,
				mastered,
			})
		}
	}
	return rows
}

func writeSheet(f *excelize.File, name string, headers []string, rows [][]interface{}) (int, error) {
	index, err := f.NewSheet(name)
	if err != nil {
		return 0, fmt.Errorf("failed to create Excel sheet %s: %w", name, err)
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(name, cell, header)
	}
	for rowIndex, row := range rows {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(name, cell, value)
		}
	}
	return index, nil
}

// ===== CACHE INVALIDATION =====

func (s *reportService) InvalidateUserReports(ctx context.Context, userID string) error {
	if userID == "" {
		return ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	pattern := fmt.Sprintf("report:%s:*", userID)
	if err := s.reportCache.DeletePattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to invalidate cached reports: %w", err)
	}

	s.logger.Debug("Invalidated cached reports", "user_id", userID)
	return nil
}
