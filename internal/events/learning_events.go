package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// EventType represents different types of learning progress events
type EventType string

const (
	// Retention schedule events
	EventScheduleSeeded    EventType = "retention.schedule_seeded"
	EventReviewRecorded    EventType = "retention.review_recorded"
	EventScheduleOptimized EventType = "retention.schedule_optimized"

	// Optimization events
	EventOptimizationApplied EventType = "optimization.applied"

	// Progress events
	EventLearningPathDecided  EventType = "progress.path_decided"
	EventLearningGapsDetected EventType = "progress.gaps_detected"
)

// LearningEvent is the base event structure for all learning progress events
type LearningEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

const eventSource = "learning-progress-service"

// Retention schedule event payloads

type ScheduleSeededEvent struct {
	UserID       string    `json:"user_id"`
	LessonID     string    `json:"lesson_id"`
	ObjectiveIDs []string  `json:"objective_ids"`
	CreatedCards int       `json:"created_cards"`
	SeededAt     time.Time `json:"seeded_at"`
}

type ReviewRecordedEvent struct {
	UserID       string              `json:"user_id"`
	ObjectiveID  string              `json:"objective_id"`
	Score        float64             `json:"score"`
	Success      bool                `json:"success"`
	Repetitions  int                 `json:"repetitions"`
	IntervalDays float64             `json:"interval_days"`
	NextReviewAt time.Time           `json:"next_review_at"`
	ScheduleType models.ScheduleType `json:"schedule_type"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

type ScheduleOptimizedEvent struct {
	UserID        string                  `json:"user_id"`
	AdjustedCards int                     `json:"adjusted_cards"`
	Adjustments   []models.CardAdjustment `json:"adjustments,omitempty"`
	OptimizedAt   time.Time               `json:"optimized_at"`
}

// Optimization event payload

type OptimizationAppliedEvent struct {
	UserID       string    `json:"user_id"`
	AppliedCount int       `json:"applied_count"`
	SkippedCount int       `json:"skipped_count"`
	AppliedTypes []string  `json:"applied_types,omitempty"`
	AppliedAt    time.Time `json:"applied_at"`
}

// Progress event payloads

type LearningPathDecidedEvent struct {
	UserID      string            `json:"user_id"`
	UnitID      string            `json:"unit_id"`
	Action      models.PathAction `json:"action"`
	CanProgress bool              `json:"can_progress"`
	Confidence  float64           `json:"confidence"`
	DecidedAt   time.Time         `json:"decided_at"`
}

type LearningGapsDetectedEvent struct {
	UserID        string    `json:"user_id"`
	GapCount      int       `json:"gap_count"`
	CriticalCount int       `json:"critical_count"`
	GapTypes      []string  `json:"gap_types,omitempty"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// Event factory functions

func NewScheduleSeededEvent(userID, lessonID string, objectiveIDs []string, createdCards int, seededAt time.Time) *LearningEvent {
	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventScheduleSeeded,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: ScheduleSeededEvent{
			UserID:       userID,
			LessonID:     lessonID,
			ObjectiveIDs: objectiveIDs,
			CreatedCards: createdCards,
			SeededAt:     seededAt,
		},
	}
}

func NewReviewRecordedEvent(card *models.ReviewCard, score float64, success bool, scheduleType models.ScheduleType, recordedAt time.Time) *LearningEvent {
	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventReviewRecorded,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: ReviewRecordedEvent{
			UserID:       card.UserID,
			ObjectiveID:  card.ObjectiveID,
			Score:        score,
			Success:      success,
			Repetitions:  card.Repetitions,
			IntervalDays: card.IntervalDays,
			NextReviewAt: card.DueDate,
			ScheduleType: scheduleType,
			RecordedAt:   recordedAt,
		},
	}
}

func NewScheduleOptimizedEvent(userID string, adjustments []models.CardAdjustment, optimizedAt time.Time) *LearningEvent {
	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventScheduleOptimized,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: ScheduleOptimizedEvent{
			UserID:        userID,
			AdjustedCards: len(adjustments),
			Adjustments:   adjustments,
			OptimizedAt:   optimizedAt,
		},
	}
}

func NewOptimizationAppliedEvent(userID string, appliedCount, skippedCount int, appliedTypes []string, appliedAt time.Time) *LearningEvent {
	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventOptimizationApplied,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: OptimizationAppliedEvent{
			UserID:       userID,
			AppliedCount: appliedCount,
			SkippedCount: skippedCount,
			AppliedTypes: appliedTypes,
			AppliedAt:    appliedAt,
		},
	}
}

func NewLearningPathDecidedEvent(decision *models.LearningPathDecision) *LearningEvent {
	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventLearningPathDecided,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: LearningPathDecidedEvent{
			UserID:      decision.UserID,
			UnitID:      decision.UnitID,
			Action:      decision.Action,
			CanProgress: decision.CanProgress,
			Confidence:  decision.Confidence,
			DecidedAt:   decision.DecidedAt,
		},
	}
}

func NewLearningGapsDetectedEvent(result *models.GapAnalysisResult) *LearningEvent {
	criticalCount := 0
	gapTypes := make([]string, 0, len(result.IdentifiedGaps))
	seen := make(map[models.GapType]bool)
	for _, gap := range result.IdentifiedGaps {
		if gap.Severity == models.GapSeverityCritical {
			criticalCount++
		}
		if !seen[gap.Type] {
			seen[gap.Type] = true
			gapTypes = append(gapTypes, string(gap.Type))
		}
	}

	return &LearningEvent{
		ID:        generateEventID(),
		Type:      EventLearningGapsDetected,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   "1.0",
		Data: LearningGapsDetectedEvent{
			UserID:        result.UserID,
			GapCount:      len(result.IdentifiedGaps),
			CriticalCount: criticalCount,
			GapTypes:      gapTypes,
			AnalyzedAt:    result.AnalyzedAt,
		},
	}
}

// Helper function to generate unique event IDs
func generateEventID() string {
	return uuid.NewString()
}

// GenerateEventID is the exported version for external use
func GenerateEventID() string {
	return generateEventID()
}
