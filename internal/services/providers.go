package services

import (
	"context"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== COLLABORATOR PROVIDERS =====

// The core never queries content, result, or grading stores directly. These
// interfaces are implemented by the owning services and injected where
// aggregation needs them, so the domain logic stays free of transport and
// storage concerns.

// ContentProvider supplies curriculum structure. Units arrive with their
// lessons and objectives populated; everything is read-only to this service.
type ContentProvider interface {
	GetUnit(ctx context.Context, unitID string) (*models.Unit, error)
	GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
}

// ResultsProvider supplies completed exercise and assessment outcomes scoped
// to one user and lesson.
type ResultsProvider interface {
	GetExerciseResults(ctx context.Context, userID, lessonID string) ([]models.ExerciseResult, error)
	GetAssessmentResults(ctx context.Context, userID, lessonID string) ([]models.AssessmentResult, error)
}

// GradingProvider supplies per-question grading records with their mistake
// annotations, scoped to the given objectives.
type GradingProvider interface {
	GetGradingResults(ctx context.Context, userID string, objectiveIDs []string) ([]models.GradingResult, error)
}
