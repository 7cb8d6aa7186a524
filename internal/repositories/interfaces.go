package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// ===== REPOSITORY AGGREGATE =====

// Repository bundles the persistence surfaces of the service. The scheduler
// core stays in-memory; these repositories are the durable side of the
// export/import contract, the optimizer's history source, and the gap sink.
type Repository interface {
	Cards() ReviewCardRepository
	Reviews() CompletedReviewRepository
	Gaps() LearningGapRepository
}

// ReviewCardRepository stores card snapshots keyed by (user, objective).
type ReviewCardRepository interface {
	Upsert(ctx context.Context, card *models.ReviewCard) error
	UpsertBatch(ctx context.Context, cards []models.ReviewCard) error
	GetByUserAndObjective(ctx context.Context, userID, objectiveID string) (*models.ReviewCard, error)
	GetByUser(ctx context.Context, userID string) ([]models.ReviewCard, error)
	List(ctx context.Context, filters ReviewCardFilters) ([]models.ReviewCard, int64, error)
	CountDue(ctx context.Context, userID string, asOf time.Time) (int64, error)
}

// CompletedReviewRepository is the append-only review log.
type CompletedReviewRepository interface {
	Create(ctx context.Context, review *models.CompletedReview) error
	GetByUser(ctx context.Context, userID string, filters CompletedReviewFilters) ([]models.CompletedReview, error)
	// OutcomesByUser projects the log into the minimal history samples the
	// optimize passes consume, in chronological order.
	OutcomesByUser(ctx context.Context, userID string, since time.Time) ([]models.ReviewOutcome, error)
	// ActiveUserIDs lists distinct users with at least one review since the
	// cutoff. Drives the periodic optimization sweep.
	ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)
}

// LearningGapRepository stores diagnosed gaps. An analysis pass replaces the
// user's previous open gaps rather than accumulating duplicates.
type LearningGapRepository interface {
	ReplaceForUser(ctx context.Context, userID string, gaps []models.LearningGap) error
	GetByUser(ctx context.Context, userID string, filters LearningGapFilters) ([]models.LearningGap, error)
	CountBySeverity(ctx context.Context, userID string) (map[models.GapSeverity]int, error)
}

// ===== FILTER STRUCTS =====

type ReviewCardFilters struct {
	UserID    *string    `json:"user_id"`
	LessonID  *string    `json:"lesson_id"`
	DueBefore *time.Time `json:"due_before"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "due_date", "created_at", "ease_factor"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type CompletedReviewFilters struct {
	ObjectiveID  *string              `json:"objective_id"`
	ScheduleType *models.ScheduleType `json:"schedule_type"`
	SuccessOnly  *bool                `json:"success_only"`
	DateFrom     *time.Time           `json:"date_from"`
	DateTo       *time.Time           `json:"date_to"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

type LearningGapFilters struct {
	Type         *models.GapType     `json:"type"`
	Severity     *models.GapSeverity `json:"severity"`
	DetectedFrom *time.Time          `json:"detected_from"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

// ===== ERROR HELPERS =====

// IsNotFoundError reports whether err is the driver's missing-record error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
