package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type CompletedReviewPostgreSQL struct {
	db *gorm.DB
}

func NewCompletedReviewPostgreSQL(db *gorm.DB) repositories.CompletedReviewRepository {
	return &CompletedReviewPostgreSQL{db: db}
}

func (r CompletedReviewPostgreSQL) Create(ctx context.Context, review *models.CompletedReview) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(review).Error
}

func (r CompletedReviewPostgreSQL) GetByUser(ctx context.Context, userID string, filters repositories.CompletedReviewFilters) ([]models.CompletedReview, error) {
	var reviews []models.CompletedReview

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("reviewed_at asc")
	query = r.applyFilters(query, filters)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

// OutcomesByUser projects the log into chronological history samples. A zero
// since means the full log.
func (r CompletedReviewPostgreSQL) OutcomesByUser(ctx context.Context, userID string, since time.Time) ([]models.ReviewOutcome, error) {
	var reviews []models.CompletedReview

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("reviewed_at asc")
	if !since.IsZero() {
		query = query.Where("reviewed_at >= ?", since)
	}

	if err := query.Find(&reviews).Error; err != nil {
		return nil, err
	}

	outcomes := make([]models.ReviewOutcome, len(reviews))
	for i, review := range reviews {
		outcomes[i] = models.ReviewOutcome{
			ObjectiveID: review.ObjectiveID,
			Score:       review.Score,
			Date:        review.ReviewedAt,
		}
	}
	return outcomes, nil
}

func (r CompletedReviewPostgreSQL) ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	var userIDs []string
	if err := r.db.WithContext(ctx).
		Model(&models.CompletedReview{}).
		Where("reviewed_at >= ?", since).
		Distinct("user_id").
		Order("user_id asc").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r CompletedReviewPostgreSQL) applyFilters(query *gorm.DB, filters repositories.CompletedReviewFilters) *gorm.DB {
	if filters.ObjectiveID != nil {
		query = query.Where("objective_id = ?", *filters.ObjectiveID)
	}
	if filters.ScheduleType != nil {
		query = query.Where("schedule_type = ?", *filters.ScheduleType)
	}
	if filters.SuccessOnly != nil && *filters.SuccessOnly {
		query = query.Where("success = ?", true)
	}
	if filters.DateFrom != nil {
		query = query.Where("reviewed_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("reviewed_at <= ?", *filters.DateTo)
	}
	return query
}
