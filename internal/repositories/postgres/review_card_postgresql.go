package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type ReviewCardPostgreSQL struct {
	db *gorm.DB
}

func NewReviewCardPostgreSQL(db *gorm.DB) repositories.ReviewCardRepository {
	return &ReviewCardPostgreSQL{db: db}
}

var cardSortColumns = map[string]bool{
	"due_date":    true,
	"created_at":  true,
	"updated_at":  true,
	"ease_factor": true,
}

// Upsert writes a card snapshot, replacing any previous snapshot for the
// same (user, objective) pair.
func (r ReviewCardPostgreSQL) Upsert(ctx context.Context, card *models.ReviewCard) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "objective_id"}},
			UpdateAll: true,
		}).
		Create(card).Error
}

func (r ReviewCardPostgreSQL) UpsertBatch(ctx context.Context, cards []models.ReviewCard) error {
	if len(cards) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "objective_id"}},
			UpdateAll: true,
		}).
		CreateInBatches(cards, createBatchSize).Error
}

func (r ReviewCardPostgreSQL) GetByUserAndObjective(ctx context.Context, userID, objectiveID string) (*models.ReviewCard, error) {
	var card models.ReviewCard
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND objective_id = ?", userID, objectiveID).
		First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r ReviewCardPostgreSQL) GetByUser(ctx context.Context, userID string) ([]models.ReviewCard, error) {
	var cards []models.ReviewCard
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("objective_id asc").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r ReviewCardPostgreSQL) List(ctx context.Context, filters repositories.ReviewCardFilters) ([]models.ReviewCard, int64, error) {
	var cards []models.ReviewCard
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ReviewCard{})
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, "due_date", cardSortColumns, filters.Limit, filters.Offset)
	if err := query.Find(&cards).Error; err != nil {
		return nil, 0, err
	}

	return cards, total, nil
}

func (r ReviewCardPostgreSQL) CountDue(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ReviewCard{}).
		Where("user_id = ? AND due_date <= ?", userID, asOf).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r ReviewCardPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ReviewCardFilters) *gorm.DB {
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.LessonID != nil {
		query = query.Where("lesson_id = ?", *filters.LessonID)
	}
	if filters.DueBefore != nil {
		query = query.Where("due_date < ?", *filters.DueBefore)
	}
	return query
}
