package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type LearningGapPostgreSQL struct {
	db *gorm.DB
}

func NewLearningGapPostgreSQL(db *gorm.DB) repositories.LearningGapRepository {
	return &LearningGapPostgreSQL{db: db}
}

// ReplaceForUser swaps the user's stored gaps for the latest analysis output
// in one transaction, so readers never see a half-replaced set.
func (r LearningGapPostgreSQL) ReplaceForUser(ctx context.Context, userID string, gaps []models.LearningGap) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.LearningGap{}).Error; err != nil {
			return err
		}
		if len(gaps) == 0 {
			return nil
		}
		return tx.CreateInBatches(gaps, createBatchSize).Error
	})
}

func (r LearningGapPostgreSQL) GetByUser(ctx context.Context, userID string, filters repositories.LearningGapFilters) ([]models.LearningGap, error) {
	var gaps []models.LearningGap

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("detected_at desc")
	query = r.applyFilters(query, filters)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&gaps).Error; err != nil {
		return nil, err
	}
	return gaps, nil
}

func (r LearningGapPostgreSQL) CountBySeverity(ctx context.Context, userID string) (map[models.GapSeverity]int, error) {
	type severityCount struct {
		Severity models.GapSeverity `json:"severity"`
		Count    int                `json:"count"`
	}

	var rows []severityCount
	if err := r.db.WithContext(ctx).
		Model(&models.LearningGap{}).
		Select("severity, count(*) as count").
		Where("user_id = ?", userID).
		Group("severity").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.GapSeverity]int, len(rows))
	for _, row := range rows {
		counts[row.Severity] = row.Count
	}
	return counts, nil
}

func (r LearningGapPostgreSQL) applyFilters(query *gorm.DB, filters repositories.LearningGapFilters) *gorm.DB {
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Severity != nil {
		query = query.Where("severity = ?", *filters.Severity)
	}
	if filters.DetectedFrom != nil {
		query = query.Where("detected_at >= ?", *filters.DetectedFrom)
	}
	return query
}
