package postgres

import (
	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

const createBatchSize = 100

// Repository is the PostgreSQL-backed aggregate.
type Repository struct {
	db      *gorm.DB
	cards   repositories.ReviewCardRepository
	reviews repositories.CompletedReviewRepository
	gaps    repositories.LearningGapRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:      db,
		cards:   NewReviewCardPostgreSQL(db),
		reviews: NewCompletedReviewPostgreSQL(db),
		gaps:    NewLearningGapPostgreSQL(db),
	}
}

func (r *Repository) Cards() repositories.ReviewCardRepository {
	return r.cards
}

func (r *Repository) Reviews() repositories.CompletedReviewRepository {
	return r.reviews
}

func (r *Repository) Gaps() repositories.LearningGapRepository {
	return r.gaps
}

// AutoMigrate creates or updates the service's tables.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.ReviewCard{},
		&models.CompletedReview{},
		&models.LearningGap{},
	)
}

// applyPaginationAndSort orders and pages a query. Sort columns are checked
// against an allow list so filter input never reaches the SQL string raw.
func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder, defaultSort string, allowedSorts map[string]bool, limit, offset int) *gorm.DB {
	if sortBy == "" || !allowedSorts[sortBy] {
		sortBy = defaultSort
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "asc"
	}
	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
