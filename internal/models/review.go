package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

type ScheduleType string

const (
	ScheduleTypeInitial       ScheduleType = "initial"
	ScheduleTypeReview        ScheduleType = "review"
	ScheduleTypeRemediation   ScheduleType = "remediation"
	ScheduleTypeReinforcement ScheduleType = "reinforcement"
)

func (s ScheduleType) IsValid() bool {
	switch s {
	case ScheduleTypeInitial, ScheduleTypeReview, ScheduleTypeRemediation, ScheduleTypeReinforcement:
		return true
	}
	return false
}

type AssessmentType string

const (
	AssessmentTypeExercise AssessmentType = "exercise"
	AssessmentTypeQuiz     AssessmentType = "quiz"
	AssessmentTypeReview   AssessmentType = "review"
)

// ReviewCard is the per (user, objective) spaced-repetition state. One card
// per pair, created on first seed and never deleted. Mutated only by the
// interval-update transition and the bulk optimize pass.
type ReviewCard struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	UserID      string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_cards_user_objective" validate:"required"`
	ObjectiveID string `json:"objective_id" gorm:"not null;size:255;uniqueIndex:idx_cards_user_objective" validate:"required"`
	LessonID    string `json:"lesson_id,omitempty" gorm:"size:255;index"`

	// Algorithm state
	IntervalDays float64    `json:"interval_days" gorm:"not null;default:1"`
	Repetitions  int        `json:"repetitions" gorm:"not null;default:0"`
	EaseFactor   float64    `json:"ease_factor" gorm:"not null;default:2.5"`
	DueDate      time.Time  `json:"due_date" gorm:"not null;index"`
	LastReview   *time.Time `json:"last_review,omitempty"`
	LastScore    *float64   `json:"last_score,omitempty"`

	// History counters, successfulReviews never exceeds totalReviews
	TotalReviews      int `json:"total_reviews" gorm:"not null;default:0"`
	SuccessfulReviews int `json:"successful_reviews" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReviewCard) TableName() string {
	return "review_cards"
}

// Clone returns a deep copy so schedule snapshots and export payloads never
// alias scheduler-owned state.
func (c *ReviewCard) Clone() *ReviewCard {
	if c == nil {
		return nil
	}
	clone := *c
	if c.LastReview != nil {
		t := *c.LastReview
		clone.LastReview = &t
	}
	if c.LastScore != nil {
		s := *c.LastScore
		clone.LastScore = &s
	}
	return &clone
}

func (c *ReviewCard) IsDue(asOf time.Time) bool {
	return !c.DueDate.After(asOf)
}

// OverdueDays returns whole days past the due date, 0 when the card is not
// yet due.
func (c *ReviewCard) OverdueDays(asOf time.Time) int {
	if c.DueDate.After(asOf) {
		return 0
	}
	return int(math.Floor(asOf.Sub(c.DueDate).Hours() / 24))
}

func (c *ReviewCard) FailureRate() float64 {
	if c.TotalReviews == 0 {
		return 0
	}
	return float64(c.TotalReviews-c.SuccessfulReviews) / float64(c.TotalReviews)
}

func (c *ReviewCard) RetentionRate() float64 {
	if c.TotalReviews == 0 {
		return 0
	}
	return float64(c.SuccessfulReviews) / float64(c.TotalReviews)
}

// RetentionScheduleEntry is a derived, ephemeral instruction to re-test a
// learner on one objective. Produced from a card snapshot, never stored by
// the scheduler itself.
type RetentionScheduleEntry struct {
	UserID           string         `json:"user_id"`
	ObjectiveID      string         `json:"objective_id"`
	LessonID         string         `json:"lesson_id,omitempty"`
	ScheduleType     ScheduleType   `json:"schedule_type"`
	DueDate          time.Time      `json:"due_date"`
	Priority         int            `json:"priority"` // 1..5
	EstimatedMinutes int            `json:"estimated_duration_minutes"`
	AssessmentType   AssessmentType `json:"assessment_type"`
}

// CompletedReview is the persisted log record of a single review outcome,
// the raw material for the optimizer's pattern analysis.
type CompletedReview struct {
	ID                  string         `json:"id" gorm:"primaryKey;size:36"`
	UserID              string         `json:"user_id" gorm:"not null;size:255;index:idx_reviews_user_objective" validate:"required"`
	ObjectiveID         string         `json:"objective_id" gorm:"not null;size:255;index:idx_reviews_user_objective" validate:"required"`
	Score               float64        `json:"score" gorm:"not null" validate:"gte=0,lte=1"`
	Success             bool           `json:"success" gorm:"not null"`
	ResponseTimeSeconds *float64       `json:"response_time_seconds,omitempty"`
	ScheduleType        ScheduleType   `json:"schedule_type" gorm:"size:20"`
	ReviewedAt          time.Time      `json:"reviewed_at" gorm:"not null;index"`
	Metadata            datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (CompletedReview) TableName() string {
	return "completed_reviews"
}

// ReviewOutcome is the minimal history sample consumed by the scheduler's
// bulk optimize pass.
type ReviewOutcome struct {
	ObjectiveID string    `json:"objective_id"`
	Score       float64   `json:"score"`
	Date        time.Time `json:"date"`
}

// ScheduleMetrics is a read-model over one user's card table.
type ScheduleMetrics struct {
	UserID                 string    `json:"user_id"`
	TotalScheduled         int       `json:"total_scheduled"`
	DueToday               int       `json:"due_today"`
	Overdue                int       `json:"overdue"`
	UpcomingWeek           int       `json:"upcoming_week"`
	AverageRetentionRate   float64   `json:"average_retention_rate"`
	AverageEaseFactor      float64   `json:"average_ease_factor"`
	TotalReviewTimeMinutes int       `json:"total_review_time_minutes"`
	ComputedAt             time.Time `json:"computed_at"`
}

// CardAdjustment records one ease-factor nudge applied by the bulk optimize
// pass, returned so callers can audit what changed.
type CardAdjustment struct {
	ObjectiveID        string  `json:"objective_id"`
	PreviousEaseFactor float64 `json:"previous_ease_factor"`
	NewEaseFactor      float64 `json:"new_ease_factor"`
	Reason             string  `json:"reason"`
}
