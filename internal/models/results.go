package models

import "time"

// ExerciseResult is a completed practice outcome supplied by the results
// provider. Scores are percentages in [0,100].
type ExerciseResult struct {
	ExerciseID       string    `json:"exercise_id" validate:"required"`
	ObjectiveID      string    `json:"objective_id"`
	UserID           string    `json:"user_id" validate:"required"`
	Score            float64   `json:"score" validate:"gte=0,lte=100"`
	Attempts         int       `json:"attempts" validate:"gte=0"`
	TimeSpentSeconds int       `json:"time_spent_seconds" validate:"gte=0"`
	HintsUsed        int       `json:"hints_used" validate:"gte=0"`
	CompletedAt      time.Time `json:"completed_at"`
	MasteryAchieved  bool      `json:"mastery_achieved"`
}

// AssessmentResult mirrors ExerciseResult for formal assessments and carries
// the raw answer counts and time limit needed for penalty scoring.
type AssessmentResult struct {
	AssessmentID     string    `json:"assessment_id" validate:"required"`
	ObjectiveID      string    `json:"objective_id"`
	UserID           string    `json:"user_id" validate:"required"`
	Score            float64   `json:"score" validate:"gte=0,lte=100"`
	CorrectAnswers   int       `json:"correct_answers" validate:"gte=0"`
	TotalQuestions   int       `json:"total_questions" validate:"gte=0"`
	TimeSpentSeconds int       `json:"time_spent_seconds" validate:"gte=0"`
	TimeLimitSeconds int       `json:"time_limit_seconds" validate:"gte=0"`
	HintsUsed        int       `json:"hints_used" validate:"gte=0"`
	CompletedAt      time.Time `json:"completed_at"`
	MasteryAchieved  bool      `json:"mastery_achieved"`
}

// GradingMistake is a single graded error reported by the grading provider.
// Type is free text from the grader; the gap analyzer classifies it by
// keyword into an ErrorPatternType.
type GradingMistake struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// GradingResult is the per-question grading record consumed by the gap
// analyzer.
type GradingResult struct {
	ObjectiveID string           `json:"objective_id"`
	QuestionID  string           `json:"question_id,omitempty"`
	IsCorrect   bool             `json:"is_correct"`
	Score       float64          `json:"score"`
	Mistakes    []GradingMistake `json:"mistakes,omitempty"`
}

// EngagementMetrics summarizes a learner's recent activity. Supplied by the
// caller; the optimizer uses it for motivation heuristics only.
type EngagementMetrics struct {
	AverageSessionMinutes float64 `json:"average_session_minutes"`
	StreakDays            int     `json:"streak_days"`
	OverdueReviews        int     `json:"overdue_reviews"`
	ActiveDaysLast30      int     `json:"active_days_last_30"`
}
