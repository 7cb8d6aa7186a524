package validator

import (
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// BusinessValidator handles domain rules that struct tags cannot express.
type BusinessValidator struct{}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{}
}

// Validate dispatches to the rule set for a known domain type. Unknown types
// pass through with no errors.
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	switch v := s.(type) {
	case *models.ReviewCard:
		return bv.ValidateReviewCard(v)
	case models.ReviewCard:
		return bv.ValidateReviewCard(&v)
	case *models.LearningObjective:
		return bv.ValidateObjective(v)
	case []models.LearningObjective:
		return bv.ValidateObjectives(v)
	default:
		return nil
	}
}

// ValidateReviewCard enforces the card state invariants.
func (bv *BusinessValidator) ValidateReviewCard(card *models.ReviewCard) ValidationErrors {
	var errs ValidationErrors

	if card.SuccessfulReviews > card.TotalReviews {
		errs = append(errs, *NewValidationErrorWithRule(
			"successful_reviews",
			"must not exceed total reviews",
			"review_counters",
			card.SuccessfulReviews,
		))
	}
	if card.EaseFactor < 1.3 || card.EaseFactor > 2.5 {
		errs = append(errs, *NewValidationErrorWithRule(
			"ease_factor",
			"must be between 1.3 and 2.5",
			"ease_factor",
			card.EaseFactor,
		))
	}
	if card.IntervalDays <= 0 {
		errs = append(errs, *NewValidationErrorWithRule(
			"interval_days",
			"must be positive",
			"interval_days",
			card.IntervalDays,
		))
	}
	if card.LastScore != nil && (*card.LastScore < 0 || *card.LastScore > 1) {
		errs = append(errs, *NewValidationErrorWithRule(
			"last_score",
			"must be between 0 and 1",
			"fractional_score",
			*card.LastScore,
		))
	}

	return errs
}

// ValidateReviewOutcome checks the inputs to a single outcome recording.
func (bv *BusinessValidator) ValidateReviewOutcome(userID, objectiveID string, score float64) ValidationErrors {
	var errs ValidationErrors

	if userID == "" {
		errs = append(errs, *NewValidationError("user_id", "is required", userID))
	}
	if objectiveID == "" {
		errs = append(errs, *NewValidationError("objective_id", "is required", objectiveID))
	}
	if score < 0 || score > 1 {
		errs = append(errs, *NewValidationErrorWithRule(
			"score",
			"must be between 0 and 1",
			"fractional_score",
			score,
		))
	}

	return errs
}

// ValidateObjective checks a single learning objective.
func (bv *BusinessValidator) ValidateObjective(objective *models.LearningObjective) ValidationErrors {
	var errs ValidationErrors

	if objective.ID == "" {
		errs = append(errs, *NewValidationError("id", "is required", objective.ID))
	}
	if !objective.Category.IsValid() {
		errs = append(errs, *NewValidationErrorWithRule(
			"category",
			"must be a valid objective category (knowledge, comprehension, application, analysis, synthesis, evaluation)",
			"objective_category",
			string(objective.Category),
		))
	}
	if objective.MasteryThreshold < 0 || objective.MasteryThreshold > 1 {
		errs = append(errs, *NewValidationErrorWithRule(
			"mastery_threshold",
			"must be between 0 and 1",
			"mastery_threshold",
			objective.MasteryThreshold,
		))
	}

	return errs
}

// ValidateObjectives checks a seed set: non-empty, each objective valid.
func (bv *BusinessValidator) ValidateObjectives(objectives []models.LearningObjective) ValidationErrors {
	if len(objectives) == 0 {
		return ValidationErrors{
			*NewValidationError("objectives", "must not be empty", nil),
		}
	}

	var errs ValidationErrors
	for i := range objectives {
		errs = append(errs, bv.ValidateObjective(&objectives[i])...)
	}
	return errs
}
