package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/learning-progress-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Scheduler specific errors
	ErrReviewCardNotFound  = errors.New("review card not found")
	ErrCardAlreadyExists   = errors.New("review card already exists for this objective")
	ErrScoreOutOfRange     = errors.New("score must be between 0 and 1")
	ErrEmptyObjectiveSet   = errors.New("objective set must not be empty")
	ErrNothingToImport     = errors.New("card import set must not be empty")
	ErrScheduleUnavailable = errors.New("no schedule exists for this user")

	// Evaluator specific errors
	ErrObjectiveRequired = errors.New("learning objective is required")
	ErrLessonRequired    = errors.New("lesson is required")
	ErrUnitRequired      = errors.New("unit is required")

	// Optimizer specific errors
	ErrHistoryUnavailable = errors.New("no review history available for analysis")
	ErrNoUsersInBatch     = errors.New("batch optimization requires at least one user")

	// Gap analyzer specific errors
	ErrProgressRequired = errors.New("progress data is required for gap analysis")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrReviewCardNotFound) ||
		errors.Is(err, ErrScheduleUnavailable)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrScoreOutOfRange) ||
		errors.Is(err, ErrEmptyObjectiveSet) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCardAlreadyExists)
}
