package errors

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("user_id", "is required", "")

	assert.Equal(t, "user_id", err.Field)
	assert.Equal(t, "is required", err.Message)
	assert.Equal(t, "", err.Value)
	assert.Equal(t, "validation error on field 'user_id': is required", err.Error())
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("score", "must be between 0 and 1", "fractional_score", 1.5)

	assert.Equal(t, "fractional_score", err.Rule)
	assert.Equal(t, "score", err.Field)
	assert.Equal(t, 1.5, err.Value)
}

func TestValidationErrors_Error(t *testing.T) {
	tests := []struct {
		name     string
		errs     ValidationErrors
		expected string
	}{
		{
			name:     "empty",
			errs:     nil,
			expected: "validation failed",
		},
		{
			name: "single error",
			errs: ValidationErrors{
				{Field: "user_id", Message: "is required"},
			},
			expected: "validation failed: user_id is required",
		},
		{
			name: "multiple errors",
			errs: ValidationErrors{
				{Field: "user_id", Message: "is required"},
				{Field: "score", Message: "must be at most 1"},
			},
			expected: "validation failed: 2 field errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.errs.Error())
		})
	}
}

func TestToValidationErrors(t *testing.T) {
	type outcome struct {
		UserID string  `validate:"required"`
		Score  float64 `validate:"gte=0,lte=1"`
	}

	v := validator.New()
	err := v.Struct(outcome{Score: 1.5})
	require.Error(t, err)

	verrs := ToValidationErrors(err)
	require.Len(t, verrs, 2)

	assert.Equal(t, "UserID", verrs[0].Field)
	assert.Equal(t, "is required", verrs[0].Message)
	assert.Equal(t, "required", verrs[0].Rule)

	assert.Equal(t, "Score", verrs[1].Field)
	assert.Equal(t, "must be at most 1", verrs[1].Message)
	assert.Equal(t, "lte", verrs[1].Rule)
	assert.Equal(t, 1.5, verrs[1].Value)
}

func TestToValidationErrors_NonValidatorError(t *testing.T) {
	verrs := ToValidationErrors(errors.New("boom"))
	assert.Empty(t, verrs)
}
