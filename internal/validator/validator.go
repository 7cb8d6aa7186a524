package validator

import (
	"reflect"
	"strings"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator is the main validator instance that combines all validation types
type Validator struct {
	structValidator   *validator.Validate
	businessValidator *BusinessValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:   structValidator,
		businessValidator: NewBusinessValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// ValidateBusiness validates business rules only
func (v *Validator) ValidateBusiness(s interface{}) ValidationErrors {
	return v.businessValidator.Validate(s)
}

// Validate performs complete validation (struct + business rules)
func (v *Validator) Validate(s interface{}) error {
	// First validate struct tags
	if err := v.ValidateStruct(s); err != nil {
		return err
	}

	// Then validate business rules
	if errors := v.ValidateBusiness(s); len(errors) > 0 {
		return errors
	}

	return nil
}

// Business returns the business validator
func (v *Validator) Business() *BusinessValidator {
	return v.businessValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	// Objective category validation
	validate.RegisterValidation("objective_category", validateObjectiveCategory)

	// Schedule type validation
	validate.RegisterValidation("schedule_type", validateScheduleType)

	// Performance pattern validation
	validate.RegisterValidation("pattern_type", validatePatternType)

	// Gap type validation
	validate.RegisterValidation("gap_type", validateGapType)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validation functions
func validateObjectiveCategory(fl validator.FieldLevel) bool {
	return models.ObjectiveCategory(fl.Field().String()).IsValid()
}

func validateScheduleType(fl validator.FieldLevel) bool {
	return models.ScheduleType(fl.Field().String()).IsValid()
}

func validatePatternType(fl validator.FieldLevel) bool {
	validPatterns := []models.PatternType{
		models.PatternImproving,
		models.PatternDeclining,
		models.PatternStable,
		models.PatternVolatile,
		models.PatternMastered,
	}

	value := fl.Field().String()
	for _, validPattern := range validPatterns {
		if string(validPattern) == value {
			return true
		}
	}
	return false
}

func validateGapType(fl validator.FieldLevel) bool {
	validTypes := []models.GapType{
		models.GapTypeConceptual,
		models.GapTypeProcedural,
		models.GapTypePrerequisite,
		models.GapTypeApplication,
		models.GapTypeMetacognitive,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}
