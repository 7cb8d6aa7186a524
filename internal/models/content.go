package models

// ObjectiveCategory classifies a learning objective by the cognitive skill it
// targets. Categories weight review priority and duration estimates.
type ObjectiveCategory string

const (
	CategoryKnowledge     ObjectiveCategory = "knowledge"
	CategoryComprehension ObjectiveCategory = "comprehension"
	CategoryApplication   ObjectiveCategory = "application"
	CategoryAnalysis      ObjectiveCategory = "analysis"
	CategorySynthesis     ObjectiveCategory = "synthesis"
	CategoryEvaluation    ObjectiveCategory = "evaluation"
)

func (c ObjectiveCategory) IsValid() bool {
	switch c {
	case CategoryKnowledge, CategoryComprehension, CategoryApplication,
		CategoryAnalysis, CategorySynthesis, CategoryEvaluation:
		return true
	}
	return false
}

// IsHigherOrder reports whether the category covers transfer skills rather
// than recall. Higher-order objectives get a priority bump when scheduled.
func (c ObjectiveCategory) IsHigherOrder() bool {
	return c == CategoryApplication || c == CategoryAnalysis
}

// LearningObjective is supplied by the content provider and is read-only to
// this service.
type LearningObjective struct {
	ID                    string            `json:"id" validate:"required"`
	LessonID              string            `json:"lesson_id,omitempty"`
	Title                 string            `json:"title"`
	Category              ObjectiveCategory `json:"category" validate:"required,objective_category"`
	MasteryThreshold      float64           `json:"mastery_threshold" validate:"gte=0,lte=1"`
	OrderIndex            int               `json:"order_index"`
	RemediationContentKey string            `json:"remediation_content_key,omitempty"`
}

type Lesson struct {
	ID               string              `json:"id" validate:"required"`
	UnitID           string              `json:"unit_id,omitempty"`
	Title            string              `json:"title"`
	OrderIndex       int                 `json:"order_index"`
	MasteryThreshold float64             `json:"mastery_threshold" validate:"gte=0,lte=1"`
	Objectives       []LearningObjective `json:"objectives,omitempty"`
}

type Unit struct {
	ID               string   `json:"id" validate:"required"`
	Title            string   `json:"title"`
	OrderIndex       int      `json:"order_index"`
	MasteryThreshold float64  `json:"mastery_threshold" validate:"gte=0,lte=1"`
	Lessons          []Lesson `json:"lessons,omitempty"`
}
