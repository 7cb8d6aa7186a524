package models

import "time"

type GapType string

const (
	GapTypeConceptual    GapType = "conceptual"
	GapTypeProcedural    GapType = "procedural"
	GapTypePrerequisite  GapType = "prerequisite"
	GapTypeApplication   GapType = "application"
	GapTypeMetacognitive GapType = "metacognitive"
)

type GapSeverity string

const (
	GapSeverityCritical GapSeverity = "critical"
	GapSeverityMajor    GapSeverity = "major"
	GapSeverityModerate GapSeverity = "moderate"
	GapSeverityMinor    GapSeverity = "minor"
)

// Weight is the severity coefficient used by the gap priority formula.
// Downstream tooling sorts on the resulting priority, so these values are a
// contract.
func (s GapSeverity) Weight() float64 {
	switch s {
	case GapSeverityCritical:
		return 1.0
	case GapSeverityMajor:
		return 0.8
	case GapSeverityModerate:
		return 0.6
	case GapSeverityMinor:
		return 0.4
	default:
		return 0.4
	}
}

type ErrorPatternType string

const (
	ErrorPatternAttentionToDetail       ErrorPatternType = "attention_to_detail"
	ErrorPatternProceduralError         ErrorPatternType = "procedural_error"
	ErrorPatternConsistentMisconception ErrorPatternType = "consistent_misconception"
	ErrorPatternComputationalMistake    ErrorPatternType = "computational_mistake"
	ErrorPatternIncompleteUnderstanding ErrorPatternType = "incomplete_understanding"
)

// ErrorPattern accumulates how often one class of mistake shows up in a
// user's grading records.
type ErrorPattern struct {
	Type               ErrorPatternType `json:"type"`
	Frequency          int              `json:"frequency"`
	Consistency        float64          `json:"consistency"` // 0..1
	Examples           []string         `json:"examples,omitempty"`
	AffectedObjectives []string         `json:"affected_objectives,omitempty"`
}

// LearningGap is a diagnosed deficiency in one skill category. Gaps with
// evidence strength below 0.3 are filtered out before callers ever see them.
type LearningGap struct {
	ID                  string      `json:"id" gorm:"primaryKey;size:36"`
	UserID              string      `json:"user_id" gorm:"not null;size:255;index" validate:"required"`
	Type                GapType     `json:"type" gorm:"not null;size:20;index"`
	Severity            GapSeverity `json:"severity" gorm:"not null;size:20"`
	Description         string      `json:"description" gorm:"type:text"`
	AffectedConcepts    []string    `json:"affected_concepts" gorm:"serializer:json"`
	EvidenceStrength    float64     `json:"evidence_strength" gorm:"not null"`     // 0..1
	ImpactOnProgression float64     `json:"impact_on_progression" gorm:"not null"` // 0..1
	Frequency           int         `json:"frequency" gorm:"not null;default:0"`
	PersistenceLevel    float64     `json:"persistence_level" gorm:"not null"` // 0..1
	DetectedAt          time.Time   `json:"detected_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LearningGap) TableName() string {
	return "learning_gaps"
}

type InterventionType string

const (
	InterventionConceptualInstruction InterventionType = "conceptual_instruction"
	InterventionGuidedPractice        InterventionType = "guided_practice"
	InterventionContentReview         InterventionType = "content_review"
	InterventionAdaptiveExercises     InterventionType = "adaptive_exercises"
)

// Intervention is one concrete remediation task with a literal duration.
type Intervention struct {
	Type            InterventionType `json:"type"`
	Description     string           `json:"description"`
	DurationMinutes int              `json:"duration_minutes"`
}

type GapUrgency string

const (
	UrgencyImmediate GapUrgency = "immediate"
	UrgencyHigh      GapUrgency = "high"
	UrgencyMedium    GapUrgency = "medium"
)

// GapRecommendation pairs a diagnosed gap with its intervention plan.
type GapRecommendation struct {
	GapID                string         `json:"gap_id"`
	GapType              GapType        `json:"gap_type"`
	Urgency              GapUrgency     `json:"urgency"`
	Rationale            string         `json:"rationale"`
	Interventions        []Intervention `json:"interventions"`
	EstimatedEffortHours float64        `json:"estimated_effort_hours"`
}

// GapAnalysisResult is the analyzer's full output for one user.
type GapAnalysisResult struct {
	UserID          string              `json:"user_id"`
	IdentifiedGaps  []LearningGap       `json:"identified_gaps"`
	ErrorPatterns   []ErrorPattern      `json:"error_patterns"`
	Recommendations []GapRecommendation `json:"recommendations"`
	AnalyzedAt      time.Time           `json:"analyzed_at"`
}
