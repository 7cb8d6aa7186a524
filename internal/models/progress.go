package models

import "time"

type ProgressStatus string

const (
	ProgressStatusNotStarted ProgressStatus = "not_started"
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusMastered   ProgressStatus = "mastered"
)

func (s ProgressStatus) IsValid() bool {
	switch s {
	case ProgressStatusNotStarted, ProgressStatusInProgress, ProgressStatusMastered:
		return true
	}
	return false
}

// ObjectiveProgress is rebuilt per evaluation call from raw results, never
// cached across calls.
type ObjectiveProgress struct {
	ObjectiveID      string         `json:"objective_id"`
	UserID           string         `json:"user_id"`
	Status           ProgressStatus `json:"status"`
	CurrentScore     float64        `json:"current_score"` // 0..100
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	AttemptCount     int            `json:"attempt_count"`
	MasteryAchieved  bool           `json:"mastery_achieved"`
	LastActivityAt   *time.Time     `json:"last_activity_at,omitempty"`
}

type LessonProgress struct {
	LessonID         string              `json:"lesson_id"`
	UserID           string              `json:"user_id"`
	Status           ProgressStatus      `json:"status"`
	CurrentScore     float64             `json:"current_score"`
	TimeSpentSeconds int                 `json:"time_spent_seconds"`
	MasteryAchieved  bool                `json:"mastery_achieved"`
	Objectives       []ObjectiveProgress `json:"objectives"`
}

type UnitProgress struct {
	UnitID           string           `json:"unit_id"`
	UserID           string           `json:"user_id"`
	Status           ProgressStatus   `json:"status"`
	CurrentScore     float64          `json:"current_score"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	MasteryAchieved  bool             `json:"mastery_achieved"`
	Lessons          []LessonProgress `json:"lessons"`
}

// ===== MASTERY STATUS =====

type MasteryContentType string

const (
	MasteryContentLesson    MasteryContentType = "lesson"
	MasteryContentUnit      MasteryContentType = "unit"
	MasteryContentObjective MasteryContentType = "objective"
	MasteryContentRetention MasteryContentType = "retention"
)

type MasteryLevel string

const (
	MasteryLevelNone        MasteryLevel = "none"
	MasteryLevelApproaching MasteryLevel = "approaching"
	MasteryLevelProficient  MasteryLevel = "proficient"
	MasteryLevelAdvanced    MasteryLevel = "advanced"
)

// MasteryStatus is the calculator's verdict for one score against one
// content type's threshold.
type MasteryStatus struct {
	Score                 float64            `json:"score"` // 0..100
	ContentType           MasteryContentType `json:"content_type"`
	AchievedMastery       bool               `json:"achieved_mastery"`
	Level                 MasteryLevel       `json:"level"`
	NeedsRemediation      bool               `json:"needs_remediation"`
	EligibleForEnrichment bool               `json:"eligible_for_enrichment"`
	Recommendations       []string           `json:"recommendations"`
}

// ===== LEARNING PATH =====

type PathAction string

const (
	PathActionProgress  PathAction = "progress"
	PathActionContinue  PathAction = "continue"
	PathActionRemediate PathAction = "remediate"
	PathActionPractice  PathAction = "practice"
)

// LearningPathDecision is the evaluator's routing verdict for a unit.
// Confidence is a per-branch literal, not a computed value.
type LearningPathDecision struct {
	UserID                 string     `json:"user_id"`
	UnitID                 string     `json:"unit_id"`
	Action                 PathAction `json:"action"`
	CanProgress            bool       `json:"can_progress"`
	NextLessonID           string     `json:"next_lesson_id,omitempty"`
	RemediationRequired    bool       `json:"remediation_required"`
	RemediationContentKeys []string   `json:"remediation_content_keys,omitempty"`
	EnrichmentUnlocked     bool       `json:"enrichment_unlocked"`
	Reason                 string     `json:"reason"`
	Confidence             float64    `json:"confidence"` // 0..1
	DecidedAt              time.Time  `json:"decided_at"`
}

// ===== COMPETENCY MAP =====

type CompetencyLevel string

const (
	CompetencyNovice     CompetencyLevel = "novice"
	CompetencyDeveloping CompetencyLevel = "developing"
	CompetencyProficient CompetencyLevel = "proficient"
	CompetencyAdvanced   CompetencyLevel = "advanced"
	CompetencyExpert     CompetencyLevel = "expert"
)

type Competency struct {
	ObjectiveID   string          `json:"objective_id"`
	Level         CompetencyLevel `json:"level"`
	Score         float64         `json:"score"` // 0..100
	Confidence    float64         `json:"confidence"`
	EvidenceCount int             `json:"evidence_count"`
}

type CompetencyMap struct {
	UserID       string                `json:"user_id"`
	Competencies map[string]Competency `json:"competencies"` // keyed by objective ID
	GeneratedAt  time.Time             `json:"generated_at"`
}
