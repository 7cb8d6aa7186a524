package models

import "time"

type PatternType string

const (
	PatternImproving PatternType = "improving"
	PatternDeclining PatternType = "declining"
	PatternStable    PatternType = "stable"
	PatternVolatile  PatternType = "volatile"
	PatternMastered  PatternType = "mastered"
)

// PerformancePattern is a read-model over one objective's chronological
// score history. Recomputed on demand, never persisted.
type PerformancePattern struct {
	UserID        string      `json:"user_id"`
	ObjectiveID   string      `json:"objective_id"`
	Pattern       PatternType `json:"pattern"`
	Trend         float64     `json:"trend"`       // -1..1, regression slope normalized
	Consistency   float64     `json:"consistency"` // 0..1
	AverageScore  float64     `json:"average_score"`
	RecentScore   float64     `json:"recent_score"`
	TotalAttempts int         `json:"total_attempts"`
}

type RecommendationType string

const (
	RecommendationIntervalAdjustment RecommendationType = "interval_adjustment"
	RecommendationDifficultyChange   RecommendationType = "difficulty_change"
	RecommendationSchedulePause      RecommendationType = "schedule_pause"
	RecommendationRemediationFocus   RecommendationType = "remediation_focus"
)

type RecommendationPriority string

const (
	PriorityCritical RecommendationPriority = "critical"
	PriorityHigh     RecommendationPriority = "high"
	PriorityMedium   RecommendationPriority = "medium"
	PriorityLow      RecommendationPriority = "low"
)

// AutoApplicable reports whether a recommendation at this priority may
// mutate scheduler state without explicit operator sign-off.
func (p RecommendationPriority) AutoApplicable() bool {
	return p == PriorityCritical || p == PriorityHigh
}

// RecommendationAction carries the concrete schedule change a
// recommendation proposes. Zero-valued fields mean "leave unchanged".
type RecommendationAction struct {
	Description        string  `json:"description"`
	IntervalMultiplier float64 `json:"interval_multiplier,omitempty"`
	EaseFactorDelta    float64 `json:"ease_factor_delta,omitempty"`
	PauseDays          int     `json:"pause_days,omitempty"`
}

type OptimizationRecommendation struct {
	UserID         string                 `json:"user_id"`
	ObjectiveID    string                 `json:"objective_id,omitempty"` // empty for user-level recommendations
	Type           RecommendationType     `json:"type"`
	Priority       RecommendationPriority `json:"priority"`
	Reason         string                 `json:"reason"`
	ExpectedImpact float64                `json:"expected_impact"` // 0..1
	Implementation RecommendationAction   `json:"implementation"`
}

// OptimizationResult is the pure decide-step output for one user. Nothing
// in it has been applied yet.
type OptimizationResult struct {
	UserID          string                       `json:"user_id"`
	Patterns        []PerformancePattern         `json:"patterns"`
	Recommendations []OptimizationRecommendation `json:"recommendations"`
	GeneratedAt     time.Time                    `json:"generated_at"`
}

// AppliedOptimization records the outcome of the explicit apply step.
type AppliedOptimization struct {
	UserID      string                       `json:"user_id"`
	Applied     []OptimizationRecommendation `json:"applied"`
	Skipped     []OptimizationRecommendation `json:"skipped"` // advisory only, below auto-apply priority
	Adjustments []CardAdjustment             `json:"adjustments"`
	AppliedAt   time.Time                    `json:"applied_at"`
}

// BatchOptimizationResult aggregates a multi-user pass. Individual user
// failures are skipped, not fatal.
type BatchOptimizationResult struct {
	Results       []*OptimizationResult `json:"results"`
	Succeeded     int                   `json:"succeeded"`
	Failed        int                   `json:"failed"`
	FailedUserIDs []string              `json:"failed_user_ids,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
}
