package config

// SchedulingOptions tunes the spaced-repetition algorithm and the retention
// scheduler. Plain structured options, never parsed from the environment;
// deployment contexts override individual fields.
type SchedulingOptions struct {
	MinInterval          float64 // days
	MaxInterval          float64 // days
	InitialInterval      float64 // days, first successful review
	EaseFactor           float64 // starting ease for new cards
	IntervalModifier     float64 // global multiplier on computed intervals
	PerformanceThreshold float64 // score in [0,1] counting as success
	UrgencyBoost         float64 // multiplier on overdue priority escalation
}

func DefaultSchedulingOptions() SchedulingOptions {
	return SchedulingOptions{
		MinInterval:          1,
		MaxInterval:          365,
		InitialInterval:      1,
		EaseFactor:           2.5,
		IntervalModifier:     1.0,
		PerformanceThreshold: 0.8,
		UrgencyBoost:         1.5,
	}
}

// SchedulingOptionsForContext returns the options profile for a deployment
// context. Unknown contexts get the defaults.
func SchedulingOptionsForContext(context string) SchedulingOptions {
	opts := DefaultSchedulingOptions()
	switch context {
	case "beginner":
		opts.PerformanceThreshold = 0.7
		opts.UrgencyBoost = 2.0
	}
	return opts
}

// Sanitized replaces non-positive fields with defaults and clamps the ease
// factor to its valid range, so a partially filled options struct can never
// break interval arithmetic.
func (o SchedulingOptions) Sanitized() SchedulingOptions {
	defaults := DefaultSchedulingOptions()
	if o.MinInterval <= 0 {
		o.MinInterval = defaults.MinInterval
	}
	if o.MaxInterval <= 0 || o.MaxInterval < o.MinInterval {
		o.MaxInterval = defaults.MaxInterval
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = defaults.InitialInterval
	}
	if o.EaseFactor < 1.3 {
		o.EaseFactor = defaults.EaseFactor
	}
	if o.EaseFactor > 2.5 {
		o.EaseFactor = 2.5
	}
	if o.IntervalModifier <= 0 {
		o.IntervalModifier = defaults.IntervalModifier
	}
	if o.PerformanceThreshold <= 0 || o.PerformanceThreshold > 1 {
		o.PerformanceThreshold = defaults.PerformanceThreshold
	}
	if o.UrgencyBoost <= 0 {
		o.UrgencyBoost = defaults.UrgencyBoost
	}
	return o
}

// CalculatorConfig holds the mastery calculator's penalty constants,
// thresholds and level bands. The penalty defaults carry over from the
// original product tuning and should not be changed without guidance.
type CalculatorConfig struct {
	HintPenalty     float64 // percent deducted per hint used
	TimePenaltyRate float64 // percent per 100% time overrun
	MaxTimePenalty  float64 // percent cap on the time penalty

	// Mastery thresholds per content type, fractional scores
	LessonThreshold    float64
	UnitThreshold      float64
	ObjectiveThreshold float64
	RetentionThreshold float64

	// Level bands, fractional scores
	AdvancedBand    float64
	ProficientBand  float64
	ApproachingBand float64

	RemediationCutoff float64
	EnrichmentCutoff  float64
}

func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		HintPenalty:     5,
		TimePenaltyRate: 10,
		MaxTimePenalty:  20,

		LessonThreshold:    0.8,
		UnitThreshold:      0.9,
		ObjectiveThreshold: 0.8,
		RetentionThreshold: 0.75,

		AdvancedBand:    0.95,
		ProficientBand:  0.8,
		ApproachingBand: 0.6,

		RemediationCutoff: 0.6,
		EnrichmentCutoff:  0.9,
	}
}
