package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/store"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
)

// ===== RETENTION SCHEDULER SERVICE =====

// RetentionScheduler owns the review card table for all users and turns
// review outcomes into due-dated, prioritized schedule entries.
type RetentionScheduler interface {
	// SeedInitial creates a card per objective if absent and returns entries
	// for the whole set, existing cards included.
	SeedInitial(ctx context.Context, userID, lessonID string, objectives []models.LearningObjective, now time.Time) ([]models.RetentionScheduleEntry, error)

	// RecordOutcome applies the interval-update transition for one completed
	// review. Returns ErrReviewCardNotFound when the objective was never
	// seeded; outcomes are deliberately not auto-seeded.
	RecordOutcome(ctx context.Context, userID, objectiveID string, score float64, responseTimeSeconds *float64, now time.Time) (*models.RetentionScheduleEntry, error)

	// DueItems lists entries due as of the given time, sorted by priority
	// descending then due date ascending. Entries more than one day past due
	// are excluded unless includeOverdue is set.
	DueItems(ctx context.Context, userID string, asOf time.Time, includeOverdue bool) ([]models.RetentionScheduleEntry, error)

	// Optimize runs the bulk ease re-tuning pass over supplied history and
	// returns how many cards changed. Idempotent: repeating the same history
	// saturates at the ease clamps.
	Optimize(ctx context.Context, userID string, history []models.ReviewOutcome) (int, error)

	// Metrics computes the read-model summary of one user's card table.
	Metrics(ctx context.Context, userID string, asOf time.Time) (*models.ScheduleMetrics, error)

	// ApplyAdjustment applies one optimizer-driven schedule change to a card
	// and reports the resulting ease movement.
	ApplyAdjustment(ctx context.Context, userID, objectiveID string, adjustment ScheduleAdjustment) (*models.CardAdjustment, error)

	// ExportCards snapshots card state for external persistence. An empty
	// userID exports every user's cards.
	ExportCards(ctx context.Context, userID string) ([]models.ReviewCard, error)

	// ImportCards restores previously exported cards field-for-field.
	ImportCards(ctx context.Context, cards []models.ReviewCard) (int, error)
}

// ScheduleAdjustment is one concrete change to a card's schedule. Zero
// values leave the corresponding field unchanged.
type ScheduleAdjustment struct {
	IntervalMultiplier float64    `json:"interval_multiplier,omitempty"`
	EaseDelta          float64    `json:"ease_delta,omitempty"`
	RescheduleAt       *time.Time `json:"reschedule_at,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

type retentionScheduler struct {
	cards         *store.CardStore
	algorithm     SpacedRepetition
	options       config.SchedulingOptions
	publisher     events.EventPublisher
	logger        *slog.Logger
	serviceLogger *ServiceLogger
	validator     *validator.Validator
}

func NewRetentionScheduler(
	cards *store.CardStore,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
	options config.SchedulingOptions,
) RetentionScheduler {
	options = options.Sanitized()
	return &retentionScheduler{
		cards:     cards,
		algorithm: NewSpacedRepetition(options),
		options:   options,
		publisher: publisher,
		logger:    logger,
		serviceLogger: NewServiceLogger(logger, LogConfig{
			Service:       "learning-progress",
			Component:     "retention-scheduler",
			EnableMetrics: true,
		}),
		validator: v,
	}
}

const (
	remediationScoreCutoff   = 0.6
	reinforcementScoreCutoff = 0.9
	reinforcementStreak      = 3

	basePriority        = 3
	overdueGraceDays    = 1
	urgencyEscalation   = 7.0
	failureRateCutoff   = 0.3
	defaultEntryMinutes = 5
	reviewTimeEstimate  = 5 // minutes per recorded review, for metrics
)

// ===== SCHEDULE SEEDING =====

func (s *retentionScheduler) SeedInitial(ctx context.Context, userID, lessonID string, objectives []models.LearningObjective, now time.Time) ([]models.RetentionScheduleEntry, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "seed_initial", userID)

	if userID == "" {
		err := ValidationErrors{*NewValidationError("user_id", "is required", userID)}
		opLogger.LogResult(lessonID, "retention_schedule", err)
		return nil, err
	}
	if len(objectives) == 0 {
		opLogger.LogResult(lessonID, "retention_schedule", ErrEmptyObjectiveSet)
		return nil, ErrEmptyObjectiveSet
	}
	if verrs := s.validator.Business().ValidateObjectives(objectives); len(verrs) > 0 {
		opLogger.LogResult(lessonID, "retention_schedule", verrs)
		return nil, verrs
	}

	entries := make([]models.RetentionScheduleEntry, 0, len(objectives))
	objectiveIDs := make([]string, 0, len(objectives))
	created := 0

	for i := range objectives {
		objective := &objectives[i]
		objectiveIDs = append(objectiveIDs, objective.ID)

		card, wasCreated := s.cards.CreateIfAbsent(s.newCard(userID, lessonID, objective.ID, now))
		if wasCreated {
			created++
		}

		entry := s.buildEntry(card, now)
		entry.Priority = s.priorityFor(card, now, &objective.Category)
		entry.EstimatedMinutes = durationForCategory(objective.Category)
		entries = append(entries, entry)
	}

	sortEntries(entries)

	s.publish(ctx, events.NewScheduleSeededEvent(userID, lessonID, objectiveIDs, created, now))
	s.logger.Info("Seeded retention schedule",
		"user_id", userID,
		"lesson_id", lessonID,
		"objectives", len(objectives),
		"created_cards", created)
	opLogger.LogResult(lessonID, "retention_schedule", nil)

	return entries, nil
}

func (s *retentionScheduler) newCard(userID, lessonID, objectiveID string, now time.Time) *models.ReviewCard {
	return &models.ReviewCard{
		ID:           uuid.NewString(),
		UserID:       userID,
		ObjectiveID:  objectiveID,
		LessonID:     lessonID,
		IntervalDays: s.options.InitialInterval,
		Repetitions:  0,
		EaseFactor:   s.options.EaseFactor,
		DueDate:      now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ===== OUTCOME RECORDING =====

func (s *retentionScheduler) RecordOutcome(ctx context.Context, userID, objectiveID string, score float64, responseTimeSeconds *float64, now time.Time) (*models.RetentionScheduleEntry, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "record_outcome", userID)

	var verrs ValidationErrors
	if userID == "" {
		verrs = append(verrs, *NewValidationError("user_id", "is required", userID))
	}
	if objectiveID == "" {
		verrs = append(verrs, *NewValidationError("objective_id", "is required", objectiveID))
	}
	if len(verrs) > 0 {
		opLogger.LogResult(objectiveID, "review_card", verrs)
		return nil, verrs
	}

	score = clampFraction(score)

	card, err := s.cards.Update(userID, objectiveID, func(c *models.ReviewCard) error {
		*c = *s.algorithm.NextState(c, score, responseTimeSeconds, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			opLogger.LogResult(objectiveID, "review_card", ErrReviewCardNotFound)
			return nil, ErrReviewCardNotFound
		}
		opLogger.LogResult(objectiveID, "review_card", err)
		return nil, err
	}

	entry := s.buildEntry(card, now)
	entry.ScheduleType = scheduleTypeForOutcome(score, card.SuccessfulReviews)
	entry.AssessmentType = assessmentTypeFor(entry.ScheduleType)

	s.publish(ctx, events.NewReviewRecordedEvent(card, score, s.algorithm.IsSuccess(score), entry.ScheduleType, now))
	opLogger.LogResult(objectiveID, "review_card", nil)

	return &entry, nil
}

// ===== DUE ITEM QUERIES =====

func (s *retentionScheduler) DueItems(ctx context.Context, userID string, asOf time.Time, includeOverdue bool) ([]models.RetentionScheduleEntry, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	cards := s.cards.ForUser(userID)
	entries := make([]models.RetentionScheduleEntry, 0, len(cards))

	for _, card := range cards {
		if !card.IsDue(asOf) {
			continue
		}

		overdueDays := card.OverdueDays(asOf)
		if overdueDays > overdueGraceDays && !includeOverdue {
			continue
		}

		entry := s.buildEntry(card, asOf)
		if overdueDays > overdueGraceDays {
			entry.ScheduleType = models.ScheduleTypeRemediation
			entry.AssessmentType = assessmentTypeFor(entry.ScheduleType)
		}
		entries = append(entries, entry)
	}

	sortEntries(entries)
	return entries, nil
}

// ===== BULK OPTIMIZATION =====

func (s *retentionScheduler) Optimize(ctx context.Context, userID string, history []models.ReviewOutcome) (int, error) {
	if userID == "" {
		return 0, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}
	if len(history) == 0 {
		return 0, nil
	}

	byObjective := make(map[string][]models.ReviewOutcome)
	for _, outcome := range history {
		byObjective[outcome.ObjectiveID] = append(byObjective[outcome.ObjectiveID], outcome)
	}

	now := time.Now()
	adjustments := make([]models.CardAdjustment, 0)

	for objectiveID, outcomes := range byObjective {
		sort.Slice(outcomes, func(i, j int) bool {
			return outcomes[i].Date.Before(outcomes[j].Date)
		})

		// Recent window only, oldest history must not dominate re-tuning
		if len(outcomes) > 5 {
			outcomes = outcomes[len(outcomes)-5:]
		}
		if len(outcomes) < 2 {
			continue
		}

		scores := make([]float64, len(outcomes))
		for i, outcome := range outcomes {
			scores[i] = clampFraction(outcome.Score)
		}

		average := mean(scores)
		spread := variance(scores)

		var delta float64
		var reason string
		switch {
		case average > 0.9 && spread < 0.1:
			delta = 0.1
			reason = "consistent high performance"
		case average < 0.7:
			delta = -0.1
			reason = "low average score"
		case spread > 0.1:
			delta = -0.1
			reason = "inconsistent scores"
		default:
			continue
		}

		var previous float64
		card, err := s.cards.Update(userID, objectiveID, func(c *models.ReviewCard) error {
			previous = c.EaseFactor
			c.EaseFactor = clampEase(c.EaseFactor + delta)
			if c.EaseFactor != previous {
				c.UpdatedAt = now
			}
			return nil
		})
		if err != nil {
			// History may reference objectives that were never seeded
			s.logger.Debug("Skipping optimization for unseeded objective",
				"user_id", userID,
				"objective_id", objectiveID)
			continue
		}

		if card.EaseFactor == previous {
			continue // already saturated at the clamp
		}

		adjustments = append(adjustments, models.CardAdjustment{
			ObjectiveID:        objectiveID,
			PreviousEaseFactor: previous,
			NewEaseFactor:      card.EaseFactor,
			Reason:             reason,
		})
	}

	if len(adjustments) > 0 {
		s.publish(ctx, events.NewScheduleOptimizedEvent(userID, adjustments, now))
	}
	s.logger.Info("Bulk schedule optimization finished",
		"user_id", userID,
		"objectives_seen", len(byObjective),
		"cards_adjusted", len(adjustments))

	return len(adjustments), nil
}

// ===== METRICS =====

func (s *retentionScheduler) Metrics(ctx context.Context, userID string, asOf time.Time) (*models.ScheduleMetrics, error) {
	if userID == "" {
		return nil, ValidationErrors{*NewValidationError("user_id", "is required", userID)}
	}

	cards := s.cards.ForUser(userID)
	metrics := &models.ScheduleMetrics{
		UserID:     userID,
		ComputedAt: asOf,
	}

	if len(cards) == 0 {
		return metrics, nil
	}

	weekAhead := asOf.Add(7 * 24 * time.Hour)
	var retentionSum float64
	var easeSum float64
	reviewedCards := 0

	for _, card := range cards {
		metrics.TotalScheduled++
		metrics.TotalReviewTimeMinutes += card.TotalReviews * reviewTimeEstimate
		easeSum += card.EaseFactor

		switch {
		case card.OverdueDays(asOf) >= 1:
			metrics.Overdue++
		case card.IsDue(asOf):
			metrics.DueToday++
		case card.DueDate.After(asOf) && !card.DueDate.After(weekAhead):
			metrics.UpcomingWeek++
		}

		if card.TotalReviews > 0 {
			retentionSum += card.RetentionRate()
			reviewedCards++
		}
	}

	if reviewedCards > 0 {
		metrics.AverageRetentionRate = retentionSum / float64(reviewedCards)
	}
	metrics.AverageEaseFactor = easeSum / float64(len(cards))

	return metrics, nil
}

// ===== OPTIMIZER ADJUSTMENT HOOK =====

func (s *retentionScheduler) ApplyAdjustment(ctx context.Context, userID, objectiveID string, adjustment ScheduleAdjustment) (*models.CardAdjustment, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "apply_adjustment", userID)

	var before *models.ReviewCard
	after, err := s.cards.Update(userID, objectiveID, func(c *models.ReviewCard) error {
		before = c.Clone()
		now := time.Now()

		if adjustment.EaseDelta != 0 {
			c.EaseFactor = clampEase(c.EaseFactor + adjustment.EaseDelta)
		}
		if adjustment.IntervalMultiplier > 0 {
			interval := math.Round(c.IntervalDays * adjustment.IntervalMultiplier)
			c.IntervalDays = math.Max(s.options.MinInterval, math.Min(s.options.MaxInterval, interval))

			// Reschedule from the last review when one exists, otherwise
			// from the adjustment time
			base := now
			if c.LastReview != nil {
				base = *c.LastReview
			}
			c.DueDate = base.Add(daysToDuration(c.IntervalDays))
		}
		if adjustment.RescheduleAt != nil {
			c.DueDate = *adjustment.RescheduleAt
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			opLogger.LogResult(objectiveID, "review_card", ErrReviewCardNotFound)
			return nil, ErrReviewCardNotFound
		}
		opLogger.LogResult(objectiveID, "review_card", err)
		return nil, err
	}

	opLogger.LogAudit(AuditEventUpdate, objectiveID, "review_card",
		map[string]interface{}{
			"ease_factor":   before.EaseFactor,
			"interval_days": before.IntervalDays,
			"due_date":      before.DueDate,
		},
		map[string]interface{}{
			"ease_factor":   after.EaseFactor,
			"interval_days": after.IntervalDays,
			"due_date":      after.DueDate,
			"reason":        adjustment.Reason,
		})
	opLogger.LogResult(objectiveID, "review_card", nil)

	return &models.CardAdjustment{
		ObjectiveID:        objectiveID,
		PreviousEaseFactor: before.EaseFactor,
		NewEaseFactor:      after.EaseFactor,
		Reason:             adjustment.Reason,
	}, nil
}

// ===== PERSISTENCE CONTRACT =====

func (s *retentionScheduler) ExportCards(ctx context.Context, userID string) ([]models.ReviewCard, error) {
	if userID == "" {
		return s.cards.Export(), nil
	}

	userCards := s.cards.ForUser(userID)
	exported := make([]models.ReviewCard, 0, len(userCards))
	for _, card := range userCards {
		exported = append(exported, *card)
	}
	return exported, nil
}

func (s *retentionScheduler) ImportCards(ctx context.Context, cards []models.ReviewCard) (int, error) {
	opLogger := s.serviceLogger.WithOperation(ctx, "import_cards", "")

	if len(cards) == 0 {
		opLogger.LogResult("", "review_card", ErrNothingToImport)
		return 0, ErrNothingToImport
	}

	// Validate the whole set before touching the store, imports are
	// all-or-nothing
	var verrs ValidationErrors
	for i := range cards {
		verrs = append(verrs, s.validator.Business().ValidateReviewCard(&cards[i])...)
	}
	if len(verrs) > 0 {
		opLogger.LogResult("", "review_card", verrs)
		return 0, verrs
	}

	imported := s.cards.Import(cards)
	opLogger.LogAudit(AuditEventImport, "", "review_card", nil, map[string]interface{}{
		"imported": imported,
	})
	opLogger.LogResult("", "review_card", nil)

	return imported, nil
}

// ===== ENTRY DERIVATION =====

func (s *retentionScheduler) buildEntry(card *models.ReviewCard, asOf time.Time) models.RetentionScheduleEntry {
	scheduleType := scheduleTypeForCard(card)
	return models.RetentionScheduleEntry{
		UserID:           card.UserID,
		ObjectiveID:      card.ObjectiveID,
		LessonID:         card.LessonID,
		ScheduleType:     scheduleType,
		DueDate:          card.DueDate,
		Priority:         s.priorityFor(card, asOf, nil),
		EstimatedMinutes: defaultEntryMinutes,
		AssessmentType:   assessmentTypeFor(scheduleType),
	}
}

// priorityFor computes entry priority from overdue pressure, failure rate
// and objective category, clamped to [1,5].
func (s *retentionScheduler) priorityFor(card *models.ReviewCard, asOf time.Time, category *models.ObjectiveCategory) int {
	priority := basePriority

	if overdueDays := card.OverdueDays(asOf); overdueDays > 0 {
		if float64(overdueDays)*s.options.UrgencyBoost >= urgencyEscalation {
			priority += 2
		} else {
			priority++
		}
	}

	if card.TotalReviews >= 2 && card.FailureRate() > failureRateCutoff {
		priority++
	}

	if category != nil && category.IsHigherOrder() {
		priority++
	}

	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}
	return priority
}

func scheduleTypeForCard(card *models.ReviewCard) models.ScheduleType {
	if card.TotalReviews == 0 {
		return models.ScheduleTypeInitial
	}
	if card.LastScore != nil {
		return scheduleTypeForOutcome(*card.LastScore, card.SuccessfulReviews)
	}
	return models.ScheduleTypeReview
}

func scheduleTypeForOutcome(score float64, successfulReviews int) models.ScheduleType {
	if score < remediationScoreCutoff {
		return models.ScheduleTypeRemediation
	}
	if score > reinforcementScoreCutoff && successfulReviews >= reinforcementStreak {
		return models.ScheduleTypeReinforcement
	}
	return models.ScheduleTypeReview
}

func assessmentTypeFor(scheduleType models.ScheduleType) models.AssessmentType {
	switch scheduleType {
	case models.ScheduleTypeInitial, models.ScheduleTypeRemediation:
		return models.AssessmentTypeExercise
	case models.ScheduleTypeReinforcement:
		return models.AssessmentTypeQuiz
	default:
		return models.AssessmentTypeReview
	}
}

func durationForCategory(category models.ObjectiveCategory) int {
	switch category {
	case models.CategoryKnowledge:
		return 3
	case models.CategoryComprehension:
		return 4
	case models.CategoryApplication:
		return 6
	case models.CategoryAnalysis:
		return 7
	case models.CategorySynthesis, models.CategoryEvaluation:
		return 8
	default:
		return defaultEntryMinutes
	}
}

func sortEntries(entries []models.RetentionScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].DueDate.Before(entries[j].DueDate)
	})
}

// publish sends an event without letting transport failures surface into
// scheduling semantics.
func (s *retentionScheduler) publish(ctx context.Context, event *events.LearningEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLearningEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish learning event",
			"event_type", event.Type,
			"error", err)
	}
}

// ===== STATISTICS HELPERS =====

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	var sum float64
	for _, v := range values {
		diff := v - avg
		sum += diff * diff
	}
	return sum / float64(len(values))
}
