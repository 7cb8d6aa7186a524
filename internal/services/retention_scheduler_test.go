package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/events"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/store"
	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
)

func newTestScheduler() (RetentionScheduler, *store.CardStore, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cards := store.NewCardStore()
	publisher := events.NewMockEventPublisher(logger)
	scheduler := NewRetentionScheduler(cards, publisher, logger, validator.New(), config.DefaultSchedulingOptions())
	return scheduler, cards, publisher
}

func seedObjectives() []models.LearningObjective {
	return []models.LearningObjective{
		{ID: "obj-recall", LessonID: "lesson-1", Category: models.CategoryKnowledge, MasteryThreshold: 0.8},
		{ID: "obj-apply", LessonID: "lesson-1", Category: models.CategoryApplication, MasteryThreshold: 0.8},
	}
}

func dueCard(userID, objectiveID string, dueDate time.Time) *models.ReviewCard {
	return &models.ReviewCard{
		ID:           "card-" + objectiveID,
		UserID:       userID,
		ObjectiveID:  objectiveID,
		IntervalDays: 1,
		EaseFactor:   2.5,
		DueDate:      dueDate,
		CreatedAt:    testNow.AddDate(0, 0, -30),
		UpdatedAt:    testNow.AddDate(0, 0, -30),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// ===== SEEDING =====

func TestRetentionScheduler_SeedInitial_CreatesCards(t *testing.T) {
	scheduler, cards, publisher := newTestScheduler()

	entries, err := scheduler.SeedInitial(context.Background(), "user-1", "lesson-1", seedObjectives(), testNow)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, cards.Len())

	// Higher-order category gets the priority bump and sorts first
	assert.Equal(t, "obj-apply", entries[0].ObjectiveID)
	assert.Equal(t, 4, entries[0].Priority)
	assert.Equal(t, 6, entries[0].EstimatedMinutes)

	assert.Equal(t, "obj-recall", entries[1].ObjectiveID)
	assert.Equal(t, 3, entries[1].Priority)
	assert.Equal(t, 3, entries[1].EstimatedMinutes)

	for _, entry := range entries {
		assert.Equal(t, "user-1", entry.UserID)
		assert.Equal(t, "lesson-1", entry.LessonID)
		assert.Equal(t, models.ScheduleTypeInitial, entry.ScheduleType)
		assert.Equal(t, models.AssessmentTypeExercise, entry.AssessmentType)
		assert.Equal(t, testNow, entry.DueDate)
	}

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventScheduleSeeded, published[0].Type)
}

func TestRetentionScheduler_SeedInitial_PreservesExistingCards(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()
	ctx := context.Background()

	_, err := scheduler.SeedInitial(ctx, "user-1", "lesson-1", seedObjectives(), testNow)
	require.NoError(t, err)

	_, err = scheduler.RecordOutcome(ctx, "user-1", "obj-recall", 0.85, nil, testNow)
	require.NoError(t, err)

	entries, err := scheduler.SeedInitial(ctx, "user-1", "lesson-1", seedObjectives(), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, cards.Len())

	// The reviewed card keeps its state and classifies as a review entry
	card, ok := cards.Get("user-1", "obj-recall")
	require.True(t, ok)
	assert.Equal(t, 1, card.TotalReviews)

	for _, entry := range entries {
		if entry.ObjectiveID == "obj-recall" {
			assert.Equal(t, models.ScheduleTypeReview, entry.ScheduleType)
		}
	}
}

func TestRetentionScheduler_SeedInitial_Validation(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()
	ctx := context.Background()

	_, err := scheduler.SeedInitial(ctx, "", "lesson-1", seedObjectives(), testNow)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	_, err = scheduler.SeedInitial(ctx, "user-1", "lesson-1", nil, testNow)
	assert.ErrorIs(t, err, ErrEmptyObjectiveSet)

	invalid := []models.LearningObjective{{ID: "obj-x", Category: "memorization"}}
	_, err = scheduler.SeedInitial(ctx, "user-1", "lesson-1", invalid, testNow)
	require.ErrorAs(t, err, &verrs)

	assert.Equal(t, 0, cards.Len())
}

// ===== OUTCOME RECORDING =====

func TestRetentionScheduler_RecordOutcome(t *testing.T) {
	scheduler, cards, publisher := newTestScheduler()
	ctx := context.Background()

	_, err := scheduler.SeedInitial(ctx, "user-1", "lesson-1", seedObjectives(), testNow)
	require.NoError(t, err)
	publisher.ClearEvents()

	entry, err := scheduler.RecordOutcome(ctx, "user-1", "obj-recall", 0.85, nil, testNow)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.ScheduleTypeReview, entry.ScheduleType)
	assert.Equal(t, models.AssessmentTypeReview, entry.AssessmentType)
	assert.Equal(t, testNow.Add(24*time.Hour), entry.DueDate)
	assert.Equal(t, 3, entry.Priority)

	card, ok := cards.Get("user-1", "obj-recall")
	require.True(t, ok)
	assert.Equal(t, 1, card.Repetitions)
	assert.Equal(t, 1.0, card.IntervalDays)
	assert.Equal(t, 1, card.TotalReviews)
	assert.Equal(t, 1, card.SuccessfulReviews)
	require.NotNil(t, card.LastScore)
	assert.Equal(t, 0.85, *card.LastScore)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventReviewRecorded, published[0].Type)
}

func TestRetentionScheduler_RecordOutcome_MissingCard(t *testing.T) {
	scheduler, _, publisher := newTestScheduler()

	entry, err := scheduler.RecordOutcome(context.Background(), "user-1", "obj-never-seeded", 0.9, nil, testNow)
	assert.ErrorIs(t, err, ErrReviewCardNotFound)
	assert.Nil(t, entry)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestRetentionScheduler_RecordOutcome_ScheduleTypes(t *testing.T) {
	tests := []struct {
		name               string
		card               *models.ReviewCard
		score              float64
		wantScheduleType   models.ScheduleType
		wantAssessmentType models.AssessmentType
	}{
		{
			name:               "low score schedules remediation",
			card:               dueCard("user-1", "obj-a", testNow),
			score:              0.5,
			wantScheduleType:   models.ScheduleTypeRemediation,
			wantAssessmentType: models.AssessmentTypeExercise,
		},
		{
			name: "high score with streak schedules reinforcement",
			card: &models.ReviewCard{
				ID: "card-b", UserID: "user-1", ObjectiveID: "obj-b",
				IntervalDays: 6, Repetitions: 3, EaseFactor: 2.5,
				DueDate:      testNow,
				TotalReviews: 4, SuccessfulReviews: 3,
			},
			score:              0.95,
			wantScheduleType:   models.ScheduleTypeReinforcement,
			wantAssessmentType: models.AssessmentTypeQuiz,
		},
		{
			name:               "middling score schedules plain review",
			card:               dueCard("user-1", "obj-c", testNow),
			score:              0.85,
			wantScheduleType:   models.ScheduleTypeReview,
			wantAssessmentType: models.AssessmentTypeReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduler, cards, _ := newTestScheduler()
			cards.Put(tt.card)

			entry, err := scheduler.RecordOutcome(context.Background(), tt.card.UserID, tt.card.ObjectiveID, tt.score, nil, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheduleType, entry.ScheduleType)
			assert.Equal(t, tt.wantAssessmentType, entry.AssessmentType)
		})
	}
}

func TestRetentionScheduler_RecordOutcome_Validation(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	_, err := scheduler.RecordOutcome(context.Background(), "", "", 0.5, nil, testNow)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

// ===== DUE ITEMS =====

func TestRetentionScheduler_DueItems(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	cards.Put(dueCard("user-1", "obj-overdue", testNow.Add(-48*time.Hour)))
	cards.Put(dueCard("user-1", "obj-today", testNow))
	cards.Put(dueCard("user-1", "obj-future", testNow.Add(24*time.Hour)))
	cards.Put(dueCard("user-1", "obj-half-day", testNow.Add(-12*time.Hour)))

	entries, err := scheduler.DueItems(context.Background(), "user-1", testNow, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Within the one-day grace window, ordered by due date at equal priority
	assert.Equal(t, "obj-half-day", entries[0].ObjectiveID)
	assert.Equal(t, "obj-today", entries[1].ObjectiveID)
	for _, entry := range entries {
		assert.Equal(t, models.ScheduleTypeInitial, entry.ScheduleType)
		assert.Equal(t, 3, entry.Priority)
	}

	entries, err = scheduler.DueItems(context.Background(), "user-1", testNow, true)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Overdue card jumps the queue and reclassifies as remediation
	assert.Equal(t, "obj-overdue", entries[0].ObjectiveID)
	assert.Equal(t, 4, entries[0].Priority)
	assert.Equal(t, models.ScheduleTypeRemediation, entries[0].ScheduleType)
	assert.Equal(t, models.AssessmentTypeExercise, entries[0].AssessmentType)
}

func TestRetentionScheduler_DueItems_UrgencyEscalation(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	// Five days overdue at the default boost of 1.5 crosses the escalation
	// threshold
	cards.Put(dueCard("user-1", "obj-stale", testNow.Add(-5*24*time.Hour)))

	entries, err := scheduler.DueItems(context.Background(), "user-1", testNow, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Priority)
	assert.Equal(t, models.ScheduleTypeRemediation, entries[0].ScheduleType)
}

func TestRetentionScheduler_DueItems_EmptySchedule(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	entries, err := scheduler.DueItems(context.Background(), "user-unknown", testNow, true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ===== BULK OPTIMIZATION =====

func TestRetentionScheduler_Optimize(t *testing.T) {
	scheduler, cards, publisher := newTestScheduler()

	for _, objectiveID := range []string{"obj-high", "obj-low", "obj-single"} {
		card := dueCard("user-1", objectiveID, testNow)
		card.EaseFactor = 2.0
		cards.Put(card)
	}

	history := []models.ReviewOutcome{
		{ObjectiveID: "obj-high", Score: 0.95, Date: testNow.AddDate(0, 0, -3)},
		{ObjectiveID: "obj-high", Score: 0.95, Date: testNow.AddDate(0, 0, -2)},
		{ObjectiveID: "obj-high", Score: 0.92, Date: testNow.AddDate(0, 0, -1)},
		{ObjectiveID: "obj-low", Score: 0.5, Date: testNow.AddDate(0, 0, -2)},
		{ObjectiveID: "obj-low", Score: 0.6, Date: testNow.AddDate(0, 0, -1)},
		{ObjectiveID: "obj-single", Score: 0.3, Date: testNow.AddDate(0, 0, -1)},
		{ObjectiveID: "obj-never-seeded", Score: 0.2, Date: testNow.AddDate(0, 0, -2)},
		{ObjectiveID: "obj-never-seeded", Score: 0.3, Date: testNow.AddDate(0, 0, -1)},
	}

	adjusted, err := scheduler.Optimize(context.Background(), "user-1", history)
	require.NoError(t, err)
	assert.Equal(t, 2, adjusted)

	high, _ := cards.Get("user-1", "obj-high")
	assert.InDelta(t, 2.1, high.EaseFactor, 1e-9)

	low, _ := cards.Get("user-1", "obj-low")
	assert.InDelta(t, 1.9, low.EaseFactor, 1e-9)

	single, _ := cards.Get("user-1", "obj-single")
	assert.InDelta(t, 2.0, single.EaseFactor, 1e-9)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventScheduleOptimized, published[0].Type)
}

func TestRetentionScheduler_Optimize_InconsistentScores(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	card := dueCard("user-1", "obj-swingy", testNow)
	card.EaseFactor = 2.0
	cards.Put(card)

	// Average stays above the low cutoff but the spread trips the variance
	// rule
	history := []models.ReviewOutcome{
		{ObjectiveID: "obj-swingy", Score: 1.0, Date: testNow.AddDate(0, 0, -3)},
		{ObjectiveID: "obj-swingy", Score: 0.2, Date: testNow.AddDate(0, 0, -2)},
		{ObjectiveID: "obj-swingy", Score: 1.0, Date: testNow.AddDate(0, 0, -1)},
	}

	adjusted, err := scheduler.Optimize(context.Background(), "user-1", history)
	require.NoError(t, err)
	assert.Equal(t, 1, adjusted)

	swingy, _ := cards.Get("user-1", "obj-swingy")
	assert.InDelta(t, 1.9, swingy.EaseFactor, 1e-9)
}

func TestRetentionScheduler_Optimize_RecentWindowOnly(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	card := dueCard("user-1", "obj-improved", testNow)
	card.EaseFactor = 2.0
	cards.Put(card)

	// Two old failures followed by five strong reviews. Only the recent
	// window counts, so this re-tunes upward.
	history := make([]models.ReviewOutcome, 0, 7)
	scores := []float64{0.1, 0.1, 0.95, 0.95, 0.95, 0.95, 0.95}
	for i, score := range scores {
		history = append(history, models.ReviewOutcome{
			ObjectiveID: "obj-improved",
			Score:       score,
			Date:        testNow.AddDate(0, 0, i-len(scores)),
		})
	}

	adjusted, err := scheduler.Optimize(context.Background(), "user-1", history)
	require.NoError(t, err)
	assert.Equal(t, 1, adjusted)

	improved, _ := cards.Get("user-1", "obj-improved")
	assert.InDelta(t, 2.1, improved.EaseFactor, 1e-9)
}

func TestRetentionScheduler_Optimize_SaturatesAtClamp(t *testing.T) {
	scheduler, cards, publisher := newTestScheduler()

	cards.Put(dueCard("user-1", "obj-maxed", testNow)) // ease already 2.5

	history := []models.ReviewOutcome{
		{ObjectiveID: "obj-maxed", Score: 0.95, Date: testNow.AddDate(0, 0, -2)},
		{ObjectiveID: "obj-maxed", Score: 0.95, Date: testNow.AddDate(0, 0, -1)},
	}

	adjusted, err := scheduler.Optimize(context.Background(), "user-1", history)
	require.NoError(t, err)
	assert.Equal(t, 0, adjusted)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestRetentionScheduler_Optimize_EmptyHistory(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	adjusted, err := scheduler.Optimize(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, adjusted)
}

// ===== METRICS =====

func TestRetentionScheduler_Metrics(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	today := dueCard("user-1", "m-obj-a", testNow.Add(-time.Hour))
	today.EaseFactor = 2.2
	today.TotalReviews = 4
	today.SuccessfulReviews = 3
	cards.Put(today)

	overdue := dueCard("user-1", "m-obj-b", testNow.Add(-72*time.Hour))
	overdue.TotalReviews = 2
	overdue.SuccessfulReviews = 2
	cards.Put(overdue)

	upcoming := dueCard("user-1", "m-obj-c", testNow.Add(72*time.Hour))
	cards.Put(upcoming)

	distant := dueCard("user-1", "m-obj-d", testNow.Add(240*time.Hour))
	distant.EaseFactor = 2.4
	cards.Put(distant)

	metrics, err := scheduler.Metrics(context.Background(), "user-1", testNow)
	require.NoError(t, err)

	assert.Equal(t, "user-1", metrics.UserID)
	assert.Equal(t, 4, metrics.TotalScheduled)
	assert.Equal(t, 1, metrics.DueToday)
	assert.Equal(t, 1, metrics.Overdue)
	assert.Equal(t, 1, metrics.UpcomingWeek)
	assert.InDelta(t, 0.875, metrics.AverageRetentionRate, 1e-9)
	assert.InDelta(t, 2.4, metrics.AverageEaseFactor, 1e-9)
	assert.Equal(t, 30, metrics.TotalReviewTimeMinutes)
	assert.Equal(t, testNow, metrics.ComputedAt)
}

func TestRetentionScheduler_Metrics_NoCards(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	metrics, err := scheduler.Metrics(context.Background(), "user-unknown", testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.TotalScheduled)
	assert.Equal(t, 0.0, metrics.AverageRetentionRate)
	assert.Equal(t, 0.0, metrics.AverageEaseFactor)
}

// ===== ADJUSTMENT HOOK =====

func TestRetentionScheduler_ApplyAdjustment(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	card := dueCard("user-1", "obj-tune", testNow.Add(5*24*time.Hour))
	card.IntervalDays = 10
	card.EaseFactor = 2.0
	card.LastReview = timePtr(testNow.Add(-5 * 24 * time.Hour))
	cards.Put(card)

	adjustment, err := scheduler.ApplyAdjustment(context.Background(), "user-1", "obj-tune", ScheduleAdjustment{
		IntervalMultiplier: 0.5,
		EaseDelta:          -0.1,
		Reason:             "declining performance",
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, adjustment.PreviousEaseFactor)
	assert.InDelta(t, 1.9, adjustment.NewEaseFactor, 1e-9)
	assert.Equal(t, "declining performance", adjustment.Reason)

	tuned, ok := cards.Get("user-1", "obj-tune")
	require.True(t, ok)
	assert.Equal(t, 5.0, tuned.IntervalDays)
	assert.InDelta(t, 1.9, tuned.EaseFactor, 1e-9)
	// Rescheduled from the last review with the halved interval
	assert.Equal(t, testNow, tuned.DueDate)
}

func TestRetentionScheduler_ApplyAdjustment_Reschedule(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	cards.Put(dueCard("user-1", "obj-pause", testNow))

	pausedUntil := testNow.Add(48 * time.Hour)
	_, err := scheduler.ApplyAdjustment(context.Background(), "user-1", "obj-pause", ScheduleAdjustment{
		RescheduleAt: timePtr(pausedUntil),
	})
	require.NoError(t, err)

	paused, _ := cards.Get("user-1", "obj-pause")
	assert.Equal(t, pausedUntil, paused.DueDate)
	assert.Equal(t, 1.0, paused.IntervalDays)
	assert.Equal(t, 2.5, paused.EaseFactor)
}

func TestRetentionScheduler_ApplyAdjustment_ClampsInterval(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	card := dueCard("user-1", "obj-wide", testNow)
	card.IntervalDays = 10
	cards.Put(card)

	_, err := scheduler.ApplyAdjustment(context.Background(), "user-1", "obj-wide", ScheduleAdjustment{
		IntervalMultiplier: 100,
	})
	require.NoError(t, err)

	wide, _ := cards.Get("user-1", "obj-wide")
	assert.Equal(t, 365.0, wide.IntervalDays)
}

func TestRetentionScheduler_ApplyAdjustment_MissingCard(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	adjustment, err := scheduler.ApplyAdjustment(context.Background(), "user-1", "obj-nowhere", ScheduleAdjustment{EaseDelta: 0.1})
	assert.ErrorIs(t, err, ErrReviewCardNotFound)
	assert.Nil(t, adjustment)
}

// ===== EXPORT / IMPORT =====

func TestRetentionScheduler_ExportImportRoundTrip(t *testing.T) {
	scheduler, _, _ := newTestScheduler()
	ctx := context.Background()

	_, err := scheduler.SeedInitial(ctx, "user-a", "lesson-1", seedObjectives(), testNow)
	require.NoError(t, err)
	_, err = scheduler.SeedInitial(ctx, "user-b", "lesson-2", seedObjectives()[:1], testNow)
	require.NoError(t, err)
	_, err = scheduler.RecordOutcome(ctx, "user-a", "obj-recall", 0.9, nil, testNow)
	require.NoError(t, err)

	all, err := scheduler.ExportCards(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	userA, err := scheduler.ExportCards(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, userA, 2)

	restored, restoredCards, _ := newTestScheduler()
	imported, err := restored.ImportCards(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 3, restoredCards.Len())

	roundTripped, err := restored.ExportCards(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, all, roundTripped)
}

func TestRetentionScheduler_ImportCards_EmptySet(t *testing.T) {
	scheduler, _, _ := newTestScheduler()

	imported, err := scheduler.ImportCards(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNothingToImport)
	assert.Equal(t, 0, imported)
}

func TestRetentionScheduler_ImportCards_RejectsInvalidState(t *testing.T) {
	scheduler, cards, _ := newTestScheduler()

	corrupt := *dueCard("user-1", "obj-bad", testNow)
	corrupt.SuccessfulReviews = 5
	corrupt.TotalReviews = 2

	imported, err := scheduler.ImportCards(context.Background(), []models.ReviewCard{corrupt})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 0, cards.Len())
}
