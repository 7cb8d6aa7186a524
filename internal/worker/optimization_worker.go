package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/SAP-F-2025/learning-progress-service/internal/config"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
	"github.com/SAP-F-2025/learning-progress-service/internal/services"
	"github.com/SAP-F-2025/learning-progress-service/internal/utils"
)

// activityWindowDays bounds a sweep to users with at least one review in the
// window. Dormant users keep their schedules untouched.
const activityWindowDays = 30

// OptimizationWorker periodically re-optimizes review schedules: it lists
// recently active users from the review log, runs the batch decide pass, and
// auto-applies whatever qualifies.
type OptimizationWorker struct {
	scheduler   *gocron.Scheduler
	optimizer   services.RetentionOptimizer
	reviews     repositories.CompletedReviewRepository
	cfg         config.WorkerConfig
	logger      *slog.Logger
	batchLogger utils.Logger
}

func New(optimizer services.RetentionOptimizer, reviews repositories.CompletedReviewRepository, cfg config.WorkerConfig, logger *slog.Logger) *OptimizationWorker {
	return &OptimizationWorker{
		scheduler:   gocron.NewScheduler(time.UTC),
		optimizer:   optimizer,
		reviews:     reviews,
		cfg:         cfg,
		logger:      logger,
		batchLogger: utils.FromSlogLogger(logger),
	}
}

// Start schedules the periodic sweep and returns immediately.
func (w *OptimizationWorker) Start() error {
	if !w.cfg.Enabled {
		w.logger.Info("Optimization worker disabled")
		return nil
	}

	interval := w.cfg.IntervalHours
	if interval <= 0 {
		interval = 24
	}

	if _, err := w.scheduler.Every(interval).Hours().Do(w.runSweep); err != nil {
		return fmt.Errorf("failed to schedule optimization sweep: %w", err)
	}
	w.scheduler.StartAsync()

	w.logger.Info("Optimization worker started", "interval_hours", interval)
	return nil
}

// Stop terminates the scheduled sweep.
func (w *OptimizationWorker) Stop() {
	w.scheduler.Stop()
}

func (w *OptimizationWorker) runSweep() {
	if err := w.RunOnce(context.Background()); err != nil {
		w.logger.Error("Optimization sweep failed", "error", err)
	}
}

// RunOnce executes a single sweep. Exposed so operators can trigger a sweep
// outside the schedule.
func (w *OptimizationWorker) RunOnce(ctx context.Context) error {
	started := time.Now()
	since := started.AddDate(0, 0, -activityWindowDays)

	userIDs, err := w.reviews.ActiveUserIDs(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}
	if len(userIDs) == 0 {
		w.logger.Info("Optimization sweep found no active users")
		return nil
	}

	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(userIDs)
	}

	var optimized, failed, applied, applyFailures int
	for start := 0; start < len(userIDs); start += batchSize {
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		inputs := w.collectInputs(ctx, userIDs[start:end])
		if len(inputs) == 0 {
			continue
		}

		batch, err := w.optimizer.OptimizeUsers(ctx, inputs)
		if err != nil {
			return fmt.Errorf("failed to optimize user batch: %w", err)
		}
		optimized += batch.Succeeded
		failed += batch.Failed

		for _, result := range batch.Results {
			if len(result.Recommendations) == 0 {
				continue
			}
			outcome, err := w.optimizer.ApplyRecommendations(ctx, result.UserID, result.Recommendations)
			if err != nil {
				w.logger.Warn("Failed to apply recommendations",
					"user_id", result.UserID,
					"error", err)
				applyFailures++
				continue
			}
			applied += len(outcome.Applied)
		}
	}

	w.batchLogger.LogBatch("optimization_sweep", len(userIDs), optimized, failed,
		time.Since(started).String(),
		"recommendations_applied", applied,
		"apply_failures", applyFailures)
	return nil
}

// collectInputs loads each user's full history. A user whose history cannot
// be loaded is skipped, never fatal to the sweep.
func (w *OptimizationWorker) collectInputs(ctx context.Context, userIDs []string) []services.OptimizationInput {
	inputs := make([]services.OptimizationInput, 0, len(userIDs))
	for _, userID := range userIDs {
		history, err := w.reviews.OutcomesByUser(ctx, userID, time.Time{})
		if err != nil {
			w.logger.Warn("Failed to load review history",
				"user_id", userID,
				"error", err)
			continue
		}
		if len(history) == 0 {
			continue
		}
		inputs = append(inputs, services.OptimizationInput{
			UserID:  userID,
			History: history,
		})
	}
	return inputs
}
