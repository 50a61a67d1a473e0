/**
 * @description
 * Scheduled job implementations for the engine: the periodic allocator sweep
 * and the offer expiry sweep.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{service: service, logger: logger}
}

// RunMatcherSweep runs a full allocator pass over the matchable backlog.
func (j *Jobs) RunMatcherSweep() {
	j.logger.Info("starting matcher sweep job")
	ctx := context.Background()

	summary, err := j.service.RunMatcher(ctx, RunOptions{})
	if err != nil {
		j.logger.Error("matcher sweep failed", "error", err)
		return
	}

	j.logger.Info("matcher sweep job finished",
		"bookings_considered", summary.BookingsConsidered,
		"matches_created", summary.MatchesCreated,
		"skipped", len(summary.Skipped))
}

// RunExpirySweep realizes expiry for every offer past its window.
func (j *Jobs) RunExpirySweep() {
	j.logger.Info("starting expiry sweep job")
	ctx := context.Background()

	expired, err := j.service.ExpireDueMatches(ctx, time.Now().UTC(), 0)
	if err != nil {
		j.logger.Error("expiry sweep failed", "error", err)
		return
	}

	j.logger.Info("expiry sweep job finished", "matches_expired", expired)
}
