package retention

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/tracker/pkg/requestlog"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep request logs.
	// 0 keeps them forever.
	RetentionDays int

	// MaxRecordsPerDeployment is the number of newest entries kept for each
	// deployment. 0 means unlimited.
	MaxRecordsPerDeployment int64

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays:           0,
		MaxRecordsPerDeployment: 0,
		PruneSchedule:           "0 3 * * *",
	}
}

// Pruner enforces retention limits on a requestlog.Maintainer.
type Pruner struct {
	store     requestlog.Maintainer
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(store requestlog.Maintainer, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "requestlog.retention"),
		now:    time.Now,
	}
	p.scheduler = NewScheduler(p)

	return p
}

// Prune deletes entries past the age limit, then entries beyond the
// per-deployment count limit. It returns the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, requestlog.NewRetentionError("age", err)
		}
		total += deleted
		p.logger.Info("pruned request logs by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxRecordsPerDeployment > 0 {
		deleted, err := p.store.DeleteExcess(ctx, p.config.MaxRecordsPerDeployment)
		if err != nil {
			return total, requestlog.NewRetentionError("count", err)
		}
		total += deleted
		p.logger.Info("pruned request logs by count",
			"deleted_count", deleted,
			"max_records_per_deployment", p.config.MaxRecordsPerDeployment,
		)
	}

	if total == 0 {
		p.logger.Debug("no request logs pruned")
	}

	return total, nil
}

// Start starts the pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
