package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"messaging-service/internal/observability"
)

// Cleaner purges deleted chats past the retention window.
type Cleaner interface {
	CleanupDeletedChats(ctx context.Context) (int64, error)
}

// Job runs a Cleaner on a fixed interval.
type Job struct {
	cleaner  Cleaner
	interval time.Duration
	log      logrus.FieldLogger
}

func NewJob(cleaner Cleaner, interval time.Duration, log logrus.FieldLogger) *Job {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Job{cleaner: cleaner, interval: interval, log: log.WithField("component", "retention")}
}

// RunOnce performs a single purge pass.
func (j *Job) RunOnce(ctx context.Context) (purged int64, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retention panic: %v", r)
		}
		if err != nil {
			observability.IncRetentionRun("error")
			j.log.WithError(err).WithField("purged", purged).Error("retention run failed")
			return
		}
		observability.IncRetentionRun("ok")
		observability.AddRetentionPurged(purged)
		j.log.WithFields(logrus.Fields{
			"purged":      purged,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("retention run finished")
	}()

	return j.cleaner.CleanupDeletedChats(ctx)
}

// Run blocks until ctx is cancelled. A failed pass is logged and the next
// tick runs as usual.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.WithField("interval", j.interval.String()).Info("retention job started")
	for {
		select {
		case <-ctx.Done():
			j.log.Info("retention job stopped")
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
