// Package worker runs the periodic maintenance jobs of the LMS.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpireEnrollments   = "expire_enrollments"
	JobCleanupRefreshToken = "cleanup_refresh_tokens"
)

// revoked tokens are kept this long so a replayed token is still recognised
const revokedRetention = 7 * 24 * time.Hour

// Expirer closes enrollments whose access window has passed
type Expirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// Scheduler owns the cron instance and the jobs registered on it
type Scheduler struct {
	cron        *cron.Cron
	db          *gorm.DB
	enrollments Expirer
	log         *zap.Logger
	timeout     time.Duration
	now         func() time.Time
}

// New creates a scheduler. Jobs run in UTC, one at a time per job.
func New(db *gorm.DB, enrollments Expirer, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		db:          db,
		enrollments: enrollments,
		log:         log,
		timeout:     5 * time.Minute,
		now:         time.Now,
	}
}

// Register adds every job with its schedule from cfg
func (s *Scheduler) Register(cfg config.WorkerConfig) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int64, error)
	}{
		{JobExpireEnrollments, cfg.ExpirySchedule, s.ExpireEnrollments},
		{JobCleanupRefreshToken, cfg.CleanupSchedule, s.CleanupRefreshTokens},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
		s.log.Info("Job scheduled", zap.String("job", job.name), zap.String("schedule", job.spec))
	}
	return nil
}

func (s *Scheduler) run(name string, job func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job(ctx)
	prometheus.RecordWorkerRun(name, err)
	if err != nil {
		s.log.Error("Job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.log.Info("Job finished",
		zap.String("job", name),
		zap.Int64("affected", n),
		zap.Duration("duration", time.Since(start)))
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireEnrollments expires overdue enrollments of every tenant
func (s *Scheduler) ExpireEnrollments(ctx context.Context) (int64, error) {
	return s.enrollments.ExpireDue(tenancy.WithoutScope(ctx))
}

// CleanupRefreshTokens deletes expired refresh tokens and revoked ones past
// the retention window
func (s *Scheduler) CleanupRefreshTokens(ctx context.Context) (int64, error) {
	defer prometheus.TrackDBOperation("delete")(time.Now())
	now := s.now()
	res := s.db.WithContext(tenancy.WithoutScope(ctx)).
		Where("expires_at < ? OR (revoked = ? AND updated_at < ?)", now, true, now.Add(-revokedRetention)).
		Delete(&model.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
