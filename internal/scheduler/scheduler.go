// Package scheduler runs the periodic subscription maintenance jobs:
// applying due scheduled downgrades and expiring finished trials.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/tenantcore/internal/clock"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	Log             *zap.Logger
	Config          Config `optional:"true"`
}

type Scheduler struct {
	subscriptionSvc subscriptiondomain.Service
	clock           clock.Clock
	log             *zap.Logger
	cfg             Config
}

func New(p Params) (*Scheduler, error) {
	if p.SubscriptionSvc == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		subscriptionSvc: p.SubscriptionSvc,
		clock:           p.Clock,
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	processed, err := fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Int("processed", processed),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	if err == nil {
		if processed > 0 {
			log.Info("job completed")
		}
		return nil
	}

	// A deadline is a soft failure; the next tick picks up the remainder.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Error(err))
		return nil
	}

	log.Warn("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.isJobEnabled("apply_downgrades") {
		err = errors.Join(err, s.runJob(parent, "apply_downgrades", s.subscriptionSvc.ApplyScheduledDowngrades))
	}
	if s.isJobEnabled("expire_trials") {
		err = errors.Join(err, s.runJob(parent, "expire_trials", s.subscriptionSvc.ExpireTrials))
	}

	return err
}

// RunForever loops RunOnce on the configured interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
