// Package jobs runs the periodic maintenance work: monthly subscription
// renewal, monthly credit resets and recurring-schedule auto-extension.
// Every job iterates the tenants sequentially and is idempotent, so an
// overlapping or repeated run only costs a few no-op queries.
package jobs

import (
	"context"
	"time"

	"app/internal/api/v1/router"
	"app/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler owns the cron runner and the per-tenant service stacks the jobs
// operate on.
type Scheduler struct {
	cron   *cron.Cron
	stacks []*router.TenantStack
	cfg    *config.Config
	logger zerolog.Logger
}

func NewScheduler(stacks []*router.TenantStack, cfg *config.Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		stacks: stacks,
		cfg:    cfg,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.RenewalSchedule, s.renewSubscriptions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ResetSchedule, s.resetCredits); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ExtensionSchedule, s.extendSchedules); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().
		Str("renewal", s.cfg.RenewalSchedule).
		Str("reset", s.cfg.ResetSchedule).
		Str("extension", s.cfg.ExtensionSchedule).
		Msg("Cron jobs scheduled")
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) renewSubscriptions() {
	ctx := context.Background()
	now := time.Now().UTC()
	for _, st := range s.stacks {
		n, err := st.Credits.RenewMonthlySubscriptions(ctx, now)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", st.Tenant.ID).Msg("Subscription renewal failed")
			continue
		}
		s.logger.Info().Str("tenant", st.Tenant.ID).Int("renewed", n).Msg("Subscription renewal run complete")
	}
}

func (s *Scheduler) resetCredits() {
	ctx := context.Background()
	now := time.Now().UTC()
	for _, st := range s.stacks {
		n, err := st.Credits.ResetMonthlyCredits(ctx, now)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", st.Tenant.ID).Msg("Monthly credit reset failed")
			continue
		}
		s.logger.Info().Str("tenant", st.Tenant.ID).Int("reset", n).Msg("Monthly credit reset run complete")
	}
}

func (s *Scheduler) extendSchedules() {
	ctx := context.Background()
	horizon := time.Now().UTC().AddDate(0, 0, s.cfg.ExtensionHorizonDays)
	for _, st := range s.stacks {
		n, err := st.Schedule.AutoExtend(ctx, horizon)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", st.Tenant.ID).Msg("Schedule auto-extension failed")
			continue
		}
		s.logger.Info().Str("tenant", st.Tenant.ID).Int("created", n).Msg("Schedule auto-extension run complete")
	}
}
