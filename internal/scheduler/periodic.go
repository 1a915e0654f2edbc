package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

// Stale claims are recovered on every pass too; this entry is the backstop
// for quiet periods with no passes at all.
const recoverCron = "@every 2m"

// Periodic registers the recurring tasks on an asynq scheduler: the queue
// pass, stale recovery and the daily renewal sweep. Cron specs come from
// configuration.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, batchSize int, log *logger.Logger) (*Periodic, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	passTask, err := NewQueuePassTask(QueuePassPayload{Max: batchSize})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(cfg.GetQueuePassCron(), passTask); err != nil {
		return nil, fmt.Errorf("register queue pass %q: %w", cfg.GetQueuePassCron(), err)
	}

	if _, err := scheduler.Register(recoverCron, NewRecoverTask()); err != nil {
		return nil, fmt.Errorf("register recover: %w", err)
	}

	// WindowDays zero means the sweep uses its configured default.
	sweepTask, err := NewRenewalsSweepTask(RenewalsSweepPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(cfg.GetRenewalSweepCron(), sweepTask); err != nil {
		return nil, fmt.Errorf("register renewal sweep %q: %w", cfg.GetRenewalSweepCron(), err)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
