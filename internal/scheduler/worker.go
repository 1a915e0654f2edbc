package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/renewals"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

type (
	// QueueProcessor runs one recover-claim-process pass over the job queue.
	QueueProcessor interface {
		ProcessQueueOnce(ctx context.Context, maxJobs int) (outbound.PassResult, error)
	}

	// StaleRecoverer returns crashed claims to the queue.
	StaleRecoverer interface {
		RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	}

	// RenewalSweeper walks the expiry ladder and stages reminders.
	RenewalSweeper interface {
		Sweep(ctx context.Context, dryRun bool, windowDays int) ([]renewals.Candidate, error)
	}
)

type WorkerDeps struct {
	Processor QueueProcessor
	Recoverer StaleRecoverer
	Sweeper   RenewalSweeper
	Lease     time.Duration
	Logger    *logger.Logger
}

// Worker serves the asynq task types. Every handler returns its error to
// asynq so a failed pass is retried with backoff.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	deps   WorkerDeps
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deps WorkerDeps) (*Worker, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetWorkerConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		deps:   deps,
		log:    deps.Logger,
	}

	mux.HandleFunc(TaskOutboundJobDue, w.handleJobDue)
	mux.HandleFunc(TaskOutboundQueuePass, w.handleQueuePass)
	mux.HandleFunc(TaskOutboundRecover, w.handleRecover)
	mux.HandleFunc(TaskRenewalsSweep, w.handleRenewalsSweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleJobDue runs a queue pass when a job's timer fires. The pass claims
// whatever is due, the triggering job included; the payload id is only for
// tracing. A duplicate or late trigger is therefore harmless.
func (w *Worker) handleJobDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseJobDuePayload(task)
	if err != nil {
		return err
	}

	res, err := w.deps.Processor.ProcessQueueOnce(ctx, 0)
	if err != nil {
		return err
	}
	w.log.Info("job-due pass finished",
		"trigger_job_id", payload.JobID,
		"processed", res.Processed, "failed", res.Failed, "recovered", res.Recovered)
	return nil
}

func (w *Worker) handleQueuePass(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseQueuePassPayload(task)
	if err != nil {
		return err
	}

	res, err := w.deps.Processor.ProcessQueueOnce(ctx, payload.Max)
	if err != nil {
		return err
	}
	if res.Processed > 0 || res.Recovered > 0 {
		w.log.Info("queue pass finished",
			"processed", res.Processed, "failed", res.Failed, "recovered", res.Recovered)
	}
	return nil
}

func (w *Worker) handleRecover(ctx context.Context, _ *asynq.Task) error {
	n, err := w.deps.Recoverer.RecoverStale(ctx, w.deps.Lease)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("stale outbound claims recovered", "count", n)
	}
	return nil
}

func (w *Worker) handleRenewalsSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRenewalsSweepPayload(task)
	if err != nil {
		return err
	}

	candidates, err := w.deps.Sweeper.Sweep(ctx, false, payload.WindowDays)
	if err != nil {
		return err
	}
	staged := 0
	for _, c := range candidates {
		if c.Send {
			staged++
		}
	}
	w.log.Info("renewal sweep finished by worker",
		"considered", len(candidates), "staged", staged)
	return nil
}
