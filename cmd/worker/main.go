package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/automation"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/email"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	leadrepo "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/repository"
	leadservice "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/service"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/renewals"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/replies"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/scheduler"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/tasks"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/whatsapp"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/ai/chatmodel"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/db"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// Alert mail for job failures; the processor publishes them here too
	alerts := email.NewAlerts(email.NewSender(cfg), cfg.GetAlertsEmail(), log)
	alerts.RegisterHandlers(eventBus)

	val := validator.New()

	whatsappClient := whatsapp.NewClient(cfg, log)
	gateway := whatsapp.NewGateway(whatsappClient, cfg.GetWhatsAppTemplateName())

	// Worker-side pipeline graph (no HTTP handlers required).
	conversations := messaging.NewConversationRepository(pool)
	messages := messaging.NewMessageRepository(pool)
	leadsSvc := leadservice.New(leadrepo.New(pool), log)
	tasksSvc := tasks.NewService(tasks.NewRepository(pool), eventBus, log)

	jobs := outbound.NewRepository(pool)
	locks := outbound.NewLockRepository(pool)
	outboundSvc := outbound.NewService(jobs, locks, eventBus, log)
	outboundSvc.SetMaxAttempts(cfg.GetJobMaxAttempts())

	renewalsModule, err := renewals.NewModule(pool, renewals.ModuleDeps{
		Conversations: conversations,
		Queue:         outboundSvc,
		Tasks:         tasksSvc,
		RunLog:        automation.NewRunLog(pool),
		Config:        cfg,
		CompanyName:   cfg.GetBusinessName(),
		Bus:           eventBus,
		Validator:     val,
		Logger:        log,
	})
	if err != nil {
		log.Error("failed to initialize renewals module", "error", err)
		panic("failed to initialize renewals module: " + err.Error())
	}

	generator, err := replies.NewGenerator(
		chatmodel.Config{APIKey: cfg.GetAIAPIKey(), BaseURL: cfg.GetAIAPIURL(), Model: cfg.GetAIModel()},
		replies.BusinessProfile{Name: cfg.GetBusinessName(), Profile: cfg.GetBusinessProfile()},
		messages,
		leadsSvc,
		log,
	)
	if err != nil {
		log.Error("failed to initialize reply generator", "error", err)
		panic("failed to initialize reply generator: " + err.Error())
	}

	processor := outbound.NewProcessor(
		jobs,
		locks,
		conversations,
		generator,
		gateway,
		tasksSvc,
		eventBus,
		log,
		outbound.ProcessorConfig{
			BatchSize:      cfg.GetQueueBatchSize(),
			Concurrency:    cfg.GetQueueWorkers(),
			SessionWindow:  cfg.GetSessionWindow(),
			Lease:          cfg.GetJobLease(),
			SendsPerSecond: cfg.GetSendRatePerSecond(),
			SendBurst:      cfg.GetSendBurst(),
		},
	)

	// The dispatcher drains the queue straight from the database, so sends
	// keep flowing whether or not Redis is reachable.
	dispatcher := scheduler.NewDispatcher(processor, log)

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running dispatcher loop only, renewal sweeps are manual")
		dispatcher.Run(ctx)
		return
	}

	worker, err := scheduler.NewWorker(cfg, scheduler.WorkerDeps{
		Processor: processor,
		Recoverer: outboundSvc,
		Sweeper:   renewalsModule.Engine(),
		Lease:     cfg.GetJobLease(),
		Logger:    log,
	})
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, cfg.GetQueueBatchSize(), log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	go dispatcher.Run(ctx)
	go periodic.Run(ctx)

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
