package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/adapters/storage"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/automation"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/email"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/events"
	apphttp "github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/http/router"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/leads/domain"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/messaging"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/outbound"
	"github.com/shire602-cyber/alainbcenter-crm-sub008/internal/qualifier"
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

// ensureBucket wraps the retry logic for verifying the media bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, media *storage.MediaStore) {
	if err := withRetry(ctx, log, "ensure media bucket", 5, 2*time.Second, func() error {
		return media.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure media bucket exists", "error", err)
		panic("failed to ensure media bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	jobTimers, closeTimers := initJobTimers(cfg, log)
	if closeTimers != nil {
		defer closeTimers()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// Media store for inbound attachments (MinIO)
	var media *storage.MediaStore
	if cfg.IsMinIOEnabled() {
		media, err = storage.NewMediaStore(cfg)
		if err != nil {
			log.Error("failed to initialize media store", "error", err)
			panic("failed to initialize media store: " + err.Error())
		}
		ensureBucket(ctx, log, media)
		log.Info("media store initialized", "bucket", cfg.GetMinioBucketMessageMedia())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; attachment intake disabled")
	}

	// Staff alert mail rides the event bus
	alerts := email.NewAlerts(email.NewSender(cfg), cfg.GetAlertsEmail(), log)
	alerts.RegisterHandlers(eventBus)

	// WhatsApp gateway for outbound sends
	whatsappClient := whatsapp.NewClient(cfg, log)
	gateway := whatsapp.NewGateway(whatsappClient, cfg.GetWhatsAppTemplateName())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, val, log)
	tasksModule := tasks.NewModule(pool, eventBus, log)
	outboundModule := outbound.NewModule(pool, eventBus, log)
	outboundModule.Service().SetMaxAttempts(cfg.GetJobMaxAttempts())

	// Qualifier flows walk leads through their service-specific questions
	qualifierEngine := qualifier.NewEngine(leadsModule.Service(), tasksModule.Service(), eventBus, log)
	qualifierEngine.Register(domain.ServiceTypeGoldenVisa, qualifier.NewGoldenVisaFlow())

	msgDeps := messaging.ModuleDeps{
		Leads:      leadsModule.Service(),
		Tasks:      tasksModule.Service(),
		Queue:      outboundModule.Service(),
		Scheduler:  jobTimers,
		Qualifier:  qualifierEngine,
		Bus:        eventBus,
		Validator:  val,
		Logger:     log,
		ReplyDelay: cfg.GetReplyDelay(),
	}
	if media != nil {
		msgDeps.Media = media
		msgDeps.Presign = media
	}
	messagingModule := messaging.NewModule(pool, msgDeps)

	renewalsModule, err := renewals.NewModule(pool, renewals.ModuleDeps{
		Conversations: messagingModule.Conversations(),
		Queue:         outboundModule.Service(),
		Tasks:         tasksModule.Service(),
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

	// Extracted expiry dates land on the renewal ladder (breaks circular dependency)
	messagingModule.SetExpiryRecorder(renewalsModule.Repository())

	// Reply generation agent. Without an API key every generate attempt
	// fails, the job goes terminal and the reply task stays open for staff.
	generator, err := replies.NewGenerator(
		chatmodel.Config{APIKey: cfg.GetAIAPIKey(), BaseURL: cfg.GetAIAPIURL(), Model: cfg.GetAIModel()},
		replies.BusinessProfile{Name: cfg.GetBusinessName(), Profile: cfg.GetBusinessProfile()},
		messagingModule.Messages(),
		leadsModule.Service(),
		log,
	)
	if err != nil {
		log.Error("failed to initialize reply generator", "error", err)
		panic("failed to initialize reply generator: " + err.Error())
	}

	// Processor for the synchronous ops queue pass; the worker binary runs
	// the same graph on timers.
	processor := outbound.NewProcessor(
		outboundModule.Repository(),
		outboundModule.Locks(),
		messagingModule.Conversations(),
		generator,
		gateway,
		tasksModule.Service(),
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
	outboundModule.SetQueueRunner(processor)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			messagingModule,
			leadsModule,
			tasksModule,
			outboundModule,
			renewalsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initJobTimers builds the asynq client that arms per-job timers. Without
// Redis the pipeline falls back to the worker's periodic pass.
func initJobTimers(cfg config.SchedulerConfig, log *logger.Logger) (messaging.JobScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; job timers disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize job timer client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
