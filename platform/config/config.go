// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetWorkerConcurrency() int
	GetQueuePassCron() string
	GetRenewalSweepCron() string
}

// WhatsAppConfig provides settings for the WhatsApp gateway client.
type WhatsAppConfig interface {
	GetWhatsAppAPIURL() string
	GetWhatsAppAPIUsername() string
	GetWhatsAppAPIPassword() string
	GetWhatsAppTemplateName() string
	IsWhatsAppEnabled() bool
}

// AIConfig provides settings for the reply generation model.
type AIConfig interface {
	GetAIAPIURL() string
	GetAIAPIKey() string
	GetAIModel() string
	IsAIEnabled() bool
}

// EmailConfig provides settings for staff alert email.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAlertsEmail() string
	GetEmailEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketMessageMedia() string
	IsMinIOEnabled() bool
}

// PipelineConfig provides tuning for the outbound job queue and processor.
type PipelineConfig interface {
	GetReplyDelay() time.Duration
	GetSessionWindow() time.Duration
	GetJobMaxAttempts() int
	GetJobLease() time.Duration
	GetQueueBatchSize() int
	GetQueueWorkers() int
	GetSendRatePerSecond() float64
	GetSendBurst() int
}

// RenewalConfig provides settings for the renewal reminder engine.
type RenewalConfig interface {
	GetRenewalTemplatesPath() string
	GetRenewalStageDays() []int
	GetRenewalMinInterval() time.Duration
	GetRenewalWindowDays() int
	BusinessHoursConfig
}

// BusinessHoursConfig provides the send window in the business timezone.
type BusinessHoursConfig interface {
	GetBusinessTimezone() string
	GetBusinessHoursStart() string
	GetBusinessHoursEnd() string
	GetBusinessDays() []string
}

// BusinessConfig provides the company profile used in generated replies.
type BusinessConfig interface {
	GetBusinessName() string
	GetBusinessProfile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	RedisURL          string
	RedisTLSInsecure  bool
	WorkerConcurrency int
	QueuePassCron     string
	RenewalSweepCron  string

	WhatsAppAPIURL       string
	WhatsAppAPIUsername  string
	WhatsAppAPIPassword  string
	WhatsAppTemplateName string

	AIAPIURL string
	AIAPIKey string
	AIModel  string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	AlertsEmail      string
	EmailEnabled     bool

	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinIOMaxFileSize        int64
	MinioBucketMessageMedia string

	ReplyDelay        time.Duration
	SessionWindow     time.Duration
	JobMaxAttempts    int
	JobLease          time.Duration
	QueueBatchSize    int
	QueueWorkers      int
	SendRatePerSecond float64
	SendBurst         int

	RenewalTemplatesPath string
	RenewalStageDays     []int
	RenewalMinInterval   time.Duration
	RenewalWindowDays    int
	BusinessTimezone     string
	BusinessHoursStart   string
	BusinessHoursEnd     string
	BusinessDays         []string

	BusinessName    string
	BusinessProfile string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string         { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool   { return c.RedisTLSInsecure }
func (c *Config) GetWorkerConcurrency() int   { return c.WorkerConcurrency }
func (c *Config) GetQueuePassCron() string    { return c.QueuePassCron }
func (c *Config) GetRenewalSweepCron() string { return c.RenewalSweepCron }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppAPIURL() string       { return c.WhatsAppAPIURL }
func (c *Config) GetWhatsAppAPIUsername() string  { return c.WhatsAppAPIUsername }
func (c *Config) GetWhatsAppAPIPassword() string  { return c.WhatsAppAPIPassword }
func (c *Config) GetWhatsAppTemplateName() string { return c.WhatsAppTemplateName }
func (c *Config) IsWhatsAppEnabled() bool         { return c.WhatsAppAPIURL != "" }

// AIConfig implementation
func (c *Config) GetAIAPIURL() string { return c.AIAPIURL }
func (c *Config) GetAIAPIKey() string { return c.AIAPIKey }
func (c *Config) GetAIModel() string  { return c.AIModel }
func (c *Config) IsAIEnabled() bool   { return c.AIAPIKey != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAlertsEmail() string      { return c.AlertsEmail }
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64         { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketMessageMedia() string { return c.MinioBucketMessageMedia }
func (c *Config) IsMinIOEnabled() bool               { return c.MinIOEndpoint != "" }

// PipelineConfig implementation
func (c *Config) GetReplyDelay() time.Duration    { return c.ReplyDelay }
func (c *Config) GetSessionWindow() time.Duration { return c.SessionWindow }
func (c *Config) GetJobMaxAttempts() int          { return c.JobMaxAttempts }
func (c *Config) GetJobLease() time.Duration      { return c.JobLease }
func (c *Config) GetQueueBatchSize() int          { return c.QueueBatchSize }
func (c *Config) GetQueueWorkers() int            { return c.QueueWorkers }
func (c *Config) GetSendRatePerSecond() float64   { return c.SendRatePerSecond }
func (c *Config) GetSendBurst() int               { return c.SendBurst }

// RenewalConfig implementation
func (c *Config) GetRenewalTemplatesPath() string      { return c.RenewalTemplatesPath }
func (c *Config) GetRenewalStageDays() []int           { return c.RenewalStageDays }
func (c *Config) GetRenewalMinInterval() time.Duration { return c.RenewalMinInterval }
func (c *Config) GetRenewalWindowDays() int            { return c.RenewalWindowDays }
func (c *Config) GetBusinessTimezone() string          { return c.BusinessTimezone }
func (c *Config) GetBusinessHoursStart() string        { return c.BusinessHoursStart }
func (c *Config) GetBusinessHoursEnd() string          { return c.BusinessHoursEnd }
func (c *Config) GetBusinessDays() []string            { return c.BusinessDays }

// BusinessConfig implementation
func (c *Config) GetBusinessName() string    { return c.BusinessName }
func (c *Config) GetBusinessProfile() string { return c.BusinessProfile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		WorkerConcurrency: mustInt(getEnv("WORKER_CONCURRENCY", "10")),
		QueuePassCron:     getEnv("QUEUE_PASS_CRON", "@every 30s"),
		RenewalSweepCron:  getEnv("RENEWAL_SWEEP_CRON", "0 6 * * *"),

		WhatsAppAPIURL:       getEnv("WHATSAPP_API_URL", ""),
		WhatsAppAPIUsername:  getEnv("WHATSAPP_API_USERNAME", ""),
		WhatsAppAPIPassword:  getEnv("WHATSAPP_API_PASSWORD", ""),
		WhatsAppTemplateName: getEnv("WHATSAPP_TEMPLATE_NAME", "customer_update"),

		AIAPIURL: getEnv("AI_API_URL", "https://api.moonshot.ai/v1"),
		AIAPIKey: getEnv("AI_API_KEY", ""),
		AIModel:  getEnv("AI_MODEL", "kimi-k2-0711-preview"),

		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Al Ain Business Center"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		AlertsEmail:      getEnv("ALERTS_EMAIL", ""),
		EmailEnabled:     emailEnabled && smtpHost != "",

		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:        mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "33554432")),
		MinioBucketMessageMedia: getEnv("MINIO_BUCKET_MESSAGE_MEDIA", "message-media"),

		ReplyDelay:        mustDuration(getEnv("REPLY_DELAY", "45s")),
		SessionWindow:     mustDuration(getEnv("SESSION_WINDOW", "24h")),
		JobMaxAttempts:    mustInt(getEnv("JOB_MAX_ATTEMPTS", "5")),
		JobLease:          mustDuration(getEnv("JOB_LEASE", "5m")),
		QueueBatchSize:    mustInt(getEnv("QUEUE_BATCH_SIZE", "20")),
		QueueWorkers:      mustInt(getEnv("QUEUE_WORKERS", "4")),
		SendRatePerSecond: mustFloat(getEnv("SEND_RATE_PER_SECOND", "1")),
		SendBurst:         mustInt(getEnv("SEND_BURST", "3")),

		RenewalTemplatesPath: getEnv("RENEWAL_TEMPLATES_PATH", "config/renewal_templates.yaml"),
		RenewalStageDays:     splitInts(getEnv("RENEWAL_STAGE_DAYS", "90,60,30,7")),
		RenewalMinInterval:   mustDuration(getEnv("RENEWAL_MIN_INTERVAL", "24h")),
		RenewalWindowDays:    mustInt(getEnv("RENEWAL_WINDOW_DAYS", "120")),
		BusinessTimezone:     getEnv("BUSINESS_TIMEZONE", "Asia/Dubai"),
		BusinessHoursStart:   getEnv("BUSINESS_HOURS_START", "09:00"),
		BusinessHoursEnd:     getEnv("BUSINESS_HOURS_END", "18:00"),
		BusinessDays:         splitCSV(getEnv("BUSINESS_DAYS", "Mon,Tue,Wed,Thu,Fri,Sat")),

		BusinessName:    getEnv("BUSINESS_NAME", "Al Ain Business Center"),
		BusinessProfile: getEnv("BUSINESS_PROFILE", "UAE business services: Golden Visa, residence visa and Emirates ID renewals, trade licenses, attestation and business setup."),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if len(cfg.RenewalStageDays) == 0 {
		return nil, fmt.Errorf("RENEWAL_STAGE_DAYS must list at least one threshold")
	}
	for i := 1; i < len(cfg.RenewalStageDays); i++ {
		if cfg.RenewalStageDays[i] >= cfg.RenewalStageDays[i-1] {
			return nil, fmt.Errorf("RENEWAL_STAGE_DAYS must be strictly descending, got %v", cfg.RenewalStageDays)
		}
	}
	if cfg.RenewalStageDays[len(cfg.RenewalStageDays)-1] < 0 {
		return nil, fmt.Errorf("RENEWAL_STAGE_DAYS thresholds must be non-negative, got %v", cfg.RenewalStageDays)
	}
	if _, err := time.Parse("15:04", cfg.BusinessHoursStart); err != nil {
		return nil, fmt.Errorf("BUSINESS_HOURS_START must be HH:MM: %w", err)
	}
	if _, err := time.Parse("15:04", cfg.BusinessHoursEnd); err != nil {
		return nil, fmt.Errorf("BUSINESS_HOURS_END must be HH:MM: %w", err)
	}
	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE is not a valid IANA zone: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func splitInts(value string) []int {
	parts := splitCSV(value)
	results := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		results = append(results, n)
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
