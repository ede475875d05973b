package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	OpenAIBaseUrl               string  `mapstructure:"openai_base_url"`
	OpenAIAPIKey                string  `mapstructure:"openai_api_key"`
	OpenAIModel                 string  `mapstructure:"openai_model"                   validate:"required"`
	OpenAITimeout               int     `mapstructure:"openai_timeout"`
	OpenAITemperature           float64 `mapstructure:"openai_temperature"`
	OpenAIMaxTokens             int64   `mapstructure:"openai_max_tokens"`
	OpenAIRetryMaxAttempts      uint    `mapstructure:"openai_retry_max_attempts"`
	OpenAIRetryMinBackoff       int     `mapstructure:"openai_retry_min_backoff"`
	OpenAIRetryMaxBackoff       int     `mapstructure:"openai_retry_max_backoff"`
	OpenAIIntervalCB            uint32  `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailuresCB uint32  `mapstructure:"openai_consecutive_failures_cb"`

	GithubBaseUrl               string `mapstructure:"github_base_url"                validate:"required"`
	GithubTimeout               int    `mapstructure:"github_timeout"`
	GithubRetryMaxAttempts      uint   `mapstructure:"github_retry_max_attempts"`
	GithubRetryMinBackoff       int    `mapstructure:"github_retry_min_backoff"`
	GithubRetryMaxBackoff       int    `mapstructure:"github_retry_max_backoff"`
	GithubIntervalCB            uint32 `mapstructure:"github_interval_cb"`
	GithubConsecutiveFailuresCB uint32 `mapstructure:"github_consecutive_failures_cb"`

	ServerPort          string `mapstructure:"server_port"`
	ServerTimeout       int    `mapstructure:"server_timeout"`
	CronSecret          string `mapstructure:"cron_secret"`
	WebhookRateLimit    int    `mapstructure:"webhook_rate_limit"`
	WebhookRateWindow   int    `mapstructure:"webhook_rate_window"`
	MaxWebhookBodyBytes int64  `mapstructure:"max_webhook_body_bytes"`

	QueueMaxAttempts   int  `mapstructure:"queue_max_attempts"`
	DrainBatchLimit    int  `mapstructure:"drain_batch_limit"`
	DrainWorkerEnabled bool `mapstructure:"drain_worker_enabled"`
	DrainInterval      int  `mapstructure:"drain_interval"`
	DrainPoolSize      int  `mapstructure:"drain_pool_size"`
	PurgeRetentionDays int  `mapstructure:"purge_retention_days"`

	SyncPageSize    int `mapstructure:"sync_page_size"`
	SyncConcurrency int `mapstructure:"sync_concurrency"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return err
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_USERNAME", "shiplog")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "shiplog")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_TIMEOUT", "30")
	viper.SetDefault("OPENAI_TEMPERATURE", "0.3")
	viper.SetDefault("OPENAI_MAX_TOKENS", "300")
	viper.SetDefault("OPENAI_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("OPENAI_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("OPENAI_RETRY_MAX_BACKOFF", "5")
	viper.SetDefault("OPENAI_INTERVAL_CB", "30")
	viper.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("GITHUB_BASE_URL", "https://api.github.com")
	viper.SetDefault("GITHUB_TIMEOUT", "30")
	viper.SetDefault("GITHUB_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("GITHUB_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("GITHUB_RETRY_MAX_BACKOFF", "10")
	viper.SetDefault("GITHUB_INTERVAL_CB", "30")
	viper.SetDefault("GITHUB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_TIMEOUT", "60")
	viper.SetDefault("WEBHOOK_RATE_LIMIT", "100")
	viper.SetDefault("WEBHOOK_RATE_WINDOW", "60")
	viper.SetDefault("MAX_WEBHOOK_BODY_BYTES", "1048576")
	viper.SetDefault("QUEUE_MAX_ATTEMPTS", "5")
	viper.SetDefault("DRAIN_BATCH_LIMIT", "10")
	viper.SetDefault("DRAIN_WORKER_ENABLED", "false")
	viper.SetDefault("DRAIN_INTERVAL", "5")
	viper.SetDefault("DRAIN_POOL_SIZE", "3")
	viper.SetDefault("PURGE_RETENTION_DAYS", "7")
	viper.SetDefault("SYNC_PAGE_SIZE", "100")
	viper.SetDefault("SYNC_CONCURRENCY", "5")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
