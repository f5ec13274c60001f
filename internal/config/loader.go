package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"otprelay/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return decode()
}

// Watch re-reads the config file on every write and hands the validated result to onChange.
// A file that fails to parse or validate is reported through onChange with a nil config.
func Watch(onChange func(cfg *Config, err error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode())
	})
	viper.WatchConfig()
}

func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", "15s")
	viper.SetDefault("server.write_timeout_seconds", "15s")
	viper.SetDefault("server.rate_limit.rps", 10.0)
	viper.SetDefault("server.rate_limit.burst", 20)
	viper.SetDefault("server.rate_limit.cleanup_interval", 300)
	viper.SetDefault("server.rate_limit.max_age", 600)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("broker.type", constants.BackendMemory)
	viper.SetDefault("broker.memory.buffer_size", 256)
	viper.SetDefault("broker.memory.retry.multiplier", 2.0)
	viper.SetDefault("broker.kafka.group_id", "otp-relay")
	viper.SetDefault("broker.kafka.input_topic", constants.DefaultInboundTopic)
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("extraction.min_length", constants.DefaultMinOTPLength)
	viper.SetDefault("extraction.max_length", constants.DefaultMaxOTPLength)

	viper.SetDefault("deduplication.backend", constants.BackendMemory)
	viper.SetDefault("deduplication.window", constants.DefaultDedupWindow)
	viper.SetDefault("deduplication.bucket", constants.DefaultDedupBucket)
	viper.SetDefault("deduplication.on_cache_error", constants.FallbackAllow)

	viper.SetDefault("sources.broadcast.enabled", true)
	viper.SetDefault("sources.broadcast.handoff_timeout", constants.BroadcastHandoffBudget)
	viper.SetDefault("sources.observer.channel", constants.DefaultInboxChannel)
	viper.SetDefault("sources.poll.interval", constants.DefaultPollInterval)
	viper.SetDefault("sources.inbox.batch_size", constants.DefaultScanBatchSize)
	viper.SetDefault("sources.inbox.skip_backlog", true)
	viper.SetDefault("sources.notifications.enabled", true)
	viper.SetDefault("sources.notifications.self_app", "otprelay")
	viper.SetDefault("sources.notifications.system_apps", []string{"android", "com.android.systemui"})
	viper.SetDefault("sources.notifications.max_age", constants.DefaultNotificationAge)
	viper.SetDefault("sources.notifications.instance_ttl", constants.DefaultInstanceTTL)

	viper.SetDefault("forwarding.mode", constants.ForwardModeWebhook)
	viper.SetDefault("forwarding.webhook.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("forwarding.smtp.port", 587)
	viper.SetDefault("forwarding.smtp.tls", "starttls")
	viper.SetDefault("forwarding.smtp.timeout", constants.DefaultSMTPTimeout)
	viper.SetDefault("forwarding.workers", constants.DefaultDispatchWorkers)

	viper.SetDefault("state.backend", constants.BackendMemory)
	viper.SetDefault("database.sqlite.path", "otprelay.db")
	viper.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.config_update_topic", "BROKER_KAFKA_CONFIG_UPDATE_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("database.sqlite.path", "DATABASE_SQLITE_PATH")

	viper.BindEnv("forwarding.mode", "FORWARDING_MODE")
	viper.BindEnv("forwarding.webhook.url", "FORWARDING_WEBHOOK_URL")
	viper.BindEnv("forwarding.smtp.host", "FORWARDING_SMTP_HOST")
	viper.BindEnv("forwarding.smtp.port", "FORWARDING_SMTP_PORT")
	viper.BindEnv("forwarding.smtp.username", "FORWARDING_SMTP_USERNAME")
	viper.BindEnv("forwarding.smtp.password", "FORWARDING_SMTP_PASSWORD")
	viper.BindEnv("forwarding.smtp.sender", "FORWARDING_SMTP_SENDER")
	viper.BindEnv("forwarding.smtp.recipient", "FORWARDING_SMTP_RECIPIENT")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
