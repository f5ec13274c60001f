package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"otprelay/internal/constants"
	"otprelay/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errs = append(errs, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateDeduplication(cfg.Deduplication, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateExtraction(cfg.Extraction); err != nil {
		errs = append(errs, err)
	}

	if err := validateSender(cfg.Sender); err != nil {
		errs = append(errs, err)
	}

	if err := validateSources(cfg.Sources, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateForwarding(cfg.Forwarding); err != nil {
		errs = append(errs, err)
	}

	if err := validateState(cfg.State, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case constants.BackendKafka:
		return validateKafka(cfg.Kafka)
	case constants.BackendMemory:
		if cfg.Memory.BufferSize < 0 {
			return &ValidationError{
				Field:   "broker.memory.buffer_size",
				Message: "buffer size must be non-negative",
			}
		}
		return validateRetry("broker.memory.retry", cfg.Memory.Retry)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, memory)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}


func validateDeduplication(cfg DeduplicationConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case constants.BackendMemory:
	case constants.BackendRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "deduplication.backend",
				Message: "redis backend requires database.redis.host",
			}
		}
	default:
		return &ValidationError{
			Field:   "deduplication.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, redis)", cfg.Backend),
		}
	}

	if cfg.Window <= 0 {
		return &ValidationError{
			Field:   "deduplication.window",
			Message: "window must be positive",
		}
	}

	if cfg.Bucket <= 0 || cfg.Bucket > cfg.Window {
		return &ValidationError{
			Field:   "deduplication.bucket",
			Message: "bucket must be positive and no longer than the window",
		}
	}

	validOnError := map[string]bool{
		constants.FallbackAllow: true, constants.FallbackDeny: true,
	}
	if cfg.OnCacheError != "" && !validOnError[strings.ToLower(cfg.OnCacheError)] {
		return &ValidationError{
			Field:   "deduplication.on_cache_error",
			Message: fmt.Sprintf("invalid on_cache_error value: %s (valid: allow, deny)", cfg.OnCacheError),
		}
	}

	return nil
}

func validateExtraction(cfg ExtractionConfig) error {
	if cfg.MinLength < 1 {
		return &ValidationError{
			Field:   "extraction.min_length",
			Message: fmt.Sprintf("min_length must be at least 1, got %d", cfg.MinLength),
		}
	}

	if cfg.MaxLength < cfg.MinLength {
		return &ValidationError{
			Field:   "extraction.max_length",
			Message: fmt.Sprintf("max_length %d is below min_length %d", cfg.MaxLength, cfg.MinLength),
		}
	}

	for i, expr := range cfg.Regexes {
		if _, err := regexp.Compile(expr); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("extraction.regexes[%d]", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			}
		}
	}

	return nil
}

func validateSender(cfg SenderConfig) error {
	for i, o := range cfg.Overrides {
		if strings.TrimSpace(o.Match) == "" || strings.TrimSpace(o.Token) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("sender.overrides[%d]", i),
				Message: "override needs both match and token",
			}
		}
	}
	return nil
}

func validateSources(cfg SourcesConfig, db DatabaseConfig) error {
	if (cfg.Observer.Enabled || cfg.Poll.Enabled) && db.Postgres.Host == "" {
		return &ValidationError{
			Field:   "sources",
			Message: "observer and poll sources require database.postgres",
		}
	}

	if cfg.Poll.Enabled && cfg.Poll.Interval < time.Second {
		return &ValidationError{
			Field:   "sources.poll.interval",
			Message: "poll interval must be at least one second",
		}
	}

	if cfg.Inbox.BatchSize < 1 {
		return &ValidationError{
			Field:   "sources.inbox.batch_size",
			Message: "batch size must be positive",
		}
	}

	if cfg.Notifications.MaxAge <= 0 {
		return &ValidationError{
			Field:   "sources.notifications.max_age",
			Message: "max_age must be positive",
		}
	}

	return validateNotificationRule(cfg.Notifications.Rule)
}

func validateNotificationRule(rule string) error {
	if rule == "" {
		return nil
	}

	eval, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	if err := eval.ValidateRuleExpression(rule); err != nil {
		return &ValidationError{
			Field:   "sources.notifications.rule",
			Message: err.Error(),
		}
	}
	return nil
}

func validateForwarding(cfg ForwardingConfig) error {
	switch cfg.Mode {
	case constants.ForwardModeWebhook, constants.ForwardModeEmail:
	default:
		return &ValidationError{
			Field:   "forwarding.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: webhook, email)", cfg.Mode),
		}
	}

	validTLS := map[string]bool{"": true, "starttls": true, "tls": true, "none": true}
	if !validTLS[strings.ToLower(cfg.SMTP.TLS)] {
		return &ValidationError{
			Field:   "forwarding.smtp.tls",
			Message: fmt.Sprintf("invalid tls mode: %s (valid: starttls, tls, none)", cfg.SMTP.TLS),
		}
	}

	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "forwarding.workers",
			Message: "workers must be positive",
		}
	}

	return nil
}

func validateState(cfg StateConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case constants.BackendMemory:
	case constants.BackendRedis:
		if db.Redis.Host == "" {
			return &ValidationError{Field: "state.backend", Message: "redis backend requires database.redis.host"}
		}
	case constants.BackendPostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{Field: "state.backend", Message: "postgres backend requires database.postgres.host"}
		}
	case constants.BackendSQLite:
		if db.SQLite.Path == "" {
			return &ValidationError{Field: "state.backend", Message: "sqlite backend requires database.sqlite.path"}
		}
	default:
		return &ValidationError{
			Field:   "state.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, redis, postgres, sqlite)", cfg.Backend),
		}
	}
	return nil
}
