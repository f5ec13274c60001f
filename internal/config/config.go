package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Extraction     ExtractionConfig
	Sender         SenderConfig
	Deduplication  DeduplicationConfig
	Sources        SourcesConfig
	Forwarding     ForwardingConfig
	State          StateConfig
	Journal        JournalConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int             `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration   `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration   `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	SQLite        SQLiteConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BrokerConfig struct {
	Type   string       `mapstructure:"type"` // "kafka" or "memory"
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type KafkaConfig struct {
	Brokers           []string    `mapstructure:"brokers"`
	GroupID           string      `mapstructure:"group_id"`
	InputTopic        string      `mapstructure:"input_topic"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type MemoryConfig struct {
	BufferSize int         `mapstructure:"buffer_size"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ExtractionConfig is hot-reloadable.
type ExtractionConfig struct {
	MinLength    int      `mapstructure:"min_length"`
	MaxLength    int      `mapstructure:"max_length"`
	Keywords     []string `mapstructure:"keywords"`
	Regexes      []string `mapstructure:"regexes"`
	ReportMisses bool     `mapstructure:"report_misses"`
}

// SenderConfig is hot-reloadable.
type SenderConfig struct {
	Overrides []SenderOverride `mapstructure:"overrides"`
}

type SenderOverride struct {
	Match string `mapstructure:"match"`
	Token string `mapstructure:"token"`
}

type DeduplicationConfig struct {
	Backend            string        `mapstructure:"backend"` // "memory" or "redis"
	Window             time.Duration `mapstructure:"window"`
	Bucket             time.Duration `mapstructure:"bucket"`
	OnCacheError       string        `mapstructure:"on_cache_error"` // "allow" or "deny"
	SnapshotOnShutdown bool          `mapstructure:"snapshot_on_shutdown"`
}

type SourcesConfig struct {
	Broadcast     BroadcastConfig    `mapstructure:"broadcast"`
	Observer      ObserverConfig     `mapstructure:"observer"`
	Poll          PollConfig         `mapstructure:"poll"`
	Inbox         InboxConfig        `mapstructure:"inbox"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

type BroadcastConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HandoffTimeout time.Duration `mapstructure:"handoff_timeout"`
}

type ObserverConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

type PollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type InboxConfig struct {
	BatchSize   int  `mapstructure:"batch_size"`
	SkipBacklog bool `mapstructure:"skip_backlog"`
}

type NotificationConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	SelfApp     string        `mapstructure:"self_app"`
	SystemApps  []string      `mapstructure:"system_apps"`
	AllowedApps []string      `mapstructure:"allowed_apps"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	InstanceTTL time.Duration `mapstructure:"instance_ttl"`
	Rule        string        `mapstructure:"rule"`
}

// ForwardingConfig is hot-reloadable.
type ForwardingConfig struct {
	Mode    string        `mapstructure:"mode"` // "webhook" or "email"
	Webhook WebhookConfig `mapstructure:"webhook"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Device  string        `mapstructure:"device"`
	Workers int           `mapstructure:"workers"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

type SMTPConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Sender    string        `mapstructure:"sender"`
	Recipient string        `mapstructure:"recipient"`
	TLS       string        `mapstructure:"tls"` // "starttls", "tls" or "none"
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Complete reports whether every field needed to send mail is present.
func (c SMTPConfig) Complete() bool {
	return c.Host != "" && c.Port > 0 && c.Sender != "" && c.Recipient != ""
}

type StateConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "redis", "postgres" or "sqlite"
}

type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
