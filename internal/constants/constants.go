package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	DefaultSMTPTimeout = 15 * time.Second
)

const (
	CacheKeyPrefixDedup = "otprelay:dedup:"
	StateKeyPrefix      = "otprelay:state:"
)

const (
	DefaultInboundTopic = "inbound_sms"
	DefaultInboxChannel = "sms_inbox_changed"
)

const (
	DefaultMongoDBName      = "otprelay"
	JournalCollectionName   = "relay_journal"
	DefaultJournalLimit     = 50
	MaxJournalLimit         = 500
	DefaultDiagnosticsLimit = 100
	DefaultJournalTTL       = 30 * 24 * time.Hour
)

const (
	ShutdownTimeout        = 5 * time.Second
	BroadcastHandoffBudget = 5 * time.Second
)

const (
	DefaultMinOTPLength    = 4
	DefaultMaxOTPLength    = 8
	MaxSenderKeyLength     = 50
	DefaultDedupWindow     = 5 * time.Minute
	DefaultDedupBucket     = 10 * time.Second
	DefaultPollInterval    = 30 * time.Second
	DefaultScanBatchSize   = 20
	DefaultNotificationAge = 2 * time.Minute
	DefaultInstanceTTL     = 60 * time.Second
	DefaultDispatchWorkers = 4
	DefaultRecentNotices   = 100
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	ForwardModeWebhook = "webhook"
	ForwardModeEmail   = "email"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendKafka    = "kafka"
)

const (
	EventOTPRelayed = "otp_relayed"
)

const (
	StateKeyWatermark     = "lastProcessedMessageId"
	StateKeyLastRelayed   = "lastRelayedOtp"
	StateKeyDedupSnapshot = "dedupSnapshot"
)
