package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/deduplication"
	"otprelay/internal/extraction"
	"otprelay/internal/logger"
	"otprelay/pkg/cel"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

// Notification is one status-bar notification as posted by an application.
type Notification struct {
	App      string    `json:"app" binding:"required"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

// Filter reasons reported by Observe.
const (
	ReasonAccepted  = "accepted"
	ReasonSelf      = "self"
	ReasonSystem    = "system"
	ReasonStale     = "stale"
	ReasonNotSMS    = "not_sms"
	ReasonRule      = "rule"
	ReasonRuleError = "rule_error"
	ReasonRedeliver = "redelivered"
	ReasonDisabled  = "disabled"
)

var (
	digitRun   = regexp.MustCompile(`\b\d{4,8}\b`)
	smsContext = regexp.MustCompile(`(?i)\b(message|sms|text|bank|account|transaction)\b`)
	phoneTitle = regexp.MustCompile(`^\+?[\d\s\-()]{6,}$`)
)

// NotificationListener decides which notifications are OTP-bearing messages
// and forwards them to the intake.
type NotificationListener struct {
	live      *config.Live
	intake    Intake
	evaluator *cel.Evaluator
	instances *deduplication.MemoryCache
	hasher    *deduplication.Hasher
	clock     deduplication.Clock
	logger    logger.Logger

	ruleMu sync.Mutex
	rule   *cel.Rule
}

func NewNotificationListener(live *config.Live, intake Intake, evaluator *cel.Evaluator, clock deduplication.Clock, log logger.Logger) *NotificationListener {
	if clock == nil {
		clock = time.Now
	}
	ttl := live.Notifications().InstanceTTL
	if ttl <= 0 {
		ttl = constants.DefaultInstanceTTL
	}
	return &NotificationListener{
		live:      live,
		intake:    intake,
		evaluator: evaluator,
		instances: deduplication.NewMemoryCache(ttl, clock),
		hasher:    deduplication.NewHasher(),
		clock:     clock,
		logger:    log,
	}
}

// Observe runs the acceptance filters and hands accepted notifications to the
// intake. The returned reason says which filter decided.
func (l *NotificationListener) Observe(ctx context.Context, n Notification) (string, error) {
	reason, err := l.observe(ctx, n)
	if reason != ReasonAccepted {
		metrics.NotificationsFilteredTotal.WithLabelValues(reason).Inc()
	}
	return reason, err
}

func (l *NotificationListener) observe(ctx context.Context, n Notification) (string, error) {
	cfg := l.live.Notifications()
	if !cfg.Enabled {
		return ReasonDisabled, nil
	}

	app := strings.ToLower(strings.TrimSpace(n.App))
	if app == "" || app == strings.ToLower(cfg.SelfApp) {
		return ReasonSelf, nil
	}
	if containsFold(cfg.SystemApps, app) {
		return ReasonSystem, nil
	}

	key := l.instanceKey(app, n)
	now := l.clock()
	if n.PostedAt.IsZero() {
		n.PostedAt = now
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = constants.DefaultNotificationAge
	}
	if now.Sub(n.PostedAt) > maxAge {
		return ReasonStale, nil
	}

	combined := strings.TrimSpace(n.Title + " " + n.Text)
	if !containsFold(cfg.AllowedApps, app) && !LooksLikeOTPMessage(n.Title, combined, l.live.Extraction().Keywords) {
		return ReasonNotSMS, nil
	}

	if expr := strings.TrimSpace(cfg.Rule); expr != "" {
		ok, err := l.matchRule(ctx, expr, n)
		if err != nil {
			l.logger.WarnwCtx(ctx, "Notification rule evaluation failed", "error", err, "app", app)
			return ReasonRuleError, nil
		}
		if !ok {
			return ReasonRule, nil
		}
	}

	fresh, err := l.instances.Claim(ctx, key, now)
	if err != nil {
		return "", err
	}
	if !fresh {
		return ReasonRedeliver, nil
	}

	ev := models.RawMessageEvent{
		ID:              uuid.New().String(),
		Text:            combined,
		Sender:          senderOf(n),
		SourceTimestamp: n.PostedAt,
		Kind:            models.KindNotification,
		Origin:          models.OriginNotification,
	}
	if err := l.intake(ctx, ev); err != nil {
		// Let a redelivery of the same instance try again.
		_ = l.instances.Remove(ctx, key)
		return "", err
	}
	return ReasonAccepted, nil
}

func (l *NotificationListener) matchRule(ctx context.Context, expr string, n Notification) (bool, error) {
	l.ruleMu.Lock()
	rule := l.rule
	if rule == nil || rule.Expression() != expr {
		compiled, err := l.evaluator.CompileRule(expr)
		if err != nil {
			l.ruleMu.Unlock()
			return false, err
		}
		l.rule = compiled
		rule = compiled
	}
	l.ruleMu.Unlock()

	return rule.Matches(ctx, cel.NotificationInput{
		App:      n.App,
		Title:    n.Title,
		Text:     n.Text,
		PostedAt: n.PostedAt,
	})
}

// senderOf prefers the title, which messaging apps set to the conversation name.
// instanceKey fingerprints one posting. Without a caller-supplied timestamp
// only the content identifies the instance.
func (l *NotificationListener) instanceKey(app string, n Notification) string {
	if n.PostedAt.IsZero() {
		return l.hasher.ComputeHash(app, n.Title, n.Text)
	}
	return l.hasher.ComputeHash(app, n.Title, n.Text, strconv.FormatInt(n.PostedAt.UnixMilli(), 10))
}

func senderOf(n Notification) string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	return n.App
}

// LooksLikeOTPMessage requires a 4 to 8 digit run together with an OTP
// keyword. Without a keyword, a phone-number title plus SMS context words
// such as "bank" or "message" is accepted instead.
func LooksLikeOTPMessage(title, text string, keywords []string) bool {
	if !digitRun.MatchString(text) {
		return false
	}
	if extraction.HasKeyword(text, keywords) {
		return true
	}
	return phoneTitle.MatchString(strings.TrimSpace(title)) && smsContext.MatchString(text)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
