package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"otprelay/internal/constants"
)

// Config bounds and anchors OTP detection. It is treated as read-only.
type Config struct {
	MinLength int
	MaxLength int
	Keywords  []string
	Regexes   []string
}

var DefaultKeywords = []string{
	"otp", "code", "verification", "passcode", "password", "pin",
	"one time", "one-time", "security", "token", "auth", "2fa",
}

func DefaultConfig() Config {
	return Config{
		MinLength: constants.DefaultMinOTPLength,
		MaxLength: constants.DefaultMaxOTPLength,
		Keywords:  append([]string(nil), DefaultKeywords...),
	}
}

// normalized fills zero values from the defaults.
func (c Config) normalized() Config {
	if c.MinLength <= 0 {
		c.MinLength = constants.DefaultMinOTPLength
	}
	if c.MaxLength < c.MinLength {
		c.MaxLength = c.MinLength
		if c.MaxLength < constants.DefaultMaxOTPLength {
			c.MaxLength = constants.DefaultMaxOTPLength
		}
	}
	if len(c.Keywords) == 0 {
		c.Keywords = DefaultKeywords
	}
	return c
}

var builtinPatterns = []*regexp.Regexp{
	// "OTP is 123456", "verification code: 123456", "PIN - 1234", "code 123 456".
	// Grouped codes need equal-width groups so a trailing number is never joined on.
	regexp.MustCompile(`(?i)\b(?:otp|one[\s-]?time\s+(?:password|passcode|pin|code)|verification\s+code|security\s+code|auth(?:entication)?\s+code|passcode|code|pin|token)\b\s*(?:is|:|=|-)?\s*:?\s*(\d{3}[ -]\d{3}|\d{4}[ -]\d{4}|\d{3,12})\b`),
	// "123456 is your OTP", "123456 is the verification code"
	regexp.MustCompile(`(?i)\b(\d{3,12})\b\s+is\s+(?:your|the)\s+(?:[\w-]+\s+){0,3}?(?:otp|code|passcode|password|pin|token)\b`),
	// "Use 123456 to sign in"
	regexp.MustCompile(`(?i)\buse\s+(\d{3,12})\b`),
}

var (
	phoneContext   = regexp.MustCompile(`(?i)\b(?:call|contact|dial|helpline|phone|whatsapp)\b`)
	strongKeyword  = regexp.MustCompile(`(?i)\b(?:otp|one[\s-]time|passcode|verification\s+code|2fa)\b`)
	financeContext = regexp.MustCompile(`(?i)\b(?:amount|balance|bal|debited|credited|withdrawn|deposited|spent|inr|pkr|usd|eur|gbp|rs\.?)\b|[$€£₹]`)
	nonDigit       = regexp.MustCompile(`\D`)
)

// Extractor finds an OTP in free text. Compiled custom patterns are cached per expression.
type Extractor struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func New() *Extractor {
	return &Extractor{compiled: make(map[string]*regexp.Regexp)}
}

var defaultExtractor = New()

// Extract runs the package-level extractor.
func Extract(text string, cfg Config) (string, bool) {
	return defaultExtractor.Extract(text, cfg)
}

// Extract returns the first candidate that survives length, keyword and heuristic checks.
// Custom regexes are tried first, then the built-in anchored patterns, then a bare digit run.
func (e *Extractor) Extract(text string, cfg Config) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	cfg = cfg.normalized()
	lower := strings.ToLower(text)

	for _, expr := range cfg.Regexes {
		re := e.compile(expr)
		if re == nil {
			continue
		}
		if otp, ok := firstCandidate(re, text, lower, cfg, false); ok {
			return otp, true
		}
	}

	for _, re := range builtinPatterns {
		if otp, ok := firstCandidate(re, text, lower, cfg, false); ok {
			return otp, true
		}
	}

	return firstCandidate(fallbackPattern(cfg), text, lower, cfg, true)
}

func (e *Extractor) compile(expr string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.compiled[expr]
	e.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}

	e.mu.Lock()
	e.compiled[expr] = re
	e.mu.Unlock()
	return re
}

var (
	fallbackMu    sync.Mutex
	fallbackCache = map[[2]int]*regexp.Regexp{}
)

func fallbackPattern(cfg Config) *regexp.Regexp {
	key := [2]int{cfg.MinLength, cfg.MaxLength}

	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if re, ok := fallbackCache[key]; ok {
		return re
	}
	re := regexp.MustCompile(fmt.Sprintf(`\b\d{%d,%d}\b`, cfg.MinLength, cfg.MaxLength))
	fallbackCache[key] = re
	return re
}

func firstCandidate(re *regexp.Regexp, text, lower string, cfg Config, requireKeyword bool) (string, bool) {
	if requireKeyword && !hasKeyword(lower, cfg.Keywords) {
		return "", false
	}

	for _, m := range re.FindAllStringSubmatch(text, -1) {
		raw := m[0]
		if len(m) > 1 && m[1] != "" {
			raw = m[1]
		}
		candidate := nonDigit.ReplaceAllString(raw, "")
		if len(candidate) < cfg.MinLength || len(candidate) > cfg.MaxLength {
			continue
		}
		if rejectedByHeuristics(candidate, text, lower, cfg) {
			continue
		}
		return candidate, true
	}
	return "", false
}

// HasKeyword reports whether text contains any keyword, ignoring case. An
// empty keyword list falls back to DefaultKeywords.
func HasKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return hasKeyword(strings.ToLower(text), keywords)
}

func hasKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// rejectedByHeuristics drops digit runs that read as a phone number or a money amount.
func rejectedByHeuristics(candidate, text, lower string, cfg Config) bool {
	n := len(candidate)
	if n >= 10 && n <= 13 && phoneContext.MatchString(text) && !strongKeyword.MatchString(text) {
		return true
	}
	if financeContext.MatchString(text) && !hasKeyword(lower, cfg.Keywords) {
		return true
	}
	return false
}
