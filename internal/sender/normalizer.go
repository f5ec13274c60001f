package sender

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"otprelay/internal/constants"
)

const unknownSender = "unknown"

// Override maps any sender containing Match to a fixed Token. Numeric matches are
// also compared against the digits-only form of the sender.
type Override struct {
	Match string
	Token string
}

var BuiltinOverrides = []Override{
	{Match: "google", Token: "google"},
	{Match: "22000", Token: "google"},
	{Match: "whatsapp", Token: "whatsapp"},
	{Match: "microsoft", Token: "microsoft"},
	{Match: "amazon", Token: "amazon"},
	{Match: "paypal", Token: "paypal"},
	{Match: "apple", Token: "apple"},
}

var phoneShaped = regexp.MustCompile(`\+?\(?\d[\d\s\-().]{5,}\d`)

// Normalizer maps raw sender identifiers to canonical keys. Configured overrides
// are consulted before the built-in table.
type Normalizer struct {
	mu        sync.RWMutex
	overrides []Override
}

func New(overrides []Override) *Normalizer {
	n := &Normalizer{}
	n.SetOverrides(overrides)
	return n
}

func (n *Normalizer) SetOverrides(overrides []Override) {
	table := make([]Override, 0, len(overrides)+len(BuiltinOverrides))
	for _, o := range overrides {
		match := strings.ToLower(strings.TrimSpace(o.Match))
		token := strings.ToLower(strings.TrimSpace(o.Token))
		if match == "" || token == "" {
			continue
		}
		table = append(table, Override{Match: match, Token: token})
	}
	table = append(table, BuiltinOverrides...)

	n.mu.Lock()
	n.overrides = table
	n.mu.Unlock()
}

var defaultNormalizer = New(nil)

// Normalize uses the built-in override table only.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

func (n *Normalizer) Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return unknownSender
	}
	digits := digitsOnly(s)

	n.mu.RLock()
	overrides := n.overrides
	n.mu.RUnlock()

	for _, o := range overrides {
		if strings.Contains(s, o.Match) {
			return o.Token
		}
		if isNumeric(o.Match) && digits != "" && strings.Contains(digits, o.Match) {
			return o.Token
		}
	}

	for _, m := range phoneShaped.FindAllString(s, -1) {
		if d := digitsOnly(m); len(d) >= 7 {
			return d
		}
	}

	var b strings.Builder
	count := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count == constants.MaxSenderKeyLength {
			break
		}
	}
	if b.Len() == 0 {
		return unknownSender
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
