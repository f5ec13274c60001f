package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_DefaultConfig(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "otp is", text: "Your OTP is 482913", want: "482913", wantOK: true},
		{name: "code colon", text: "Verification code: 7731. Do not share it.", want: "7731", wantOK: true},
		{name: "digits before keyword", text: "BankX: 551234 is your OTP, valid 5 min", want: "551234", wantOK: true},
		{name: "use pattern", text: "Use 90210 to sign in to Example", want: "90210", wantOK: true},
		{name: "spaced digits", text: "Your one-time password is 123 456", want: "123456", wantOK: true},
		{name: "fallback needs keyword", text: "Your login token expires soon: 884412", want: "884412", wantOK: true},
		{name: "balance without keyword", text: "Your balance is 482913 PKR", wantOK: false},
		{name: "phone number", text: "Call 03211234567 now", wantOK: false},
		{name: "plain digits no keyword", text: "See you at 1830 tomorrow", wantOK: false},
		{name: "too short", text: "Your OTP is 123", wantOK: false},
		{name: "empty", text: "   ", wantOK: false},
		{name: "trailing validity minutes", text: "Your OTP is 4821 5 min validity", want: "4821", wantOK: true},
		{name: "trailing minutes left", text: "Your verification code is 482913 10 min left", want: "482913", wantOK: true},
		{name: "trailing attempts", text: "OTP is 1234 2 attempts remaining", want: "1234", wantOK: true},
		{name: "dashed groups", text: "Your code is 482-913", want: "482913", wantOK: true},
		{name: "amount with otp keyword", text: "OTP for Rs. 500 payment is 662201", want: "662201", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text, DefaultConfig())
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_PhoneHeuristicWithWideBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 13

	_, ok := Extract("Call 03211234567 for your code", cfg)
	assert.False(t, ok)

	got, ok := Extract("Your OTP 03211234567, call us if this was not you", cfg)
	assert.True(t, ok)
	assert.Equal(t, "03211234567", got)
}

func TestExtract_CustomRegexFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Regexes = []string{`ref#(\d{6})`}

	got, ok := Extract("Code 1111 ref#424242", cfg)
	assert.True(t, ok)
	assert.Equal(t, "424242", got)
}

func TestExtract_InvalidCustomRegexSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Regexes = []string{`(unclosed`}

	got, ok := Extract("Your OTP is 482913", cfg)
	assert.True(t, ok)
	assert.Equal(t, "482913", got)
}

func TestExtract_CustomKeywords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keywords = []string{"clave"}

	got, ok := Extract("Tu clave: 5521 para entrar", cfg)
	assert.True(t, ok)
	assert.Equal(t, "5521", got)

	_, ok = Extract("Saldo 5521 disponible", cfg)
	assert.False(t, ok)
}

func TestExtract_LengthBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLength = 6
	cfg.MaxLength = 6

	_, ok := Extract("Your OTP is 4829", cfg)
	assert.False(t, ok)

	got, ok := Extract("Your OTP is 482913", cfg)
	assert.True(t, ok)
	assert.Equal(t, "482913", got)
}

func TestExtract_Deterministic(t *testing.T) {
	e := New()
	text := "BankX: 551234 is your OTP, valid 5 min"
	first, _ := e.Extract(text, DefaultConfig())
	for i := 0; i < 10; i++ {
		got, ok := e.Extract(text, DefaultConfig())
		assert.True(t, ok)
		assert.Equal(t, first, got)
	}
}
