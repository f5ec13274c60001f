package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateRuleExpression_Table(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid simple expression",
			expr:      `app == "com.example.sms"`,
			wantError: false,
		},
		{
			name:      "valid contains",
			expr:      `text.contains("OTP")`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "non-bool result",
			expr:      `title + text`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload.status == "active"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateRuleExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRuleExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	assert.NoError(t, eval.ValidateRuleExpression(`title.startsWith("Bank")`))
	assert.Error(t, eval.ValidateRuleExpression(`text.size()`))
}

func TestRuleExpressionExamples_Compile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range RuleExpressionExamples {
		t.Run(name, func(t *testing.T) {
			_, err := eval.CompileRule(expr)
			assert.NoError(t, err)
		})
	}
}

func TestRule_Matches(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rule, err := eval.CompileRule(`app.startsWith("com.") && (title.contains("Bank") || text.contains("code"))`)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input NotificationInput
		want  bool
	}{
		{
			name:  "bank title",
			input: NotificationInput{App: "com.example.sms", Title: "BankX", Text: "551234 is your OTP", PostedAt: time.Now()},
			want:  true,
		},
		{
			name:  "code in text",
			input: NotificationInput{App: "com.example.chat", Title: "Alice", Text: "your code 1234", PostedAt: time.Now()},
			want:  true,
		},
		{
			name:  "wrong app prefix",
			input: NotificationInput{App: "org.example", Title: "BankX", Text: "code", PostedAt: time.Now()},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rule.Matches(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_Timestamp(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rule, err := eval.CompileRule(`posted_at > timestamp("2020-01-01T00:00:00Z")`)
	require.NoError(t, err)

	ok, err := rule.Matches(context.Background(), NotificationInput{PostedAt: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rule.Matches(context.Background(), NotificationInput{PostedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `posted_at > timestamp("2020-01-01T00:00:00Z")`, rule.Expression())
}
