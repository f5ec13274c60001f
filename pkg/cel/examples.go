package cel

// RuleExpressionExamples lists notification acceptance rules accepted by the listener.
var RuleExpressionExamples = map[string]string{
	"single_app":        `app == "com.google.android.apps.messaging"`,
	"app_in_list":       `app in ["com.google.android.apps.messaging", "com.samsung.android.messaging"]`,
	"title_prefix":      `title.startsWith("BankX")`,
	"text_contains":     `text.contains("OTP")`,
	"digit_run":         `text.matches("\\b[0-9]{4,8}\\b")`,
	"exclude_marketing": `!text.contains("offer") && !text.contains("sale")`,
	"recent_only":       `posted_at > timestamp("2020-01-01T00:00:00Z")`,
	"combined":          `app.startsWith("com.") && (title.contains("Bank") || text.contains("code"))`,
}
