package api

import (
	"otprelay/internal/config"
)

const redacted = "********"

type overrideView struct {
	Match string `json:"match"`
	Token string `json:"token"`
}

func settingsView(s config.Settings) map[string]interface{} {
	overrides := make([]overrideView, 0, len(s.Sender.Overrides))
	for _, o := range s.Sender.Overrides {
		overrides = append(overrides, overrideView{Match: o.Match, Token: o.Token})
	}

	password := ""
	if s.Forwarding.SMTP.Password != "" {
		password = redacted
	}

	headers := make(map[string]string, len(s.Forwarding.Webhook.Headers))
	for k := range s.Forwarding.Webhook.Headers {
		headers[k] = redacted
	}

	return map[string]interface{}{
		"extraction": map[string]interface{}{
			"min_length":    s.Extraction.MinLength,
			"max_length":    s.Extraction.MaxLength,
			"keywords":      nonNil(s.Extraction.Keywords),
			"regexes":       nonNil(s.Extraction.Regexes),
			"report_misses": s.Extraction.ReportMisses,
		},
		"sender": map[string]interface{}{
			"overrides": overrides,
		},
		"forwarding": map[string]interface{}{
			"mode":    s.Forwarding.Mode,
			"device":  s.Forwarding.Device,
			"workers": s.Forwarding.Workers,
			"webhook": map[string]interface{}{
				"url":     s.Forwarding.Webhook.URL,
				"timeout": s.Forwarding.Webhook.Timeout.String(),
				"headers": headers,
			},
			"smtp": map[string]interface{}{
				"host":      s.Forwarding.SMTP.Host,
				"port":      s.Forwarding.SMTP.Port,
				"username":  s.Forwarding.SMTP.Username,
				"password":  password,
				"sender":    s.Forwarding.SMTP.Sender,
				"recipient": s.Forwarding.SMTP.Recipient,
				"tls":       s.Forwarding.SMTP.TLS,
				"timeout":   s.Forwarding.SMTP.Timeout.String(),
			},
		},
		"notifications": map[string]interface{}{
			"enabled":      s.Notifications.Enabled,
			"self_app":     s.Notifications.SelfApp,
			"system_apps":  nonNil(s.Notifications.SystemApps),
			"allowed_apps": nonNil(s.Notifications.AllowedApps),
			"max_age":      s.Notifications.MaxAge.String(),
			"instance_ttl": s.Notifications.InstanceTTL.String(),
			"rule":         s.Notifications.Rule,
		},
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
