package forwarding

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Request is one claimed OTP ready for delivery.
type Request struct {
	Key       string
	MessageID string
	OTP       string
	Text      string
	Sender    string
	SenderKey string
	Kind      string
	Origin    string
	Timestamp time.Time
}

type ForwardResult struct {
	Success    bool   `json:"success"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type Device struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
}

// LocalDevice names the relay host. An empty name falls back to the hostname.
func LocalDevice(name string) Device {
	host, _ := os.Hostname()
	if name == "" {
		name = host
	}
	return Device{Name: name, Hostname: host}
}

type WebhookPayload struct {
	OTP       string    `json:"otp"`
	Message   string    `json:"message"`
	Sender    string    `json:"sender"`
	SenderKey string    `json:"sender_key"`
	Source    string    `json:"source"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RelayedAt time.Time `json:"relayed_at"`
	Device    Device    `json:"device"`
}

func BuildWebhookPayload(req Request, device Device, now time.Time) WebhookPayload {
	return WebhookPayload{
		OTP:       req.OTP,
		Message:   req.Text,
		Sender:    req.Sender,
		SenderKey: req.SenderKey,
		Source:    req.Kind,
		Origin:    req.Origin,
		Timestamp: req.Timestamp.UTC(),
		RelayedAt: now.UTC(),
		Device:    device,
	}
}

func BuildEmail(req Request, device Device) (subject, body string) {
	subject = fmt.Sprintf("OTP %s from %s", req.OTP, req.Sender)

	var b strings.Builder
	fmt.Fprintf(&b, "OTP: %s\n", req.OTP)
	fmt.Fprintf(&b, "Sender: %s\n", req.Sender)
	fmt.Fprintf(&b, "Received: %s\n", req.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Source: %s\n", req.Kind)
	fmt.Fprintf(&b, "Device: %s\n", device.Name)
	b.WriteString("\n")
	b.WriteString(req.Text)
	b.WriteString("\n")
	return subject, b.String()
}
