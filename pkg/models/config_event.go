package models

import "time"

// ConfigUpdateEvent is published by the configuration writer when live
// relay settings change.
type ConfigUpdateEvent struct {
	EventType string                 `json:"event_type"`
	Section   string                 `json:"section"`
	Timestamp time.Time              `json:"timestamp"`
	ChangedBy string                 `json:"changed_by,omitempty"`
	Values    map[string]interface{} `json:"values,omitempty"`
}

const (
	EventTypeRelayConfigUpdated = "relay_config_updated"
)

const (
	SectionExtraction    = "extraction"
	SectionSender        = "sender"
	SectionForwarding    = "forwarding"
	SectionNotifications = "notifications"
)
