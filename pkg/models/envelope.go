package models

import "time"

const (
	EnvelopeTypeRawMessage   = "raw_message"
	EnvelopeTypeConfigUpdate = "config_update"
)

// Envelope is the unit carried by the broker.
type Envelope struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	TraceID   string             `json:"trace_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Message   *RawMessageEvent   `json:"message,omitempty"`
	Config    *ConfigUpdateEvent `json:"config,omitempty"`
	DLQ       *DLQInfo           `json:"dlq,omitempty"`
}

// DLQInfo records why an envelope was dead-lettered.
type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewMessageEnvelope(id string, ev RawMessageEvent) Envelope {
	return Envelope{
		ID:        id,
		Type:      EnvelopeTypeRawMessage,
		CreatedAt: time.Now(),
		Message:   &ev,
	}
}

func NewConfigEnvelope(id string, ev ConfigUpdateEvent) Envelope {
	return Envelope{
		ID:        id,
		Type:      EnvelopeTypeConfigUpdate,
		CreatedAt: time.Now(),
		Config:    &ev,
	}
}
