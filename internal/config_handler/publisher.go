package config_handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"otprelay/internal/broker"
	"otprelay/pkg/models"
	"otprelay/pkg/tracing"
)

// Publisher emits config update events for other relay instances.
type Publisher struct {
	producer broker.Producer
	topic    string
}

func NewPublisher(producer broker.Producer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
	}
}

// Enabled reports whether updates go through the broker.
func (p *Publisher) Enabled() bool {
	return p != nil && p.producer != nil && p.topic != ""
}

func (p *Publisher) PublishSectionUpdate(ctx context.Context, section string, values map[string]interface{}, changedBy string) error {
	if !p.Enabled() {
		return nil
	}

	event := models.ConfigUpdateEvent{
		EventType: models.EventTypeRelayConfigUpdated,
		Section:   section,
		Timestamp: time.Now(),
		ChangedBy: changedBy,
		Values:    values,
	}
	envelope := models.NewConfigEnvelope(uuid.New().String(), event)
	envelope.TraceID = tracing.TraceID(ctx)

	return p.producer.Publish(ctx, p.topic, envelope)
}
