package config_handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/broker"
	"otprelay/internal/config"
	"otprelay/internal/logger"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/models"
)

func newLive() *config.Live {
	return config.NewLive(&config.Config{
		Extraction: config.ExtractionConfig{MinLength: 4, MaxLength: 8},
		Forwarding: config.ForwardingConfig{
			Mode:    "webhook",
			Workers: 2,
			Webhook: config.WebhookConfig{URL: "http://old.example/hook", Timeout: time.Second},
		},
	})
}

func configEnvelope(section string, values map[string]interface{}) models.Envelope {
	return models.NewConfigEnvelope("cfg-1", models.ConfigUpdateEvent{
		EventType: models.EventTypeRelayConfigUpdated,
		Section:   section,
		Timestamp: time.Now(),
		ChangedBy: "test",
		Values:    values,
	})
}

func TestHandler_AppliesForwardingSection(t *testing.T) {
	live := newLive()
	h := NewHandler(live, logger.NopLogger())

	err := h.HandleConfigUpdateEvent(context.Background(), configEnvelope(models.SectionForwarding, map[string]interface{}{
		"webhook": map[string]interface{}{
			"url":     "http://new.example/hook",
			"timeout": "3s",
		},
	}))
	require.NoError(t, err)

	fwd := live.Forwarding()
	assert.Equal(t, "http://new.example/hook", fwd.Webhook.URL)
	assert.Equal(t, 3*time.Second, fwd.Webhook.Timeout)
	assert.Equal(t, "webhook", fwd.Mode)
	assert.Equal(t, 2, fwd.Workers)
}

func TestHandler_AppliesExtractionKeywords(t *testing.T) {
	live := newLive()
	h := NewHandler(live, logger.NopLogger())

	require.NoError(t, h.Apply(models.SectionExtraction, map[string]interface{}{
		"keywords":   "code,pin",
		"max_length": "6",
	}))

	ext := live.Extraction()
	assert.Equal(t, []string{"code", "pin"}, ext.Keywords)
	assert.Equal(t, 6, ext.MaxLength)
	assert.Equal(t, 4, ext.MinLength)
}

func TestHandler_RejectsInvalidUpdate(t *testing.T) {
	tests := []struct {
		name    string
		section string
		values  map[string]interface{}
	}{
		{name: "unknown section", section: "dedup", values: map[string]interface{}{"window": "1m"}},
		{name: "unknown key", section: models.SectionForwarding, values: map[string]interface{}{"colour": "red"}},
		{name: "bad regex", section: models.SectionExtraction, values: map[string]interface{}{"regexes": []string{"[a-"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := newLive()
			h := NewHandler(live, logger.NopLogger())

			err := h.HandleConfigUpdateEvent(context.Background(), configEnvelope(tt.section, tt.values))
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
			assert.Equal(t, "http://old.example/hook", live.Forwarding().Webhook.URL)
			assert.Empty(t, live.Extraction().Regexes)
		})
	}
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	live := newLive()
	h := NewHandler(live, logger.NopLogger())

	env := configEnvelope(models.SectionForwarding, map[string]interface{}{"mode": "email"})
	env.Config.EventType = "something_else"
	assert.NoError(t, h.HandleConfigUpdateEvent(context.Background(), env))

	assert.NoError(t, h.HandleConfigUpdateEvent(context.Background(), models.NewMessageEnvelope("m-1", models.RawMessageEvent{})))
	assert.Equal(t, "webhook", live.Forwarding().Mode)
}

func TestPublisher_RoundTripThroughBroker(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryConfig{BufferSize: 4}, logger.NopLogger())
	defer b.Close()

	live := newLive()
	h := NewHandler(live, logger.NopLogger())
	pub := NewPublisher(b, "relay_config")
	require.True(t, pub.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	applied := make(chan struct{}, 1)
	go func() {
		_ = b.Consume(ctx, "relay_config", func(ctx context.Context, msg models.Envelope) error {
			err := h.HandleConfigUpdateEvent(ctx, msg)
			applied <- struct{}{}
			return err
		})
	}()

	require.NoError(t, pub.PublishSectionUpdate(context.Background(), models.SectionForwarding, map[string]interface{}{"device": "pixel"}, "api"))

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for config event")
	}
	assert.Equal(t, "pixel", live.Forwarding().Device)
}

func TestPublisher_DisabledWithoutTopic(t *testing.T) {
	pub := NewPublisher(nil, "")
	assert.False(t, pub.Enabled())
	assert.NoError(t, pub.PublishSectionUpdate(context.Background(), models.SectionSender, nil, "api"))
}

func TestFileReloader_KeepsPreviousOnError(t *testing.T) {
	live := newLive()
	reload := FileReloader(live, logger.NopLogger())

	bad := &config.Config{Extraction: config.ExtractionConfig{MinLength: 4, MaxLength: 8, Regexes: []string{"[a-"}}}
	reload(bad, nil)
	assert.Empty(t, live.Extraction().Regexes)

	good := &config.Config{
		Extraction: config.ExtractionConfig{MinLength: 5, MaxLength: 8},
		Forwarding: config.ForwardingConfig{Mode: "webhook", Workers: 1},
	}
	reload(good, nil)
	assert.Equal(t, 5, live.Extraction().MinLength)
}
