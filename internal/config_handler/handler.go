package config_handler

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"otprelay/internal/config"
	"otprelay/internal/logger"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

// Handler applies relay_config_updated events to the live settings.
type Handler struct {
	live   *config.Live
	logger logger.Logger
}

func NewHandler(live *config.Live, log logger.Logger) *Handler {
	return &Handler{
		live:   live,
		logger: log,
	}
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.Envelope) error {
	if envelope.Config == nil {
		h.logger.WarnwCtx(ctx, "Config event missing payload", "id", envelope.ID, "type", envelope.Type)
		return nil
	}

	event := *envelope.Config
	if event.EventType != models.EventTypeRelayConfigUpdated {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"section", event.Section,
		"changed_by", event.ChangedBy,
	)

	err := h.Apply(event.Section, event.Values)
	metrics.IncConfigReload("event", err)
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to apply config update", "error", err, "section", event.Section)
		return err
	}

	h.logger.InfowCtx(ctx, "Config section updated", "section", event.Section)
	return nil
}

// Apply overlays values onto one live section. Keys use the YAML names;
// missing keys keep their current value.
func (h *Handler) Apply(section string, values map[string]interface{}) error {
	next := h.live.Get()

	var err error
	switch section {
	case models.SectionExtraction:
		err = decodeSection(values, &next.Extraction)
	case models.SectionSender:
		err = decodeSection(values, &next.Sender)
	case models.SectionForwarding:
		err = decodeSection(values, &next.Forwarding)
	case models.SectionNotifications:
		err = decodeSection(values, &next.Notifications)
	default:
		err = fmt.Errorf("unknown config section %q", section)
	}
	if err != nil {
		return apperrors.ErrValidation.WithCause(err)
	}

	if err := h.live.Set(next); err != nil {
		return apperrors.ErrValidation.WithCause(err)
	}
	return nil
}

func decodeSection(values map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(values); err != nil {
		return fmt.Errorf("failed to decode section: %w", err)
	}
	return nil
}

// FileReloader returns a config.Watch callback that swaps in the reloadable
// sections of a re-read config file.
func FileReloader(live *config.Live, log logger.Logger) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err == nil {
			err = live.Set(config.SettingsFrom(cfg))
		}
		metrics.IncConfigReload("file", err)
		if err != nil {
			log.Errorw("Config file reload rejected, keeping previous settings", "error", err)
			return
		}
		log.Infow("Config file reloaded")
	}
}
