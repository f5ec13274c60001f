// Package source adapts each detection path into RawMessageEvents handed to one Intake.
package source

import (
	"context"

	"otprelay/internal/notify"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

// Intake receives every event produced by a source. A nil error means the
// event was handed off; malformed events are dropped by the intake itself.
type Intake func(ctx context.Context, ev models.RawMessageEvent) error

const (
	NameBroadcast    = "broadcast"
	NameObserver     = "observer"
	NamePoll         = "poll"
	NameNotification = "notification"
)

func disabledNotice(source string, err error) notify.Notification {
	return notify.Notification{
		Title:      "Message source " + source + " disabled",
		Body:       "Reading the message store failed with a permission error: " + err.Error(),
		Channel:    notify.ChannelSources,
		Priority:   notify.PriorityHigh,
		Persistent: true,
	}
}

func markDisabled(ctx context.Context, n notify.Notifier, source string, err error) {
	metrics.SetSourceEnabled(source, false)
	n.Show(ctx, disabledNotice(source, err))
}
