package models

import (
	"strings"
	"time"
)

// Kind is the class of channel a raw event arrived on.
type Kind string

const (
	KindSMS          Kind = "SMS"
	KindNotification Kind = "NOTIFICATION"
	KindTest         Kind = "TEST"
)

// Origin names the detection path that produced an event.
const (
	OriginBroadcast    = "broadcast"
	OriginObserver     = "observer"
	OriginPoll         = "poll"
	OriginNotification = "notification"
	OriginAPI          = "api"
)

// RawMessageEvent is a single detection of a message by one source. It is
// consumed immediately by the pipeline; only its derivatives are persisted.
type RawMessageEvent struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Sender          string    `json:"sender"`
	SourceTimestamp time.Time `json:"source_timestamp"`
	Kind            Kind      `json:"kind"`
	Origin          string    `json:"origin"`
	StoreID         int64     `json:"store_id,omitempty"`
}

func (k Kind) Valid() bool {
	switch k {
	case KindSMS, KindNotification, KindTest:
		return true
	}
	return false
}

// Validate returns the name of the first missing or invalid field, or "".
func (e RawMessageEvent) Validate() string {
	switch {
	case strings.TrimSpace(e.Text) == "":
		return "text"
	case strings.TrimSpace(e.Sender) == "":
		return "sender"
	case !e.Kind.Valid():
		return "kind"
	}
	return ""
}
