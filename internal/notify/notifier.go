package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
)

type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
)

const (
	ChannelDelivery   = "delivery"
	ChannelExtraction = "extraction"
	ChannelSources    = "sources"
)

// Notification is a user-visible diagnostic. Persistent notifications stay
// listed until cleared for their channel and title.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Channel    string    `json:"channel"`
	Priority   Priority  `json:"priority"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notifier interface {
	Show(ctx context.Context, n Notification)
}

// Recorder logs every notification and keeps the most recent ones for the API.
type Recorder struct {
	logger     logger.Logger
	limit      int
	mu         sync.RWMutex
	recent     []Notification
	persistent map[string]Notification
}

func NewRecorder(log logger.Logger, limit int) *Recorder {
	if limit <= 0 {
		limit = constants.DefaultRecentNotices
	}
	return &Recorder{
		logger:     log,
		limit:      limit,
		recent:     make([]Notification, 0, limit),
		persistent: make(map[string]Notification),
	}
}

func (r *Recorder) Show(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Priority == "" {
		n.Priority = PriorityDefault
	}

	fields := []interface{}{
		"channel", n.Channel,
		"title", n.Title,
		"body", n.Body,
		"priority", n.Priority,
		"persistent", n.Persistent,
	}
	switch n.Priority {
	case PriorityHigh:
		r.logger.WarnwCtx(ctx, "Diagnostic raised", fields...)
	case PriorityLow:
		r.logger.DebugwCtx(ctx, "Diagnostic raised", fields...)
	default:
		r.logger.InfowCtx(ctx, "Diagnostic raised", fields...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n.Persistent {
		r.persistent[persistentKey(n.Channel, n.Title)] = n
		return
	}

	if len(r.recent) == r.limit {
		copy(r.recent, r.recent[1:])
		r.recent = r.recent[:r.limit-1]
	}
	r.recent = append(r.recent, n)
}

// Recent returns persistent notifications first, then up to limit transient
// ones, newest first.
func (r *Recorder) Recent(limit int) []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	out := make([]Notification, 0, len(r.persistent)+limit)
	for _, n := range r.persistent {
		out = append(out, n)
	}
	sortNewestFirst(out)

	for i := len(r.recent) - 1; i >= 0 && limit > 0; i-- {
		out = append(out, r.recent[i])
		limit--
	}
	return out
}

// Clear drops a persistent notification, for example after a source recovers.
func (r *Recorder) Clear(channel, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.persistent, persistentKey(channel, title))
}

func persistentKey(channel, title string) string {
	return channel + "\x00" + title
}

func sortNewestFirst(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
}

type nopNotifier struct{}

func (nopNotifier) Show(context.Context, Notification) {}

func Nop() Notifier {
	return nopNotifier{}
}
