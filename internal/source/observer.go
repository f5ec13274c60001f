package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"otprelay/internal/logger"
	"otprelay/internal/notify"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

// ChangeFeed signals that the message store changed. Signals carry no row identity.
type ChangeFeed interface {
	Changes() <-chan struct{}
	Close() error
}

// PQChangeFeed listens on a PostgreSQL NOTIFY channel. Reconnects are
// reported as changes since notifications may have been missed meanwhile.
type PQChangeFeed struct {
	listener  *pq.Listener
	out       chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

const pqPingInterval = 90 * time.Second

func NewPQChangeFeed(connStr, channel string, log logger.Logger) (*PQChangeFeed, error) {
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnw("Inbox listener event", "event", int(ev), "error", err)
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	f := &PQChangeFeed{
		listener: listener,
		out:      make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go f.run()
	return f, nil
}

func (f *PQChangeFeed) run() {
	ticker := time.NewTicker(pqPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case _, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			f.signal()
		case <-ticker.C:
			go func() { _ = f.listener.Ping() }()
		}
	}
}

// signal coalesces bursts: one pending signal covers any number of changes.
func (f *PQChangeFeed) signal() {
	select {
	case f.out <- struct{}{}:
	default:
	}
}

func (f *PQChangeFeed) Changes() <-chan struct{} {
	return f.out
}

// Close is safe to call more than once.
func (f *PQChangeFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.closeErr = f.listener.Close()
	})
	return f.closeErr
}

// Observer rescans the inbox every time the change feed fires.
type Observer struct {
	feed     ChangeFeed
	scanner  *Scanner
	notifier notify.Notifier
	logger   logger.Logger
}

func NewObserver(feed ChangeFeed, scanner *Scanner, n notify.Notifier, log logger.Logger) *Observer {
	return &Observer{
		feed:     feed,
		scanner:  scanner,
		notifier: n,
		logger:   log,
	}
}

// Run blocks until ctx is done or the observer disables itself after a permission loss.
func (o *Observer) Run(ctx context.Context) error {
	defer o.feed.Close()

	metrics.SetSourceEnabled(NameObserver, true)
	o.logger.InfowCtx(ctx, "Inbox observer started")

	if !o.scanOnce(ctx) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.InfowCtx(ctx, "Inbox observer stopped")
			return nil
		case <-o.feed.Changes():
			if !o.scanOnce(ctx) {
				return nil
			}
		}
	}
}

func (o *Observer) scanOnce(ctx context.Context) bool {
	_, err := o.scanner.Scan(ctx, models.OriginObserver)
	switch {
	case err == nil:
		return true
	case apperrors.Is(err, apperrors.ErrPermissionDenied):
		o.logger.ErrorwCtx(ctx, "Inbox observer disabled after permission loss", "error", err)
		markDisabled(ctx, o.notifier, NameObserver, err)
		return false
	case ctx.Err() != nil:
		return true
	default:
		o.logger.WarnwCtx(ctx, "Inbox scan failed", "origin", models.OriginObserver, "error", err)
		return true
	}
}
