package source

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

// Poller runs the shared scanner on a fixed interval as a backstop for a
// silent observer.
type Poller struct {
	scanner  *Scanner
	interval time.Duration
	notifier notify.Notifier
	logger   logger.Logger
}

func NewPoller(scanner *Scanner, interval time.Duration, n notify.Notifier, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = constants.DefaultPollInterval
	}
	return &Poller{
		scanner:  scanner,
		interval: interval,
		notifier: n,
		logger:   log,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	disabled := make(chan struct{})
	var once sync.Once

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		_, err := p.scanner.Scan(ctx, models.OriginPoll)
		switch {
		case err == nil, ctx.Err() != nil:
		case apperrors.Is(err, apperrors.ErrPermissionDenied):
			once.Do(func() {
				p.logger.ErrorwCtx(ctx, "Inbox poller disabled after permission loss", "error", err)
				markDisabled(ctx, p.notifier, NamePoll, err)
				close(disabled)
			})
		default:
			p.logger.WarnwCtx(ctx, "Inbox scan failed", "origin", models.OriginPoll, "error", err)
		}
	}))

	metrics.SetSourceEnabled(NamePoll, true)
	p.logger.InfowCtx(ctx, "Inbox poller started", "interval", p.interval.String())
	c.Start()

	select {
	case <-ctx.Done():
	case <-disabled:
	}
	<-c.Stop().Done()
	p.logger.InfowCtx(ctx, "Inbox poller stopped")
	return nil
}
