package source

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
)

type ScannerConfig struct {
	BatchSize   int
	SkipBacklog bool
}

// Scanner is the query-and-watermark loop shared by the observer and the poller.
type Scanner struct {
	inbox     Inbox
	watermark *Watermark
	intake    Intake
	cfg       ScannerConfig
	logger    logger.Logger

	// scanMu serializes whole scans so two firings never hand off the same id.
	scanMu sync.Mutex
}

func NewScanner(inbox Inbox, wm *Watermark, intake Intake, cfg ScannerConfig, log logger.Logger) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultScanBatchSize
	}
	return &Scanner{
		inbox:     inbox,
		watermark: wm,
		intake:    intake,
		cfg:       cfg,
		logger:    log,
	}
}

// Scan hands every stored message newer than the watermark to the intake in
// ascending id order and returns how many were handed off. The watermark
// advances after each hand-off, so a failure mid-batch re-delivers the rest.
func (s *Scanner) Scan(ctx context.Context, origin string) (int, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	n, err := s.scan(ctx, origin)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SourceScansTotal.WithLabelValues(origin, status).Inc()
	return n, err
}

func (s *Scanner) scan(ctx context.Context, origin string) (int, error) {
	if !s.watermark.Present() && s.cfg.SkipBacklog {
		maxID, err := s.inbox.MaxID(ctx)
		if err != nil {
			return 0, err
		}
		if _, err := s.watermark.Advance(ctx, maxID); err != nil {
			return 0, err
		}
		s.logger.InfowCtx(ctx, "Watermark baselined, backlog skipped", "watermark", maxID, "origin", origin)
		return 0, nil
	}

	msgs, err := s.inbox.Recent(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	mark := s.watermark.Value()
	fresh := msgs[:0]
	for _, m := range msgs {
		if m.ID > mark {
			fresh = append(fresh, m)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	handed := 0
	for _, m := range fresh {
		ev := models.RawMessageEvent{
			ID:              uuid.New().String(),
			Text:            m.Body,
			Sender:          m.Address,
			SourceTimestamp: m.ReceivedAt,
			Kind:            models.KindSMS,
			Origin:          origin,
			StoreID:         m.ID,
		}

		if err := s.intake(ctx, ev); err != nil && !apperrors.Is(err, apperrors.ErrMalformedEvent) {
			return handed, err
		}
		if _, err := s.watermark.Advance(ctx, m.ID); err != nil {
			return handed, err
		}
		handed++
	}

	if handed > 0 {
		s.logger.DebugwCtx(ctx, "Inbox scan handed off messages", "origin", origin, "count", handed, "watermark", s.watermark.Value())
	}
	return handed, nil
}
