package source

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"otprelay/internal/constants"
	"otprelay/pkg/metrics"
)

// KV is the slice of the state store the watermark needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Watermark is the highest message store id handed to the pipeline. It never
// moves backwards and every advance is persisted before it becomes visible.
type Watermark struct {
	mu      sync.Mutex
	store   KV
	value   int64
	present bool
}

func NewWatermark(store KV) *Watermark {
	return &Watermark{store: store}
}

// Load reads the persisted value. A missing key leaves the watermark unset.
func (w *Watermark) Load(ctx context.Context) error {
	raw, found, err := w.store.Get(ctx, constants.StateKeyWatermark)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !found {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse watermark %q: %w", raw, err)
	}
	if !w.present || v > w.value {
		w.value = v
	}
	w.present = true
	metrics.SetWatermark(w.value)
	return nil
}

func (w *Watermark) Value() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Present reports whether a watermark was ever loaded or advanced.
func (w *Watermark) Present() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.present
}

// Advance moves the watermark to id when id is greater than the current value.
// It returns false without touching the store otherwise.
func (w *Watermark) Advance(ctx context.Context, id int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.present && id <= w.value {
		return false, nil
	}
	if err := w.store.Set(ctx, constants.StateKeyWatermark, strconv.FormatInt(id, 10)); err != nil {
		return false, fmt.Errorf("persist watermark: %w", err)
	}
	w.value = id
	w.present = true
	metrics.SetWatermark(id)
	return true, nil
}
