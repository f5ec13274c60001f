package source

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
	"otprelay/internal/state"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/models"
)

func TestWatermark_MonotonicAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	wm := NewWatermark(store)

	assert.False(t, wm.Present())

	moved, err := wm.Advance(ctx, 10)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = wm.Advance(ctx, 7)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, int64(10), wm.Value())

	raw, found, err := store.Get(ctx, constants.StateKeyWatermark)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "10", raw)

	reloaded := NewWatermark(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Present())
	assert.Equal(t, int64(10), reloaded.Value())
}

func TestWatermark_LoadRejectsGarbage(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), constants.StateKeyWatermark, "abc"))
	assert.Error(t, NewWatermark(store).Load(context.Background()))
}

func TestScanner_AscendingOrderAndWatermark(t *testing.T) {
	ctx := context.Background()
	inbox := &fakeInbox{}
	for i := 0; i < 3; i++ {
		inbox.add("BANKX", "Your OTP is 55123"+string(rune('0'+i)))
	}
	rec := &recordingIntake{}
	wm := NewWatermark(state.NewMemoryStore())
	s := NewScanner(inbox, wm, rec.intake, ScannerConfig{BatchSize: 10}, logger.NopLogger())

	n, err := s.Scan(ctx, models.OriginObserver)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, rec.storeIDs())
	assert.Equal(t, int64(3), wm.Value())

	ev := rec.all()[0]
	assert.Equal(t, models.KindSMS, ev.Kind)
	assert.Equal(t, models.OriginObserver, ev.Origin)
	assert.Equal(t, "BANKX", ev.Sender)

	n, err = s.Scan(ctx, models.OriginPoll)
	require.NoError(t, err)
	assert.Zero(t, n)

	inbox.add("BANKX", "Your OTP is 998877")
	n, err = s.Scan(ctx, models.OriginPoll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1, 2, 3, 4}, rec.storeIDs())
}

func TestScanner_FailureStopsBeforeWatermark(t *testing.T) {
	ctx := context.Background()
	inbox := &fakeInbox{}
	inbox.add("a", "code 1111")
	inbox.add("b", "code 2222")
	inbox.add("c", "code 3333")

	rec := &recordingIntake{failOn: map[int64]error{2: errors.New("queue full")}}
	wm := NewWatermark(state.NewMemoryStore())
	s := NewScanner(inbox, wm, rec.intake, ScannerConfig{}, logger.NopLogger())

	n, err := s.Scan(ctx, models.OriginObserver)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), wm.Value(), "watermark stops at the last successful hand-off")

	delete(rec.failOn, 2)
	_, err = s.Scan(ctx, models.OriginPoll)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, rec.storeIDs())
}

func TestScanner_MalformedIsSkipped(t *testing.T) {
	inbox := &fakeInbox{}
	inbox.add("", "")
	inbox.add("b", "code 2222")

	rec := &recordingIntake{failOn: map[int64]error{1: apperrors.ErrMalformedEvent.WithDetail("field", "text")}}
	wm := NewWatermark(state.NewMemoryStore())
	s := NewScanner(inbox, wm, rec.intake, ScannerConfig{}, logger.NopLogger())

	n, err := s.Scan(context.Background(), models.OriginObserver)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), wm.Value())
	assert.Equal(t, []int64{2}, rec.storeIDs())
}

func TestScanner_SkipBacklogBaselines(t *testing.T) {
	ctx := context.Background()
	inbox := &fakeInbox{}
	inbox.add("old", "code 1111")
	inbox.add("old", "code 2222")

	rec := &recordingIntake{}
	wm := NewWatermark(state.NewMemoryStore())
	s := NewScanner(inbox, wm, rec.intake, ScannerConfig{SkipBacklog: true}, logger.NopLogger())

	n, err := s.Scan(ctx, models.OriginObserver)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(2), wm.Value())

	inbox.add("new", "code 3333")
	n, err = s.Scan(ctx, models.OriginObserver)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{3}, rec.storeIDs())
}

func TestScanner_ConcurrentFiringsNeverRepeatOrRegress(t *testing.T) {
	ctx := context.Background()
	inbox := &fakeInbox{}
	rec := &recordingIntake{}
	wm := NewWatermark(state.NewMemoryStore())
	s := NewScanner(inbox, wm, rec.intake, ScannerConfig{BatchSize: 50}, logger.NopLogger())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			inbox.add("BANKX", "code 123456")
		}
		close(stop)
	}()

	var regressions sync.Map
	for _, origin := range []string{models.OriginObserver, models.OriginPoll} {
		wg.Add(1)
		go func(origin string) {
			defer wg.Done()
			last := int64(0)
			for {
				_, err := s.Scan(ctx, origin)
				assert.NoError(t, err)
				v := wm.Value()
				if v < last {
					regressions.Store(origin, v)
				}
				last = v
				select {
				case <-stop:
					return
				default:
				}
			}
		}(origin)
	}
	wg.Wait()

	_, err := s.Scan(ctx, models.OriginPoll)
	require.NoError(t, err)

	ids := rec.storeIDs()
	seen := make(map[int64]bool, len(ids))
	for i, id := range ids {
		assert.False(t, seen[id], "store id %d handed off twice", id)
		seen[id] = true
		if i > 0 {
			assert.Greater(t, id, ids[i-1])
		}
	}
	assert.Equal(t, int64(200), wm.Value())
	regressions.Range(func(k, v any) bool {
		t.Errorf("watermark regressed for %v to %v", k, v)
		return true
	})
}
