package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"otprelay/internal/notify"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/models"
)

type fakeInbox struct {
	mu      sync.Mutex
	msgs    []StoredMessage
	nextID  int64
	denyErr bool
	queries int
}

func (f *fakeInbox) add(address, body string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.msgs = append(f.msgs, StoredMessage{ID: f.nextID, Address: address, Body: body, ReceivedAt: time.Now()})
	return f.nextID
}

func (f *fakeInbox) deny() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyErr = true
}

func (f *fakeInbox) Recent(_ context.Context, n int) ([]StoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.denyErr {
		return nil, apperrors.ErrPermissionDenied.WithDetail("operation", "query inbox")
	}
	out := append([]StoredMessage(nil), f.msgs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeInbox) MaxID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyErr {
		return 0, apperrors.ErrPermissionDenied
	}
	return f.nextID, nil
}

type recordingIntake struct {
	mu     sync.Mutex
	events []models.RawMessageEvent
	failOn map[int64]error
}

func (r *recordingIntake) intake(_ context.Context, ev models.RawMessageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[ev.StoreID]; ok {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingIntake) storeIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.events))
	for _, ev := range r.events {
		ids = append(ids, ev.StoreID)
	}
	return ids
}

func (r *recordingIntake) all() []models.RawMessageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RawMessageEvent(nil), r.events...)
}

type fakeFeed struct {
	ch     chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (f *fakeFeed) fire() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

func (f *fakeFeed) Changes() <-chan struct{} {
	return f.ch
}

func (f *fakeFeed) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type captureNotifier struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (c *captureNotifier) Show(_ context.Context, n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, n)
}

func (c *captureNotifier) all() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Notification(nil), c.shown...)
}
