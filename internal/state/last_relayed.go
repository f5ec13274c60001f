package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"otprelay/internal/constants"
)

// LastRelayedOtp is the UI surface value. It only changes after a confirmed delivery.
type LastRelayedOtp struct {
	OTP       string    `json:"otp"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// LastRelayed caches the surface value in memory and writes it through to the store.
type LastRelayed struct {
	store  Store
	mu     sync.RWMutex
	value  LastRelayedOtp
	loaded bool
}

func NewLastRelayed(store Store) *LastRelayed {
	return &LastRelayed{store: store}
}

func (l *LastRelayed) Get(ctx context.Context) (LastRelayedOtp, bool, error) {
	l.mu.RLock()
	if l.loaded {
		v := l.value
		l.mu.RUnlock()
		return v, v.OTP != "", nil
	}
	l.mu.RUnlock()

	raw, found, err := l.store.Get(ctx, constants.StateKeyLastRelayed)
	if err != nil {
		return LastRelayedOtp{}, false, err
	}

	var v LastRelayedOtp
	if found {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return LastRelayedOtp{}, false, fmt.Errorf("decode last relayed otp: %w", err)
		}
	}

	l.mu.Lock()
	if !l.loaded {
		l.value = v
		l.loaded = true
	}
	v = l.value
	l.mu.Unlock()
	return v, v.OTP != "", nil
}

func (l *LastRelayed) Set(ctx context.Context, v LastRelayedOtp) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode last relayed otp: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Set(ctx, constants.StateKeyLastRelayed, string(body)); err != nil {
		return err
	}
	l.value = v
	l.loaded = true
	return nil
}
