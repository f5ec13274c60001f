package deduplication

import (
	"fmt"
	"time"
)

type Config struct {
	Window       time.Duration
	Bucket       time.Duration
	OnCacheError string
}

// Entry is one claimed relay slot.
type Entry struct {
	Key        string    `json:"key"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Clock is injected so tests can move time.
type Clock func() time.Time

// Key composes the slot key for an OTP from a sender, bucketed by at.
func Key(otp, sender string, at time.Time, bucket time.Duration) string {
	return fmt.Sprintf("%s_%s_%d", otp, sender, bucketIndex(at, bucket))
}

func bucketIndex(at time.Time, bucket time.Duration) int64 {
	sec := int64(bucket / time.Second)
	if sec <= 0 {
		sec = 1
	}
	return at.Unix() / sec
}
