package journal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"otprelay/internal/constants"
)

// Entry records one delivery attempt. The OTP is stored masked.
type Entry struct {
	ID         string    `bson:"_id" json:"id"`
	At         time.Time `bson:"at" json:"at"`
	MessageID  string    `bson:"message_id,omitempty" json:"message_id,omitempty"`
	OTPMasked  string    `bson:"otp_masked" json:"otp_masked"`
	SenderKey  string    `bson:"sender_key" json:"sender_key"`
	Origin     string    `bson:"origin" json:"origin"`
	Kind       string    `bson:"kind" json:"kind"`
	Transport  string    `bson:"transport" json:"transport"`
	Success    bool      `bson:"success" json:"success"`
	Diagnostic string    `bson:"diagnostic,omitempty" json:"diagnostic,omitempty"`
}

type Query struct {
	Limit      int
	SenderKey  string
	FailedOnly bool
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
}

// MaskOTP keeps the last two digits: "551234" becomes "****34".
func MaskOTP(otp string) string {
	if len(otp) <= 2 {
		return strings.Repeat("*", len(otp))
	}
	return strings.Repeat("*", len(otp)-2) + otp[len(otp)-2:]
}

func normalizeQuery(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = constants.DefaultJournalLimit
	}
	if q.Limit > constants.MaxJournalLimit {
		q.Limit = constants.MaxJournalLimit
	}
	return q
}

func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

func (q Query) matches(e Entry) bool {
	if q.SenderKey != "" && e.SenderKey != q.SenderKey {
		return false
	}
	if q.FailedOnly && e.Success {
		return false
	}
	return true
}

// MemoryJournal keeps the last MaxJournalLimit entries in process.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) error {
	e = prepare(e)

	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == constants.MaxJournalLimit {
		j.entries = append(j.entries[:0], j.entries[1:]...)
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, q Query) ([]Entry, error) {
	q = normalizeQuery(q)

	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0, q.Limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < q.Limit; i-- {
		if q.matches(j.entries[i]) {
			out = append(out, j.entries[i])
		}
	}
	return out, nil
}
