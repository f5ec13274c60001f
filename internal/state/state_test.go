package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/config"
	"otprelay/internal/constants"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, constants.StateKeyWatermark, "41"))
	require.NoError(t, s.Set(ctx, constants.StateKeyWatermark, "42"))

	v, found, err := s.Get(ctx, constants.StateKeyWatermark)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", v)

	require.NoError(t, s.Delete(ctx, constants.StateKeyWatermark))
	_, found, err = s.Get(ctx, constants.StateKeyWatermark)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "relay.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, constants.StateKeyWatermark, "17"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, found, err := s.Get(ctx, constants.StateKeyWatermark)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "17", v)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, "", Deps{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(ctx, constants.BackendRedis, Deps{})
	assert.Error(t, err)

	_, err = New(ctx, constants.BackendPostgres, Deps{})
	assert.Error(t, err)

	_, err = New(ctx, "etcd", Deps{})
	assert.Error(t, err)

	s, err = New(ctx, constants.BackendSQLite, Deps{SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "s.db")}})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestLastRelayed_RoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	lr := NewLastRelayed(store)
	_, found, err := lr.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, lr.Set(ctx, LastRelayedOtp{OTP: "551234", Sender: "bankx", Timestamp: at}))

	fresh := NewLastRelayed(store)
	v, found, err := fresh.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "551234", v.OTP)
	assert.Equal(t, "bankx", v.Sender)
	assert.True(t, at.Equal(v.Timestamp))
}

func TestLastRelayed_CorruptValue(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), constants.StateKeyLastRelayed, "{not json"))

	_, _, err := NewLastRelayed(store).Get(context.Background())
	assert.Error(t, err)
}

func TestLastRelayed_ConcurrentSet(t *testing.T) {
	ctx := context.Background()
	lr := NewLastRelayed(NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lr.Set(ctx, LastRelayedOtp{OTP: "123456", Sender: "bankx", Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	v, found, err := lr.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "123456", v.OTP)
}
