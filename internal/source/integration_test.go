//go:build integration

package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/state"
	"otprelay/internal/testinfra"
)

func TestPostgresInbox_RecentAndMaxID(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := context.Background()
	inbox := NewPostgresInbox(infra.PostgresDB)

	maxID, err := inbox.MaxID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)

	var ids []int64
	for _, body := range []string{"first 1111", "second 2222", "third 3333"} {
		id, err := inbox.Insert(ctx, StoredMessage{Address: "BankX", Body: body})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recent, err := inbox.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)

	maxID, err = inbox.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], maxID)
}

func TestObserver_PicksUpInsertThroughChangeFeed(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbox := NewPostgresInbox(infra.PostgresDB)
	store := state.NewPostgresStore(infra.PostgresDB)
	wm := NewWatermark(store)
	require.NoError(t, wm.Load(ctx))

	intake := &recordingIntake{}
	scanner := NewScanner(inbox, wm, intake.intake, ScannerConfig{BatchSize: 10}, logger.NopLogger())

	feed, err := NewPQChangeFeed(infra.PostgresConn, constants.DefaultInboxChannel, logger.NopLogger())
	require.NoError(t, err)

	observer := NewObserver(feed, scanner, notify.Nop(), logger.NopLogger())
	done := make(chan error, 1)
	go func() { done <- observer.Run(ctx) }()

	id, err := inbox.Insert(ctx, StoredMessage{Address: "BankX", Body: "Your code is 551234"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(intake.storeIDs()) == 1 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, []int64{id}, intake.storeIDs())

	require.Eventually(t, func() bool { return wm.Value() == id }, 5*time.Second, 50*time.Millisecond)
	raw, found, err := store.Get(ctx, constants.StateKeyWatermark)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, raw)

	cancel()
	assert.NoError(t, <-done)
}
