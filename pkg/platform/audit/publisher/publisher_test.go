package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "nftregistry/pkg/platform/audit"
	"nftregistry/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "nft:0",
		Action:  string(audit.EventNFTCreated),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "nft:0")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventNFTCreated), events[0].Action)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: "nft:3",
			Action:  string(audit.EventNFTLocked),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySubject(context.Background(), "nft:3")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Subject: "nft:0"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Subject: "nft:1",
				Action:  string(audit.EventNFTCreated),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrBufferFull)
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.ListBySubject(context.Background(), "nft:1")
	require.NoError(t, err)
	assert.Len(t, events, accepted)
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stamps missing timestamp from the clock", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore(), WithClock(func() time.Time { return fixed }))
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "series:a"}))

		events, err := pub.List(context.Background(), "series:a")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		custom := fixed.Add(-time.Hour)
		pub := NewPublisher(memory.NewInMemoryStore(), WithClock(func() time.Time { return fixed }))
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "series:a", Timestamp: custom}))

		events, err := pub.List(context.Background(), "series:a")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
	})
}

func TestPublisher_ContextCancellation(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{Subject: "nft:0"})
	assert.ErrorIs(t, err, context.Canceled)
}

type appendOnly struct{}

func (appendOnly) Append(context.Context, audit.Event) error { return nil }

func TestPublisher_ListUnsupported(t *testing.T) {
	pub := NewPublisher(appendOnly{})
	_, err := pub.List(context.Background(), "nft:0")
	assert.ErrorIs(t, err, ErrNotListable)
}

func TestPublisher_SeparatesSubjects(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "nft:0", Action: string(audit.EventNFTCreated)}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "series:s", Action: string(audit.EventSeriesCreated)}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "nft:0", Action: string(audit.EventNFTOwnerChanged)}))

	nftEvents, err := pub.List(context.Background(), "nft:0")
	require.NoError(t, err)
	require.Len(t, nftEvents, 2)
	assert.Equal(t, string(audit.EventNFTOwnerChanged), nftEvents[1].Action)

	seriesEvents, err := pub.List(context.Background(), "series:s")
	require.NoError(t, err)
	require.Len(t, seriesEvents, 1)
}
