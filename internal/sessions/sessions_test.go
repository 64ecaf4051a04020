package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	store := NewStore(0, nil, nil)
	rec := &Record{Token: "tok1", Identity: "alice", PoolKey: "pool1", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Put(rec))

	got, ok := store.Get("tok1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Identity)

	store.Delete(context.Background(), "tok1")
	_, ok = store.Get("tok1")
	assert.False(t, ok)
}

func TestExpiredTokenIsInvalid(t *testing.T) {
	store := NewStore(0, nil, nil)
	rec := &Record{Token: "tok1", ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, store.Put(rec))

	_, ok := store.Get("tok1")
	assert.False(t, ok)
}

func TestMaxConcurrentSessionsRejectsOverflow(t *testing.T) {
	store := NewStore(1, nil, nil)
	require.NoError(t, store.Put(&Record{Token: "a", ExpiresAt: time.Now().Add(time.Hour)}))
	err := store.Put(&Record{Token: "b", ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)
}

func TestSweepExpiredClosesPool(t *testing.T) {
	var mu sync.Mutex
	var closed []string
	closer := func(_ context.Context, poolKey string) {
		mu.Lock()
		defer mu.Unlock()
		closed = append(closed, poolKey)
	}

	store := NewStore(0, closer, nil)
	require.NoError(t, store.Put(&Record{Token: "stale", PoolKey: "pool-stale", ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, store.Put(&Record{Token: "fresh", PoolKey: "pool-fresh", ExpiresAt: time.Now().Add(time.Hour)}))

	store.sweepExpired(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pool-stale"}, closed)
	assert.Equal(t, 1, store.Count())
}

func TestStartStopSweeperIsSafe(t *testing.T) {
	store := NewStore(0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartSweeper(ctx, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	store.Stop()
}

func TestStopWithoutStartDoesNotDeadlock(t *testing.T) {
	store := NewStore(0, nil, nil)
	done := make(chan struct{})
	go func() {
		store.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() deadlocked when sweeper was never started")
	}
}
