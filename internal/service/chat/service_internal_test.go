package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

func cached(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestEmptyWindowsAreNotCached(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore(), Options{})

	for i := 0; i < 50; i++ {
		_, err := svc.History(ctx, "u1", fmt.Sprintf("s%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, cached(svc))

	require.NoError(t, svc.AppendExchange(ctx, "u1", "s1", "hi", "hello"))
	assert.Equal(t, 1, cached(svc))

	require.NoError(t, svc.Clear(ctx, "u1", "s1"))
	assert.Equal(t, 0, cached(svc))
}

func TestClearRacingAppendKeepsOneEntry(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewService(store, Options{MaxTurns: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.AppendExchange(ctx, "u1", "s1", fmt.Sprintf("q%d", i), "a"))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Clear(ctx, "u1", "s1"))
		}()
	}
	wg.Wait()

	turns, err := svc.Turns(ctx, "u1", "s1")
	require.NoError(t, err)

	data, err := store.Read(ctx, storage.ContextKey("u1", "s1"))
	if len(turns) == 0 {
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Equal(t, 0, cached(svc))
		return
	}
	require.NoError(t, err)
	stored, err := decodeTurns(data)
	require.NoError(t, err)
	assert.Len(t, stored, len(turns))
	assert.Equal(t, 1, cached(svc))
}
