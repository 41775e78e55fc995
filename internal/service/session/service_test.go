package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore())

	record := json.RawMessage(`{"analysis_input": "rice in Punjab", "chat_messages": []}`)
	require.NoError(t, svc.Save(ctx, "u1", "20240601_090000", record))

	loaded, err := svc.Load(ctx, "u1", "20240601_090000")
	require.NoError(t, err)
	assert.JSONEq(t, string(record), string(loaded))
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore())

	require.NoError(t, svc.Save(ctx, "u1", "s1", json.RawMessage(`{"v":1}`)))
	require.NoError(t, svc.Save(ctx, "u1", "s1", json.RawMessage(`{"v":2}`)))

	loaded, err := svc.Load(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(loaded))
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	svc := NewService(storage.NewMemoryStore())
	err := svc.Save(context.Background(), "u1", "s1", json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestLoadUnknownSession(t *testing.T) {
	svc := NewService(storage.NewMemoryStore())
	_, err := svc.Load(context.Background(), "u1", "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestListOnlyDirectRecords(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewService(store)

	require.NoError(t, svc.Save(ctx, "u1", "b", json.RawMessage(`{}`)))
	require.NoError(t, svc.Save(ctx, "u1", "a", json.RawMessage(`{}`)))
	require.NoError(t, svc.Save(ctx, "u2", "c", json.RawMessage(`{}`)))
	require.NoError(t, store.Write(ctx, "users/u1/sessions/a/notes.txt", []byte("x")))
	require.NoError(t, store.Write(ctx, "users/u1/sessions/a/nested/data.json", []byte("{}")))
	require.NoError(t, store.Write(ctx, storage.ContextKey("u1", "a"), []byte("[]")))

	summaries, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "a", summaries[0].ID)
	assert.Equal(t, "b", summaries[1].ID)
	assert.False(t, summaries[0].CreatedAt.IsZero())
}

func TestListEmpty(t *testing.T) {
	summaries, err := NewService(storage.NewMemoryStore()).List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
