package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*Adapter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewAdapterWithClient(client, "test"), mr
}

func TestSetAndGetAssignments(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetAssignments(ctx, "alice", []string{"b1", "b2"}, time.Minute))
	assert.True(t, mr.Exists("test:assignments:alice"))
	assert.Equal(t, time.Minute, mr.TTL("test:assignments:alice"))

	ids, ok, err := adapter.GetAssignments(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b1", "b2"}, ids)
}

func TestGetAssignmentsMiss(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	ids, ok, err := adapter.GetAssignments(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ids)
}

func TestEmptyListIsCachedAsHit(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetAssignments(ctx, "bob", nil, time.Minute))

	ids, ok, err := adapter.GetAssignments(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, ids)
}

func TestAssignmentsExpire(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetAssignments(ctx, "alice", []string{"b1"}, time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := adapter.GetAssignments(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAssignments(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetAssignments(ctx, "alice", []string{"b1"}, time.Minute))
	require.NoError(t, adapter.DeleteAssignments(ctx, "alice"))
	assert.False(t, mr.Exists("test:assignments:alice"))
}

func TestCorruptPayloadIsAnError(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	require.NoError(t, mr.Set("test:assignments:alice", "not-json"))

	_, ok, err := adapter.GetAssignments(context.Background(), "alice")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestSetAssignmentsValidatesInput(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	assert.ErrorIs(t, adapter.SetAssignments(ctx, "", []string{"b1"}, time.Minute), ErrEmptyKey)
	assert.ErrorIs(t, adapter.SetAssignments(ctx, "alice", []string{"b1"}, 0), ErrInvalidTTL)
}

func TestPingAndDefaultNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter := NewAdapter(Config{Address: mr.Addr(), DialTimeout: time.Second})
	defer adapter.Close()

	require.NoError(t, adapter.Ping(context.Background()))
	require.NoError(t, adapter.SetAssignments(context.Background(), "alice", []string{"b1"}, time.Minute))
	assert.True(t, mr.Exists("cityauthz:assignments:alice"))
}
