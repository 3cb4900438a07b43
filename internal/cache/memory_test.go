package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	// The cache must hold its own copy.
	got[0] = 'x'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), again)

	require.NoError(t, m.Delete(ctx, "k", "missing"))
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, m.Set(ctx, "long", []byte("v"), time.Hour))

	time.Sleep(20 * time.Millisecond)

	_, err := m.Get(ctx, "short")
	require.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "long")
	require.NoError(t, err)

	// Expired entry was reaped on read.
	require.Equal(t, 1, m.Len())
}

func TestKeyBuilders(t *testing.T) {
	require.Equal(t, "project:abc", ProjectKey("abc"))
	require.Equal(t, "client_projects:abc", ClientProjectsKey("abc"))
}
