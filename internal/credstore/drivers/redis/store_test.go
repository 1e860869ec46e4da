package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	s, err := NewStore(ctx, rdb, "", "")
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, pizzasdk.Credentials{}, creds)

	want := pizzasdk.Credentials{AccessToken: "access", RefreshToken: "refresh", Role: pizzasdk.RoleUser}
	require.NoError(t, s.Save(ctx, want))

	got, err := mr.Get("pizzeria:access_token")
	require.NoError(t, err)
	require.Equal(t, "access", got)

	creds, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, creds)

	require.NoError(t, s.Save(ctx, pizzasdk.Credentials{AccessToken: "next", Role: pizzasdk.RoleUser}))
	require.False(t, mr.Exists("pizzeria:refresh_token"))

	require.NoError(t, s.Clear(ctx))
	creds, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, pizzasdk.Credentials{}, creds)
}

func TestStore_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)

	a, err := NewStore(ctx, rdb, "alice", "")
	require.NoError(t, err)
	b, err := NewStore(ctx, rdb, "bob", "")
	require.NoError(t, err)

	require.NoError(t, a.Save(ctx, pizzasdk.Credentials{AccessToken: "a"}))

	creds, err := b.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, creds.AccessToken)
}

func TestStore_Sealed(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	s, err := NewStore(ctx, rdb, "p", "master")
	require.NoError(t, err)

	want := pizzasdk.Credentials{AccessToken: "access", RefreshToken: "refresh", Role: pizzasdk.RoleAdmin}
	require.NoError(t, s.Save(ctx, want))

	raw, err := mr.Get("p:refresh_token")
	require.NoError(t, err)
	require.NotEqual(t, "refresh", raw)

	// A second client with the same key reuses the stored salt.
	other, err := NewStore(ctx, rdb, "p", "master")
	require.NoError(t, err)
	creds, err := other.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, creds)

	wrong, err := NewStore(ctx, rdb, "p", "wrong")
	require.NoError(t, err)
	_, err = wrong.Load(ctx)
	require.Error(t, err)
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	s, err := NewStore(ctx, rdb, "", "")
	require.NoError(t, err)
	mr.Close()

	_, err = s.Load(ctx)
	require.ErrorContains(t, err, "redis: load credentials")
	require.ErrorContains(t, s.Save(ctx, pizzasdk.Credentials{AccessToken: "a"}), "redis: save credentials")
	require.ErrorContains(t, s.Clear(ctx), "redis: clear credentials")
}
