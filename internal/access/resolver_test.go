package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairops/healthfair-platform/pkg/logging"
)

func newTestResolver(t *testing.T, ttl time.Duration) (*Resolver, *InMemoryRoleStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewInMemoryRoleStore()
	return NewResolver(store, client, ttl, logging.Default()), store, mr
}

func TestResolveRoleCachesResult(t *testing.T) {
	resolver, store, mr := newTestResolver(t, time.Minute)
	ctx := context.Background()
	staffID := uuid.New()
	require.NoError(t, store.SetRole(ctx, staffID, RoleNurse))

	role, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, RoleNurse, role)

	// A role change without invalidation keeps serving the cached value.
	require.NoError(t, store.SetRole(ctx, staffID, RoleAdmin))
	role, err = resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, RoleNurse, role)
	assert.True(t, mr.Exists("access:role:"+staffID.String()))
}

func TestInvalidateMakesRoleChangeVisible(t *testing.T) {
	resolver, store, _ := newTestResolver(t, time.Minute)
	ctx := context.Background()
	staffID := uuid.New()
	require.NoError(t, store.SetRole(ctx, staffID, RoleStaff))

	_, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)

	require.NoError(t, store.SetRole(ctx, staffID, RoleAdmin))
	require.NoError(t, resolver.Invalidate(ctx, staffID))

	role, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestTTLExpiryFallsBackToStore(t *testing.T) {
	resolver, store, mr := newTestResolver(t, time.Second)
	ctx := context.Background()
	staffID := uuid.New()
	require.NoError(t, store.SetRole(ctx, staffID, RoleDoctor))

	_, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)

	require.NoError(t, store.SetRole(ctx, staffID, RoleAdmin))
	mr.FastForward(2 * time.Second)

	role, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestResolveRoleUnknownStaff(t *testing.T) {
	resolver, _, _ := newTestResolver(t, time.Minute)
	_, err := resolver.ResolveRole(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrStaffNotFound)
}

func TestResolverWithoutRedis(t *testing.T) {
	store := NewInMemoryRoleStore()
	resolver := NewResolver(store, nil, time.Minute, logging.Default())
	ctx := context.Background()
	staffID := uuid.New()
	require.NoError(t, store.SetRole(ctx, staffID, RoleDoctor))

	role, err := resolver.ResolveRole(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, role)
	assert.NoError(t, resolver.Invalidate(ctx, staffID))
}
