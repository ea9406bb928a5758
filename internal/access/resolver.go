package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairops/healthfair-platform/pkg/logging"
)

// Resolver answers role lookups with a redis cache in front of the role
// store. The TTL bounds how stale a cached role can get when a caller forgets
// to invalidate; role changes must call Invalidate synchronously.
type Resolver struct {
	store  RoleStore
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewResolver creates a resolver. redisClient may be nil, in which case every
// lookup goes to the store.
func NewResolver(store RoleStore, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("access: role store required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, redis: redisClient, ttl: ttl, logger: logger}
}

func (r *Resolver) cacheKey(staffID uuid.UUID) string {
	return "access:role:" + staffID.String()
}

// ResolveRole returns the staff member's role, served from cache when fresh.
func (r *Resolver) ResolveRole(ctx context.Context, staffID uuid.UUID) (Role, error) {
	if r.redis != nil {
		cached, err := r.redis.Get(ctx, r.cacheKey(staffID)).Result()
		if err == nil {
			role := Role(cached)
			if role.Valid() {
				return role, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Cache trouble must not take role resolution down.
			r.logger.Warn("role cache read failed", "staff_id", staffID, "error", err)
		}
	}

	role, err := r.store.RoleForStaff(ctx, staffID)
	if err != nil {
		return "", err
	}

	if r.redis != nil {
		if err := r.redis.Set(ctx, r.cacheKey(staffID), string(role), r.ttl).Err(); err != nil {
			r.logger.Warn("role cache write failed", "staff_id", staffID, "error", err)
		}
	}
	return role, nil
}

// Invalidate drops the cached role for a staff identity. Anything that
// changes a role must call this before reporting success.
func (r *Resolver) Invalidate(ctx context.Context, staffID uuid.UUID) error {
	if r.redis == nil {
		return nil
	}
	if err := r.redis.Del(ctx, r.cacheKey(staffID)).Err(); err != nil {
		return fmt.Errorf("access: invalidate role cache: %w", err)
	}
	return nil
}
