package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// Redis key prefix for cached rosters
const rosterKeyPrefix = "roster:event:"

// Cache is a best-effort roster cache. A Get miss returns
// sentinel.ErrNotFound; Set failures are the caller's to swallow.
type Cache interface {
	Get(ctx context.Context, eventID id.EventID) (models.Roster, error)
	Set(ctx context.Context, roster models.Roster) error
}

// NoopCache disables caching when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, id.EventID) (models.Roster, error) {
	return models.Roster{}, sentinel.ErrNotFound
}

func (NoopCache) Set(context.Context, models.Roster) error { return nil }

// RedisCache stores rosters as JSON blobs with a TTL. Rosters go stale the
// moment a check-in lands, so the TTL bounds how long a burst of roster
// downloads can serve a slightly outdated snapshot.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, eventID id.EventID) (models.Roster, error) {
	raw, err := c.client.Get(ctx, rosterKeyPrefix+eventID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Roster{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Roster{}, fmt.Errorf("roster cache get: %w", err)
	}

	var roster models.Roster
	if err := json.Unmarshal(raw, &roster); err != nil {
		// Treat a corrupt blob as a miss; it will be overwritten on Set.
		return models.Roster{}, sentinel.ErrNotFound
	}
	return roster, nil
}

func (c *RedisCache) Set(ctx context.Context, roster models.Roster) error {
	raw, err := json.Marshal(roster)
	if err != nil {
		return fmt.Errorf("roster cache encode: %w", err)
	}
	if err := c.client.Set(ctx, rosterKeyPrefix+roster.EventID.String(), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("roster cache set: %w", err)
	}
	return nil
}
