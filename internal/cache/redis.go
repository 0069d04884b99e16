package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fkhayef/bankroll/internal/group"
)

// Redis caches rosters in Redis with a TTL
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ group.RosterCache = (*Redis)(nil)

// NewRedis creates a roster cache on top of an existing client
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: defaultTTL(ttl)}
}

// DialRedis connects to the Redis server at url and checks it responds
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// GetRoster returns the cached roster. Any Redis error counts as a miss.
func (c *Redis) GetRoster(ctx context.Context, groupID int64) ([]*group.GroupMember, bool) {
	data, err := c.client.Get(ctx, rosterKey(groupID)).Bytes()
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	return e.Members, true
}

// SetRoster stores a roster until the TTL passes
func (c *Redis) SetRoster(ctx context.Context, groupID int64, members []*group.GroupMember) error {
	data, err := json.Marshal(entry{Members: members})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rosterKey(groupID), data, c.ttl).Err()
}

// InvalidateRoster drops a cached roster
func (c *Redis) InvalidateRoster(ctx context.Context, groupID int64) error {
	err := c.client.Del(ctx, rosterKey(groupID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
