package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/fkhayef/bankroll/internal/group"
)

// Local caches rosters in process memory. Entries carry their own expiry
// since fastcache only evicts by size.
type Local struct {
	cache *fastcache.Cache
	ttl   time.Duration
	now   func() time.Time
}

var _ group.RosterCache = (*Local)(nil)

// NewLocal creates an in-process roster cache bounded to maxBytes
func NewLocal(maxBytes int, ttl time.Duration) *Local {
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}
	return &Local{
		cache: fastcache.New(maxBytes),
		ttl:   defaultTTL(ttl),
		now:   time.Now,
	}
}

// GetRoster returns the cached roster if it has not expired
func (c *Local) GetRoster(_ context.Context, groupID int64) ([]*group.GroupMember, bool) {
	key := []byte(rosterKey(groupID))
	data := c.cache.GetBig(nil, key)
	if len(data) == 0 {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if c.now().UnixNano() >= e.ExpiresAt {
		c.cache.Del(key)
		return nil, false
	}
	return e.Members, true
}

// SetRoster stores a roster until the TTL passes. Large rosters go through
// SetBig, which lifts fastcache's 64KB value limit.
func (c *Local) SetRoster(_ context.Context, groupID int64, members []*group.GroupMember) error {
	data, err := json.Marshal(entry{
		ExpiresAt: c.now().Add(c.ttl).UnixNano(),
		Members:   members,
	})
	if err != nil {
		return err
	}
	c.cache.SetBig([]byte(rosterKey(groupID)), data)
	return nil
}

// InvalidateRoster drops a cached roster
func (c *Local) InvalidateRoster(_ context.Context, groupID int64) error {
	c.cache.Del([]byte(rosterKey(groupID)))
	return nil
}

// Reset empties the cache
func (c *Local) Reset() {
	c.cache.Reset()
}
