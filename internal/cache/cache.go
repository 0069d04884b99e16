// Package cache holds the group roster caches: Redis when several API
// instances share state, and an in-process fastcache otherwise.
package cache

import (
	"strconv"
	"time"

	"github.com/fkhayef/bankroll/internal/group"
)

const keyPrefix = "bankroll:roster:"

func rosterKey(groupID int64) string {
	return keyPrefix + strconv.FormatInt(groupID, 10)
}

// entry is the stored form of a roster
type entry struct {
	ExpiresAt int64                `json:"expires_at,omitempty"`
	Members   []*group.GroupMember `json:"members"`
}

func defaultTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
