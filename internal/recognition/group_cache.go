package recognition

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MembershipSource resolves a group id to its member person ids.
type MembershipSource interface {
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// GroupCache keeps group memberships for a TTL. Membership changes made through
// Invalidate are visible immediately; changes made behind the cache's back are
// visible after at most one TTL.
type GroupCache struct {
	source MembershipSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]groupEntry
	// gen advances on every invalidation. A fetch that started under an
	// older generation does not write its result back.
	gen uint64
}

type groupEntry struct {
	members []string
	fetched time.Time
}

// NewGroupCache wraps source. A ttl of 0 or less disables caching.
func NewGroupCache(source MembershipSource, ttl time.Duration) *GroupCache {
	return &GroupCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]groupEntry),
	}
}

// MembersOf returns the cached members or loads them from the source.
// Errors are not cached.
func (c *GroupCache) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	if c.ttl <= 0 {
		return c.source.MembersOf(ctx, groupID)
	}

	c.mu.RLock()
	entry, ok := c.entries[groupID]
	gen := c.gen
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return slices.Clone(entry.members), nil
	}

	members, err := c.source.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.entries[groupID] = groupEntry{members: slices.Clone(members), fetched: c.now()}
	}
	c.mu.Unlock()
	return members, nil
}

// Invalidate drops the entry for one group.
func (c *GroupCache) Invalidate(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, groupID)
	c.gen++
}

// InvalidateAll drops every entry.
func (c *GroupCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]groupEntry)
	c.gen++
}

// Size returns the number of cached groups.
func (c *GroupCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
