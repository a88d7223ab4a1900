package recognition

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/database/mock"
)

func newCacheFixture(t *testing.T, ttl time.Duration) (*mock.MockStore, *GroupCache, *time.Time) {
	t.Helper()
	ctx := context.Background()
	store := mock.NewMockStore()
	store.UpsertPerson(ctx, "alice", "Alice")
	store.UpsertPerson(ctx, "bob", "Bob")
	if err := store.SaveGroup(ctx, database.Group{ID: "g", Name: "G"}); err != nil {
		t.Fatal(err)
	}
	store.AddMember(ctx, "g", "alice")

	now := time.Unix(1000, 0)
	cache := NewGroupCache(store, ttl)
	cache.now = func() time.Time { return now }
	return store, cache, &now
}

func TestGroupCache_ServesWithinTTL(t *testing.T) {
	ctx := context.Background()
	store, cache, now := newCacheFixture(t, time.Minute)

	for range 3 {
		members, err := cache.MembersOf(ctx, "g")
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0] != "alice" {
			t.Errorf("members = %v, want [alice]", members)
		}
	}
	if store.MembersOfCalls() != 1 {
		t.Errorf("source called %d times, want 1", store.MembersOfCalls())
	}

	// A change behind the cache's back stays invisible until the TTL passes.
	store.AddMember(ctx, "g", "bob")
	members, _ := cache.MembersOf(ctx, "g")
	if len(members) != 1 {
		t.Errorf("stale read = %v, want cached [alice]", members)
	}

	*now = now.Add(time.Minute)
	members, _ = cache.MembersOf(ctx, "g")
	if len(members) != 2 {
		t.Errorf("after TTL = %v, want alice and bob", members)
	}
	if store.MembersOfCalls() != 2 {
		t.Errorf("source called %d times, want 2", store.MembersOfCalls())
	}
}

func TestGroupCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	store, cache, _ := newCacheFixture(t, time.Minute)

	cache.MembersOf(ctx, "g")
	store.AddMember(ctx, "g", "bob")
	cache.Invalidate("g")

	members, _ := cache.MembersOf(ctx, "g")
	if len(members) != 2 {
		t.Errorf("after Invalidate = %v, want alice and bob", members)
	}

	cache.InvalidateAll()
	if cache.Size() != 0 {
		t.Errorf("Size() = %d after InvalidateAll", cache.Size())
	}
}

// gatedSource blocks every lookup until release is closed.
type gatedSource struct {
	members []string
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedSource(members ...string) *gatedSource {
	return &gatedSource{
		members: members,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedSource) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	s.calls.Add(1)
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return slices.Clone(s.members), nil
}

func TestGroupCache_InvalidateDuringFetch(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *GroupCache)
	}{
		{"Invalidate", func(c *GroupCache) { c.Invalidate("g") }},
		{"InvalidateAll", func(c *GroupCache) { c.InvalidateAll() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			src := newGatedSource("alice")
			cache := NewGroupCache(src, time.Minute)

			done := make(chan []string)
			go func() {
				members, _ := cache.MembersOf(ctx, "g")
				done <- members
			}()

			<-src.started
			tt.invalidate(cache)
			close(src.release)

			if members := <-done; len(members) != 1 || members[0] != "alice" {
				t.Errorf("in-flight fetch returned %v, want [alice]", members)
			}
			if cache.Size() != 0 {
				t.Errorf("Size() = %d, fetch that raced an invalidation was cached", cache.Size())
			}

			if _, err := cache.MembersOf(ctx, "g"); err != nil {
				t.Fatal(err)
			}
			if got := src.calls.Load(); got != 2 {
				t.Errorf("source called %d times, want 2", got)
			}
			if cache.Size() != 1 {
				t.Errorf("Size() = %d after a clean fetch, want 1", cache.Size())
			}
		})
	}
}

func TestGroupCache_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	store, cache, _ := newCacheFixture(t, time.Minute)

	if _, err := cache.MembersOf(ctx, "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if cache.Size() != 0 {
		t.Error("error result was cached")
	}
	if store.MembersOfCalls() != 1 {
		t.Errorf("source called %d times", store.MembersOfCalls())
	}
}

func TestGroupCache_Disabled(t *testing.T) {
	ctx := context.Background()
	store, cache, _ := newCacheFixture(t, 0)

	cache.MembersOf(ctx, "g")
	cache.MembersOf(ctx, "g")
	if store.MembersOfCalls() != 2 {
		t.Errorf("source called %d times, want 2 with caching disabled", store.MembersOfCalls())
	}
}

func TestGroupCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	_, cache, _ := newCacheFixture(t, time.Minute)

	first, _ := cache.MembersOf(ctx, "g")
	first[0] = "mallory"
	second, _ := cache.MembersOf(ctx, "g")
	if second[0] != "alice" {
		t.Errorf("cache entry mutated through returned slice: %v", second)
	}
}
