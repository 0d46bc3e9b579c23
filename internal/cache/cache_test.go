package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"example.com/socialfeed/internal/feed"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/models"
)

func TestFeedKey(t *testing.T) {
	if got := feedKey("user_1"); got != "feed:viewer:user_1" {
		t.Fatalf("feedKey() = %q", got)
	}
	if got := genKey("user_1"); got != "feed:gen:user_1" {
		t.Fatalf("genKey() = %q", got)
	}
}

func TestNew_DisabledByZeroTTL(t *testing.T) {
	c := New(&config.Config{FeedCacheTTL: 0})
	if _, ok := c.(NopCache); !ok {
		t.Fatalf("expected NopCache, got %T", c)
	}
}

func TestNew_RedisWhenTTLSet(t *testing.T) {
	c := New(&config.Config{FeedCacheTTL: time.Minute, RedisAddr: "localhost:6379"})
	defer c.Close()
	rc, ok := c.(*RedisFeedCache)
	if !ok {
		t.Fatalf("expected *RedisFeedCache, got %T", c)
	}
	if rc.ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", rc.ttl)
	}
}

func TestNopCache_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c FeedCache = NopCache{}
	_ = c.Set(ctx, "v", 0, []feed.Entry{{Post: models.Post{ID: "p"}}})
	if _, ok, err := c.Get(ctx, "v"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestMockCache_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMock()
	entries := []feed.Entry{{Post: models.Post{ID: "p1"}, Reposters: []string{}}}

	if err := c.Set(ctx, "v", 0, entries); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, _ := c.Get(ctx, "v")
	if !ok || len(got) != 1 || got[0].Post.ID != "p1" {
		t.Fatalf("unexpected cached feed ok=%v %+v", ok, got)
	}

	_ = c.Invalidate(ctx, "v", "w")
	if _, ok, _ := c.Get(ctx, "v"); ok {
		t.Fatal("expected miss after invalidation")
	}
	if ids := c.InvalidatedIDs(); len(ids) != 2 {
		t.Fatalf("expected 2 invalidations recorded, got %v", ids)
	}
}

func TestMockCache_SetAfterInvalidateIsDropped(t *testing.T) {
	ctx := context.Background()
	c := NewMock()

	gen, err := c.Generation(ctx, "v")
	if err != nil || gen != 0 {
		t.Fatalf("Generation() = %d, %v", gen, err)
	}

	// A write lands while the feed is being computed.
	_ = c.Invalidate(ctx, "v")

	stale := []feed.Entry{{Post: models.Post{ID: "old"}, Reposters: []string{}}}
	if err := c.Set(ctx, "v", gen, stale); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("expected ErrStaleGeneration, got %v", err)
	}
	if _, ok, _ := c.Get(ctx, "v"); ok {
		t.Fatal("stale feed must not be cached")
	}

	gen, _ = c.Generation(ctx, "v")
	if gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}
	if err := c.Set(ctx, "v", gen, stale); err != nil {
		t.Fatalf("Set with current generation failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "v"); !ok {
		t.Fatal("expected hit after Set with current generation")
	}
}
