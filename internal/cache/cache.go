package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"example.com/socialfeed/internal/feed"
	config "example.com/socialfeed/internal/init"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// ErrStaleGeneration is returned by Set when the viewer's feed was
// invalidated after the generation passed to Set was read.
var ErrStaleGeneration = errors.New("feed invalidated since generation was read")

// FeedCache stores computed feeds per viewer. A miss is (nil, false, nil).
//
// Every Invalidate bumps the viewer's generation. Callers read Generation
// before computing a feed and hand it to Set, which only stores the feed
// if no invalidation happened in between.
type FeedCache interface {
	Get(ctx context.Context, viewerID string) ([]feed.Entry, bool, error)
	Generation(ctx context.Context, viewerID string) (int64, error)
	Set(ctx context.Context, viewerID string, gen int64, entries []feed.Entry) error
	Invalidate(ctx context.Context, viewerIDs ...string) error
	Close() error
}

// invalidateChunk bounds the number of viewers per invalidation round trip.
const invalidateChunk = 100

// generationTTL keeps counters of idle viewers from piling up. It only has
// to outlive a single feed computation.
const generationTTL = 24 * time.Hour

func feedKey(viewerID string) string {
	return fmt.Sprintf("feed:viewer:%s", viewerID)
}

func genKey(viewerID string) string {
	return fmt.Sprintf("feed:gen:%s", viewerID)
}

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
// A missing counter reads as generation 0.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// NewClient creates a Redis client from configuration.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// New returns a Redis-backed cache, or NopCache when cfg.FeedCacheTTL is not positive.
func New(cfg *config.Config) FeedCache {
	if cfg.FeedCacheTTL <= 0 {
		return NopCache{}
	}
	return NewRedisFeedCache(NewClient(cfg), cfg.FeedCacheTTL)
}

type RedisFeedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisFeedCache(rdb *redis.Client, ttl time.Duration) *RedisFeedCache {
	return &RedisFeedCache{rdb: rdb, ttl: ttl}
}

func (c *RedisFeedCache) Get(ctx context.Context, viewerID string) ([]feed.Entry, bool, error) {
	b, err := c.rdb.Get(ctx, feedKey(viewerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []feed.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cached feed: %w", err)
	}
	return entries, true, nil
}

func (c *RedisFeedCache) Generation(ctx context.Context, viewerID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(viewerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisFeedCache) Set(ctx context.Context, viewerID string, gen int64, entries []feed.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	keys := []string{feedKey(viewerID), genKey(viewerID)}
	stored, err := setIfGeneration.Run(ctx, c.rdb, keys,
		strconv.FormatInt(gen, 10), b, c.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if stored == 0 {
		return ErrStaleGeneration
	}
	return nil
}

// Invalidate drops the cached feeds and bumps the generation of every
// viewer, one MULTI/EXEC per chunk.
func (c *RedisFeedCache) Invalidate(ctx context.Context, viewerIDs ...string) error {
	for _, chunk := range lo.Chunk(lo.Uniq(viewerIDs), invalidateChunk) {
		keys := lo.Map(chunk, func(id string, _ int) string { return feedKey(id) })
		_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range chunk {
				pipe.Incr(ctx, genKey(id))
				pipe.Expire(ctx, genKey(id), generationTTL)
			}
			pipe.Del(ctx, keys...)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisFeedCache) Close() error {
	return c.rdb.Close()
}

// NopCache never stores anything; every Get is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]feed.Entry, bool, error) { return nil, false, nil }
func (NopCache) Generation(context.Context, string) (int64, error)       { return 0, nil }
func (NopCache) Set(context.Context, string, int64, []feed.Entry) error  { return nil }
func (NopCache) Invalidate(context.Context, ...string) error             { return nil }
func (NopCache) Close() error                                            { return nil }
