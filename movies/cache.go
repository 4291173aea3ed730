package movies

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reelcritic/reelcritic/kvstore"
)

const cacheKeyRandom = "movies:response:random"

func cacheKeyMovie(id int64) string {
	return fmt.Sprintf("movies:response:id:%d", id)
}

// ResponseCache is a read-through cache for movie payloads with a fixed
// staleness window. Writes and invalidations are best-effort: a cache
// backend failure degrades to staler or uncached reads, never to a request
// failure.
type ResponseCache struct {
	store kvstore.Store
	ttl   time.Duration
}

func NewResponseCache(store kvstore.Store, ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: store, ttl: ttl}
}

func (c *ResponseCache) get(ctx context.Context, key string) (string, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("response cache read failed")
		return "", false
	}
	return val, ok
}

func (c *ResponseCache) put(ctx context.Context, key, value string) {
	if err := c.store.Put(ctx, key, value, c.ttl); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("response cache write failed")
	}
}

// InvalidateMovie drops the cached entry for the given movie and the
// "random movie" entry, whose payload embeds reviews for whichever movie it
// happened to pick. Called by mutation handlers after a successful commit.
func (c *ResponseCache) InvalidateMovie(ctx context.Context, movieID int64) {
	for _, key := range []string{cacheKeyRandom, cacheKeyMovie(movieID)} {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("response cache invalidation failed")
		}
	}
}
