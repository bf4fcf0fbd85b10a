package reddit

import (
	"sync"
	"time"

	"tgreddit/internal/model"
)

type cacheEntry struct {
	posts   []model.Post
	expires time.Time
}

// listingCache holds recent top listings so chats sharing a subreddit reuse
// one fetch per cycle.
type listingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newListingCache(ttl time.Duration) *listingCache {
	return &listingCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *listingCache) get(key string) ([]model.Post, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return clonePosts(e.posts), true
}

func (c *listingCache) put(key string, posts []model.Post) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{posts: clonePosts(posts), expires: now.Add(c.ttl)}
}

// clonePosts copies the slice so callers may set Type without racing.
func clonePosts(posts []model.Post) []model.Post {
	out := make([]model.Post, len(posts))
	copy(out, posts)
	return out
}
