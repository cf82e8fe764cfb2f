package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/aotpy/username-checker-backend/models"
)

type cacheEntry struct {
	result   models.UsernameCheckResult
	storedAt time.Time
}

// CheckResultCache is an in-memory TTL cache for composed check results,
// with single-flight deduplication so concurrent checks for the same
// username cost one upstream round trip. Everything here is lost on restart;
// that is fine, the upstream sites are the source of truth.
type CheckResultCache struct {
	entries   map[string]*cacheEntry
	order     []string
	ttl       time.Duration
	maxSize   int
	mutex     sync.RWMutex
	inFlight  singleflight.Group
	done      chan struct{}
	closeOnce sync.Once
}

// NewCheckResultCache creates a cache and starts its background sweeper.
func NewCheckResultCache(ttl time.Duration, maxSize int) *CheckResultCache {
	cache := &CheckResultCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go cache.sweepLoop()
	return cache
}

// Close stops the background sweeper. Safe to call more than once.
func (c *CheckResultCache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Get returns a cached result if present and fresh.
func (c *CheckResultCache) Get(username string) (models.UsernameCheckResult, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.entries[username]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return models.UsernameCheckResult{}, false
	}
	return entry.result, true
}

// Put stores a result, evicting the oldest entry when full.
func (c *CheckResultCache) Put(username string, result models.UsernameCheckResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[username]; !exists {
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.order = append(c.order, username)
	}
	c.entries[username] = &cacheEntry{result: result, storedAt: time.Now()}
}

// GetOrCompute returns the cached result or runs compute once, sharing the
// in-flight call across concurrent requests for the same username.
func (c *CheckResultCache) GetOrCompute(username string, compute func() (models.UsernameCheckResult, error)) (models.UsernameCheckResult, error) {
	if cached, ok := c.Get(username); ok {
		logrus.WithFields(logrus.Fields{
			"component": "CheckResultCache",
			"username":  username,
		}).Debug("Cache hit")
		return cached, nil
	}

	value, err, _ := c.inFlight.Do(username, func() (interface{}, error) {
		if cached, ok := c.Get(username); ok {
			return cached, nil
		}
		result, err := compute()
		if err != nil {
			return models.UsernameCheckResult{}, err
		}
		c.Put(username, result)
		return result, nil
	})
	if err != nil {
		return models.UsernameCheckResult{}, err
	}
	return value.(models.UsernameCheckResult), nil
}

// Size returns the current entry count.
func (c *CheckResultCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// evictOldestLocked drops the oldest still-present key. Caller holds the lock.
func (c *CheckResultCache) evictOldestLocked() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}

// sweepLoop periodically drops expired entries so memory does not track the
// all-time set of queried usernames.
func (c *CheckResultCache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mutex.Lock()
		removed := 0
		kept := c.order[:0]
		for _, username := range c.order {
			entry, ok := c.entries[username]
			if !ok {
				continue
			}
			if time.Since(entry.storedAt) > c.ttl {
				delete(c.entries, username)
				removed++
				continue
			}
			kept = append(kept, username)
		}
		c.order = kept
		c.mutex.Unlock()

		if removed > 0 {
			logrus.WithFields(logrus.Fields{
				"component":       "CheckResultCache",
				"removed_entries": removed,
			}).Debug("Swept expired cache entries")
		}
	}
}
