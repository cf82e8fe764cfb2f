package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aotpy/username-checker-backend/models"
)

func TestCheckResultCachePutGet(t *testing.T) {
	cache := NewCheckResultCache(time.Minute, 10)
	defer cache.Close()

	_, ok := cache.Get("somename")
	assert.False(t, ok)

	cache.Put("somename", models.UsernameCheckResult{Username: "somename", Status: models.StatusAvailable})

	cached, ok := cache.Get("somename")
	require.True(t, ok)
	assert.Equal(t, models.StatusAvailable, cached.Status)
}

func TestCheckResultCacheExpiry(t *testing.T) {
	cache := NewCheckResultCache(30*time.Millisecond, 10)
	defer cache.Close()
	cache.Put("somename", models.UsernameCheckResult{Username: "somename"})

	_, ok := cache.Get("somename")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get("somename")
	assert.False(t, ok, "entry must expire after the TTL")
}

func TestCheckResultCacheEviction(t *testing.T) {
	cache := NewCheckResultCache(time.Minute, 3)
	defer cache.Close()

	cache.Put("firstname", models.UsernameCheckResult{Username: "firstname"})
	cache.Put("secondname", models.UsernameCheckResult{Username: "secondname"})
	cache.Put("thirdname", models.UsernameCheckResult{Username: "thirdname"})
	cache.Put("fourthname", models.UsernameCheckResult{Username: "fourthname"})

	assert.Equal(t, 3, cache.Size())
	_, ok := cache.Get("firstname")
	assert.False(t, ok, "oldest entry is evicted first")
	_, ok = cache.Get("fourthname")
	assert.True(t, ok)
}

func TestCheckResultCacheUpdateDoesNotGrow(t *testing.T) {
	cache := NewCheckResultCache(time.Minute, 10)
	defer cache.Close()
	cache.Put("somename", models.UsernameCheckResult{Status: models.StatusAvailable})
	cache.Put("somename", models.UsernameCheckResult{Status: models.StatusTaken})

	assert.Equal(t, 1, cache.Size())
	cached, ok := cache.Get("somename")
	require.True(t, ok)
	assert.Equal(t, models.StatusTaken, cached.Status)
}

func TestCheckResultCacheCloseStopsSweeperAndIsIdempotent(t *testing.T) {
	cache := NewCheckResultCache(10*time.Millisecond, 10)
	cache.Put("somename", models.UsernameCheckResult{Username: "somename"})

	cache.Close()
	cache.Close()

	// A closed cache still serves reads and writes; only the sweeper stops.
	cache.Put("othername", models.UsernameCheckResult{Username: "othername"})
	_, ok := cache.Get("othername")
	assert.True(t, ok)
}

func TestGetOrComputeSharesInFlightCalls(t *testing.T) {
	cache := NewCheckResultCache(time.Minute, 10)
	defer cache.Close()

	var computeCount int64
	compute := func() (models.UsernameCheckResult, error) {
		atomic.AddInt64(&computeCount, 1)
		time.Sleep(20 * time.Millisecond)
		return models.UsernameCheckResult{Username: "somename", Status: models.StatusAvailable}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := cache.GetOrCompute("somename", compute)
			assert.NoError(t, err)
			assert.Equal(t, models.StatusAvailable, result.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&computeCount), "concurrent callers share one compute")
}

func TestGetOrComputeCachesResult(t *testing.T) {
	cache := NewCheckResultCache(time.Minute, 10)
	defer cache.Close()

	var computeCount int64
	compute := func() (models.UsernameCheckResult, error) {
		atomic.AddInt64(&computeCount, 1)
		return models.UsernameCheckResult{Username: "somename"}, nil
	}

	_, err := cache.GetOrCompute("somename", compute)
	require.NoError(t, err)
	_, err = cache.GetOrCompute("somename", compute)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&computeCount))
}
