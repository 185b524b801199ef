package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimIsExclusive(t *testing.T) {
	c := NewCommandCache(time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := "http"
			if i%2 == 0 {
				source = "mqtt"
			}
			if c.Claim("cmd-1", source) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestReleaseAllowsRedelivery(t *testing.T) {
	c := NewCommandCache(time.Minute)
	require.True(t, c.Claim("cmd-1", "poll"))
	c.Release("cmd-1")
	assert.True(t, c.Claim("cmd-1", "poll"))
}

func TestCompleteKeepsSuppressing(t *testing.T) {
	c := NewCommandCache(time.Minute)
	require.True(t, c.Claim("cmd-1", "mqtt"))
	c.Complete("cmd-1", true)

	claim, ok := c.Lookup("cmd-1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, claim.Status)
	assert.Equal(t, "mqtt", claim.Source)
	assert.False(t, c.Claim("cmd-1", "http"))
}

func TestDisabledCacheNeverDeduplicates(t *testing.T) {
	c := NewCommandCache(0)
	assert.True(t, c.Claim("cmd-1", "http"))
	assert.True(t, c.Claim("cmd-1", "http"))
	assert.Equal(t, false, c.GetCacheStats()["enabled"])
}

func TestEmptyIDIsNeverDeduplicated(t *testing.T) {
	c := NewCommandCache(time.Minute)
	assert.True(t, c.Claim("", "http"))
	assert.True(t, c.Claim("", "http"))
}

func TestClaimExpires(t *testing.T) {
	c := NewCommandCache(20 * time.Millisecond)
	require.True(t, c.Claim("cmd-1", "http"))
	time.Sleep(40 * time.Millisecond)
	assert.True(t, c.Claim("cmd-1", "http"))
}

func TestClearCache(t *testing.T) {
	c := NewCommandCache(time.Minute)
	c.Claim("a", "http")
	c.Claim("b", "http")
	assert.Equal(t, 2, c.GetCacheStats()["entries"])
	c.ClearCache()
	assert.Equal(t, 0, c.GetCacheStats()["entries"])
}
