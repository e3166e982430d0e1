package rate

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	t.Run("allows up to the limit within a minute", func(t *testing.T) {
		mockClock := clock.NewMock()
		limiter := newLimiterWithClock(3, mockClock)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("10.0.0.1"), "request %d should pass", i+1)
		}
		assert.False(t, limiter.Allow("10.0.0.1"), "request over the limit is rejected")
	})

	t.Run("window resets on the next minute", func(t *testing.T) {
		mockClock := clock.NewMock()
		limiter := newLimiterWithClock(1, mockClock)

		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.False(t, limiter.Allow("10.0.0.1"))

		mockClock.Add(time.Minute)
		assert.True(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("addresses are counted independently", func(t *testing.T) {
		mockClock := clock.NewMock()
		limiter := newLimiterWithClock(1, mockClock)

		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.True(t, limiter.Allow("10.0.0.2"))
		assert.False(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("idle addresses are purged after five minutes", func(t *testing.T) {
		mockClock := clock.NewMock()
		limiter := newLimiterWithClock(100, mockClock)

		for i := 0; i < 50; i++ {
			limiter.Allow(fmt.Sprintf("10.0.0.%d", i))
		}
		assert.Len(t, limiter.windows, 50)

		mockClock.Add(6 * time.Minute)
		limiter.Allow("10.0.1.1")
		assert.Len(t, limiter.windows, 1, "stale windows are dropped on the next request")
	})

	t.Run("non-positive limit falls back to the default", func(t *testing.T) {
		limiter := NewLimiter(0)
		assert.Equal(t, DefaultLimit, limiter.limit)
	})
}
