package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grimm.is/portgate/internal/clock"
)

func TestLimiter_Allow(t *testing.T) {
	defer clock.Use(clock.NewMockClock(time.Unix(1000, 0)))()
	l := NewLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "event %d", i+1)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")
}

func TestLimiter_WindowResets(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(1000, 0))
	defer clock.Use(mc)()
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	mc.Advance(59 * time.Second)
	assert.False(t, l.Allow("a"))

	mc.Advance(time.Second)
	assert.True(t, l.Allow("a"))
}

func TestLimiter_ZeroLimit(t *testing.T) {
	l := NewLimiter(0, time.Minute)
	assert.False(t, l.Allow("a"))
}

func TestLimiter_Reset(t *testing.T) {
	defer clock.Use(clock.NewMockClock(time.Unix(1000, 0)))()
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestLimiter_Prune(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(1000, 0))
	defer clock.Use(mc)()
	l := NewLimiter(5, time.Minute)

	l.Allow("old")
	mc.Advance(30 * time.Second)
	l.Allow("new")
	mc.Advance(30 * time.Second)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	defer clock.Use(clock.NewMockClock(time.Unix(1000, 0)))()
	l := NewLimiter(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
