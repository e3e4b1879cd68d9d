package revocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryBlacklistUntilExpiry(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := NewMemory(WithClock(c.Now))

	require.NoError(t, m.Blacklist(ctx, "tok-a", c.Now().Add(time.Minute)))
	ok, err := m.IsBlacklisted(ctx, "tok-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = m.IsBlacklisted(ctx, "tok-b")
	require.False(t, ok)

	c.Advance(time.Minute)
	ok, _ = m.IsBlacklisted(ctx, "tok-a")
	require.False(t, ok)
}

func TestMemoryEmptyTokenIsNoop(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Blacklist(context.Background(), "", time.Now().Add(time.Hour)))
	require.Zero(t, m.Len())
	ok, err := m.IsBlacklisted(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryIdempotentKeepsLaterExpiry(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := NewMemory(WithClock(c.Now))

	require.NoError(t, m.Blacklist(ctx, "tok", c.Now().Add(2*time.Minute)))
	require.NoError(t, m.Blacklist(ctx, "tok", c.Now().Add(time.Minute)))
	require.Equal(t, 1, m.Len())

	c.Advance(90 * time.Second)
	ok, _ := m.IsBlacklisted(ctx, "tok")
	require.True(t, ok)
}

func TestMemorySweepRemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := NewMemory(WithClock(c.Now))

	require.NoError(t, m.Blacklist(ctx, "short", c.Now().Add(time.Minute)))
	require.NoError(t, m.Blacklist(ctx, "long", c.Now().Add(time.Hour)))

	c.Advance(2 * time.Minute)
	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, m.Len())

	ok, _ := m.IsBlacklisted(ctx, "long")
	require.True(t, ok)
}

func TestMemoryRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	exp := time.Now().Add(time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Blacklist(ctx, fmt.Sprintf("tok-%d", i), exp))
	}
	require.True(t, m.Remove("tok-0"))
	require.False(t, m.Remove("tok-0"))
	require.Equal(t, 4, m.Len())

	m.Clear()
	require.Zero(t, m.Len())
	ok, _ := m.IsBlacklisted(ctx, "tok-1")
	require.False(t, ok)
}

func TestMemoryCapacityNeverEvictsLiveEntries(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	core, logs := observer.New(zap.WarnLevel)
	m := NewMemory(WithClock(c.Now), WithMaxEntries(3), WithLogger(zap.New(core)))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Blacklist(ctx, fmt.Sprintf("dead-%d", i), c.Now().Add(time.Second)))
	}
	c.Advance(time.Minute)

	// Crossing the limit sweeps the expired entries.
	require.NoError(t, m.Blacklist(ctx, "live-0", c.Now().Add(time.Hour)))
	require.Equal(t, 1, m.Len())
	require.Zero(t, logs.Len())

	for i := 1; i < 6; i++ {
		require.NoError(t, m.Blacklist(ctx, fmt.Sprintf("live-%d", i), c.Now().Add(time.Hour)))
	}
	require.Equal(t, 6, m.Len())
	for i := 0; i < 6; i++ {
		ok, _ := m.IsBlacklisted(ctx, fmt.Sprintf("live-%d", i))
		require.True(t, ok)
	}
	require.NotZero(t, logs.FilterMessage("revocation registry above capacity after sweep").Len())
}

func TestMemoryConcurrentBlacklist(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = m.Blacklist(ctx, fmt.Sprintf("tok-%d", i), exp)
			}
		}(g)
	}
	wg.Wait()
	require.Equal(t, 100, m.Len())
}
