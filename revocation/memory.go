package revocation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aqryuz/authcore/internal"
	"go.uber.org/zap"
)

// DefaultMaxEntries is the size at which Memory starts sweeping eagerly.
const DefaultMaxEntries = 100_000

// MemoryOption configures a Memory registry.
type MemoryOption func(*Memory)

func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = int64(n)
		}
	}
}

func WithLogger(l *zap.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// Memory is a process-local registry. Reads are lock-free; the sweep walks
// the map with Range and never holds a lock across it.
type Memory struct {
	entries    sync.Map // token hash -> expiry unix nanos
	size       atomic.Int64
	sweeping   atomic.Bool
	maxEntries int64
	logger     *zap.Logger
	now        func() time.Time
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		maxEntries: DefaultMaxEntries,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Blacklist records token until expiresAt. An empty token is ignored and
// re-blacklisting keeps the later expiry.
func (m *Memory) Blacklist(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return nil
	}
	key := internal.HashToken(token)
	exp := expiresAt.UnixNano()

	for {
		prev, loaded := m.entries.LoadOrStore(key, exp)
		if !loaded {
			if m.size.Add(1) > m.maxEntries {
				m.relieve(ctx)
			}
			return nil
		}
		if prev.(int64) >= exp || m.entries.CompareAndSwap(key, prev, exp) {
			return nil
		}
	}
}

func (m *Memory) IsBlacklisted(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	v, ok := m.entries.Load(internal.HashToken(token))
	if !ok {
		return false, nil
	}
	return m.now().UnixNano() < v.(int64), nil
}

// Sweep removes entries whose expiry has passed and nothing else.
func (m *Memory) Sweep(context.Context) (int, error) {
	now := m.now().UnixNano()
	removed := 0
	m.entries.Range(func(k, v any) bool {
		if v.(int64) <= now && m.entries.CompareAndDelete(k, v) {
			m.size.Add(-1)
			removed++
		}
		return true
	})
	return removed, nil
}

// Remove drops a token from the denylist.
func (m *Memory) Remove(token string) bool {
	if _, ok := m.entries.LoadAndDelete(internal.HashToken(token)); ok {
		m.size.Add(-1)
		return true
	}
	return false
}

func (m *Memory) Len() int {
	return int(m.size.Load())
}

func (m *Memory) Clear() {
	m.entries.Range(func(k, _ any) bool {
		if _, ok := m.entries.LoadAndDelete(k); ok {
			m.size.Add(-1)
		}
		return true
	})
}

// relieve runs an eager sweep when the registry outgrows maxEntries. Live
// entries are never evicted early: a revoked token must stay revoked.
func (m *Memory) relieve(ctx context.Context) {
	if !m.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer m.sweeping.Store(false)

	removed, _ := m.Sweep(ctx)
	if size := m.size.Load(); size > m.maxEntries {
		m.logger.Warn("revocation registry above capacity after sweep",
			zap.Int64("entries", size),
			zap.Int64("max_entries", m.maxEntries),
			zap.Int("removed", removed),
		)
	}
}
