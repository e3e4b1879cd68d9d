package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aqryuz/authcore/fingerprint"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	laptop = fingerprint.Context{UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0", IP: "10.0.0.1"}
	phone  = fingerprint.Context{UserAgent: "Mozilla/5.0 (iPhone) Safari/604.1", IP: "10.0.0.2"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newTestStore(t *testing.T, mutate func(*Config)) (*Store, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mr.SetTime(clock.now)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewStore(rdb, cfg, clock.Now)
	require.NoError(t, err)
	return s, mr, clock
}

func advance(mr *miniredis.Miniredis, c *testClock, d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	mr.FastForward(d)
	mr.SetTime(c.Now())
}

func create(t *testing.T, s *Store, userID string, rememberMe bool) *Issued {
	t.Helper()
	issued, _, err := s.Create(context.Background(), CreateParams{
		UserID:     userID,
		SessionID:  "sess-" + userID,
		RememberMe: rememberMe,
		Client:     laptop,
	})
	require.NoError(t, err)
	return issued
}

func TestCreateStoresOnlyHash(t *testing.T) {
	s, mr, clock := newTestStore(t, nil)
	issued := create(t, s, "u1", false)

	require.Len(t, issued.Token, 43)
	require.Equal(t, clock.Now().Add(24*time.Hour), issued.Record.ExpiresAt)
	require.Equal(t, laptop.Of(), issued.Record.Fingerprint)

	for _, k := range mr.Keys() {
		require.NotContains(t, k, issued.Token)
		if mr.Type(k) == "hash" {
			for _, f := range []string{"secret_hash", "id"} {
				require.NotEqual(t, issued.Token, mr.HGet(k, f))
			}
		}
	}

	got, err := s.Get(context.Background(), issued.Record.ID)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "sess-u1", got.SessionID)
	require.Equal(t, "10.0.0.1", got.IPAddress)
}

func TestRememberMeExtendsExpiry(t *testing.T) {
	s, _, clock := newTestStore(t, nil)
	issued := create(t, s, "u1", true)
	require.Equal(t, clock.Now().Add(30*24*time.Hour), issued.Record.ExpiresAt)
	require.True(t, issued.Record.RememberMe)
}

func TestRotateReplacesSecretOnSameRecord(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()
	issued := create(t, s, "u1", false)

	rotated, mismatch, err := s.ValidateAndRotate(ctx, issued.Token, laptop)
	require.NoError(t, err)
	require.False(t, mismatch)
	require.NotEqual(t, issued.Token, rotated.Token)
	require.Equal(t, issued.Record.ID, rotated.Record.ID)
	require.Equal(t, issued.Record.SessionID, rotated.Record.SessionID)

	_, _, err = s.ValidateAndRotate(ctx, issued.Token, laptop)
	require.ErrorIs(t, err, ErrNotFound, "old secret must be dead after rotation")

	_, _, err = s.ValidateAndRotate(ctx, rotated.Token, laptop)
	require.NoError(t, err)
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	issued := create(t, s, "u1", false)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := s.ValidateAndRotate(context.Background(), issued.Token, laptop)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	require.Equal(t, 1, success)
}

func TestRotateExpiredDeactivates(t *testing.T) {
	s, mr, clock := newTestStore(t, nil)
	ctx := context.Background()
	issued := create(t, s, "u1", false)

	advance(mr, clock, 24*time.Hour)
	_, _, err := s.ValidateAndRotate(ctx, issued.Token, laptop)
	require.ErrorIs(t, err, ErrExpired)

	rec, err := s.Get(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.False(t, rec.Active)

	_, _, err = s.ValidateAndRotate(ctx, issued.Token, laptop)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRotateMalformedToken(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	_, _, err := s.ValidateAndRotate(context.Background(), "not-a-token", laptop)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprintMismatchReportedOrEnforced(t *testing.T) {
	ctx := context.Background()

	lenient, _, _ := newTestStore(t, nil)
	issued := create(t, lenient, "u1", false)
	rotated, mismatch, err := lenient.ValidateAndRotate(ctx, issued.Token, phone)
	require.NoError(t, err)
	require.True(t, mismatch)
	require.Equal(t, laptop.Of(), rotated.Record.Fingerprint, "binding follows the original device")

	strict, _, _ := newTestStore(t, func(c *Config) { c.EnforceFingerprint = true })
	issued = create(t, strict, "u1", false)
	_, mismatch, err = strict.ValidateAndRotate(ctx, issued.Token, phone)
	require.ErrorIs(t, err, ErrDeviceMismatch)
	require.True(t, mismatch)

	rec, err := strict.Get(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.False(t, rec.Active)
}

func TestMaxPerUserEvictsOldestFirst(t *testing.T) {
	s, mr, clock := newTestStore(t, func(c *Config) { c.MaxPerUser = 3 })
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, create(t, s, "u1", false).Record.ID)
		advance(mr, clock, time.Second)
	}

	issued, evicted, err := s.Create(ctx, CreateParams{UserID: "u1", SessionID: "s4", Client: laptop})
	require.NoError(t, err)
	require.Equal(t, []string{ids[0]}, evicted)

	active, err := s.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, ids[1], active[0].ID)
	require.Equal(t, issued.Record.ID, active[2].ID)

	old, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	require.False(t, old.Active)
}

func TestRevokeVariantsAreIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()

	a := create(t, s, "u1", false)
	sid, err := s.Revoke(ctx, a.Token)
	require.NoError(t, err)
	require.Equal(t, "sess-u1", sid)
	sid, err = s.Revoke(ctx, a.Token)
	require.NoError(t, err)
	require.Empty(t, sid)
	sid, err = s.Revoke(ctx, "garbage")
	require.NoError(t, err)
	require.Empty(t, sid)
	_, _, err = s.ValidateAndRotate(ctx, a.Token, laptop)
	require.ErrorIs(t, err, ErrNotFound)

	b := create(t, s, "u1", false)
	require.NoError(t, s.RevokeByID(ctx, b.Record.ID))
	require.NoError(t, s.RevokeByID(ctx, b.Record.ID))
	rec, err := s.Get(ctx, b.Record.ID)
	require.NoError(t, err)
	require.False(t, rec.Active)
	require.False(t, rec.RevokedAt.IsZero())

	create(t, s, "u2", false)
	create(t, s, "u2", true)
	n, err := s.RevokeAllForUser(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.RevokeAllForUser(ctx, "u2")
	require.NoError(t, err)
	require.Zero(t, n)

	active, err := s.ListActive(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestSweepExpiredDeactivatesInBatches(t *testing.T) {
	s, mr, clock := newTestStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		create(t, s, "u1", false)
	}
	keep := create(t, s, "u2", true)

	advance(mr, clock, 25*time.Hour)
	n, err := s.SweepExpired(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = s.SweepExpired(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.SweepExpired(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, n)

	rec, err := s.Get(ctx, keep.Record.ID)
	require.NoError(t, err)
	require.True(t, rec.Active)
}

func TestGetUnknownAndUnavailable(t *testing.T) {
	s, mr, _ := newTestStore(t, nil)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	mr.Close()
	_, _, err = s.Create(context.Background(), CreateParams{UserID: "u", SessionID: "s", Client: laptop})
	require.True(t, errors.Is(err, ErrUnavailable))
}
