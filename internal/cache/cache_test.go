package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingFetcher struct {
	calls atomic.Int32
	value []string
	err   error
}

func (f *countingFetcher) fetch(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

func newTestSlot(clock *fakeClock) *Slot[[]string] {
	return NewSlot[[]string](Options{
		Name:   "roster",
		TTL:    5 * time.Minute,
		Clock:  clock.Now,
		Logger: zap.NewNop(),
	})
}

func TestSlotServesFreshEntryWithoutFetching(t *testing.T) {
	clock := newFakeClock()
	slot := newTestSlot(clock)
	f := &countingFetcher{value: []string{"a", "b"}}

	snap := slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Fetched, snap.Outcome)
	assert.Equal(t, []string{"a", "b"}, snap.Data)

	clock.Advance(4 * time.Minute)
	snap = slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Hit, snap.Outcome)
	assert.Equal(t, []string{"a", "b"}, snap.Data)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestSlotRefetchesOnceAfterWindow(t *testing.T) {
	clock := newFakeClock()
	slot := newTestSlot(clock)
	f := &countingFetcher{value: []string{"a"}}

	slot.Get(context.Background(), false, f.fetch)
	clock.Advance(5 * time.Minute)

	f.value = []string{"b"}
	snap := slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Fetched, snap.Outcome)
	assert.Equal(t, []string{"b"}, snap.Data)
	assert.Equal(t, clock.Now(), snap.FetchedAt)

	slot.Get(context.Background(), false, f.fetch)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestSlotForceRefresh(t *testing.T) {
	clock := newFakeClock()
	slot := newTestSlot(clock)
	f := &countingFetcher{value: []string{"a"}}

	slot.Get(context.Background(), false, f.fetch)
	snap := slot.Get(context.Background(), true, f.fetch)
	assert.Equal(t, Fetched, snap.Outcome)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestSlotKeepsPreviousEntryOnError(t *testing.T) {
	clock := newFakeClock()
	slot := newTestSlot(clock)
	f := &countingFetcher{value: []string{"a"}}

	first := slot.Get(context.Background(), false, f.fetch)
	clock.Advance(10 * time.Minute)

	f.err = errors.New("connection refused")
	snap := slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Failed, snap.Outcome)
	assert.True(t, snap.Populated)
	assert.Equal(t, []string{"a"}, snap.Data)
	assert.Equal(t, first.FetchedAt, snap.FetchedAt)

	// No negative caching: the next call tries again.
	f.err = nil
	f.value = []string{"c"}
	snap = slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Fetched, snap.Outcome)
	assert.Equal(t, []string{"c"}, snap.Data)
}

func TestSlotErrorOnEmptySlot(t *testing.T) {
	slot := newTestSlot(newFakeClock())
	f := &countingFetcher{err: errors.New("boom")}

	snap := slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Failed, snap.Outcome)
	assert.False(t, snap.Populated)
	assert.Nil(t, snap.Data)
	assert.EqualError(t, snap.Err, "boom")

	// The error is not cached.
	assert.NoError(t, slot.Peek().Err)
}

func TestSlotSingleFetchWhileInFlight(t *testing.T) {
	slot := newTestSlot(newFakeClock())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		close(started)
		<-release
		return []string{"slow"}, nil
	}

	done := make(chan Snapshot[[]string])
	go func() {
		done <- slot.Get(context.Background(), false, blocking)
	}()
	<-started

	f := &countingFetcher{value: []string{"other"}}
	snap := slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Busy, snap.Outcome)
	assert.False(t, snap.Populated)
	snap = slot.Get(context.Background(), true, f.fetch)
	assert.Equal(t, Busy, snap.Outcome)
	assert.EqualValues(t, 0, f.calls.Load())

	close(release)
	first := <-done
	assert.Equal(t, Fetched, first.Outcome)
	assert.Equal(t, []string{"slow"}, first.Data)
	assert.EqualValues(t, 1, calls.Load())

	snap = slot.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Hit, snap.Outcome)
	assert.Equal(t, []string{"slow"}, snap.Data)
}

func TestSlotInvalidateDropsRunningFetch(t *testing.T) {
	slot := newTestSlot(newFakeClock())

	started := make(chan struct{})
	release := make(chan struct{})
	stale := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"stale"}, nil
	}

	done := make(chan Snapshot[[]string])
	go func() {
		done <- slot.Get(context.Background(), false, stale)
	}()
	<-started

	slot.Invalidate()

	// A new fetch may start right away.
	f := &countingFetcher{value: []string{"fresh"}}
	snap := slot.Get(context.Background(), false, f.fetch)
	require.Equal(t, Fetched, snap.Outcome)

	close(release)
	late := <-done
	assert.Equal(t, Discarded, late.Outcome)
	assert.Equal(t, []string{"fresh"}, late.Data)
	assert.Equal(t, []string{"fresh"}, slot.Peek().Data)
}

func TestSlotCancelledFetchKeepsEntry(t *testing.T) {
	clock := newFakeClock()
	slot := newTestSlot(clock)
	f := &countingFetcher{value: []string{"a"}}
	slot.Get(context.Background(), false, f.fetch)
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := slot.Get(ctx, false, func(ctx context.Context) ([]string, error) {
		return nil, ctx.Err()
	})
	assert.Equal(t, Failed, snap.Outcome)
	assert.Equal(t, []string{"a"}, snap.Data)
	assert.False(t, slot.Fresh())
}

func TestKeyedSlotsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	k := NewKeyed[string, []string](Options{Name: "detail", TTL: 3 * time.Minute, Clock: clock.Now})
	a := &countingFetcher{value: []string{"a"}}
	b := &countingFetcher{value: []string{"b"}}

	assert.Equal(t, Fetched, k.Get(context.Background(), "a", false, a.fetch).Outcome)
	assert.Equal(t, Fetched, k.Get(context.Background(), "b", false, b.fetch).Outcome)
	assert.Equal(t, Hit, k.Get(context.Background(), "a", false, a.fetch).Outcome)
	assert.Equal(t, 2, k.Len())

	clock.Advance(3 * time.Minute)
	assert.Equal(t, Fetched, k.Get(context.Background(), "a", false, a.fetch).Outcome)
	assert.EqualValues(t, 2, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())

	k.Invalidate("a")
	assert.False(t, k.Peek("a").Populated)
	assert.True(t, k.Peek("b").Populated)

	k.Get(context.Background(), "a", false, a.fetch)
	k.InvalidateFunc(func(key string) bool { return key == "a" })
	assert.False(t, k.Peek("a").Populated)
	assert.True(t, k.Peek("b").Populated)

	k.Clear()
	assert.Equal(t, 0, k.Len())
	assert.False(t, k.Peek("b").Populated)
}

func TestSlotRecoversFromPanickingFetch(t *testing.T) {
	clock := newFakeClock()
	s := newTestSlot(clock)

	assert.PanicsWithValue(t, "store driver blew up", func() {
		s.Get(context.Background(), false, func(context.Context) ([]string, error) {
			panic("store driver blew up")
		})
	})

	f := &countingFetcher{value: []string{"ana"}}
	snap := s.Get(context.Background(), false, f.fetch)
	assert.Equal(t, Fetched, snap.Outcome)
	assert.Equal(t, []string{"ana"}, snap.Data)
	assert.EqualValues(t, 1, f.calls.Load())
}
