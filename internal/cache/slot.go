// internal/cache/slot.go
package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Fetcher loads a fresh value for a slot.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Outcome tells a caller how Get produced its snapshot.
type Outcome int

const (
	// Hit means a fresh cached value was returned without fetching.
	Hit Outcome = iota
	// Fetched means this call performed the fetch and stored its result.
	Fetched
	// Busy means another fetch was in flight; the slot was left untouched.
	Busy
	// Failed means the fetch errored; the previous value (if any) is kept.
	Failed
	// Discarded means the fetch finished after the slot was invalidated.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Fetched:
		return "fetched"
	case Busy:
		return "busy"
	case Failed:
		return "failed"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// Snapshot is what a slot holds at a point in time. Err carries the error
// of a fetch made by this call; it is never cached.
type Snapshot[T any] struct {
	Data      T
	FetchedAt time.Time
	Populated bool
	Outcome   Outcome
	Err       error
}

// Options configures a slot or a keyed set of slots.
type Options struct {
	Name   string
	TTL    time.Duration
	Clock  func() time.Time
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Name == "" {
		o.Name = "cache"
	}
	return o
}

type counters struct {
	name     string
	requests metric.Int64Counter
}

func newCounters(name string) counters {
	meter := otel.Meter("gymdesk/cache")
	requests, _ := meter.Int64Counter("cache.requests",
		metric.WithDescription("Cache lookups by outcome"))
	return counters{name: name, requests: requests}
}

func (c counters) record(ctx context.Context, o Outcome) {
	if c.requests == nil {
		return
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", c.name),
		attribute.String("cache.outcome", o.String()),
	))
}

// Slot holds one cached value with a freshness window. At most one fetch
// runs per slot at a time; callers arriving while it runs get the slot's
// current contents back immediately rather than waiting. A failed fetch
// never clears what was cached before.
type Slot[T any] struct {
	opts    Options
	metrics counters
	key     string

	mu         sync.Mutex
	data       T
	fetchedAt  time.Time
	populated  bool
	inFlight   bool
	generation uint64
}

// NewSlot creates an empty slot.
func NewSlot[T any](opts Options) *Slot[T] {
	opts = opts.withDefaults()
	return &Slot[T]{opts: opts, metrics: newCounters(opts.Name)}
}

// Get returns the cached value when it is fresh and force is false;
// otherwise it runs fetch and replaces the value wholesale on success.
func (s *Slot[T]) Get(ctx context.Context, force bool, fetch Fetcher[T]) Snapshot[T] {
	s.mu.Lock()
	if s.inFlight {
		snap := s.snapshotLocked(Busy)
		s.mu.Unlock()
		s.metrics.record(ctx, Busy)
		return snap
	}
	if s.populated && !force && s.opts.Clock().Sub(s.fetchedAt) < s.opts.TTL {
		snap := s.snapshotLocked(Hit)
		s.mu.Unlock()
		s.metrics.record(ctx, Hit)
		return snap
	}
	s.inFlight = true
	gen := s.generation
	s.mu.Unlock()

	data, err := s.run(ctx, gen, fetch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.opts.Logger.Debug("dropping fetch for invalidated cache entry",
			zap.String("cache", s.opts.Name),
			zap.String("key", s.key))
		s.metrics.record(ctx, Discarded)
		return s.snapshotLocked(Discarded)
	}
	s.inFlight = false
	if err != nil {
		s.opts.Logger.Warn("cache fetch failed, keeping previous entry",
			zap.String("cache", s.opts.Name),
			zap.String("key", s.key),
			zap.Bool("has_previous", s.populated),
			zap.Error(err))
		s.metrics.record(ctx, Failed)
		snap := s.snapshotLocked(Failed)
		snap.Err = err
		return snap
	}
	s.data = data
	s.fetchedAt = s.opts.Clock()
	s.populated = true
	s.metrics.record(ctx, Fetched)
	return s.snapshotLocked(Fetched)
}

// run calls fetch and releases the in-flight mark if it panics, unless the
// slot was invalidated meanwhile.
func (s *Slot[T]) run(ctx context.Context, gen uint64, fetch Fetcher[T]) (T, error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			if gen == s.generation {
				s.inFlight = false
			}
			s.mu.Unlock()
			panic(r)
		}
	}()
	return fetch(ctx)
}

// Peek returns the slot's contents without fetching.
func (s *Slot[T]) Peek() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(Hit)
}

// Fresh reports whether the slot holds a value inside its freshness window.
func (s *Slot[T]) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populated && s.opts.Clock().Sub(s.fetchedAt) < s.opts.TTL
}

// Invalidate empties the slot. A fetch already running when Invalidate is
// called will not store its result.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.data = zero
	s.fetchedAt = time.Time{}
	s.populated = false
	s.inFlight = false
	s.generation++
}

func (s *Slot[T]) snapshotLocked(o Outcome) Snapshot[T] {
	return Snapshot[T]{
		Data:      s.data,
		FetchedAt: s.fetchedAt,
		Populated: s.populated,
		Outcome:   o,
	}
}
