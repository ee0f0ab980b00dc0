// internal/cache/keyed.go
package cache

import (
	"context"
	"fmt"
	"sync"
)

// Keyed is a set of independent slots sharing one configuration, created
// lazily per key.
type Keyed[K comparable, T any] struct {
	opts    Options
	metrics counters

	mu    sync.Mutex
	slots map[K]*Slot[T]
}

// NewKeyed creates an empty keyed cache.
func NewKeyed[K comparable, T any](opts Options) *Keyed[K, T] {
	opts = opts.withDefaults()
	return &Keyed[K, T]{
		opts:    opts,
		metrics: newCounters(opts.Name),
		slots:   make(map[K]*Slot[T]),
	}
}

func (k *Keyed[K, T]) slot(key K) *Slot[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &Slot[T]{opts: k.opts, metrics: k.metrics, key: fmt.Sprint(key)}
		k.slots[key] = s
	}
	return s
}

// Get is Slot.Get on the slot for key.
func (k *Keyed[K, T]) Get(ctx context.Context, key K, force bool, fetch Fetcher[T]) Snapshot[T] {
	return k.slot(key).Get(ctx, force, fetch)
}

// Peek returns the contents of key's slot without fetching.
func (k *Keyed[K, T]) Peek(key K) Snapshot[T] {
	k.mu.Lock()
	s, ok := k.slots[key]
	k.mu.Unlock()
	if !ok {
		return Snapshot[T]{}
	}
	return s.Peek()
}

// Invalidate empties key's slot and drops any fetch running for it.
func (k *Keyed[K, T]) Invalidate(key K) {
	k.mu.Lock()
	s, ok := k.slots[key]
	delete(k.slots, key)
	k.mu.Unlock()
	if ok {
		s.Invalidate()
	}
}

// InvalidateFunc invalidates every slot whose key matches.
func (k *Keyed[K, T]) InvalidateFunc(match func(K) bool) {
	k.mu.Lock()
	var dropped []*Slot[T]
	for key, s := range k.slots {
		if match(key) {
			dropped = append(dropped, s)
			delete(k.slots, key)
		}
	}
	k.mu.Unlock()
	for _, s := range dropped {
		s.Invalidate()
	}
}

// Clear invalidates every slot.
func (k *Keyed[K, T]) Clear() {
	k.mu.Lock()
	slots := k.slots
	k.slots = make(map[K]*Slot[T])
	k.mu.Unlock()
	for _, s := range slots {
		s.Invalidate()
	}
}

// Len reports how many keys currently have a slot.
func (k *Keyed[K, T]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
