// Package loader coalesces concurrent point lookups into batches.
//
// Calls to Load that arrive within the coalescing window are collected and
// dispatched as one call to the batch function, then demultiplexed back to
// each caller by key. Callers never see each other's keys or results; the
// only observable effect is fewer round trips.
package loader

import (
	"context"
	"sync"
	"time"
)

// DefaultWait is the coalescing window used when New is given zero.
const DefaultWait = 2 * time.Millisecond

// BatchFunc resolves a set of distinct keys in one shot. Keys absent from
// the returned map resolve to the zero value, not an error.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Loader batches Load calls for one kind of lookup. Safe for concurrent
// use.
type Loader[K comparable, V any] struct {
	wait  time.Duration
	fetch BatchFunc[K, V]

	mu  sync.Mutex
	cur *batch[K, V]
}

type batch[K comparable, V any] struct {
	ctx     context.Context
	keys    []K
	seen    map[K]bool
	done    chan struct{}
	results map[K]V
	err     error
}

// New builds a loader with the given coalescing window.
func New[K comparable, V any](wait time.Duration, fetch BatchFunc[K, V]) *Loader[K, V] {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Loader[K, V]{wait: wait, fetch: fetch}
}

// Load resolves one key, joining the in-flight batch if one is open.
// The batch runs under the context of the call that opened it; an
// individual caller's cancellation only abandons that caller's wait.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	b := l.cur
	if b == nil {
		b = &batch[K, V]{
			ctx:  ctx,
			seen: make(map[K]bool),
			done: make(chan struct{}),
		}
		l.cur = b
		time.AfterFunc(l.wait, func() { l.dispatch(b) })
	}
	if !b.seen[key] {
		b.seen[key] = true
		b.keys = append(b.keys, key)
	}
	l.mu.Unlock()

	var zero V
	select {
	case <-b.done:
		if b.err != nil {
			return zero, b.err
		}
		return b.results[key], nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	l.mu.Lock()
	if l.cur == b {
		l.cur = nil
	}
	l.mu.Unlock()

	b.results, b.err = l.fetch(b.ctx, b.keys)
	close(b.done)
}
