// Package syncutil provides keyed locks used to serialize work on one
// entity, such as authorizations against a single session card.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used when none is given.
const DefaultShards = 256

// KeyedMutex is a fixed pool of channel-backed locks selected by key hash.
// Memory stays bounded however many keys are seen; two keys sharing a
// shard simply serialize. Waiters can give up when their context ends.
type KeyedMutex struct {
	shards []chan struct{}
	mask   uint32
}

// NewKeyedMutex creates a keyed mutex with at least n shards, rounded up to
// a power of two. n <= 0 selects DefaultShards.
func NewKeyedMutex(n int) *KeyedMutex {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &KeyedMutex{shards: make([]chan struct{}, size), mask: uint32(size - 1)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

func (m *KeyedMutex) shard(key string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()&m.mask]
}

// LockContext blocks until the lock for key is held or ctx is done. The
// returned unlock func is safe to call more than once.
func (m *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	ch := m.shard(key)
	select {
	case ch <- struct{}{}:
		return releaser(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func releaser(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }
}
