package syncutil

import (
	"context"
	"hash/fnv"
)

const contextShards = 128

// ContextShardedMutex serializes work per key with cancellable acquisition.
// Checkout uses it to order one buyer's debits: a caller whose context ends
// while queued gives up instead of holding the buyer's purchases hostage.
//
// Keys map onto a fixed set of slots, so memory stays bounded and two keys
// may occasionally share a slot.
type ContextShardedMutex struct {
	slots []chan struct{}
}

// NewContextShardedMutex creates a context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{slots: make([]chan struct{}, contextShards)}
	for i := range m.slots {
		m.slots[i] = make(chan struct{}, 1)
	}
	return m
}

// LockContext acquires the slot for key, waiting until it is free or ctx
// ends. On success it returns the unlock function, which the caller must
// invoke; on cancellation it returns the context's error and nothing is
// held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	slot := m.slots[h.Sum32()%contextShards]

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
