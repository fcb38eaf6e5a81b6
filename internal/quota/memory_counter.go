package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is a process-local Counter for tests and single-process runs.
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]int64)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[key]++
	return c.buckets[key], nil
}

func (c *MemoryCounter) GetMany(_ context.Context, keys []string) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make([]int64, len(keys))
	for i, k := range keys {
		counts[i] = c.buckets[k]
	}
	return counts, nil
}

var _ Counter = (*MemoryCounter)(nil)
