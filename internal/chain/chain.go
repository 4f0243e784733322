// Package chain provides the discrete time axis for reward accrual: a
// strictly monotonic block counter. Every state-changing engine operation
// executes in its own block; empty blocks can be mined to advance time.
package chain

import "sync"

// Counter is a monotonically non-decreasing block index.
type Counter struct {
	mu     sync.Mutex
	height uint64
}

// NewCounter creates a counter starting at the given height.
func NewCounter(start uint64) *Counter {
	return &Counter{height: start}
}

// Current returns the current block index.
func (c *Counter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Next advances the counter by one and returns the new block index.
// Called at the entry of every state-changing operation.
func (c *Counter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height++
	return c.height
}

// Advance mines n empty blocks and returns the new height.
func (c *Counter) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}
