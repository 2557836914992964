// Package cachepool implements the scheduler's fixed-object-size cache
// block pool: a free list that grows geometrically between a low water
// mark (its floor, never shrunk below) and a high water mark (its ceiling,
// enforced by a weighted semaphore so foreground writers block instead of
// overshooting it).
package cachepool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dittofs/tapesched/pkg/metrics"
)

// Block is one fixed-size cache object. Blocks are reference counted: a
// request list entry and an in-flight I/O can each hold a reference, and
// the block only returns to the pool's free list once the last one is
// released.
type Block struct {
	data     []byte
	refcount int
	pool     *Pool
}

// Data returns the block's backing storage. Callers must not retain it
// past Release.
func (b *Block) Data() []byte { return b.data }

// Retain adds a reference to the block. Each Retain needs a matching
// Release before the block can return to the free list.
func (b *Block) Retain() {
	b.pool.mu.Lock()
	b.refcount++
	b.pool.mu.Unlock()
}

// Pool is a fixed-object-size block pool with low/high water marks.
//
// Growth and shrink policy mirrors the reference cache manager exactly:
// Allocate grows the free list by doubling (or jumping straight to
// high/2 from empty, or to high if doubling would overshoot it) whenever
// the free list is empty and current capacity is still under high water;
// Release shrinks one object at a time once current capacity exceeds low
// water and the released block was the last reference.
type Pool struct {
	objectSize int
	low        int
	high       int

	mu      sync.Mutex
	current int
	free    []*Block

	sem     *semaphore.Weighted
	metrics metrics.Collector
}

// New creates a Pool of objects sized objectSize, with initial_capacity
// low and max_capacity high, and eagerly allocates low blocks.
func New(objectSize, low, high int, m metrics.Collector) (*Pool, error) {
	if objectSize <= 0 {
		return nil, fmt.Errorf("cachepool: objectSize must be positive, got %d", objectSize)
	}
	if low <= 0 || high <= 0 {
		return nil, fmt.Errorf("cachepool: low/high water marks must be positive, got low=%d high=%d", low, high)
	}
	if low > high {
		return nil, fmt.Errorf("cachepool: low water (%d) exceeds high water (%d)", low, high)
	}

	p := &Pool{
		objectSize: objectSize,
		low:        low,
		high:       high,
		sem:        semaphore.NewWeighted(int64(high)),
		metrics:    m,
	}

	p.free = make([]*Block, 0, low)
	for i := 0; i < low; i++ {
		p.free = append(p.free, p.newBlock())
	}
	p.current = low

	p.reportLocked()
	return p, nil
}

func (p *Pool) newBlock() *Block {
	return &Block{data: make([]byte, p.objectSize), pool: p}
}

// ObjectSize returns the fixed size of every block in the pool.
func (p *Pool) ObjectSize() int { return p.objectSize }

// HasRoom reports whether the pool could satisfy another Allocate right
// now, either from the free list or by growing. It does not reserve
// anything; a concurrent Allocate can still race it.
func (p *Pool) HasRoom() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free) > 0 || p.current < p.high
}

// Allocate attempts a non-blocking allocation. ok is false if the pool is
// at high water with no free blocks, in which case the caller is expected
// to register as a cache waiter and call Wait instead.
func (p *Pool) Allocate() (block *Block, ok bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}
	b, err := p.takeOrGrow()
	if err != nil {
		// Capacity accounting said a slot was free but growth failed
		// (out of memory); give the permit back.
		p.sem.Release(1)
		return nil, false
	}
	return b, true
}

// Wait blocks until a block becomes available or ctx is done, registering
// the calling goroutine as a cache waiter for the duration. Callers that
// block here must restart their write from the untouched tail of the
// request once a block is obtained, since other requests may have merged
// or advanced the dentry's state while they waited.
func (p *Pool) Wait(ctx context.Context) (*Block, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	b, err := p.takeOrGrow()
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return b, nil
}

// takeOrGrow pops a block off the free list, growing the pool first if the
// free list is empty. Caller must already hold a semaphore permit.
func (p *Pool) takeOrGrow() (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		if err := p.growLocked(); err != nil {
			return nil, err
		}
	}

	n := len(p.free) - 1
	b := p.free[n]
	p.free = p.free[:n]
	b.refcount = 1

	p.reportLocked()
	return b, nil
}

// growLocked grows current capacity when the free list has run dry. The
// new_size branch matches the reference cache manager: double current
// capacity, unless doubling would overshoot high water (in which case jump
// straight to high), and jump straight to high/2 if current capacity is
// zero.
func (p *Pool) growLocked() error {
	if p.current >= p.high {
		return fmt.Errorf("cachepool: at max capacity (%d blocks)", p.high)
	}

	var newSize int
	switch {
	case p.current == 0:
		newSize = p.high / 2
		if newSize == 0 {
			newSize = p.high
		}
	case p.current*2 < p.high:
		newSize = p.current * 2
	default:
		newSize = p.high
	}

	for i := p.current; i < newSize; i++ {
		p.free = append(p.free, p.newBlock())
	}
	p.current = newSize
	return nil
}

// Release drops a reference on b. If the refcount reaches zero, the block
// either returns to the free list (zeroed) or, if current capacity is
// above low water, is discarded entirely to shrink the pool by one object.
func (p *Pool) Release(b *Block) {
	p.mu.Lock()
	b.refcount--
	if b.refcount > 0 {
		p.mu.Unlock()
		return
	}

	if p.current > p.low {
		p.current--
	} else {
		clear(b.data)
		p.free = append(p.free, b)
	}
	p.reportLocked()
	p.mu.Unlock()

	p.sem.Release(1)
}

// reportLocked pushes current pool occupancy to the metrics collector.
// Caller must hold p.mu.
func (p *Pool) reportLocked() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetPoolCapacity(p.current)
	p.metrics.SetPoolFree(len(p.free))
}
