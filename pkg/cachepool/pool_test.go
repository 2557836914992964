package cachepool

import (
	"context"
	"testing"
	"time"
)

// ============================================================================
// Construction
// ============================================================================

func TestNew_EagerlyAllocatesLowWater(t *testing.T) {
	p, err := New(64, 4, 16, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.current != 4 {
		t.Fatalf("expected current capacity 4, got %d", p.current)
	}
	if len(p.free) != 4 {
		t.Fatalf("expected 4 free blocks, got %d", len(p.free))
	}
}

func TestNew_RejectsInvalidWaterMarks(t *testing.T) {
	if _, err := New(64, 16, 4, nil); err == nil {
		t.Fatal("expected error when low water exceeds high water")
	}
	if _, err := New(64, 0, 4, nil); err == nil {
		t.Fatal("expected error for zero low water")
	}
	if _, err := New(0, 4, 4, nil); err == nil {
		t.Fatal("expected error for zero object size")
	}
}

// ============================================================================
// Allocate / growth
// ============================================================================

func TestAllocate_SatisfiesFromFreeListFirst(t *testing.T) {
	p, _ := New(64, 4, 16, nil)
	b, ok := p.Allocate()
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if len(b.Data()) != 64 {
		t.Fatalf("expected block size 64, got %d", len(b.Data()))
	}
	if p.current != 4 {
		t.Fatalf("allocating from the free list should not grow capacity, got %d", p.current)
	}
}

func TestAllocate_GrowsPoolOnceFreeListIsExhausted(t *testing.T) {
	p, _ := New(64, 4, 32, nil)

	held := drain(t, p, 4)
	if p.current != 4 {
		t.Fatalf("expected capacity unchanged at 4 before growth, got %d", p.current)
	}

	b5, ok := p.Allocate()
	if !ok {
		t.Fatal("expected growth to satisfy a 5th allocation")
	}
	if p.current != 8 {
		t.Fatalf("expected doubling to 8, got %d", p.current)
	}
	releaseAll(p, append(held, b5))
}

func TestGrowLocked_DoublesJumpsToHalfOrCapsAtHigh(t *testing.T) {
	p := &Pool{objectSize: 64, high: 100}
	// current == 0: jump to high/2
	if err := p.growLocked(); err != nil {
		t.Fatalf("growLocked failed: %v", err)
	}
	if p.current != 50 {
		t.Fatalf("expected jump to high/2=50 from zero, got %d", p.current)
	}

	// current*2 (100) == high (100): not < high, so jump straight to high
	if err := p.growLocked(); err != nil {
		t.Fatalf("growLocked failed: %v", err)
	}
	if p.current != 100 {
		t.Fatalf("expected jump to high=100, got %d", p.current)
	}

	if err := p.growLocked(); err == nil {
		t.Fatal("expected error growing past high water")
	}
}

func TestGrowLocked_DoublesWhenRoomRemains(t *testing.T) {
	p, _ := New(64, 10, 100, nil)
	if err := p.growLocked(); err != nil {
		t.Fatalf("growLocked failed: %v", err)
	}
	if p.current != 20 {
		t.Fatalf("expected doubling to 20, got %d", p.current)
	}
}

// ============================================================================
// Release / shrink
// ============================================================================

func TestRelease_ShrinksAboveLowWater(t *testing.T) {
	p, _ := New(64, 4, 32, nil)
	// Force growth to 8 by draining the initial 4 and allocating a 5th.
	held := drain(t, p, 4)
	b5, ok := p.Allocate()
	if !ok {
		t.Fatal("expected growth to satisfy 5th allocation")
	}
	if p.current != 8 {
		t.Fatalf("expected growth to 8 (double of 4), got %d", p.current)
	}

	p.Release(b5)
	if p.current != 7 {
		t.Fatalf("expected release above low water to shrink capacity to 7, got %d", p.current)
	}

	releaseAll(p, held)
	if p.current != 4 {
		t.Fatalf("expected capacity to settle back at low water 4, got %d", p.current)
	}
}

func TestRelease_KeepsBlockOnFreeListAtLowWater(t *testing.T) {
	p, _ := New(64, 4, 32, nil)
	b, _ := p.Allocate()
	p.Release(b)
	if p.current != 4 {
		t.Fatalf("expected capacity to stay at low water, got %d", p.current)
	}
	if len(p.free) != 4 {
		t.Fatalf("expected released block back on free list, got %d free", len(p.free))
	}
}

func TestRelease_RefcountedBlockSurvivesUntilLastRelease(t *testing.T) {
	p, _ := New(64, 4, 32, nil)
	b, _ := p.Allocate()
	b.Retain()

	p.Release(b)
	if len(p.free) != 3 {
		t.Fatalf("block still referenced once should not return to free list, got %d free", len(p.free))
	}

	p.Release(b)
	if len(p.free) != 4 {
		t.Fatalf("block should return to free list after last release, got %d free", len(p.free))
	}
}

// ============================================================================
// Wait / blocking
// ============================================================================

func TestWait_BlocksUntilReleaseThenSucceeds(t *testing.T) {
	p, _ := New(64, 1, 1, nil)
	held, ok := p.Allocate()
	if !ok {
		t.Fatal("expected first allocation to succeed")
	}

	done := make(chan struct{})
	var waited *Block
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b, err := p.Wait(ctx)
		if err != nil {
			t.Errorf("Wait failed: %v", err)
		}
		waited = b
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the pool had any room")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(held)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Release")
	}
	if waited == nil {
		t.Fatal("expected Wait to return a block")
	}
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	p, _ := New(64, 1, 1, nil)
	_, _ = p.Allocate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Wait(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}

// ============================================================================
// HasRoom
// ============================================================================

func TestHasRoom(t *testing.T) {
	p, _ := New(64, 1, 1, nil)
	if !p.HasRoom() {
		t.Fatal("expected room with a free block available")
	}
	b, _ := p.Allocate()
	if p.HasRoom() {
		t.Fatal("expected no room at high water with no free blocks")
	}
	p.Release(b)
	if !p.HasRoom() {
		t.Fatal("expected room again after release")
	}
}

// ============================================================================
// helpers
// ============================================================================

func drain(t *testing.T, p *Pool, n int) []*Block {
	t.Helper()
	blocks := make([]*Block, 0, n)
	for i := 0; i < n; i++ {
		b, ok := p.Allocate()
		if !ok {
			t.Fatalf("expected allocation %d/%d to succeed", i+1, n)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func releaseAll(p *Pool, blocks []*Block) {
	for _, b := range blocks {
		p.Release(b)
	}
}
