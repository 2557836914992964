package scheduler

import (
	"container/list"
	"context"

	"github.com/dittofs/tapesched/internal/logger"
	"github.com/dittofs/tapesched/pkg/frontend"
	"github.com/dittofs/tapesched/pkg/tape"
)

// indexExtent describes the physical placement of one committed Index
// Partition write, ready to be recorded in the front-end's metadata.
func indexExtent(d *DentryState, req *WriteRequest, blockNum uint64) frontend.Extent {
	return frontend.Extent{
		Partition:  tape.IP,
		StartBlock: blockNum,
		ByteOffset: 0,
		ByteCount:  req.Count,
		FileOffset: req.Offset,
	}
}

// writerLoop is the background writer thread. It sleeps until there is
// Data Partition work or a foreground writer is blocked on cache
// pressure, then picks one of three queues to service based on the same
// policy as the reference scheduler: relieve DP pressure first if waiters
// are piling up faster than DP requests can absorb them, otherwise favor
// coalescing in the working set unless the Index Partition queue itself
// is getting too full.
func (s *Scheduler) writerLoop(ctx context.Context) {
	for {
		s.queueMu.Lock()
		for s.dpQueue.Len() == 0 && s.cacheWaiters == 0 && ctx.Err() == nil {
			s.queueCond.Wait()
		}

		if ctx.Err() != nil {
			s.queueMu.Unlock()
			s.drainOnShutdown(ctx)
			return
		}

		waiters := s.cacheWaiters
		dpReqs := s.dpRequestCount
		ipReqs := s.ipRequestCount
		s.queueMu.Unlock()

		switch {
		case waiters > 0 && dpReqs > 2*waiters:
			s.processDPQueue(ctx)
		case float64(ipReqs) < ipHighWatermarkFraction*float64(s.poolHighWater()):
			s.processWorkingSet(ctx)
		default:
			s.processIPQueue(ctx)
		}

		s.reportQueueMetrics()
	}
}

func (s *Scheduler) poolHighWater() int {
	// The pool doesn't expose its high water mark directly since callers
	// shouldn't normally need it; the writer is the one exception, so it
	// uses the value handed in as Config.PoolHighWaterBlocks.
	return s.poolCapacityHint
}

func (s *Scheduler) drainOnShutdown(ctx context.Context) {
	s.mu.Lock()
	if err := s.flushAllLocked(ctx); err != nil {
		logger.ErrorCtx(ctx, "scheduler: final flush during shutdown failed", "error", err)
	}
	s.mu.Unlock()
	s.processIPQueue(ctx)
	s.drainExtentQueue(ctx)
}

// drainExtentQueue pushes every dentry's accumulated alt-extent list to the
// front-end if it is still write_ip-eligible, discarding it otherwise, and
// removes it from the ext_queue. Called once, after the writer has
// finished draining the ip_queue at shutdown, mirroring
// _unified_free_dentry_priv's write_ip-gated alt_extentlist push at
// unmount.
func (s *Scheduler) drainExtentQueue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queueMu.Lock()
	pending := make([]*DentryState, 0, s.extQueue.Len())
	for e := s.extQueue.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(*DentryState))
	}
	s.queueMu.Unlock()

	for _, d := range pending {
		d.io.Lock()
		s.clearAltExtentsLocked(ctx, d, d.writeIP)
		d.io.Unlock()
	}
}

// processDPQueue drains only the dp_queue (full-block requests), the
// branch taken when foreground writers are piling up waiting on cache
// pressure and need DP space relieved quickly.
func (s *Scheduler) processDPQueue(ctx context.Context) {
	s.processQueue(ctx, s.dpQueue, false)
}

// processWorkingSet drains the dp_queue and, for any dentry that also has
// partial requests, its working-set entries too — coalescing writes as
// long as possible before committing them.
func (s *Scheduler) processWorkingSet(ctx context.Context) {
	s.processQueue(ctx, s.dpQueue, true)
	s.processQueue(ctx, s.workingSet, true)
}

// processQueue pops each dentry currently on q and writes its eligible
// requests to the Data Partition. includePartial also writes Partial
// (not-yet-full) requests, used when draining the working set directly
// under prefer-Partial policy.
func (s *Scheduler) processQueue(ctx context.Context, q *list.List, includePartial bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.queueMu.Lock()
	pending := make([]*DentryState, 0, q.Len())
	for e := q.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(*DentryState))
	}
	s.queueMu.Unlock()

	for _, d := range pending {
		s.drainDentryToDataPartition(ctx, d, includePartial)
	}
}

func (s *Scheduler) drainDentryToDataPartition(ctx context.Context, d *DentryState, includePartial bool) {
	d.io.Lock()
	defer d.io.Unlock()

	s.removeFromQueue(queueDP, d, 0, true)
	if includePartial {
		s.removeFromQueue(queueWorkingSet, d, 0, true)
	}

	blockSize := uint64(s.pool.ObjectSize())

	for i := 0; i < len(d.requests); {
		req := d.requests[i]
		eligible := req.State == RequestDP || (includePartial && req.State == RequestPartial)
		if !eligible {
			i++
			continue
		}

		blockNum := req.Offset / blockSize
		err := s.device.WriteBlock(ctx, s.device.DataPartitionID(), blockNum, req.data())
		if err != nil {
			logger.WarnCtx(ctx, "scheduler: data partition write failed", "dentry", d.name, "request", req.ID, "error", err)
			s.writeIndexAfterPermanentError(ctx, err)
			s.handleWriteErrorLocked(ctx, d, err, req)
			continue
		}

		if d.writeIP {
			req.State = RequestIP
			s.addToQueue(queueIP, d, 1)
			s.tryMergeWithNext(d, i)
			i++
		} else {
			s.removeRequestLocked(d, i)
		}
	}
}

// processIPQueue drains the ip_queue, writing each dentry's committed IP
// requests to the Index Partition and recording the resulting extents in
// the dentry's alt-extent list.
func (s *Scheduler) processIPQueue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queueMu.Lock()
	pending := make([]*DentryState, 0, s.ipQueue.Len())
	for e := s.ipQueue.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(*DentryState))
	}
	s.queueMu.Unlock()

	blockSize := uint64(s.pool.ObjectSize())

	for _, d := range pending {
		d.io.Lock()
		s.removeFromQueue(queueIP, d, 0, true)

		for i := 0; i < len(d.requests); {
			req := d.requests[i]
			if req.State != RequestIP {
				i++
				continue
			}

			blockNum := req.Offset / blockSize
			err := s.device.WriteBlock(ctx, s.device.IndexPartitionID(), blockNum, req.data())
			if err != nil {
				logger.WarnCtx(ctx, "scheduler: index partition write failed", "dentry", d.name, "request", req.ID, "error", err)
				s.handleWriteErrorLocked(ctx, d, err, req)
				continue
			}

			s.insertAltExtentLocked(d, indexExtent(d, req, blockNum))
			s.removeRequestLocked(d, i)
		}

		d.io.Unlock()
	}
}

// insertAltExtentLocked merges newExt into d's sorted, non-overlapping
// alt-extent list, mirroring _unified_update_alt_extentlist: a new extent
// that directly continues an existing one on a block boundary extends it
// in place; one that fully covers an existing entry deletes it; one that
// partially overlaps truncates the existing entry from whichever end
// overlaps (re-deriving start_block/byte_offset when truncating from the
// front); anything left over is inserted in file-offset order. Adds d to
// the ext_queue if this is its first alt extent. Caller holds d.io.
func (s *Scheduler) insertAltExtentLocked(d *DentryState, newExt frontend.Extent) {
	if len(d.altExtents) == 0 {
		d.altExtents = append(d.altExtents, newExt)
		s.addToQueue(queueExt, d, 0)
		return
	}

	blockSize := uint64(s.pool.ObjectSize())
	newEnd := newExt.FileOffset + uint64(newExt.ByteCount)

	inserted := false
	out := make([]frontend.Extent, 0, len(d.altExtents)+1)

	for i := 0; i < len(d.altExtents); i++ {
		entry := d.altExtents[i]
		entryEnd := entry.FileOffset + uint64(entry.ByteCount)

		if !inserted && newExt.FileOffset <= entry.FileOffset {
			out = append(out, newExt)
			inserted = true
		}

		switch {
		case entryEnd < newExt.FileOffset:
			// entry ends before newExt starts: no relation, keep as-is.
			out = append(out, entry)

		case entryEnd == newExt.FileOffset:
			entryByteEnd := uint64(entry.ByteOffset) + uint64(entry.ByteCount)
			entryBlocks := entryByteEnd / blockSize
			if newExt.ByteOffset == 0 && entryByteEnd%blockSize == 0 &&
				entry.StartBlock+entryBlocks == newExt.StartBlock {
				entry.ByteCount += newExt.ByteCount
				inserted = true
			}
			out = append(out, entry)

		case entry.FileOffset < newExt.FileOffset:
			if entryEnd <= newEnd {
				// Truncate entry from its end.
				entry.ByteCount = uint32(newExt.FileOffset - entry.FileOffset)
			}
			// Else: to achieve maximum compactness entry should be split
			// and newExt inserted between the two halves. Skip the split
			// to avoid the extra allocation; newExt is inserted after
			// entry instead, which is still correct, just less compact.
			out = append(out, entry)

		case entryEnd <= newEnd:
			// entry fully covered by newExt: drop it.

		case entry.FileOffset < newEnd:
			// Truncate entry from its beginning.
			fileOffsetDiff := newEnd - entry.FileOffset
			byteOffsetMod := fileOffsetDiff + uint64(entry.ByteOffset)
			entry.StartBlock += byteOffsetMod / blockSize
			entry.ByteOffset = uint32(byteOffsetMod % blockSize)
			entry.ByteCount -= uint32(fileOffsetDiff)
			entry.FileOffset += fileOffsetDiff
			out = append(out, entry)

		default:
			// entry lies entirely past newExt: nothing left to do.
			out = append(out, d.altExtents[i:]...)
			i = len(d.altExtents)
		}
	}

	if !inserted {
		out = append(out, newExt)
	}

	d.altExtents = out
	s.addToQueue(queueExt, d, 0)
}

// clearAltExtentsLocked removes every alt extent from d's list, optionally
// pushing each to the front-end first, mirroring
// _unified_clear_alt_extentlist(save, ...): save=true sends the
// accumulated extents to the front-end (dentry still write_ip-eligible at
// free/shutdown time); save=false discards them (write_ip was revoked).
// Caller holds d.io.
func (s *Scheduler) clearAltExtentsLocked(ctx context.Context, d *DentryState, save bool) {
	if len(d.altExtents) == 0 {
		return
	}
	if save {
		for _, ext := range d.altExtents {
			if err := s.host.AddExtent(ctx, d.name, ext); err != nil {
				logger.WarnCtx(ctx, "scheduler: failed to record index partition extent", "dentry", d.name, "error", err)
			}
		}
	}
	d.altExtents = nil
	s.removeFromQueue(queueExt, d, 0, true)
}
