package scheduler

import (
	"context"
	"fmt"

	"github.com/dittofs/tapesched/internal/logger"
	"github.com/dittofs/tapesched/pkg/errcode"
)

// Open registers a new handle against dentry, creating its scheduler state
// on first open.
func (s *Scheduler) Open(ctx context.Context, dentry string) error {
	s.traceEnter("open", dentry)
	defer s.traceExit("open", dentry)

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.getOrCreateDentry(dentry)
	d.io.Lock()
	d.openHandles++
	d.io.Unlock()
	return nil
}

// Close drops a handle against dentry, optionally flushing first, and
// returns any sticky write error accumulated since the last time it was
// observed.
func (s *Scheduler) Close(ctx context.Context, dentry string, flush bool) error {
	s.traceEnter("close", dentry)
	defer s.traceExit("close", dentry)

	s.mu.RLock()
	d := s.lookupDentry(dentry)
	if d == nil {
		s.mu.RUnlock()
		return nil
	}

	var flushErr error
	if flush {
		flushErr = s.flushDentryLocked(ctx, d)
	}
	writeErr := d.takeWriteError()

	d.io.Lock()
	d.openHandles--
	d.io.Unlock()
	s.mu.RUnlock()

	s.freeDentryIfIdle(d)

	if flushErr != nil {
		return flushErr
	}
	return writeErr
}

// GetSize returns the dentry's logical size including outstanding,
// uncommitted write requests.
func (s *Scheduler) GetSize(ctx context.Context, dentry string) (uint64, error) {
	s.traceEnter("get_size", dentry)
	defer s.traceExit("get_size", dentry)

	d := s.lookupDentry(dentry)
	if d == nil {
		return s.host.ReportedSize(ctx, dentry)
	}
	d.io.Lock()
	size := d.fileSize
	d.io.Unlock()
	return size, nil
}

// Read satisfies a read by combining data from outstanding write requests
// with a raw read through the front-end for any gaps. Pending writes
// always win over the front-end's view, and the newest write covering a
// byte wins over an older one (enforced by the sorted, non-overlapping
// request list itself: only one request can ever cover a given byte).
func (s *Scheduler) Read(ctx context.Context, dentry string, buf []byte, offset uint64) (int, error) {
	s.traceEnter("read", dentry)
	defer s.traceExit("read", dentry)

	if len(buf) == 0 {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.lookupDentry(dentry)
	if d == nil {
		return s.host.RawReadAt(ctx, dentry, buf, offset)
	}

	d.io.Lock()
	if len(d.requests) == 0 {
		d.io.Unlock()
		return s.host.RawReadAt(ctx, dentry, buf, offset)
	}

	type gap struct {
		bufOff int
		offset uint64
		length int
	}
	var gaps []gap

	total := 0
	want := offset + uint64(len(buf))
	cur := offset
	bufOff := 0

	for _, req := range d.requests {
		if want <= cur {
			break
		}
		if cur < req.Offset {
			length := int(req.Offset - cur)
			if uint64(length) > want-cur {
				length = int(want - cur)
			}
			gaps = append(gaps, gap{bufOff, cur, length})
			bufOff += length
			cur += uint64(length)
			total += length
			if cur >= want {
				break
			}
		}
		if cur < req.End() {
			length := int(req.End() - cur)
			if uint64(length) > want-cur {
				length = int(want - cur)
			}
			copy(buf[bufOff:bufOff+length], req.data()[cur-req.Offset:])
			bufOff += length
			cur += uint64(length)
			total += length
			if cur >= want {
				break
			}
		}
	}
	if cur < want {
		length := int(want - cur)
		gaps = append(gaps, gap{bufOff, cur, length})
		total += length
	}
	d.io.Unlock()

	for _, g := range gaps {
		n, err := s.host.RawReadAt(ctx, dentry, buf[g.bufOff:g.bufOff+g.length], g.offset)
		if err != nil {
			return 0, err
		}
		if n < g.length {
			for i := g.bufOff + n; i < g.bufOff+g.length; i++ {
				buf[i] = 0
			}
		}
	}

	return total, nil
}

// Write inserts len(buf) bytes at offset into dentry's request list,
// allocating cache blocks as needed and signaling the background writer
// when cache pressure occurs. It never calls through to the tape layer
// directly.
func (s *Scheduler) Write(ctx context.Context, dentry string, buf []byte, offset uint64) (int, error) {
	s.traceEnter("write", dentry)
	defer s.traceExit("write", dentry)

	if len(buf) == 0 {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.getOrCreateDentry(dentry)

	if err := d.takeWriteError(); err != nil {
		return 0, err
	}
	if ro, err := s.host.IsReadOnly(ctx, dentry); err != nil {
		return 0, err
	} else if ro {
		return 0, errcode.New(errcode.ReadOnlyVolume, dentry, "volume is read-only")
	}

	s.updatePlacementForWrite(ctx, d, offset+uint64(len(buf)))

	remaining := buf
	off := offset
	written := 0

	for len(remaining) > 0 {
		d.io.Lock()
		idx := d.findIndex(off)

		if idx < len(d.requests) && d.requests[idx].Offset <= off {
			req := d.requests[idx]
			if req.State != RequestIP {
				n := s.updateRequestLocked(d, req, remaining, off)
				s.tryMergeWithNext(d, idx)
				d.io.Unlock()
				off += uint64(n)
				remaining = remaining[n:]
				written += n
				continue
			}

			consumed := s.resolveIPOverlapLocked(d, idx, off, remaining)
			d.io.Unlock()
			if consumed > 0 {
				off += uint64(consumed)
				remaining = remaining[consumed:]
				written += consumed
			}
			continue
		}

		if idx > 0 {
			prev := d.requests[idx-1]
			if prev.End() == off && prev.State != RequestIP && uint64(prev.Count) < uint64(s.pool.ObjectSize()) {
				n := s.updateRequestLocked(d, prev, remaining, off)
				s.tryMergeWithNext(d, idx-1)
				d.io.Unlock()
				off += uint64(n)
				remaining = remaining[n:]
				written += n
				continue
			}
		}
		d.io.Unlock()

		block, err := s.allocateBlock(ctx)
		if err != nil {
			return written, fmt.Errorf("scheduler: allocating cache block: %w", err)
		}

		d.io.Lock()
		req := s.insertRequestLocked(d, off, remaining, block, false)
		n := int(req.Count)
		d.io.Unlock()

		off += uint64(n)
		remaining = remaining[n:]
		written += n
	}

	s.queueCond.Broadcast()
	return written, nil
}

// Truncate shortens or extends dentry's logical size. Shrinking drops or
// truncates any write requests past the new size.
func (s *Scheduler) Truncate(ctx context.Context, dentry string, length uint64) error {
	s.traceEnter("truncate", dentry)
	defer s.traceExit("truncate", dentry)

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.getOrCreateDentry(dentry)

	d.io.Lock()
	defer d.io.Unlock()

	idx := d.findIndex(length)
	for idx < len(d.requests) {
		req := d.requests[idx]
		if req.Offset >= length {
			s.removeRequestLocked(d, idx)
			continue
		}
		if req.End() > length {
			req.Count = uint32(length - req.Offset)
			if req.State == RequestDP {
				s.removeFromQueue(queueDP, d, 1, false)
				req.State = RequestPartial
				s.addToQueue(queueWorkingSet, d, 1)
			}
		}
		idx++
	}
	if length < d.fileSize || len(d.requests) == 0 || d.requests[len(d.requests)-1].End() <= length {
		d.fileSize = length
	}

	return nil
}

// Flush forces dentry's pending requests to the tape device, in
// foreground-caller time rather than waiting for the background writer.
func (s *Scheduler) Flush(ctx context.Context, dentry string) error {
	s.traceEnter("flush", dentry)
	defer s.traceExit("flush", dentry)

	s.mu.RLock()
	d := s.lookupDentry(dentry)
	s.mu.RUnlock()
	if d == nil {
		return nil
	}

	s.mu.RLock()
	err := s.flushDentryLocked(ctx, d)
	s.mu.RUnlock()
	return err
}

// UpdateDataPlacement re-evaluates whether dentry belongs on the Index
// Partition, given its current size and the front-end's naming criteria.
// Called by the front-end after metadata that affects placement changes
// (e.g. a rename).
func (s *Scheduler) UpdateDataPlacement(ctx context.Context, dentry string) error {
	s.traceEnter("update_data_placement", dentry)
	defer s.traceExit("update_data_placement", dentry)

	d := s.lookupDentry(dentry)
	if d == nil {
		return nil
	}

	d.io.Lock()
	size := d.fileSize
	d.io.Unlock()

	s.updatePlacementForWrite(ctx, d, size)
	return nil
}

// updatePlacementForWrite sets or clears write_ip based on the projected
// file size, the front-end's naming criteria, and deletion status.
func (s *Scheduler) updatePlacementForWrite(ctx context.Context, d *DentryState, projectedSize uint64) {
	if s.maxIPFileSize == 0 {
		return
	}

	matches, err := s.host.MatchesIPNameCriteria(ctx, d.name)
	if err != nil {
		logger.WarnCtx(ctx, "scheduler: failed to evaluate IP name criteria", "dentry", d.name, "error", err)
		return
	}
	deleted, err := s.host.IsDeleted(ctx, d.name)
	if err != nil {
		logger.WarnCtx(ctx, "scheduler: failed to evaluate deletion status", "dentry", d.name, "error", err)
		return
	}

	d.io.Lock()
	defer d.io.Unlock()

	eligible := projectedSize <= s.maxIPFileSize && matches && !deleted
	if !d.writeIP && eligible {
		s.setWriteIPLocked(d)
	} else if d.writeIP && !eligible {
		s.unsetWriteIPLocked(ctx, d)
	}
}
