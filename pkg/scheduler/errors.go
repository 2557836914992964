package scheduler

import (
	"context"
	"errors"

	"github.com/dittofs/tapesched/internal/logger"
	"github.com/dittofs/tapesched/pkg/errcode"
	"github.com/dittofs/tapesched/pkg/tape"
)

// handleWriteErrorLocked propagates a failed write for failedReq and
// clears the requests it makes unsafe to keep. The error is stamped
// sticky on d unless it is the one soft case where the Index Partition
// alone ran out of space: the Data Partition copy is still good, so the
// caller is never told. Caller holds d.io.
func (s *Scheduler) handleWriteErrorLocked(ctx context.Context, d *DentryState, writeErr error, failedReq *WriteRequest) {
	code := errorCode(writeErr)

	softIPError := failedReq.State == RequestIP && errcode.IsSoftIPError(code)
	if !softIPError {
		d.setWriteErrorIfAbsent(writeErr)
		if s.metrics != nil {
			partition := s.device.DataPartitionID()
			if failedReq.State == RequestIP {
				partition = s.device.IndexPartitionID()
			}
			s.metrics.IncWriteErrors(partition.String())
		}
	}

	clearDP, clearIP := false, false
	if failedReq.State == RequestIP {
		clearIP = true
		if !isSpaceError(code) || s.partitionIsUnhealthy(context.Background(), s.device.DataPartitionID()) {
			clearDP = true
		}
	} else {
		clearDP = true
		if !isSpaceError(code) || s.partitionIsUnhealthy(context.Background(), s.device.IndexPartitionID()) {
			clearIP = true
		}
	}

	// Recompute the logical file size from scratch: start from what the
	// front-end reports (its view of the file, independent of anything
	// buffered here), then grow it back out to cover whatever requests
	// survive the clear below.
	if size, err := s.host.ReportedSize(ctx, d.name); err != nil {
		logger.WarnCtx(ctx, "scheduler: failed to read reported size during write-error recovery", "dentry", d.name, "error", err)
	} else {
		d.fileSize = size
	}

	for i := 0; i < len(d.requests); {
		req := d.requests[i]
		drop := (req.State == RequestIP && clearIP) || (req.State != RequestIP && clearDP)
		if drop {
			s.removeRequestLocked(d, i)
			continue
		}
		if req.End() > d.fileSize {
			d.fileSize = req.End()
		}
		i++
	}
}

func (s *Scheduler) partitionIsUnhealthy(ctx context.Context, p tape.Partition) bool {
	ro, err := s.device.PartitionReadOnly(ctx, p)
	return err != nil || ro
}

func isSpaceError(code errcode.Code) bool {
	return code == errcode.NoSpaceOnPartition || code == errcode.LessSpaceOnPartition
}

func errorCode(err error) errcode.Code {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return errcode.WriteError
}

// writeIndexAfterPermanentError reacts to a medium/device error on a
// positioned write by locking the volume against further writes and
// forcing a fresh index write, so the Index Partition remains a
// consistent recovery point even though the Data Partition write failed.
func (s *Scheduler) writeIndexAfterPermanentError(ctx context.Context, writeErr error) {
	if errorCode(writeErr) != errcode.WritePermanent {
		return
	}

	if err := s.device.SetVolumeLockStatus(ctx, tape.LockedWritePermanent); err != nil {
		logger.ErrorCtx(ctx, "scheduler: failed to lock volume after write-permanent error", "error", err)
	}

	pos, err := s.device.PhysicalPosition(ctx, s.device.DataPartitionID())
	if err != nil {
		logger.ErrorCtx(ctx, "scheduler: failed to read physical position after write error", "error", err)
		return
	}

	partition := s.device.DataPartitionID()
	if err := s.device.TruncateExtentsAfter(ctx, partition, pos); err != nil {
		logger.ErrorCtx(ctx, "scheduler: failed to truncate extents after write error", "error", err)
		return
	}

	s.cleanupExtentsPastPosition(ctx, partition, pos)

	if err := s.device.WriteIndex(ctx, s.device.IndexPartitionID()); err != nil {
		logger.ErrorCtx(ctx, "scheduler: failed to write recovery index after write error", "error", err)
	}
}

// cleanupExtentsPastPosition mirrors ltfs_fsraw_cleanup_extent: once the
// tape-side view of partition has been truncated at pos, any in-memory alt
// extent for any dentry (already merged, awaiting push to the front-end)
// that lies at or past pos is now invalid and must be dropped or
// shortened to match, and the front-end's own persisted metadata must be
// told to do the same.
func (s *Scheduler) cleanupExtentsPastPosition(ctx context.Context, partition tape.Partition, pos uint64) {
	blockSize := uint64(s.pool.ObjectSize())
	posBytes := pos * blockSize

	s.dentriesMu.Lock()
	dentries := make([]*DentryState, 0, len(s.dentries))
	for _, d := range s.dentries {
		dentries = append(dentries, d)
	}
	s.dentriesMu.Unlock()

	for _, d := range dentries {
		d.io.Lock()
		touched := false
		kept := d.altExtents[:0:0]
		for _, ext := range d.altExtents {
			if ext.Partition != partition {
				kept = append(kept, ext)
				continue
			}
			start := ext.StartBlock*blockSize + uint64(ext.ByteOffset)
			end := start + uint64(ext.ByteCount)
			switch {
			case end <= posBytes:
				kept = append(kept, ext)
			case start >= posBytes:
				touched = true
			default:
				ext.ByteCount = uint32(posBytes - start)
				kept = append(kept, ext)
				touched = true
			}
		}
		if touched {
			d.altExtents = kept
			if len(d.altExtents) == 0 {
				s.removeFromQueue(queueExt, d, 0, true)
			}
		}
		name := d.name
		d.io.Unlock()

		if err := s.host.CleanupExtentsPastPosition(ctx, name, partition, pos); err != nil {
			logger.WarnCtx(ctx, "scheduler: front-end extent cleanup failed", "dentry", name, "error", err)
		}
	}
}
