package scheduler

import "context"

// flushDentryLocked writes every non-IP request for d directly to the
// Data Partition, synchronously, bypassing the background writer. Caller
// holds s.mu for read (or write, during a full flush).
func (s *Scheduler) flushDentryLocked(ctx context.Context, d *DentryState) error {
	if err := d.takeWriteError(); err != nil {
		return err
	}

	d.io.Lock()
	defer d.io.Unlock()

	if len(d.requests) == 0 {
		return nil
	}

	s.removeFromQueue(queueDP, d, 0, true)
	s.removeFromQueue(queueWorkingSet, d, 0, true)

	blockSize := uint64(s.pool.ObjectSize())

	for i := 0; i < len(d.requests); {
		req := d.requests[i]
		if req.State == RequestIP {
			s.tryMergeWithNext(d, i)
			i++
			continue
		}

		blockNum := req.Offset / blockSize
		err := s.device.WriteBlock(ctx, s.device.DataPartitionID(), blockNum, req.data())
		if err != nil {
			s.writeIndexAfterPermanentError(ctx, err)
			s.handleWriteErrorLocked(ctx, d, err, req)
			return d.takeWriteError()
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

	return d.takeWriteError()
}

// flushAllLocked flushes every known dentry to the Data Partition. Caller
// holds s.mu for write, guaranteeing no foreground writer can add more
// requests concurrently.
func (s *Scheduler) flushAllLocked(ctx context.Context) error {
	s.dentriesMu.Lock()
	snapshot := make([]*DentryState, 0, len(s.dentries))
	for _, d := range s.dentries {
		snapshot = append(snapshot, d)
	}
	s.dentriesMu.Unlock()

	var firstErr error
	for _, d := range snapshot {
		if err := s.flushDentryLocked(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
