package scheduler

import "context"

// setWriteIPLocked marks d as eligible for Index Partition placement.
// Existing DP requests are hidden from the global dp_request_count since
// they will be rewritten as IP requests rather than relieved by a plain
// Data Partition flush. Caller holds d.io.
func (s *Scheduler) setWriteIPLocked(d *DentryState) {
	d.writeIP = true

	if d.inDPQueue > 0 {
		s.queueMu.Lock()
		s.dpRequestCount -= d.inDPQueue
		s.queueMu.Unlock()
	}
}

// unsetWriteIPLocked clears d's Index Partition eligibility: any
// already-queued (not yet committed) RequestIP entries are discarded,
// hidden DP requests are unhidden, and any dirty alt-extent list is
// dropped since it will never be merged into the front-end's real extent
// list now. Caller holds d.io.
func (s *Scheduler) unsetWriteIPLocked(ctx context.Context, d *DentryState) {
	d.writeIP = false

	if d.inIPQueue > 0 {
		for i := 0; i < len(d.requests); {
			if d.requests[i].State == RequestIP {
				s.pool.Release(d.requests[i].Block)
				d.requests = append(d.requests[:i], d.requests[i+1:]...)
				continue
			}
			i++
		}
		s.removeFromQueue(queueIP, d, 0, true)
	}

	if d.inDPQueue > 0 {
		s.queueMu.Lock()
		s.dpRequestCount += d.inDPQueue
		s.queueMu.Unlock()
	}

	s.clearAltExtentsLocked(ctx, d, false)
}
