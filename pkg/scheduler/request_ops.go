package scheduler

import "github.com/dittofs/tapesched/pkg/cachepool"

// updateRequestLocked copies as many bytes from buf (logically starting at
// offset) into req's block as will fit, growing req.Count as needed, and
// promotes req from Partial to DP if it becomes full. Caller holds d.io.
// Returns the number of bytes actually copied.
func (s *Scheduler) updateRequestLocked(d *DentryState, req *WriteRequest, buf []byte, offset uint64) int {
	blockSize := uint64(s.pool.ObjectSize())

	copyOffset := offset - req.Offset
	copyCount := (req.Offset + blockSize) - offset
	if copyCount > uint64(len(buf)) {
		copyCount = uint64(len(buf))
	}
	if copyCount == 0 {
		return 0
	}

	data := req.Block.Data()
	copy(data[copyOffset:], buf[:copyCount])

	if copyOffset+copyCount > uint64(req.Count) {
		req.Count = uint32(copyOffset + copyCount)
	}

	if req.State == RequestPartial && uint64(req.Count) == blockSize {
		s.removeFromQueue(queueWorkingSet, d, 1, false)
		req.State = RequestDP
		s.addToQueue(queueDP, d, 1)
	}

	if req.End() > d.fileSize {
		d.fileSize = req.End()
	}

	return int(copyCount)
}

// insertRequestLocked creates a new request covering up to blockSize bytes
// starting at offset, backed by block, and inserts it into d.requests at
// the correct sorted position. Caller holds d.io.
func (s *Scheduler) insertRequestLocked(d *DentryState, offset uint64, buf []byte, block *cachepool.Block, ipState bool) *WriteRequest {
	blockSize := uint64(s.pool.ObjectSize())
	n := blockSize
	if n > uint64(len(buf)) {
		n = uint64(len(buf))
	}

	idx := d.findIndex(offset)
	if idx < len(d.requests) {
		limit := d.requests[idx].Offset - offset
		if limit < n {
			n = limit
		}
	}

	data := block.Data()
	copy(data, buf[:n])

	state := RequestPartial
	switch {
	case ipState:
		state = RequestIP
	case n == blockSize:
		state = RequestDP
	}

	req := newWriteRequest(offset, uint32(n), block, state)
	d.requests = append(d.requests, nil)
	copy(d.requests[idx+1:], d.requests[idx:])
	d.requests[idx] = req

	switch state {
	case RequestPartial:
		s.addToQueue(queueWorkingSet, d, 1)
	case RequestDP:
		s.addToQueue(queueDP, d, 1)
	case RequestIP:
		s.addToQueue(queueIP, d, 1)
	}

	if req.End() > d.fileSize {
		d.fileSize = req.End()
	}

	return req
}

// removeRequestLocked deletes d.requests[idx], releasing its block and
// clearing its queue membership. Caller holds d.io.
func (s *Scheduler) removeRequestLocked(d *DentryState, idx int) {
	req := d.requests[idx]
	switch req.State {
	case RequestPartial:
		s.removeFromQueue(queueWorkingSet, d, 1, false)
	case RequestDP:
		s.removeFromQueue(queueDP, d, 1, false)
	case RequestIP:
		s.removeFromQueue(queueIP, d, 1, false)
	}
	s.pool.Release(req.Block)
	d.requests = append(d.requests[:idx], d.requests[idx+1:]...)
}
