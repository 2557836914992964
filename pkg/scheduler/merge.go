package scheduler

// mergeResult mirrors the three outcomes of _unified_merge_requests: src
// was freed entirely, src was modified (truncated), or nothing happened.
type mergeResult int

const (
	mergeNone mergeResult = iota
	mergeModified
	mergeFreed
)

// tryMergeWithNext checks whether the request immediately after req in
// d.requests now overlaps or touches req (because req just grew), and
// merges it into req if so. Caller holds d.io.
func (s *Scheduler) tryMergeWithNext(d *DentryState, idx int) {
	if idx < 0 || idx+1 >= len(d.requests) {
		return
	}
	dest := d.requests[idx]
	src := d.requests[idx+1]

	result := s.mergeRequests(d, dest, src)
	if result == mergeFreed {
		d.requests = append(d.requests[:idx+1], d.requests[idx+2:]...)
	}
}

// mergeRequests tries to merge src into dest: bytes are copied from src
// into dest's block if dest has room and the two requests target the same
// partition, after which src is truncated (if only partially consumed) or
// removed (if fully consumed). Copying never happens across a DP/IP
// boundary, since that would duplicate a write to the Data Partition, but
// truncation or removal of src happens regardless of either request's
// state. Caller holds d.io; if the result is mergeFreed, the caller is
// responsible for removing src from d.requests.
func (s *Scheduler) mergeRequests(d *DentryState, dest, src *WriteRequest) mergeResult {
	if dest == nil || src.Offset > dest.End() {
		return mergeNone
	}

	copyOffset := dest.End() - src.Offset

	var copyCount uint32
	sameTarget := dest.State == src.State || (dest.State != RequestIP && src.State != RequestIP)
	if sameTarget && uint64(dest.Count) < uint64(s.pool.ObjectSize()) && uint64(src.Count) > copyOffset {
		copyCount = uint32(s.updateRequestLocked(d, dest, src.data()[copyOffset:], src.Offset+copyOffset))
	}

	consumed := copyOffset + uint64(copyCount)
	if consumed == 0 {
		return mergeNone
	}

	if consumed < uint64(src.Count) {
		// Truncate src from the front: shift its remaining bytes down.
		data := src.data()
		copy(data, data[consumed:])
		src.Offset += consumed
		src.Count -= uint32(consumed)
		if src.State == RequestDP {
			s.removeFromQueue(queueDP, d, 1, false)
			src.State = RequestPartial
			s.addToQueue(queueWorkingSet, d, 1)
		}
		return mergeModified
	}

	// src fully consumed: remove and release it.
	switch src.State {
	case RequestPartial:
		s.removeFromQueue(queueWorkingSet, d, 1, false)
	case RequestDP:
		s.removeFromQueue(queueDP, d, 1, false)
	case RequestIP:
		s.removeFromQueue(queueIP, d, 1, false)
	}
	s.pool.Release(src.Block)
	return mergeFreed
}
