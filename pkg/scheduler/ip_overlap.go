package scheduler

// resolveIPOverlapLocked handles a new write landing on a request already
// in RequestIP state. Since IP requests have already been committed to
// the Index Partition, they can never be updated in place; they are
// truncated, split, or removed instead, and the overwritten bytes are
// left for the caller's next loop iteration to insert as a fresh request.
// Caller holds d.io. Returns the number of bytes of buf it was able to
// account for without requiring another loop iteration (always 0 here,
// since resolving an IP request never itself stores new bytes).
func (s *Scheduler) resolveIPOverlapLocked(d *DentryState, idx int, off uint64, buf []byte) int {
	req := d.requests[idx]
	end := off + uint64(len(buf))

	switch {
	case off <= req.Offset && end >= req.End():
		// Fully covered: remove it outright.
		s.removeRequestLocked(d, idx)

	case off == req.Offset:
		// Truncate from the beginning: shift the kept suffix down.
		keep := req.End() - end
		data := req.data()
		copy(data, data[uint64(req.Count)-keep:])
		req.Offset = end
		req.Count = uint32(keep)

	case end >= req.End():
		// Truncate from the end: the kept prefix is already at the
		// front of the block.
		req.Count = uint32(off - req.Offset)

	default:
		// Split: the write lands in the interior. Keep the prefix in
		// place and carve the suffix into a new IP request.
		tailOffset := end
		tailLen := req.End() - end
		tailData := append([]byte(nil), req.data()[end-req.Offset:]...)

		req.Count = uint32(off - req.Offset)

		if block, ok := s.pool.Allocate(); ok {
			s.insertRequestLocked(d, tailOffset, tailData[:tailLen], block, true)
		}
		// If the pool has no room for the split tail, no tail request
		// is created and this does not block: the tail bytes, already
		// written to the Data Partition, are not queued for the Index
		// Partition.
	}

	return 0
}
