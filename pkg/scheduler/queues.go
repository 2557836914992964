package scheduler

// queueKind identifies one of the three request-carrying queues plus the
// fourth, request-count-independent ext queue used for dirty alt extents.
type queueKind int

const (
	queueWorkingSet queueKind = iota
	queueDP
	queueIP
	queueExt
)

// addToQueue adds d to kind's intrusive queue if it isn't already a member,
// and bumps the corresponding global request counter by delta (ignored for
// queueExt, which has no counter). Called with the dentry's io lock held
// and without queueMu.
func (s *Scheduler) addToQueue(kind queueKind, d *DentryState, delta int) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	switch kind {
	case queueWorkingSet:
		if d.wsElem == nil {
			d.wsElem = s.workingSet.PushBack(d)
		}
		d.inWorkingSet += delta
		s.wsRequestCount += delta
	case queueDP:
		if d.dpElem == nil {
			d.dpElem = s.dpQueue.PushBack(d)
		}
		d.inDPQueue += delta
		// write_ip hides DP requests bound for the IP queue from the
		// global counter the writer uses to gauge cache pressure, since
		// they'll be re-issued as IP writes and can't be relieved by a
		// plain DP flush.
		if !d.writeIP {
			s.dpRequestCount += delta
		}
	case queueIP:
		if d.ipElem == nil {
			d.ipElem = s.ipQueue.PushBack(d)
		}
		d.inIPQueue += delta
		s.ipRequestCount += delta
	case queueExt:
		if d.extElem == nil {
			d.extElem = s.extQueue.PushBack(d)
		}
	}

	s.queueCond.Broadcast()
}

// removeFromQueue removes d's membership in kind's queue, either by delta
// (request-count decrement, never below zero, removing the node once the
// count reaches zero) or entirely if all is true.
func (s *Scheduler) removeFromQueue(kind queueKind, d *DentryState, delta int, all bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	switch kind {
	case queueWorkingSet:
		if all || delta > d.inWorkingSet {
			delta = d.inWorkingSet
		}
		d.inWorkingSet -= delta
		s.wsRequestCount -= delta
		if d.inWorkingSet <= 0 && d.wsElem != nil {
			s.workingSet.Remove(d.wsElem)
			d.wsElem = nil
			d.inWorkingSet = 0
		}
	case queueDP:
		if all || delta > d.inDPQueue {
			delta = d.inDPQueue
		}
		d.inDPQueue -= delta
		if !d.writeIP {
			s.dpRequestCount -= delta
		}
		if d.inDPQueue <= 0 && d.dpElem != nil {
			s.dpQueue.Remove(d.dpElem)
			d.dpElem = nil
			d.inDPQueue = 0
		}
	case queueIP:
		if all || delta > d.inIPQueue {
			delta = d.inIPQueue
		}
		d.inIPQueue -= delta
		s.ipRequestCount -= delta
		if d.inIPQueue <= 0 && d.ipElem != nil {
			s.ipQueue.Remove(d.ipElem)
			d.ipElem = nil
			d.inIPQueue = 0
		}
	case queueExt:
		if d.extElem != nil {
			s.extQueue.Remove(d.extElem)
			d.extElem = nil
		}
	}
}

// queueDepths returns a stable snapshot of the four queue lengths plus the
// three request counters, used by the writer policy and by metrics
// reporting.
type queueDepths struct {
	wsLen, dpLen, ipLen, extLen int
	wsReqs, dpReqs, ipReqs      int
	cacheWaiters                int
}

func (s *Scheduler) snapshotQueues() queueDepths {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return queueDepths{
		wsLen:        s.workingSet.Len(),
		dpLen:        s.dpQueue.Len(),
		ipLen:        s.ipQueue.Len(),
		extLen:       s.extQueue.Len(),
		wsReqs:       s.wsRequestCount,
		dpReqs:       s.dpRequestCount,
		ipReqs:       s.ipRequestCount,
		cacheWaiters: s.cacheWaiters,
	}
}

func (s *Scheduler) reportQueueMetrics() {
	if s.metrics == nil {
		return
	}
	d := s.snapshotQueues()
	s.metrics.SetQueueDepth("working_set", d.wsReqs)
	s.metrics.SetQueueDepth("dp_queue", d.dpReqs)
	s.metrics.SetQueueDepth("ip_queue", d.ipReqs)
	s.metrics.SetQueueDepth("ext_queue", d.extLen)
	s.metrics.SetCacheWaiters(d.cacheWaiters)
}
