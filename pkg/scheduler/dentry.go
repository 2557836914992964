package scheduler

import (
	"container/list"
	"sync"

	"github.com/dittofs/tapesched/pkg/frontend"
)

// DentryState is the scheduler's per-dentry private data: an ordered
// request list plus the bookkeeping needed to place it on the global
// queues and to propagate an asynchronous write failure back to the next
// foreground call.
//
// Lock order when both are needed: SchedulerCore.mu before io. Never take
// writeErrMu while holding io or mu from a different goroutine path than
// the one documented at each call site.
type DentryState struct {
	name string

	io sync.Mutex // guards requests, altExtents, fileSize, writeIP

	requests   []*WriteRequest // sorted by Offset, non-overlapping
	altExtents []frontend.Extent
	fileSize   uint64
	writeIP    bool

	writeErrMu sync.Mutex
	writeErr   error

	// Queue membership. Counts are the number of this dentry's requests
	// contributing to each global counter; elems are this dentry's node
	// in each intrusive queue, nil when not a member.
	inWorkingSet int
	inDPQueue    int
	inIPQueue    int

	wsElem  *list.Element
	dpElem  *list.Element
	ipElem  *list.Element
	extElem *list.Element

	openHandles int
}

func newDentryState(name string) *DentryState {
	return &DentryState{name: name}
}

// takeWriteError returns and clears the sticky write error, the way
// _unified_get_write_error resets it once propagated to the caller.
func (d *DentryState) takeWriteError() error {
	d.writeErrMu.Lock()
	defer d.writeErrMu.Unlock()
	err := d.writeErr
	d.writeErr = nil
	return err
}

// setWriteErrorIfAbsent stamps err as the sticky error unless one is
// already set (first failure wins).
func (d *DentryState) setWriteErrorIfAbsent(err error) {
	d.writeErrMu.Lock()
	defer d.writeErrMu.Unlock()
	if d.writeErr == nil {
		d.writeErr = err
	}
}

// findIndex returns the index of the first request whose End() is past
// offset (i.e. the first request that could possibly overlap or follow
// offset), and len(requests) if none does.
func (d *DentryState) findIndex(offset uint64) int {
	lo, hi := 0, len(d.requests)
	for lo < hi {
		mid := (lo + hi) / 2
		if d.requests[mid].End() <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
