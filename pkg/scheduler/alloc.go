package scheduler

import (
	"context"

	"github.com/dittofs/tapesched/pkg/cachepool"
)

// allocateBlock gets a cache block for a new request, blocking and
// registering as a cache waiter if the pool is momentarily exhausted. The
// caller must not hold any DentryState.io lock while calling this, since a
// blocked waiter is only unblocked by the background writer draining
// some other dentry's requests.
func (s *Scheduler) allocateBlock(ctx context.Context) (*cachepool.Block, error) {
	if b, ok := s.pool.Allocate(); ok {
		return b, nil
	}

	s.queueMu.Lock()
	s.cacheWaiters++
	s.queueCond.Broadcast()
	s.queueMu.Unlock()

	defer func() {
		s.queueMu.Lock()
		s.cacheWaiters--
		s.queueMu.Unlock()
	}()

	return s.pool.Wait(ctx)
}
