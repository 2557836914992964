// Package scheduler implements a write-coalescing, dual-target tape I/O
// scheduler: a cache block pool and a background writer thread that
// together let foreground file operations return as soon as data is
// buffered, while a writer goroutine drains it to the Data Partition and,
// for eligible small files, the Index Partition.
package scheduler

import (
	"container/list"
	"context"
	"sync"

	"github.com/dittofs/tapesched/internal/logger"
	"github.com/dittofs/tapesched/pkg/cachepool"
	"github.com/dittofs/tapesched/pkg/frontend"
	"github.com/dittofs/tapesched/pkg/metrics"
	"github.com/dittofs/tapesched/pkg/tape"
)

// ipHighWatermarkFraction is the fraction of pool high water that the
// background writer tolerates in the IP queue before prioritizing it over
// the working set.
const ipHighWatermarkFraction = 0.6

// Config bundles everything Scheduler needs beyond the cache pool's own
// sizing knobs (those go directly into cachepool.New by the caller).
type Config struct {
	Device  tape.Device
	Host    frontend.Host
	Pool    *cachepool.Pool
	Metrics metrics.Collector

	// MaxIPFileSize mirrors tape.Device.MaxIPFileSize but is read once at
	// construction time since it gates UpdateDataPlacement decisions on
	// every write.
	MaxIPFileSize uint64

	// PoolHighWaterBlocks is the cache pool's configured ceiling (the
	// same value passed as New's high parameter). The writer policy
	// needs it to judge IP queue pressure as a fraction of total cache
	// capacity; the pool itself doesn't expose its ceiling since no
	// other caller needs it.
	PoolHighWaterBlocks int
}

// Scheduler is one running instance of the I/O scheduler, one per mounted
// volume.
type Scheduler struct {
	device  tape.Device
	host    frontend.Host
	pool    *cachepool.Pool
	metrics metrics.Collector

	maxIPFileSize    uint64
	poolCapacityHint int

	// mu is the scheduler-wide lock. Foreground operations and the
	// writer's Data Partition draining hold it for read; Index Partition
	// queue processing and any full-flush path hold it for write, which
	// blocks all foreground activity until released.
	mu sync.RWMutex

	dentries   map[string]*DentryState
	dentriesMu sync.Mutex

	// queueMu guards the four intrusive queues and the three request
	// counters below. Never take dentriesMu or a DentryState.io lock
	// while holding queueMu.
	queueMu   sync.Mutex
	queueCond *sync.Cond

	workingSet *list.List // *DentryState, files with REQUEST_PARTIAL requests
	dpQueue    *list.List // *DentryState, files with REQUEST_DP requests
	ipQueue    *list.List // *DentryState, files with REQUEST_IP requests
	extQueue   *list.List // *DentryState, files with dirty alt extents

	wsRequestCount int
	dpRequestCount int
	ipRequestCount int

	// cacheWaiters is the number of foreground goroutines currently
	// blocked in Pool.Wait. Read by the writer thread to choose between
	// servicing the DP queue (relieve pressure fast) and the working set
	// (coalesce more before writing).
	cacheWaiters int

	writerCancel  context.CancelFunc
	writerStopped chan struct{}

	profilerMu sync.Mutex
	profiler   *profiler
}

// New constructs a Scheduler. Call Run to start its background writer.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		device:           cfg.Device,
		host:             cfg.Host,
		pool:             cfg.Pool,
		metrics:          cfg.Metrics,
		maxIPFileSize:    cfg.MaxIPFileSize,
		poolCapacityHint: cfg.PoolHighWaterBlocks,
		dentries:         make(map[string]*DentryState),
		workingSet:       list.New(),
		dpQueue:          list.New(),
		ipQueue:          list.New(),
		extQueue:         list.New(),
	}
	s.queueCond = sync.NewCond(&s.queueMu)
	return s
}

// Run starts the background writer goroutine and returns immediately.
// Shutdown waits for the writer to exit.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.writerCancel = cancel
	s.writerStopped = make(chan struct{})

	go func() {
		defer close(s.writerStopped)
		s.writerLoop(ctx)
	}()
}

// Shutdown flushes every dentry, drains the Index Partition queue, and
// stops the background writer. It blocks until the writer has exited.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	err := s.flushAllLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		logger.Warn("scheduler: flush during shutdown reported an error", "error", err)
	}

	if s.writerCancel != nil {
		s.writerCancel()
		s.queueCond.Broadcast()
		<-s.writerStopped
	}

	_ = s.SetProfiler(ctx, "", false)
	return err
}

func (s *Scheduler) getOrCreateDentry(name string) *DentryState {
	s.dentriesMu.Lock()
	defer s.dentriesMu.Unlock()

	d, ok := s.dentries[name]
	if !ok {
		d = newDentryState(name)
		if size, err := s.host.ReportedSize(context.Background(), name); err == nil {
			d.fileSize = size
		}
		s.dentries[name] = d
	}
	return d
}

func (s *Scheduler) lookupDentry(name string) *DentryState {
	s.dentriesMu.Lock()
	defer s.dentriesMu.Unlock()
	return s.dentries[name]
}

// freeDentryIfIdle removes a dentry's state once it has no open handles,
// no pending requests, and no dirty alt extents left.
func (s *Scheduler) freeDentryIfIdle(d *DentryState) {
	d.io.Lock()
	idle := d.openHandles == 0 && len(d.requests) == 0 && len(d.altExtents) == 0
	name := d.name
	d.io.Unlock()

	if !idle {
		return
	}

	s.dentriesMu.Lock()
	defer s.dentriesMu.Unlock()
	if cur, ok := s.dentries[name]; ok && cur == d {
		delete(s.dentries, name)
	}
}
