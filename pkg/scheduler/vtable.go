package scheduler

import (
	"context"

	"github.com/dittofs/tapesched/internal/logger"
	"github.com/dittofs/tapesched/pkg/cachepool"
	"github.com/dittofs/tapesched/pkg/config"
)

// VTable is the narrow interface the front-end sees, mirroring the
// reference scheduler's plugin boundary (init/destroy/open/close/...) but
// expressed as typed handles rather than opaque pointers: callers pass
// dentry names, not cast void pointers.
type VTable interface {
	Open(ctx context.Context, dentry string) error
	Close(ctx context.Context, dentry string, flush bool) error
	Read(ctx context.Context, dentry string, buf []byte, offset uint64) (int, error)
	Write(ctx context.Context, dentry string, buf []byte, offset uint64) (int, error)
	Flush(ctx context.Context, dentry string) error
	Truncate(ctx context.Context, dentry string, length uint64) error
	GetFilesize(ctx context.Context, dentry string) (uint64, error)
	UpdateDataPlacement(ctx context.Context, dentry string) error
	SetProfiler(ctx context.Context, workDir string, enable bool) error
	Destroy(ctx context.Context) error
}

var _ VTable = (*Scheduler)(nil)

// GetFilesize is the vtable-facing name for GetSize.
func (s *Scheduler) GetFilesize(ctx context.Context, dentry string) (uint64, error) {
	return s.GetSize(ctx, dentry)
}

// Destroy is the vtable-facing name for Shutdown.
func (s *Scheduler) Destroy(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Init builds a fully wired Scheduler from configuration and the two
// narrow interfaces it drives (the tape device and the front-end host),
// starts its background writer, and returns it as a VTable. This is the
// Go-idiomatic replacement for the reference scheduler's
// `init(volume) -> opaque handle`: construction returns a typed value
// instead of a pointer the caller must cast back through the vtable.
func Init(ctx context.Context, cfg *config.Config, deps Config) (VTable, error) {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}

	resolved, err := cfg.Cache.Resolve()
	if err != nil {
		return nil, err
	}

	if deps.Pool == nil {
		pool, err := cachepool.New(int(resolved.BlockSize), resolved.LowWaterBlocks, resolved.HighWaterBlocks, deps.Metrics)
		if err != nil {
			return nil, err
		}
		deps.Pool = pool
	}
	deps.MaxIPFileSize = resolved.MaxIPFileSize.Bytes()
	deps.PoolHighWaterBlocks = resolved.HighWaterBlocks

	s := New(deps)
	s.Run(ctx)
	return s, nil
}
