// Package frontend defines the interface the scheduler consumes from the
// file-system front-end. The front-end itself — path resolution, dentry
// lifecycle, directory structure, access control — is out of scope for this
// module; Host is the narrow boundary the scheduler calls through.
package frontend

import (
	"context"

	"github.com/dittofs/tapesched/pkg/tape"
)

// Extent describes a contiguous physical region of tape backing a
// contiguous file-offset range, as handed to the front-end for persistence
// in its own metadata once the scheduler has written it.
type Extent struct {
	Partition  tape.Partition
	StartBlock uint64
	ByteOffset uint32
	ByteCount  uint32
	FileOffset uint64
}

// Host is the file-system front-end interface the scheduler calls through.
// Every method is scoped to a single dentry identified by its path/handle
// string; the front-end owns the mapping from that string to its own
// internal dentry structure.
type Host interface {
	// RawReadAt performs a positioned read directly against the
	// front-end's authoritative storage for dentry (used by the
	// scheduler's read path for gaps not covered by pending requests).
	RawReadAt(ctx context.Context, dentry string, buf []byte, offset uint64) (int, error)

	// ReportedSize returns the front-end's last known size for dentry,
	// independent of any data the scheduler has buffered.
	ReportedSize(ctx context.Context, dentry string) (uint64, error)

	// IsReadOnly reports whether dentry (or its containing volume) is
	// read-only.
	IsReadOnly(ctx context.Context, dentry string) (bool, error)

	// MatchesIPNameCriteria reports whether dentry's name matches the
	// front-end's configured pattern for Index Partition placement.
	MatchesIPNameCriteria(ctx context.Context, dentry string) (bool, error)

	// IsDeleted reports whether dentry has been unlinked.
	IsDeleted(ctx context.Context, dentry string) (bool, error)

	// AddExtent records a physical extent against dentry in the
	// front-end's own metadata once the scheduler has committed it to
	// tape.
	AddExtent(ctx context.Context, dentry string, extent Extent) error

	// CleanupExtentsPastPosition asks the front-end to drop any extents
	// it has recorded for dentry on partition that lie at or past pos,
	// called after a permanent write error truncates the tape-side view.
	CleanupExtentsPastPosition(ctx context.Context, dentry string, partition tape.Partition, pos uint64) error

	// WriteIndexNow requests an immediate index write, independent of any
	// single dentry.
	WriteIndexNow(ctx context.Context) error
}
