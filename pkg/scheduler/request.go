package scheduler

import (
	"github.com/google/uuid"

	"github.com/dittofs/tapesched/pkg/cachepool"
)

// RequestState is the lifecycle stage of one WriteRequest.
type RequestState int

const (
	// RequestPartial holds data not yet large enough to fill a cache
	// block. It lives in the working set, not the DP queue.
	RequestPartial RequestState = iota

	// RequestDP holds a full cache block queued for a Data Partition
	// write.
	RequestDP

	// RequestIP holds data already written to the Data Partition and
	// now queued (or already present) on the Index Partition.
	RequestIP
)

// String renders the state's short name, used in log fields.
func (s RequestState) String() string {
	switch s {
	case RequestPartial:
		return "partial"
	case RequestDP:
		return "dp"
	case RequestIP:
		return "ip"
	default:
		return "unknown"
	}
}

// WriteRequest is one outstanding, cached write against a dentry: a
// contiguous logical byte range backed by one cache block. A dentry's
// request list is kept sorted by Offset and non-overlapping.
type WriteRequest struct {
	// ID identifies this request in logs independent of its (mutable)
	// Offset/State, the way the teacher stamps a fresh UUID on every
	// coalesced slice it hands to the writer.
	ID     string
	Offset uint64
	Count  uint32
	Block  *cachepool.Block
	State  RequestState
}

func newWriteRequest(offset uint64, count uint32, block *cachepool.Block, state RequestState) *WriteRequest {
	return &WriteRequest{ID: uuid.New().String(), Offset: offset, Count: count, Block: block, State: state}
}

// End returns the exclusive end of the request's logical range.
func (r *WriteRequest) End() uint64 { return r.Offset + uint64(r.Count) }

// data returns the request's valid bytes (the block may be larger than
// Count).
func (r *WriteRequest) data() []byte { return r.Block.Data()[:r.Count] }
