package testfakes

import (
	"context"
	"strings"
	"sync"

	"github.com/dittofs/tapesched/pkg/frontend"
	"github.com/dittofs/tapesched/pkg/tape"
)

// Host is an in-memory frontend.Host: a dentry's "authoritative" storage is
// just a byte slice, and IP-name-criteria matching is a configurable
// suffix test rather than a real naming policy.
type Host struct {
	mu sync.Mutex

	data     map[string][]byte
	readOnly bool
	deleted  map[string]bool

	// IPNameSuffix, if non-empty, makes MatchesIPNameCriteria true for any
	// dentry whose name ends with it. Empty means nothing matches.
	IPNameSuffix string

	Extents map[string][]frontend.Extent
}

// NewHost creates an empty Host.
func NewHost() *Host {
	return &Host{
		data:    map[string][]byte{},
		deleted: map[string]bool{},
		Extents: map[string][]frontend.Extent{},
	}
}

func (h *Host) RawReadAt(_ context.Context, dentry string, buf []byte, offset uint64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := h.data[dentry]
	if offset >= uint64(len(stored)) {
		return 0, nil
	}
	return copy(buf, stored[offset:]), nil
}

// SetRawData seeds dentry's authoritative contents, bypassing the
// scheduler, for setting up read-through-gap test fixtures.
func (h *Host) SetRawData(dentry string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[dentry] = append([]byte(nil), data...)
}

func (h *Host) ReportedSize(_ context.Context, dentry string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint64(len(h.data[dentry])), nil
}

func (h *Host) IsReadOnly(_ context.Context, _ string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readOnly, nil
}

// SetReadOnly toggles the volume-wide read-only state every dentry reports.
func (h *Host) SetReadOnly(ro bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readOnly = ro
}

func (h *Host) MatchesIPNameCriteria(_ context.Context, dentry string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.IPNameSuffix == "" {
		return false, nil
	}
	return strings.HasSuffix(dentry, h.IPNameSuffix), nil
}

func (h *Host) IsDeleted(_ context.Context, dentry string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deleted[dentry], nil
}

// SetDeleted marks dentry as unlinked for subsequent IsDeleted calls.
func (h *Host) SetDeleted(dentry string, deleted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted[dentry] = deleted
}

func (h *Host) AddExtent(_ context.Context, dentry string, extent frontend.Extent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Extents[dentry] = append(h.Extents[dentry], extent)
	return nil
}

func (h *Host) CleanupExtentsPastPosition(_ context.Context, dentry string, partition tape.Partition, pos uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.Extents[dentry][:0]
	for _, e := range h.Extents[dentry] {
		if e.Partition == partition && e.StartBlock >= pos {
			continue
		}
		kept = append(kept, e)
	}
	h.Extents[dentry] = kept
	return nil
}

func (h *Host) WriteIndexNow(_ context.Context) error {
	return nil
}

var _ frontend.Host = (*Host)(nil)
