// Package testfakes provides in-memory fakes for the scheduler's two
// narrow collaborator interfaces (tape.Device, frontend.Host), the way the
// teacher hand-rolls fakes under pkg/cache/testing rather than reaching for
// a mocking framework.
package testfakes

import (
	"context"
	"sync"

	"github.com/dittofs/tapesched/pkg/tape"
)

// Device is an in-memory tape.Device: each partition is a map of block
// number to its last-written bytes, with no real tape semantics (no
// sequential-access requirement, no physical position tracking beyond a
// simple counter).
type Device struct {
	mu sync.Mutex

	blockSize     uint32
	maxIPFileSize uint64

	blocks map[tape.Partition]map[uint64][]byte
	pos    map[tape.Partition]uint64

	readOnly map[tape.Partition]bool
	lock     tape.VolumeLockStatus

	// FailWrite, if set, is returned by WriteBlock for every call against
	// the named partition instead of storing the data. The call is still
	// appended to Writes.
	FailWrite map[tape.Partition]error

	// Writes records every WriteBlock call for assertions, in order.
	Writes []WriteCall
}

// WriteCall records one WriteBlock invocation.
type WriteCall struct {
	Partition tape.Partition
	BlockNum  uint64
	Data      []byte
}

// NewDevice creates a Device with the given nominal block size and max IP
// file size (0 disables Index Partition placement).
func NewDevice(blockSize uint32, maxIPFileSize uint64) *Device {
	return &Device{
		blockSize:     blockSize,
		maxIPFileSize: maxIPFileSize,
		blocks: map[tape.Partition]map[uint64][]byte{
			tape.DP: {},
			tape.IP: {},
		},
		pos:       map[tape.Partition]uint64{},
		readOnly:  map[tape.Partition]bool{},
		FailWrite: map[tape.Partition]error{},
	}
}

func (d *Device) ReadBlock(_ context.Context, partition tape.Partition, blockNum uint64, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.blocks[partition][blockNum]
	if !ok {
		return 0, nil
	}
	return copy(buf, data), nil
}

func (d *Device) WriteBlock(_ context.Context, partition tape.Partition, blockNum uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Writes = append(d.Writes, WriteCall{Partition: partition, BlockNum: blockNum, Data: append([]byte(nil), data...)})

	if err := d.FailWrite[partition]; err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	d.blocks[partition][blockNum] = stored
	if blockNum+1 > d.pos[partition] {
		d.pos[partition] = blockNum + 1
	}
	return nil
}

func (d *Device) WriteFileMark(_ context.Context, partition tape.Partition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos[partition]++
	return nil
}

func (d *Device) PhysicalPosition(_ context.Context, partition tape.Partition) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos[partition], nil
}

func (d *Device) SetVolumeLockStatus(_ context.Context, status tape.VolumeLockStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lock = status
	return nil
}

// LockStatus returns the last status stamped via SetVolumeLockStatus.
func (d *Device) LockStatus() tape.VolumeLockStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lock
}

func (d *Device) TruncateExtentsAfter(_ context.Context, partition tape.Partition, blockNum uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n := range d.blocks[partition] {
		if n >= blockNum {
			delete(d.blocks[partition], n)
		}
	}
	return nil
}

func (d *Device) WriteIndex(_ context.Context, _ tape.Partition) error {
	return nil
}

func (d *Device) PartitionReadOnly(_ context.Context, partition tape.Partition) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readOnly[partition], nil
}

// SetPartitionReadOnly marks partition read-only (or not) for subsequent
// PartitionReadOnly calls.
func (d *Device) SetPartitionReadOnly(partition tape.Partition, ro bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly[partition] = ro
}

func (d *Device) BlockSize() uint32 { return d.blockSize }

func (d *Device) DataPartitionID() tape.Partition  { return tape.DP }
func (d *Device) IndexPartitionID() tape.Partition { return tape.IP }

func (d *Device) MaxIPFileSize() uint64 { return d.maxIPFileSize }

var _ tape.Device = (*Device)(nil)
