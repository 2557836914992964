package scheduler

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittofs/tapesched/internal/testfakes"
	"github.com/dittofs/tapesched/pkg/cachepool"
	"github.com/dittofs/tapesched/pkg/frontend"
	"github.com/dittofs/tapesched/pkg/tape"
)

const testBlockSize = 16

func newTestScheduler(t *testing.T, maxIPFileSize uint64) (*Scheduler, *testfakes.Device, *testfakes.Host) {
	t.Helper()

	pool, err := cachepool.New(testBlockSize, 2, 8, nil)
	require.NoError(t, err)

	dev := testfakes.NewDevice(testBlockSize, maxIPFileSize)
	host := testfakes.NewHost()

	s := New(Config{
		Device:              dev,
		Host:                host,
		Pool:                pool,
		MaxIPFileSize:       maxIPFileSize,
		PoolHighWaterBlocks: 8,
	})
	return s, dev, host
}

// ============================================================================
// Write / Read round trip
// ============================================================================

func TestWriteThenRead_ReturnsBufferedData(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Open(ctx, "f"))
	n, err := s.Write(ctx, "f", []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = s.Read(ctx, "f", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestRead_MergesPendingWriteWithRawReadThroughGap(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 0)
	host.SetRawData("f", []byte("AAAAAAAAAA"))

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("XX"), 4)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := s.Read(ctx, "f", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "AAAAXXAAAA", string(buf))
}

func TestWrite_CoalescesAdjacentWritesIntoOneRequest(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("abcd"), 0)
	require.NoError(t, err)
	_, err = s.Write(ctx, "f", []byte("efgh"), 4)
	require.NoError(t, err)

	d := s.lookupDentry("f")
	require.NotNil(t, d)
	d.io.Lock()
	require.Len(t, d.requests, 1)
	assert.Equal(t, uint32(8), d.requests[0].Count)
	d.io.Unlock()
}

func TestWrite_FillingABlockPromotesToDP(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", make([]byte, testBlockSize), 0)
	require.NoError(t, err)

	d := s.lookupDentry("f")
	d.io.Lock()
	require.Len(t, d.requests, 1)
	assert.Equal(t, RequestDP, d.requests[0].State)
	d.io.Unlock()

	depths := s.snapshotQueues()
	assert.Equal(t, 1, depths.dpReqs)
	assert.Equal(t, 0, depths.wsReqs)
}

// ============================================================================
// Flush
// ============================================================================

func TestFlush_WritesBufferedRequestToDataPartition(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("payload"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Flush(ctx, "f"))

	require.Len(t, dev.Writes, 1)
	assert.Equal(t, tape.DP, dev.Writes[0].Partition)
	assert.Equal(t, []byte("payload"), dev.Writes[0].Data)

	d := s.lookupDentry("f")
	d.io.Lock()
	assert.Empty(t, d.requests)
	d.io.Unlock()
}

// ============================================================================
// Write-error propagation
// ============================================================================

func TestFlush_StickyErrorSurfacesOnNextForegroundCall(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestScheduler(t, 0)
	writeErr := assertionError("tape jam")
	dev.FailWrite[tape.DP] = writeErr

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("payload"), 0)
	require.NoError(t, err)

	err = s.Flush(ctx, "f")
	require.Error(t, err)

	// The failed request is dropped; a second flush has nothing left to
	// fail on and the sticky error was already consumed.
	require.NoError(t, s.Flush(ctx, "f"))
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

// ============================================================================
// Truncate
// ============================================================================

func TestTruncate_DropsAndShortensRequestsPastNewLength(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Truncate(ctx, "f", 5))

	size, err := s.GetSize(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)

	buf := make([]byte, 5)
	n, err := s.Read(ctx, "f", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "01234", string(buf))
}

// ============================================================================
// Index Partition placement
// ============================================================================

func TestUpdatePlacementForWrite_SetsWriteIPWhenEligible(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 1024)
	host.IPNameSuffix = ".idx"

	require.NoError(t, s.Open(ctx, "small.idx"))
	_, err := s.Write(ctx, "small.idx", []byte("tiny"), 0)
	require.NoError(t, err)

	d := s.lookupDentry("small.idx")
	d.io.Lock()
	writeIP := d.writeIP
	d.io.Unlock()
	assert.True(t, writeIP)
}

func TestUpdatePlacementForWrite_SkipsFilesNotMatchingNameCriteria(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 1024)
	host.IPNameSuffix = ".idx"

	require.NoError(t, s.Open(ctx, "small.dat"))
	_, err := s.Write(ctx, "small.dat", []byte("tiny"), 0)
	require.NoError(t, err)

	d := s.lookupDentry("small.dat")
	d.io.Lock()
	writeIP := d.writeIP
	d.io.Unlock()
	assert.False(t, writeIP)
}

// ============================================================================
// Index Partition extents
// ============================================================================

func writeFullBlocksAndDrainToIP(t *testing.T, ctx context.Context, s *Scheduler, dentry string, blocks int) {
	t.Helper()
	require.NoError(t, s.Open(ctx, dentry))
	for i := 0; i < blocks; i++ {
		_, err := s.Write(ctx, dentry, make([]byte, testBlockSize), uint64(i*testBlockSize))
		require.NoError(t, err)
	}
	// Promote the now-full DP requests to RequestIP (drainDentryToDataPartition
	// writes them to the Data Partition, and since write_ip is set, re-marks
	// them RequestIP and queues them for the Index Partition instead of
	// freeing them).
	s.processWorkingSet(ctx)
}

func TestProcessIPQueue_MergesTwoAdjacentBlocksIntoOneExtent(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 1024)
	host.IPNameSuffix = ".idx"

	writeFullBlocksAndDrainToIP(t, ctx, s, "f.idx", 2)
	s.processIPQueue(ctx)

	d := s.lookupDentry("f.idx")
	d.io.Lock()
	extents := append([]frontend.Extent(nil), d.altExtents...)
	d.io.Unlock()

	require.Len(t, extents, 1)
	assert.Equal(t, uint64(0), extents[0].FileOffset)
	assert.Equal(t, uint32(2*testBlockSize), extents[0].ByteCount)

	// Not pushed to the front-end yet: only drainExtentQueue does that.
	assert.Empty(t, host.Extents["f.idx"])

	depths := s.snapshotQueues()
	assert.Equal(t, 1, depths.extLen)
}

func TestDrainExtentQueue_PushesMergedExtentWhenStillEligible(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 1024)
	host.IPNameSuffix = ".idx"

	writeFullBlocksAndDrainToIP(t, ctx, s, "f.idx", 2)
	s.processIPQueue(ctx)

	s.drainExtentQueue(ctx)

	require.Len(t, host.Extents["f.idx"], 1)
	assert.Equal(t, uint32(2*testBlockSize), host.Extents["f.idx"][0].ByteCount)

	d := s.lookupDentry("f.idx")
	d.io.Lock()
	assert.Empty(t, d.altExtents)
	d.io.Unlock()

	depths := s.snapshotQueues()
	assert.Equal(t, 0, depths.extLen)
}

func TestUnsetWriteIP_DiscardsPendingExtentsWithoutPushing(t *testing.T) {
	ctx := context.Background()
	s, _, host := newTestScheduler(t, 1024)
	host.IPNameSuffix = ".idx"

	writeFullBlocksAndDrainToIP(t, ctx, s, "f.idx", 1)
	s.processIPQueue(ctx)

	d := s.lookupDentry("f.idx")
	d.io.Lock()
	require.NotEmpty(t, d.altExtents)
	d.io.Unlock()

	// Name no longer matches IP criteria: the next placement check revokes
	// write_ip and should discard the pending extent rather than push it.
	host.IPNameSuffix = ".other"
	require.NoError(t, s.UpdateDataPlacement(ctx, "f.idx"))

	d.io.Lock()
	assert.Empty(t, d.altExtents)
	d.io.Unlock()
	assert.Empty(t, host.Extents["f.idx"])

	// A later shutdown-time drain has nothing left to push for this dentry.
	s.drainExtentQueue(ctx)
	assert.Empty(t, host.Extents["f.idx"])
}

// ============================================================================
// Write-error file-size recovery
// ============================================================================

func TestHandleWriteError_RecomputesFileSizeFromReportedSizePlusSurvivors(t *testing.T) {
	ctx := context.Background()
	s, dev, host := newTestScheduler(t, 0)
	dev.FailWrite[tape.DP] = assertionError("tape jam")
	host.SetRawData("f", make([]byte, 3))

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("payload"), 0)
	require.NoError(t, err)

	err = s.Flush(ctx, "f")
	require.Error(t, err)

	d := s.lookupDentry("f")
	d.io.Lock()
	defer d.io.Unlock()
	assert.Empty(t, d.requests)
	assert.Equal(t, uint64(3), d.fileSize)
}

// ============================================================================
// Operation tracing
// ============================================================================

func TestSetProfiler_TracesForegroundOperations(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)
	dir := t.TempDir()

	require.NoError(t, s.SetProfiler(ctx, dir, true))

	require.NoError(t, s.Open(ctx, "f"))
	_, err := s.Write(ctx, "f", []byte("hi"), 0)
	require.NoError(t, err)

	require.NoError(t, s.SetProfiler(ctx, dir, false))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	var events []profileEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev profileEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 4)
	assert.Equal(t, "open", events[0].Operation)
	assert.Equal(t, "enter", events[0].Phase)
	assert.Equal(t, "open", events[1].Operation)
	assert.Equal(t, "exit", events[1].Phase)
	assert.Equal(t, "write", events[2].Operation)
	assert.Equal(t, "enter", events[2].Phase)
	assert.Equal(t, "write", events[3].Operation)
	assert.Equal(t, "exit", events[3].Phase)
	for _, ev := range events {
		assert.Equal(t, "f", ev.Dentry)
	}
}

func TestSetProfiler_DisableIsNoopWhenNotEnabled(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, 0)
	assert.NoError(t, s.SetProfiler(ctx, "", false))
}
