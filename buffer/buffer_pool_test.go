package buffer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/disk"
)

func newTestPool(t *testing.T, poolSize int) (*BufferPool, disk.FileID) {
	t.Helper()

	dm, err := disk.NewDiskManager(t.TempDir())
	require.NoError(t, err)

	id, _ := uuid.NewUUID()
	fileID, err := dm.CreateFile(id.String())
	require.NoError(t, err)

	return NewBufferPool(dm, poolSize, nil), fileID
}

func TestBufferPool_NewPage_Is_Pinned_And_Zeroed(t *testing.T) {
	pool, fileID := newTestPool(t, 4)

	pid := disk.PageID{File: fileID, PageNo: 0}
	p, err := pool.NewPage(pid)
	require.NoError(t, err)

	assert.Equal(t, pid, p.GetPageId())
	assert.Equal(t, 1, p.GetPinCount())
	for _, b := range p.Data {
		require.Zero(t, b)
	}
	assert.Equal(t, 3, pool.EmptyFrameSize())
}

func TestBufferPool_Fetch_Returns_Cached_Frame(t *testing.T) {
	pool, fileID := newTestPool(t, 4)

	pid := disk.PageID{File: fileID, PageNo: 0}
	p, err := pool.NewPage(pid)
	require.NoError(t, err)
	p.Data[0] = 42
	pool.Unpin(pid, true)

	again, err := pool.Fetch(pid)
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Equal(t, byte(42), again.Data[0])
	pool.Unpin(pid, false)
}

func TestBufferPool_Evicted_Dirty_Page_Survives_Round_Trip(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	first := disk.PageID{File: fileID, PageNo: 0}
	p, err := pool.NewPage(first)
	require.NoError(t, err)
	p.Data[0] = 7
	pool.Unpin(first, true)

	// exhaust the pool so that the first page gets evicted
	for i := int32(1); i <= 2; i++ {
		pid := disk.PageID{File: fileID, PageNo: i}
		_, err := pool.NewPage(pid)
		require.NoError(t, err)
		pool.Unpin(pid, true)
	}

	reread, err := pool.Fetch(first)
	require.NoError(t, err)
	assert.Equal(t, byte(7), reread.Data[0])
	pool.Unpin(first, false)
}

func TestBufferPool_All_Pinned_Fails_To_Reserve(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	for i := int32(0); i < 2; i++ {
		_, err := pool.NewPage(disk.PageID{File: fileID, PageNo: i})
		require.NoError(t, err)
	}

	_, err := pool.NewPage(disk.PageID{File: fileID, PageNo: 2})
	assert.Error(t, err)
}

func TestBufferPool_Unpin_Unknown_Page_Panics(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	assert.Panics(t, func() {
		pool.Unpin(disk.PageID{File: fileID, PageNo: 9}, false)
	})
}

func TestBufferPool_FlushAll_Writes_Dirty_Pages(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	pid := disk.PageID{File: fileID, PageNo: 0}
	p, err := pool.NewPage(pid)
	require.NoError(t, err)
	p.Data[0] = 9
	pool.Unpin(pid, true)

	require.NoError(t, pool.FlushAll())

	buf := make([]byte, disk.PageSize)
	require.NoError(t, pool.DiskManager.ReadPage(pid, buf))
	assert.Equal(t, byte(9), buf[0])
}

func TestBufferPool_RemoveFile_Frees_Frames_And_Flushes(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	for i := int32(0); i < 2; i++ {
		p, err := pool.NewPage(disk.PageID{File: fileID, PageNo: i})
		require.NoError(t, err)
		p.Data[0] = byte(i + 1)
		pool.Unpin(disk.PageID{File: fileID, PageNo: i}, true)
	}

	require.NoError(t, pool.RemoveFile(fileID))
	assert.Equal(t, 2, pool.EmptyFrameSize())

	// dirty content reached disk before the frames were dropped
	buf := make([]byte, disk.PageSize)
	require.NoError(t, pool.DiskManager.ReadPage(disk.PageID{File: fileID, PageNo: 1}, buf))
	assert.Equal(t, byte(2), buf[0])
}

func TestBufferPool_RemoveFile_Refuses_Pinned_Pages(t *testing.T) {
	pool, fileID := newTestPool(t, 2)

	pid := disk.PageID{File: fileID, PageNo: 0}
	_, err := pool.NewPage(pid)
	require.NoError(t, err)

	assert.Error(t, pool.RemoveFile(fileID))

	pool.Unpin(pid, false)
	assert.NoError(t, pool.RemoveFile(fileID))
}

func TestLruReplacer_Victim_Order(t *testing.T) {
	r := NewLruReplacer()

	for _, f := range []int{0, 1, 2} {
		r.Pin(f)
	}
	r.Unpin(1)
	r.Unpin(0)
	r.Unpin(2)

	v, err := r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// re-pinning removes a frame from the victim candidates
	r.Pin(0)
	v, err = r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = r.ChooseVictim()
	assert.Error(t, err)
}

func TestLruReplacer_Unpin_Misuse_Panics(t *testing.T) {
	r := NewLruReplacer()
	assert.Panics(t, func() { r.Unpin(5) })

	r.Pin(1)
	r.Unpin(1)
	assert.Panics(t, func() { r.Unpin(1) })
}
