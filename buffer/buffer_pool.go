package buffer

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"reldb/disk"
	"reldb/disk/pages"
)

type Pool interface {
	// Fetch returns the requested page pinned. Every successful Fetch must be
	// matched by exactly one Unpin.
	Fetch(pid disk.PageID) (*pages.RawPage, error)

	// NewPage reserves a frame for a page that does not exist on disk yet and
	// returns it pinned and zero filled. The page reaches disk when it is
	// unpinned dirty and later evicted or flushed.
	NewPage(pid disk.PageID) (*pages.RawPage, error)

	Unpin(pid disk.PageID, isDirty bool) bool
	FlushAll() error

	// RemoveFile drops every frame caching a page of the given file, writing
	// dirty ones back first. It fails while any of the file's pages is pinned.
	RemoveFile(fileID disk.FileID) error

	// EmptyFrameSize returns the number of frames which do not hold data of
	// any physical page.
	EmptyFrameSize() int
}

var _ Pool = &BufferPool{}

type frame struct {
	page *pages.RawPage
}

type BufferPool struct {
	poolSize    int
	frames      []*frame
	pageMap     map[disk.PageID]int // physical page id => frame index which keeps that page
	emptyFrames []int               // indexes of frames in the pool which hold no page
	Replacer    IReplacer
	DiskManager disk.IDiskManager
	lock        sync.Mutex
	logger      *zap.Logger
}

func NewBufferPool(dm disk.IDiskManager, poolSize int, logger *zap.Logger) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}

	emptyFrames := make([]int, poolSize)
	for i := range emptyFrames {
		emptyFrames[i] = i
	}

	return &BufferPool{
		poolSize:    poolSize,
		frames:      make([]*frame, poolSize),
		pageMap:     map[disk.PageID]int{},
		emptyFrames: emptyFrames,
		Replacer:    NewLruReplacer(),
		DiskManager: dm,
		logger:      logger,
	}
}

func (b *BufferPool) Fetch(pid disk.PageID) (*pages.RawPage, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if frameIdx, ok := b.pageMap[pid]; ok {
		b.pinFrame(frameIdx)
		return b.frames[frameIdx].page, nil
	}

	frameIdx, err := b.reserveFrame()
	if err != nil {
		return nil, err
	}

	p := b.frames[frameIdx].page
	if err := b.DiskManager.ReadPage(pid, p.Data); err != nil {
		b.emptyFrames = append(b.emptyFrames, frameIdx)
		return nil, err
	}

	p.PageId = pid
	p.SetClean()
	b.pageMap[pid] = frameIdx
	b.pinFrame(frameIdx)
	return p, nil
}

func (b *BufferPool) NewPage(pid disk.PageID) (*pages.RawPage, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.pageMap[pid]; ok {
		return nil, errors.Errorf("page already exists in the pool: %v", pid)
	}

	frameIdx, err := b.reserveFrame()
	if err != nil {
		return nil, err
	}

	p := b.frames[frameIdx].page
	for i := range p.Data {
		p.Data[i] = 0
	}

	p.PageId = pid
	p.SetClean()
	b.pageMap[pid] = frameIdx
	b.pinFrame(frameIdx)
	return p, nil
}

func (b *BufferPool) Unpin(pid disk.PageID, isDirty bool) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	frameIdx, ok := b.pageMap[pid]
	if !ok {
		panic(fmt.Sprintf("unpinned a page which does not exist: %v", pid))
	}

	frame := b.frames[frameIdx]
	if isDirty {
		frame.page.SetDirty()
	}

	if frame.page.GetPinCount() <= 0 {
		panic(fmt.Sprintf("buffer.Unpin is called while pin count is lte zero. PageId: %v, pin count: %v", pid, frame.page.GetPinCount()))
	}

	frame.page.DecrPinCount()
	if frame.page.GetPinCount() == 0 {
		b.Replacer.Unpin(frameIdx)
		return true
	}
	return false
}

// FlushAll syncs every dirty page in the pool to disk. Pinned pages are
// flushed too; their frames are not evicted.
func (b *BufferPool) FlushAll() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for pid, frameIdx := range b.pageMap {
		p := b.frames[frameIdx].page
		if !p.IsDirty() {
			continue
		}
		if err := b.DiskManager.WritePage(pid, p.Data); err != nil {
			return err
		}
		p.SetClean()
	}
	return nil
}

// RemoveFile invalidates the pool's frames for one file so the file can be
// closed without a later eviction writing to it.
func (b *BufferPool) RemoveFile(fileID disk.FileID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for pid, frameIdx := range b.pageMap {
		if pid.File != fileID {
			continue
		}

		p := b.frames[frameIdx].page
		if p.GetPinCount() > 0 {
			return errors.Errorf("cannot remove file %v from pool: page %v is pinned", fileID, pid.PageNo)
		}
		if p.IsDirty() {
			if err := b.DiskManager.WritePage(pid, p.Data); err != nil {
				return errors.Wrapf(err, "could not write page %v while removing file %v", pid.PageNo, fileID)
			}
			p.SetClean()
		}

		b.Replacer.Pin(frameIdx)
		delete(b.pageMap, pid)
		b.emptyFrames = append(b.emptyFrames, frameIdx)
	}
	return nil
}

func (b *BufferPool) EmptyFrameSize() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.emptyFrames)
}

// pinFrame must be called with lock held.
func (b *BufferPool) pinFrame(frameIdx int) {
	b.frames[frameIdx].page.IncrPinCount()
	b.Replacer.Pin(frameIdx)
}

// reserveFrame returns the index of a frame that may be loaded with a new
// page, evicting a victim if no frame is empty. Must be called with lock
// held.
func (b *BufferPool) reserveFrame() (int, error) {
	if len(b.emptyFrames) > 0 {
		frameIdx := b.emptyFrames[0]
		b.emptyFrames = b.emptyFrames[1:]
		if b.frames[frameIdx] == nil {
			b.frames[frameIdx] = &frame{page: pages.NewRawPage(disk.PageID{})}
		}
		return frameIdx, nil
	}

	victimIdx, err := b.Replacer.ChooseVictim()
	if err != nil {
		return 0, errors.Wrap(err, "all pages are pinned")
	}

	victim := b.frames[victimIdx].page
	if victim.IsDirty() {
		if err := b.DiskManager.WritePage(victim.GetPageId(), victim.Data); err != nil {
			return 0, errors.Wrapf(err, "could not write victim page %v", victim.GetPageId())
		}
		victim.SetClean()
	}

	b.logger.Debug("evicted page", zap.Int32("file", int32(victim.GetPageId().File)), zap.Int32("pageNo", victim.GetPageId().PageNo))
	delete(b.pageMap, victim.GetPageId())
	return victimIdx, nil
}
