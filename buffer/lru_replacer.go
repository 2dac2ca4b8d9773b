package buffer

import (
	"errors"
	"sync"
)

var _ IReplacer = &LruReplacer{}

// LruReplacer keeps unpinned frames in access order; the least recently
// unpinned frame is the next victim.
type LruReplacer struct {
	unpinned []int
	pinned   map[int]struct{}
	lock     sync.Mutex
}

func NewLruReplacer() *LruReplacer {
	return &LruReplacer{
		unpinned: make([]int, 0),
		pinned:   make(map[int]struct{}),
	}
}

func (l *LruReplacer) NumPinnedPages() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.pinned)
}

func (l *LruReplacer) Pin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if idx, ok := l.findFrameId(frameId); ok {
		copy(l.unpinned[idx:], l.unpinned[idx+1:])
		l.unpinned = l.unpinned[:len(l.unpinned)-1]
	}
	l.pinned[frameId] = struct{}{}
}

func (l *LruReplacer) Unpin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.pinned[frameId]; !ok {
		panic("unpinning a frame which is not pinned")
	}
	if _, ok := l.findFrameId(frameId); ok {
		panic("unpinning a frame which is already unpinned")
	}

	l.unpinned = append(l.unpinned, frameId)
	delete(l.pinned, frameId)
}

func (l *LruReplacer) ChooseVictim() (frameId int, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.unpinned) == 0 {
		return 0, errors.New("nothing is unpinned")
	}

	victim := l.unpinned[0]
	l.unpinned = l.unpinned[1:]
	return victim, nil
}

func (l *LruReplacer) findFrameId(frameId int) (int, bool) {
	for idx, curr := range l.unpinned {
		if curr == frameId {
			return idx, true
		}
	}
	return 0, false
}
