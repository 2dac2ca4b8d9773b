package pages

import (
	"reldb/disk"
)

// IPage is a wrapper for actual physical pages in the file system. It keeps
// the bookkeeping the buffer pool needs next to the page's content.
type IPage interface {
	GetPageId() disk.PageID
	GetPinCount() int
	IsDirty() bool
	SetDirty()
	SetClean()
	IncrPinCount()
	DecrPinCount()
}

var _ IPage = &RawPage{}

type RawPage struct {
	PageId   disk.PageID
	isDirty  bool
	PinCount int
	Data     []byte
}

func NewRawPage(pid disk.PageID) *RawPage {
	return &RawPage{
		PageId: pid,
		Data:   make([]byte, disk.PageSize),
	}
}

func (p *RawPage) IncrPinCount() {
	p.PinCount++
}

func (p *RawPage) DecrPinCount() {
	p.PinCount--
}

func (p *RawPage) GetPageId() disk.PageID {
	return p.PageId
}

func (p *RawPage) GetPinCount() int {
	return p.PinCount
}

func (p *RawPage) IsDirty() bool {
	return p.isDirty
}

func (p *RawPage) SetDirty() {
	p.isDirty = true
}

func (p *RawPage) SetClean() {
	p.isDirty = false
}
