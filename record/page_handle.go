package record

import (
	"encoding/binary"

	"reldb/disk/pages"
)

/**
 * Record page format:
 *  ------------------------------------------------------------------
 *  | PAGE HEADER | OCCUPANCY BITMAP | SLOT 0 | SLOT 1 | ... | SLOT n |
 *  ------------------------------------------------------------------
 *
 *  Page header format (size in bytes):
 *  ----------------------------------------
 *  | NumRecords (4) | NextFreePage (4) |
 *  ----------------------------------------
 *
 * One bit per slot; a set bit means the slot holds a live record. Pages with
 * spare capacity are chained through NextFreePage starting at the file
 * header's FirstFreePage.
 */

// pageHandle is a typed view over a pinned raw page. It does not own the pin;
// whoever fetched the page unpins it.
type pageHandle struct {
	hdr  *FileHeader
	page *pages.RawPage
}

func newPageHandle(hdr *FileHeader, page *pages.RawPage) pageHandle {
	return pageHandle{hdr: hdr, page: page}
}

func (h pageHandle) pageNo() int32 {
	return h.page.GetPageId().PageNo
}

func (h pageHandle) numRecords() int32 {
	return int32(binary.LittleEndian.Uint32(h.page.Data[0:]))
}

func (h pageHandle) setNumRecords(n int32) {
	binary.LittleEndian.PutUint32(h.page.Data[0:], uint32(n))
}

func (h pageHandle) nextFreePage() int32 {
	return int32(binary.LittleEndian.Uint32(h.page.Data[4:]))
}

func (h pageHandle) setNextFreePage(pageNo int32) {
	binary.LittleEndian.PutUint32(h.page.Data[4:], uint32(pageNo))
}

func (h pageHandle) bitmap() []byte {
	return h.page.Data[PageHdrSize : PageHdrSize+int(h.hdr.BitmapSize)]
}

func (h pageHandle) slot(slotNo int32) []byte {
	off := PageHdrSize + int(h.hdr.BitmapSize) + int(slotNo)*int(h.hdr.RecordSize)
	return h.page.Data[off : off+int(h.hdr.RecordSize)]
}
