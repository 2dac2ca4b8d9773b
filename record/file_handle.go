package record

import (
	"github.com/pkg/errors"

	"reldb/buffer"
	"reldb/common"
	"reldb/disk"
)

// FileHandle gives record granular access to one table's page file. Records
// are fixed size; a page tracks its live records in an occupancy bitmap and
// pages with spare capacity are chained into a free page list headed in the
// file header.
//
// FileHandle has no synchronization of its own. Callers serialize mutating
// operations through the lock manager before reaching it.
type FileHandle struct {
	dm     disk.IDiskManager
	pool   buffer.Pool
	fileID disk.FileID
	hdr    FileHeader
}

// CreateFile creates the page file for a new table and writes its header.
func CreateFile(dm disk.IDiskManager, pool buffer.Pool, name string, recordSize int) (*FileHandle, error) {
	hdr, err := NewFileHeader(recordSize)
	if err != nil {
		return nil, err
	}

	fileID, err := dm.CreateFile(name)
	if err != nil {
		return nil, err
	}

	fh := &FileHandle{dm: dm, pool: pool, fileID: fileID, hdr: hdr}
	if err := fh.FlushHeader(); err != nil {
		return nil, err
	}
	return fh, nil
}

// OpenFile opens an existing table's page file and loads its header.
func OpenFile(dm disk.IDiskManager, pool buffer.Pool, name string) (*FileHandle, error) {
	fileID, err := dm.OpenFile(name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, disk.PageSize)
	if err := dm.ReadPage(disk.PageID{File: fileID, PageNo: 0}, buf); err != nil {
		return nil, errors.Wrapf(err, "could not read file header of %v", name)
	}

	return &FileHandle{dm: dm, pool: pool, fileID: fileID, hdr: readFileHeader(buf)}, nil
}

func (f *FileHandle) FileID() disk.FileID {
	return f.fileID
}

func (f *FileHandle) Header() FileHeader {
	return f.hdr
}

// FlushHeader writes the in memory file header back to page 0.
func (f *FileHandle) FlushHeader() error {
	buf := make([]byte, disk.PageSize)
	writeFileHeader(f.hdr, buf)
	if err := f.dm.WritePage(disk.PageID{File: f.fileID, PageNo: 0}, buf); err != nil {
		return errors.Wrapf(err, "could not write file header of %v", f.dm.GetFileName(f.fileID))
	}
	return nil
}

// Close flushes the header and closes the underlying file.
func (f *FileHandle) Close() error {
	if err := f.FlushHeader(); err != nil {
		return err
	}
	if err := f.dm.Sync(f.fileID); err != nil {
		return err
	}
	return f.dm.CloseFile(f.fileID)
}

// GetRecord returns a copy of the record at rid.
func (f *FileHandle) GetRecord(rid Rid) ([]byte, error) {
	ph, err := f.fetchPageHandle(rid.PageNo)
	if err != nil {
		return nil, err
	}

	if !common.BitmapIsSet(ph.bitmap(), int(rid.SlotNo)) {
		f.unpin(ph, false)
		return nil, &RecordNotFoundError{PageNo: rid.PageNo, SlotNo: rid.SlotNo}
	}

	rec := make([]byte, f.hdr.RecordSize)
	copy(rec, ph.slot(rid.SlotNo))
	f.unpin(ph, false)
	return rec, nil
}

// InsertRecord inserts a record into a page with spare capacity, reusing the
// head of the free page list when one exists, and returns its position.
func (f *FileHandle) InsertRecord(buf []byte) (Rid, error) {
	if len(buf) != int(f.hdr.RecordSize) {
		return InvalidRid, errors.Errorf("record size mismatch: got %v, want %v", len(buf), f.hdr.RecordSize)
	}

	ph, err := f.createPageHandle()
	if err != nil {
		return InvalidRid, err
	}

	slotNo := int32(common.BitmapFirstBit(false, ph.bitmap(), int(f.hdr.SlotsPerPage)))
	if slotNo >= f.hdr.SlotsPerPage {
		// a page on the free list always has a clear bit
		f.unpin(ph, false)
		return InvalidRid, errors.New("no free slot found when inserting record")
	}

	copy(ph.slot(slotNo), buf)
	common.BitmapSet(ph.bitmap(), int(slotNo))
	ph.setNumRecords(ph.numRecords() + 1)

	if ph.numRecords() == f.hdr.SlotsPerPage {
		f.hdr.FirstFreePage = ph.nextFreePage()
		ph.setNextFreePage(NoPage)
	}

	f.unpin(ph, true)
	return NewRid(ph.pageNo(), slotNo), nil
}

// InsertRecordAt inserts a record at a caller chosen position. It is used by
// abort undo to re-insert a deleted record at its old address; the slot must
// be empty.
func (f *FileHandle) InsertRecordAt(rid Rid, buf []byte) error {
	if len(buf) != int(f.hdr.RecordSize) {
		return errors.Errorf("record size mismatch: got %v, want %v", len(buf), f.hdr.RecordSize)
	}

	ph, err := f.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}

	if common.BitmapIsSet(ph.bitmap(), int(rid.SlotNo)) {
		f.unpin(ph, false)
		return &RecordNotFoundError{PageNo: rid.PageNo, SlotNo: rid.SlotNo}
	}

	copy(ph.slot(rid.SlotNo), buf)
	common.BitmapSet(ph.bitmap(), int(rid.SlotNo))
	ph.setNumRecords(ph.numRecords() + 1)

	if ph.numRecords() == f.hdr.SlotsPerPage {
		if err := f.detachFromFreeList(ph); err != nil {
			f.unpin(ph, true)
			return err
		}
		ph.setNextFreePage(NoPage)
	}

	f.unpin(ph, true)
	return nil
}

// DeleteRecord removes the record at rid. A page that was full re-enters the
// free page list at its head.
func (f *FileHandle) DeleteRecord(rid Rid) error {
	ph, err := f.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}

	if !common.BitmapIsSet(ph.bitmap(), int(rid.SlotNo)) {
		f.unpin(ph, false)
		return &RecordNotFoundError{PageNo: rid.PageNo, SlotNo: rid.SlotNo}
	}

	wasFull := ph.numRecords() == f.hdr.SlotsPerPage
	common.BitmapReset(ph.bitmap(), int(rid.SlotNo))
	ph.setNumRecords(ph.numRecords() - 1)

	if wasFull {
		f.releasePageHandle(ph)
	}

	f.unpin(ph, true)
	return nil
}

// UpdateRecord overwrites the record at rid in place.
func (f *FileHandle) UpdateRecord(rid Rid, buf []byte) error {
	if len(buf) != int(f.hdr.RecordSize) {
		return errors.Errorf("record size mismatch: got %v, want %v", len(buf), f.hdr.RecordSize)
	}

	ph, err := f.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}

	if !common.BitmapIsSet(ph.bitmap(), int(rid.SlotNo)) {
		f.unpin(ph, false)
		return &RecordNotFoundError{PageNo: rid.PageNo, SlotNo: rid.SlotNo}
	}

	copy(ph.slot(rid.SlotNo), buf)
	f.unpin(ph, true)
	return nil
}

// fetchPageHandle returns the requested data page pinned. The caller must
// unpin it on every exit path.
func (f *FileHandle) fetchPageHandle(pageNo int32) (pageHandle, error) {
	if pageNo < FirstRecordPage || pageNo >= f.hdr.NumPages {
		return pageHandle{}, &PageNotExistError{FileName: f.dm.GetFileName(f.fileID), PageNo: pageNo}
	}

	p, err := f.pool.Fetch(disk.PageID{File: f.fileID, PageNo: pageNo})
	if err != nil {
		return pageHandle{}, errors.Wrapf(err, "could not fetch page %v of %v", pageNo, f.dm.GetFileName(f.fileID))
	}
	return newPageHandle(&f.hdr, p), nil
}

// createPageHandle returns a pinned page with spare capacity: the head of the
// free page list when the list is not empty, a freshly allocated page
// otherwise.
func (f *FileHandle) createPageHandle() (pageHandle, error) {
	if f.hdr.FirstFreePage == NoPage {
		return f.createNewPageHandle()
	}
	return f.fetchPageHandle(f.hdr.FirstFreePage)
}

func (f *FileHandle) createNewPageHandle() (pageHandle, error) {
	pageNo := f.hdr.NumPages
	p, err := f.pool.NewPage(disk.PageID{File: f.fileID, PageNo: pageNo})
	if err != nil {
		return pageHandle{}, errors.Wrap(err, "could not allocate new page for record file")
	}

	ph := newPageHandle(&f.hdr, p)
	common.BitmapInit(ph.bitmap())
	ph.setNumRecords(0)
	ph.setNextFreePage(f.hdr.FirstFreePage)
	f.hdr.FirstFreePage = pageNo
	f.hdr.NumPages++
	return ph, nil
}

// releasePageHandle pushes a page that just regained spare capacity onto the
// head of the free page list.
func (f *FileHandle) releasePageHandle(ph pageHandle) {
	ph.setNextFreePage(f.hdr.FirstFreePage)
	f.hdr.FirstFreePage = ph.pageNo()
}

// detachFromFreeList removes a page that just became full from wherever it
// sits in the free page list. Targeted inserts may fill any listed page, not
// just the head, so this walks the chain to find the predecessor.
func (f *FileHandle) detachFromFreeList(ph pageHandle) error {
	target := ph.pageNo()
	if f.hdr.FirstFreePage == target {
		f.hdr.FirstFreePage = ph.nextFreePage()
		return nil
	}

	prev := f.hdr.FirstFreePage
	for prev != NoPage {
		prevPh, err := f.fetchPageHandle(prev)
		if err != nil {
			return err
		}
		if prevPh.nextFreePage() == target {
			prevPh.setNextFreePage(ph.nextFreePage())
			f.unpin(prevPh, true)
			return nil
		}
		next := prevPh.nextFreePage()
		f.unpin(prevPh, false)
		prev = next
	}
	return nil
}

func (f *FileHandle) unpin(ph pageHandle, isDirty bool) {
	f.pool.Unpin(ph.page.GetPageId(), isDirty)
}
