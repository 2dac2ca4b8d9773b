package record

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"reldb/disk"
)

// PageHdrSize is the size of the per page header: live record count and next
// free page number, both little endian int32.
const PageHdrSize = 8

// FileHeader is the per table metadata kept on page 0 of the record file. It
// is loaded once at open, mutated in memory by every structural change and
// written back by FlushHeader.
//
//	Header format (size in bytes):
//	-----------------------------------------------------------------------------------
//	| RecordSize (4) | SlotsPerPage (4) | BitmapSize (4) | FirstFreePage (4) | NumPages (4) |
//	-----------------------------------------------------------------------------------
type FileHeader struct {
	RecordSize    int32
	SlotsPerPage  int32
	BitmapSize    int32
	FirstFreePage int32
	NumPages      int32
}

// NewFileHeader computes the page geometry for a fixed record size. A page
// holds the page header, one occupancy bit per slot and the slots themselves.
func NewFileHeader(recordSize int) (FileHeader, error) {
	if recordSize <= 0 {
		return FileHeader{}, errors.Errorf("record size must be positive: %v", recordSize)
	}

	// solve slots from: PageHdrSize + ceil(slots/8) + slots*recordSize <= PageSize
	slots := 8 * (disk.PageSize - PageHdrSize) / (1 + 8*recordSize)
	if slots < 1 {
		return FileHeader{}, errors.Errorf("record size too large for page: %v", recordSize)
	}

	return FileHeader{
		RecordSize:    int32(recordSize),
		SlotsPerPage:  int32(slots),
		BitmapSize:    int32((slots + 7) / 8),
		FirstFreePage: NoPage,
		NumPages:      FirstRecordPage,
	}, nil
}

func writeFileHeader(h FileHeader, dest []byte) {
	binary.LittleEndian.PutUint32(dest[0:], uint32(h.RecordSize))
	binary.LittleEndian.PutUint32(dest[4:], uint32(h.SlotsPerPage))
	binary.LittleEndian.PutUint32(dest[8:], uint32(h.BitmapSize))
	binary.LittleEndian.PutUint32(dest[12:], uint32(h.FirstFreePage))
	binary.LittleEndian.PutUint32(dest[16:], uint32(h.NumPages))
}

func readFileHeader(data []byte) FileHeader {
	return FileHeader{
		RecordSize:    int32(binary.LittleEndian.Uint32(data[0:])),
		SlotsPerPage:  int32(binary.LittleEndian.Uint32(data[4:])),
		BitmapSize:    int32(binary.LittleEndian.Uint32(data[8:])),
		FirstFreePage: int32(binary.LittleEndian.Uint32(data[12:])),
		NumPages:      int32(binary.LittleEndian.Uint32(data[16:])),
	}
}
