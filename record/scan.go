package record

import "reldb/common"

// Scan walks a record file's occupied slots in page number major, slot number
// minor order. It fetches one page at a time and observes the table as it is
// at each fetch; it is not restartable.
type Scan struct {
	fh  *FileHandle
	rid Rid
}

// NewScan positions the scan at the first occupied slot, or at the end
// sentinel if the file holds no records.
func NewScan(fh *FileHandle) (*Scan, error) {
	s := &Scan{fh: fh, rid: NewRid(FirstRecordPage, -1)}
	if err := s.Next(); err != nil {
		return nil, err
	}
	return s, nil
}

// Next advances to the following occupied slot. Once the end is reached the
// scan stays at InvalidRid.
func (s *Scan) Next() error {
	if s.IsEnd() {
		return nil
	}
	if s.fh.hdr.NumPages <= FirstRecordPage {
		s.rid = InvalidRid
		return nil
	}

	startPage := s.rid.PageNo
	for pageNo := startPage; pageNo < s.fh.hdr.NumPages; pageNo++ {
		ph, err := s.fh.fetchPageHandle(pageNo)
		if err != nil {
			return err
		}

		begin := -1
		if pageNo == startPage {
			begin = int(s.rid.SlotNo)
		}
		slotNo := common.BitmapNextBit(true, ph.bitmap(), int(s.fh.hdr.SlotsPerPage), begin)
		s.fh.unpin(ph, false)

		if slotNo < int(s.fh.hdr.SlotsPerPage) {
			s.rid = NewRid(pageNo, int32(slotNo))
			return nil
		}
	}

	s.rid = InvalidRid
	return nil
}

func (s *Scan) IsEnd() bool {
	return !s.rid.IsValid()
}

func (s *Scan) Rid() Rid {
	return s.rid
}
