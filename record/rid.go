package record

const (
	// NoPage terminates the free page list and marks the end of a scan.
	NoPage int32 = -1

	// FirstRecordPage is the page number of the first data page in a record
	// file. Page 0 holds the file header.
	FirstRecordPage int32 = 1
)

// Rid is the stable physical address of a record: the page it lives on and
// its slot inside that page.
type Rid struct {
	PageNo int32
	SlotNo int32
}

func NewRid(pageNo, slotNo int32) Rid {
	return Rid{PageNo: pageNo, SlotNo: slotNo}
}

// InvalidRid is the sentinel a scan reports once it runs out of records.
var InvalidRid = Rid{PageNo: NoPage, SlotNo: NoPage}

func (r Rid) IsValid() bool {
	return r.PageNo != NoPage
}
