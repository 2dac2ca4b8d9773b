package record

import "fmt"

// RecordNotFoundError is returned when an operation targets a slot whose
// occupancy bit does not match what the operation requires.
type RecordNotFoundError struct {
	PageNo int32
	SlotNo int32
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record not found: page %v, slot %v", e.PageNo, e.SlotNo)
}

// PageNotExistError is returned when a page number falls outside the file's
// allocated range.
type PageNotExistError struct {
	FileName string
	PageNo   int32
}

func (e *PageNotExistError) Error() string {
	return fmt.Sprintf("page %v does not exist in file %v", e.PageNo, e.FileName)
}
