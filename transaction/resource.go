package transaction

import (
	"fmt"

	"reldb/disk"
	"reldb/record"
)

// ResourceType is the granularity of a lockable resource.
type ResourceType int

const (
	TableResource ResourceType = iota
	RecordResource
)

// ResourceID identifies one lockable resource: a whole table, or a single
// record inside it. It is comparable and used as the lock table key and as
// the member of a transaction's lock set.
type ResourceID struct {
	File disk.FileID
	Rid  record.Rid
	Typ  ResourceType
}

func TableID(file disk.FileID) ResourceID {
	return ResourceID{File: file, Typ: TableResource}
}

func RecordID(file disk.FileID, rid record.Rid) ResourceID {
	return ResourceID{File: file, Rid: rid, Typ: RecordResource}
}

func (r ResourceID) String() string {
	if r.Typ == TableResource {
		return fmt.Sprintf("table(%v)", r.File)
	}
	return fmt.Sprintf("record(%v, %v.%v)", r.File, r.Rid.PageNo, r.Rid.SlotNo)
}
