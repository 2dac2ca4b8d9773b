package transaction

import (
	"reldb/record"
)

type TxnID int64

// TxnState is the 2PL phase of a transaction. A transaction moves from
// Default to Growing on begin or its first granted lock, to Shrinking on its
// first unlock and ends Committed or Aborted. Terminal states are never left.
type TxnState int

const (
	Default TxnState = iota
	Growing
	Shrinking
	Committed
	Aborted
)

func (s TxnState) String() string {
	switch s {
	case Default:
		return "DEFAULT"
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Transaction is caller owned. The transaction manager only registers it
// between begin and commit/abort; it must not be driven by more than one
// goroutine at once.
type Transaction struct {
	id      TxnID
	state   TxnState
	startTS int64

	locks  map[ResourceID]struct{}
	writes []*WriteRecord
}

func NewTransaction(id TxnID) *Transaction {
	return &Transaction{
		id:    id,
		locks: map[ResourceID]struct{}{},
	}
}

func (t *Transaction) ID() TxnID {
	return t.id
}

func (t *Transaction) State() TxnState {
	return t.state
}

func (t *Transaction) SetState(s TxnState) {
	t.state = s
}

func (t *Transaction) StartTS() int64 {
	return t.startTS
}

func (t *Transaction) SetStartTS(ts int64) {
	t.startTS = ts
}

// LockSet returns the set of resources the transaction currently holds. The
// lock manager mutates it directly while holding its own latch.
func (t *Transaction) LockSet() map[ResourceID]struct{} {
	return t.locks
}

// AppendWrite records one physical write so that abort can invert it.
func (t *Transaction) AppendWrite(w *WriteRecord) {
	t.writes = append(t.writes, w)
}

// Writes returns the write undo list in recording order.
func (t *Transaction) Writes() []*WriteRecord {
	return t.writes
}

// ClearWrites discards the undo list without replaying it.
func (t *Transaction) ClearWrites() {
	t.writes = nil
}

// WriteKind tells which record operation a WriteRecord undoes.
type WriteKind int

const (
	WInsert WriteKind = iota
	WDelete
	WUpdate
)

// WriteRecord is one entry of a transaction's undo list: the table and
// position of a physical write plus the bytes needed to invert it. For
// deletes and updates Data holds the prior record image; for inserts it may
// be nil since undoing an insert only deletes the slot.
type WriteRecord struct {
	TabName string
	Rid     record.Rid
	Kind    WriteKind
	Data    []byte
}

func NewWriteRecord(tabName string, rid record.Rid, kind WriteKind, data []byte) *WriteRecord {
	return &WriteRecord{TabName: tabName, Rid: rid, Kind: kind, Data: data}
}
