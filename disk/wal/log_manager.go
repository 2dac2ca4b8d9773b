package wal

// LogManager is the durability point the transaction manager drives. Commit
// and abort append a marker for the finished transaction and then ask for a
// flush before the outcome is acknowledged. Nothing in this core reads the
// log back; recovery is not implemented here.
type LogManager interface {
	AppendCommit(txnID uint64)
	AppendAbort(txnID uint64)

	// Flush blocks until every appended marker is persisted.
	Flush() error
}
