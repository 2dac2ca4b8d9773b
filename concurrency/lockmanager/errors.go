package lockmanager

import (
	"fmt"

	"reldb/transaction"
)

// AbortReason classifies 2PL protocol violations. They are the only lock
// manager outcomes that must abort the calling transaction; an ordinary
// conflict is a plain refusal, not an error.
type AbortReason int

const (
	// LockOnShrinking is raised when a transaction requests a new lock after
	// its first release.
	LockOnShrinking AbortReason = iota

	// UpgradeConflict is raised when a mode upgrade conflicts with a lock
	// granted to another transaction.
	UpgradeConflict
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	}
	return "UNKNOWN"
}

type TxnAbortError struct {
	TxnID  transaction.TxnID
	Reason AbortReason
}

func (e *TxnAbortError) Error() string {
	return fmt.Sprintf("transaction %v must abort: %v", e.TxnID, e.Reason)
}
