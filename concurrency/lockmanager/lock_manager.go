package lockmanager

import (
	"sync"

	"go.uber.org/zap"

	"reldb/disk"
	"reldb/record"
	"reldb/transaction"
)

type LockRequest struct {
	TxnID   transaction.TxnID
	Mode    LockMode
	Granted bool
}

// LockRequestQueue holds every request for one resource plus a derived group
// mode summarizing the granted ones. The cond is signalled on unlock for an
// eventual blocking extension; the granting path never waits on it.
type LockRequestQueue struct {
	requests  []*LockRequest
	groupMode LockMode
	cond      *sync.Cond
}

type ILockManager interface {
	LockSharedOnRecord(txn *transaction.Transaction, rid record.Rid, file disk.FileID) (bool, error)
	LockExclusiveOnRecord(txn *transaction.Transaction, rid record.Rid, file disk.FileID) (bool, error)
	LockSharedOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error)
	LockExclusiveOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error)
	LockISOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error)
	LockIXOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error)
	Unlock(txn *transaction.Transaction, res transaction.ResourceID) bool
}

var _ ILockManager = &LockManager{}

// LockManager implements multi granularity 2PL with immediate conflict
// refusal: a request that cannot be granted returns false right away instead
// of waiting. One latch guards the whole lock table.
type LockManager struct {
	latch  sync.Mutex
	table  map[transaction.ResourceID]*LockRequestQueue
	logger *zap.Logger
}

func NewLockManager(logger *zap.Logger) *LockManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockManager{
		table:  map[transaction.ResourceID]*LockRequestQueue{},
		logger: logger,
	}
}

func (l *LockManager) LockSharedOnRecord(txn *transaction.Transaction, rid record.Rid, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.RecordID(file, rid), Shared)
}

func (l *LockManager) LockExclusiveOnRecord(txn *transaction.Transaction, rid record.Rid, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.RecordID(file, rid), Exclusive)
}

func (l *LockManager) LockSharedOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.TableID(file), Shared)
}

func (l *LockManager) LockExclusiveOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.TableID(file), Exclusive)
}

func (l *LockManager) LockISOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.TableID(file), IntentionShared)
}

func (l *LockManager) LockIXOnTable(txn *transaction.Transaction, file disk.FileID) (bool, error) {
	return l.lock(txn, transaction.TableID(file), IntentionExclusive)
}

// Unlock releases the caller's request on one resource. The first release
// ends the growing phase for good. Returns false if the transaction held no
// request on the resource.
func (l *LockManager) Unlock(txn *transaction.Transaction, res transaction.ResourceID) bool {
	l.latch.Lock()
	defer l.latch.Unlock()

	queue, ok := l.table[res]
	if !ok {
		return false
	}

	for i, req := range queue.requests {
		if req.TxnID != txn.ID() {
			continue
		}

		queue.requests = append(queue.requests[:i], queue.requests[i+1:]...)
		delete(txn.LockSet(), res)
		if txn.State() == transaction.Growing {
			txn.SetState(transaction.Shrinking)
		}

		if len(queue.requests) == 0 {
			delete(l.table, res)
		} else {
			updateGroupMode(queue)
		}
		queue.cond.Broadcast()
		return true
	}
	return false
}

// GroupMode returns the coarsest mode implied by all granted requests on a
// resource, NonLock when nothing is held. It is a conservative summary for
// callers that only need the dominant mode.
func (l *LockManager) GroupMode(res transaction.ResourceID) LockMode {
	l.latch.Lock()
	defer l.latch.Unlock()

	queue, ok := l.table[res]
	if !ok {
		return NonLock
	}
	return queue.groupMode
}

// lock admits, upgrades or refuses one request. true means the lock is held
// by the caller afterward; false with a nil error is an ordinary refusal the
// caller may retry; false with a TxnAbortError is a protocol violation that
// must abort the transaction.
func (l *LockManager) lock(txn *transaction.Transaction, res transaction.ResourceID, mode LockMode) (bool, error) {
	if txn == nil {
		return false, nil
	}
	if txn.State() == transaction.Shrinking {
		return false, &TxnAbortError{TxnID: txn.ID(), Reason: LockOnShrinking}
	}

	l.latch.Lock()
	defer l.latch.Unlock()

	queue, ok := l.table[res]
	if !ok {
		queue = &LockRequestQueue{cond: sync.NewCond(&l.latch)}
		l.table[res] = queue
	}

	for _, own := range queue.requests {
		if own.TxnID != txn.ID() {
			continue
		}

		if own.Granted && own.Mode == mode {
			return true, nil
		}

		// upgrade: every lock granted to another transaction must be
		// compatible with the new mode
		for _, req := range queue.requests {
			if req.TxnID == txn.ID() {
				continue
			}
			if req.Granted && !IsCompatible(mode, req.Mode) {
				l.logger.Debug("lock upgrade conflict",
					zap.Int64("txn", int64(txn.ID())),
					zap.String("resource", res.String()),
					zap.String("mode", mode.String()))
				return false, &TxnAbortError{TxnID: txn.ID(), Reason: UpgradeConflict}
			}
		}

		own.Mode = mode
		own.Granted = true
		updateGroupMode(queue)
		txn.LockSet()[res] = struct{}{}
		return true, nil
	}

	for _, req := range queue.requests {
		if req.Granted && !IsCompatible(mode, req.Mode) {
			return false, nil
		}
	}

	queue.requests = append(queue.requests, &LockRequest{TxnID: txn.ID(), Mode: mode, Granted: true})
	updateGroupMode(queue)
	txn.LockSet()[res] = struct{}{}
	if txn.State() == transaction.Default {
		txn.SetState(transaction.Growing)
	}
	return true, nil
}

func updateGroupMode(queue *LockRequestQueue) {
	mode := NonLock
	for _, req := range queue.requests {
		if req.Granted && req.Mode > mode {
			mode = req.Mode
		}
	}
	queue.groupMode = mode
}
