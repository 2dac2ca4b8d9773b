package concurrency

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"reldb/concurrency/lockmanager"
	"reldb/disk/wal"
	"reldb/record"
	"reldb/transaction"
)

// TableRegistry resolves a table name to its record file handle and to the
// latch serializing access to that file. Abort undo consults it to find the
// file a write record targets and holds the latch while inverting the write.
type TableRegistry interface {
	GetTable(name string) *record.FileHandle
	TableLatch(name string) *sync.RWMutex
}

// TxnManager keeps track of running transactions and drives commit and abort.
type TxnManager interface {
	Begin(txn *transaction.Transaction, lm wal.LogManager) *transaction.Transaction
	Commit(txn *transaction.Transaction, lm wal.LogManager) error
	Abort(txn *transaction.Transaction, lm wal.LogManager) error

	ActiveTransactions() []transaction.TxnID
}

var _ TxnManager = &TxnManagerImpl{}

type TxnManagerImpl struct {
	mut     sync.Mutex
	actives map[transaction.TxnID]*transaction.Transaction

	lockManager *lockmanager.LockManager
	tables      TableRegistry

	txnCounter atomic.Int64
	tsCounter  atomic.Int64
	logger     *zap.Logger
}

func NewTxnManager(lockManager *lockmanager.LockManager, tables TableRegistry, logger *zap.Logger) *TxnManagerImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxnManagerImpl{
		actives:     map[transaction.TxnID]*transaction.Transaction{},
		lockManager: lockManager,
		tables:      tables,
		logger:      logger,
	}
}

// Begin starts a transaction and registers it in the live transaction table.
// When txn is nil a fresh transaction with a new id is allocated; otherwise
// the supplied one is started.
func (t *TxnManagerImpl) Begin(txn *transaction.Transaction, lm wal.LogManager) *transaction.Transaction {
	if txn == nil {
		txn = transaction.NewTransaction(transaction.TxnID(t.txnCounter.Add(1)))
	}
	txn.SetState(transaction.Growing)
	txn.SetStartTS(t.tsCounter.Add(1))

	t.mut.Lock()
	t.actives[txn.ID()] = txn
	t.mut.Unlock()
	return txn
}

// Commit makes the transaction's writes final: the undo list is discarded,
// every held lock is released, the log is flushed and the transaction leaves
// the live table. The transaction object itself stays with its creator.
func (t *TxnManagerImpl) Commit(txn *transaction.Transaction, lm wal.LogManager) error {
	if txn == nil {
		return nil
	}

	txn.ClearWrites()
	t.releaseAllLocks(txn)

	if lm != nil {
		lm.AppendCommit(uint64(txn.ID()))
		if err := lm.Flush(); err != nil {
			return err
		}
	}

	txn.SetState(transaction.Committed)
	t.mut.Lock()
	delete(t.actives, txn.ID())
	t.mut.Unlock()

	t.logger.Debug("txn committed", zap.Int64("txn", int64(txn.ID())))
	return nil
}

// Abort rolls the transaction back: the undo list is replayed in reverse,
// inverting each write against the record manager, then locks are released
// and the transaction leaves the live table. Write records naming unknown
// tables are skipped.
func (t *TxnManagerImpl) Abort(txn *transaction.Transaction, lm wal.LogManager) error {
	if txn == nil {
		return nil
	}

	writes := txn.Writes()
	for i := len(writes) - 1; i >= 0; i-- {
		if err := t.undo(writes[i]); err != nil {
			return err
		}
	}
	txn.ClearWrites()

	t.releaseAllLocks(txn)

	if lm != nil {
		lm.AppendAbort(uint64(txn.ID()))
		if err := lm.Flush(); err != nil {
			return err
		}
	}

	txn.SetState(transaction.Aborted)
	t.mut.Lock()
	delete(t.actives, txn.ID())
	t.mut.Unlock()

	t.logger.Debug("txn aborted", zap.Int64("txn", int64(txn.ID())))
	return nil
}

func (t *TxnManagerImpl) ActiveTransactions() []transaction.TxnID {
	t.mut.Lock()
	defer t.mut.Unlock()

	res := make([]transaction.TxnID, 0, len(t.actives))
	for id := range t.actives {
		res = append(res, id)
	}
	return res
}

// undo inverts one write record: an insert is undone by deleting the same
// position, a delete by re-inserting the saved image there and an update by
// writing the prior image back.
func (t *TxnManagerImpl) undo(w *transaction.WriteRecord) error {
	if t.tables == nil {
		return nil
	}
	fh := t.tables.GetTable(w.TabName)
	if fh == nil {
		// the table is gone; nothing to restore
		t.logger.Warn("undo skipped unknown table", zap.String("table", w.TabName))
		return nil
	}

	if latch := t.tables.TableLatch(w.TabName); latch != nil {
		latch.Lock()
		defer latch.Unlock()
	}

	switch w.Kind {
	case transaction.WInsert:
		return fh.DeleteRecord(w.Rid)
	case transaction.WDelete:
		return fh.InsertRecordAt(w.Rid, w.Data)
	case transaction.WUpdate:
		return fh.UpdateRecord(w.Rid, w.Data)
	}
	return nil
}

func (t *TxnManagerImpl) releaseAllLocks(txn *transaction.Transaction) {
	if t.lockManager == nil {
		return
	}
	for res := range txn.LockSet() {
		t.lockManager.Unlock(txn, res)
	}
	// Unlock removes entries itself; clear whatever it may have left behind
	for res := range txn.LockSet() {
		delete(txn.LockSet(), res)
	}
}
