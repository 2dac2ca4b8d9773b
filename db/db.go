package db

import (
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"reldb/buffer"
	"reldb/catalog"
	"reldb/concurrency"
	"reldb/concurrency/lockmanager"
	"reldb/disk"
	"reldb/disk/wal"
	"reldb/record"
	"reldb/transaction"
)

// ErrLockConflict is returned when a lock request is refused because another
// transaction holds an incompatible lock. It is an ordinary outcome: the
// caller may retry later or abort.
var ErrLockConflict = errors.New("lock conflict")

// DB wires the disk manager, buffer pool, catalog, lock manager and
// transaction manager together and exposes transactional record operations.
// Each operation takes the governing locks before touching the record file
// and records an undo entry per write.
type DB struct {
	dm   *disk.Manager
	pool buffer.Pool
	Ctl  *catalog.Catalog
	Lm   *lockmanager.LockManager
	Tm   concurrency.TxnManager

	logManager wal.LogManager
	logger     *zap.Logger
}

func OpenDB(dir string, poolSize int, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dm, err := disk.NewDiskManager(dir)
	if err != nil {
		return nil, err
	}

	lm, err := wal.NewSyncLogManager(filepath.Join(dir, "reldb.log"))
	if err != nil {
		return nil, err
	}

	pool := buffer.NewBufferPool(dm, poolSize, logger)
	ctl := catalog.NewCatalog(dm, pool)
	locks := lockmanager.NewLockManager(logger)
	tm := concurrency.NewTxnManager(locks, ctl, logger)

	return &DB{
		dm:         dm,
		pool:       pool,
		Ctl:        ctl,
		Lm:         locks,
		Tm:         tm,
		logManager: lm,
		logger:     logger,
	}, nil
}

func (db *DB) Begin() *transaction.Transaction {
	return db.Tm.Begin(nil, db.logManager)
}

func (db *DB) Commit(txn *transaction.Transaction) error {
	return db.Tm.Commit(txn, db.logManager)
}

func (db *DB) Abort(txn *transaction.Transaction) error {
	return db.Tm.Abort(txn, db.logManager)
}

func (db *DB) CreateTable(name string, recordSize int) (*record.FileHandle, error) {
	return db.Ctl.CreateTable(name, recordSize)
}

func (db *DB) Table(name string) *record.FileHandle {
	return db.Ctl.GetTable(name)
}

// Get reads the record at rid under an IS table lock and an S record lock.
func (db *DB) Get(txn *transaction.Transaction, tabName string, rid record.Rid) ([]byte, error) {
	fh := db.Ctl.GetTable(tabName)
	if fh == nil {
		return nil, errors.Errorf("table does not exist: %v", tabName)
	}

	if err := db.acquire(db.Lm.LockISOnTable(txn, fh.FileID())); err != nil {
		return nil, err
	}
	if err := db.acquireRecord(txn, fh, rid, lockmanager.Shared); err != nil {
		return nil, err
	}

	latch := db.Ctl.TableLatch(tabName)
	latch.RLock()
	rec, err := fh.GetRecord(rid)
	latch.RUnlock()
	return rec, err
}

// Insert writes a new record under an IX table lock, then locks the chosen
// position exclusively and records the undo entry. IX holders are mutually
// compatible, so the table latch serializes the page allocation itself.
func (db *DB) Insert(txn *transaction.Transaction, tabName string, buf []byte) (record.Rid, error) {
	fh := db.Ctl.GetTable(tabName)
	if fh == nil {
		return record.InvalidRid, errors.Errorf("table does not exist: %v", tabName)
	}

	if err := db.acquire(db.Lm.LockIXOnTable(txn, fh.FileID())); err != nil {
		return record.InvalidRid, err
	}

	latch := db.Ctl.TableLatch(tabName)
	latch.Lock()
	rid, err := fh.InsertRecord(buf)
	latch.Unlock()
	if err != nil {
		return record.InvalidRid, err
	}

	if err := db.acquireRecord(txn, fh, rid, lockmanager.Exclusive); err != nil {
		// the insert is not covered by a lock; take it back immediately
		latch.Lock()
		derr := fh.DeleteRecord(rid)
		latch.Unlock()
		if derr != nil {
			return record.InvalidRid, derr
		}
		return record.InvalidRid, err
	}

	if txn != nil {
		txn.AppendWrite(transaction.NewWriteRecord(tabName, rid, transaction.WInsert, nil))
	}
	return rid, nil
}

// Delete removes the record at rid under IX table and X record locks, saving
// the prior image for undo.
func (db *DB) Delete(txn *transaction.Transaction, tabName string, rid record.Rid) error {
	fh := db.Ctl.GetTable(tabName)
	if fh == nil {
		return errors.Errorf("table does not exist: %v", tabName)
	}

	if err := db.acquire(db.Lm.LockIXOnTable(txn, fh.FileID())); err != nil {
		return err
	}
	if err := db.acquireRecord(txn, fh, rid, lockmanager.Exclusive); err != nil {
		return err
	}

	latch := db.Ctl.TableLatch(tabName)
	latch.Lock()
	defer latch.Unlock()

	old, err := fh.GetRecord(rid)
	if err != nil {
		return err
	}
	if err := fh.DeleteRecord(rid); err != nil {
		return err
	}

	if txn != nil {
		txn.AppendWrite(transaction.NewWriteRecord(tabName, rid, transaction.WDelete, old))
	}
	return nil
}

// Update overwrites the record at rid under IX table and X record locks,
// saving the prior image for undo.
func (db *DB) Update(txn *transaction.Transaction, tabName string, rid record.Rid, buf []byte) error {
	fh := db.Ctl.GetTable(tabName)
	if fh == nil {
		return errors.Errorf("table does not exist: %v", tabName)
	}

	if err := db.acquire(db.Lm.LockIXOnTable(txn, fh.FileID())); err != nil {
		return err
	}
	if err := db.acquireRecord(txn, fh, rid, lockmanager.Exclusive); err != nil {
		return err
	}

	latch := db.Ctl.TableLatch(tabName)
	latch.Lock()
	defer latch.Unlock()

	old, err := fh.GetRecord(rid)
	if err != nil {
		return err
	}
	if err := fh.UpdateRecord(rid, buf); err != nil {
		return err
	}

	if txn != nil {
		txn.AppendWrite(transaction.NewWriteRecord(tabName, rid, transaction.WUpdate, old))
	}
	return nil
}

// Scan returns a forward scan over the table under an S table lock.
func (db *DB) Scan(txn *transaction.Transaction, tabName string) (*record.Scan, error) {
	fh := db.Ctl.GetTable(tabName)
	if fh == nil {
		return nil, errors.Errorf("table does not exist: %v", tabName)
	}

	if err := db.acquire(db.Lm.LockSharedOnTable(txn, fh.FileID())); err != nil {
		return nil, err
	}
	return record.NewScan(fh)
}

// Close flushes all cached pages and table headers and closes every file.
func (db *DB) Close() error {
	if err := db.pool.FlushAll(); err != nil {
		return err
	}
	if err := db.Ctl.Close(); err != nil {
		return err
	}
	if lm, ok := db.logManager.(*wal.SyncLogManager); ok {
		if err := lm.Close(); err != nil {
			return err
		}
	}
	return db.dm.Close()
}

func (db *DB) acquire(granted bool, err error) error {
	if err != nil {
		return err
	}
	if !granted {
		return ErrLockConflict
	}
	return nil
}

func (db *DB) acquireRecord(txn *transaction.Transaction, fh *record.FileHandle, rid record.Rid, mode lockmanager.LockMode) error {
	switch mode {
	case lockmanager.Shared:
		return db.acquire(db.Lm.LockSharedOnRecord(txn, rid, fh.FileID()))
	case lockmanager.Exclusive:
		return db.acquire(db.Lm.LockExclusiveOnRecord(txn, rid, fh.FileID()))
	default:
		return errors.Errorf("unsupported record lock mode: %v", mode)
	}
}
