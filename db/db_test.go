package db

import (
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/concurrency/lockmanager"
	"reldb/record"
	"reldb/transaction"
)

const recSize = 128

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	db, err := OpenDB(t.TempDir(), 16, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	id, _ := uuid.NewUUID()
	name := id.String()
	_, err = db.CreateTable(name, recSize)
	require.NoError(t, err)
	return db, name
}

func rec(fill byte) []byte {
	buf := make([]byte, recSize)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func TestDB_Insert_Commit_Get(t *testing.T) {
	db, table := newTestDB(t)

	txn := db.Begin()
	rid, err := db.Insert(txn, table, rec(1))
	require.NoError(t, err)
	require.NoError(t, db.Commit(txn))

	reader := db.Begin()
	got, err := db.Get(reader, table, rid)
	require.NoError(t, err)
	assert.Equal(t, rec(1), got)
	require.NoError(t, db.Commit(reader))
}

func TestDB_Writer_Blocks_Reader_Until_Commit(t *testing.T) {
	db, table := newTestDB(t)

	setup := db.Begin()
	rid, err := db.Insert(setup, table, rec(1))
	require.NoError(t, err)
	require.NoError(t, db.Commit(setup))

	writer := db.Begin()
	require.NoError(t, db.Update(writer, table, rid, rec(2)))

	reader := db.Begin()
	_, err = db.Get(reader, table, rid)
	assert.ErrorIs(t, err, ErrLockConflict)

	require.NoError(t, db.Commit(writer))

	got, err := db.Get(reader, table, rid)
	require.NoError(t, err)
	assert.Equal(t, rec(2), got)
	require.NoError(t, db.Commit(reader))
}

func TestDB_Table_Scan_Conflicts_With_Row_Writer(t *testing.T) {
	db, table := newTestDB(t)

	setup := db.Begin()
	_, err := db.Insert(setup, table, rec(1))
	require.NoError(t, err)
	require.NoError(t, db.Commit(setup))

	writer := db.Begin()
	_, err = db.Insert(writer, table, rec(2))
	require.NoError(t, err)

	// writer holds IX on the table, so a table granular S scan is refused
	scanner := db.Begin()
	_, err = db.Scan(scanner, table)
	assert.ErrorIs(t, err, ErrLockConflict)

	require.NoError(t, db.Commit(writer))

	scan, err := db.Scan(scanner, table)
	require.NoError(t, err)

	count := 0
	for !scan.IsEnd() {
		count++
		require.NoError(t, scan.Next())
	}
	assert.Equal(t, 2, count)
	require.NoError(t, db.Commit(scanner))
}

func TestDB_Abort_Restores_Pre_Transaction_Contents(t *testing.T) {
	db, table := newTestDB(t)

	setup := db.Begin()
	victim, err := db.Insert(setup, table, rec(7))
	require.NoError(t, err)
	keep, err := db.Insert(setup, table, rec(9))
	require.NoError(t, err)
	require.NoError(t, db.Commit(setup))

	txn := db.Begin()
	inserted, err := db.Insert(txn, table, rec(1))
	require.NoError(t, err)
	require.NoError(t, db.Delete(txn, table, victim))
	require.NoError(t, db.Update(txn, table, keep, rec(2)))

	require.NoError(t, db.Abort(txn))

	check := db.Begin()

	_, err = db.Get(check, table, inserted)
	var nf *record.RecordNotFoundError
	assert.ErrorAs(t, err, &nf)

	got, err := db.Get(check, table, victim)
	require.NoError(t, err)
	assert.Equal(t, rec(7), got)

	got, err = db.Get(check, table, keep)
	require.NoError(t, err)
	assert.Equal(t, rec(9), got)

	require.NoError(t, db.Commit(check))
}

func TestDB_Lock_After_Manual_Unlock_Aborts_Transaction(t *testing.T) {
	db, table := newTestDB(t)

	setup := db.Begin()
	rid, err := db.Insert(setup, table, rec(1))
	require.NoError(t, err)
	require.NoError(t, db.Commit(setup))

	txn := db.Begin()
	_, err = db.Get(txn, table, rid)
	require.NoError(t, err)

	// releasing anything ends the growing phase for good
	require.True(t, db.Lm.Unlock(txn, transaction.RecordID(db.Table(table).FileID(), rid)))

	_, err = db.Get(txn, table, rid)
	var abort *lockmanager.TxnAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, lockmanager.LockOnShrinking, abort.Reason)

	// the caller routes the protocol violation into abort
	require.NoError(t, db.Abort(txn))
	assert.Equal(t, transaction.Aborted, txn.State())
}

func TestDB_Concurrent_Inserters_Under_Compatible_IX_Locks(t *testing.T) {
	db, table := newTestDB(t)

	// IX holders run in parallel; the table latch alone must keep the free
	// list, header and page bitmaps consistent
	const writers = 4
	const perWriter = 10

	done := make(chan error, writers)
	for w := 0; w < writers; w++ {
		go func(fill byte) {
			txn := db.Begin()
			for i := 0; i < perWriter; i++ {
				if _, err := db.Insert(txn, table, rec(fill)); err != nil {
					done <- err
					return
				}
			}
			done <- db.Commit(txn)
		}(byte(w + 1))
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	scanner := db.Begin()
	scan, err := db.Scan(scanner, table)
	require.NoError(t, err)

	seen := map[byte]int{}
	for !scan.IsEnd() {
		got, err := db.Get(scanner, table, scan.Rid())
		require.NoError(t, err)
		seen[got[0]]++
		require.NoError(t, scan.Next())
	}
	for w := 0; w < writers; w++ {
		assert.Equal(t, perWriter, seen[byte(w+1)])
	}
	require.NoError(t, db.Commit(scanner))
}

func TestDB_Concurrent_Writers_Serialized_By_Table_Lock(t *testing.T) {
	db, table := newTestDB(t)
	fileID := db.Table(table).FileID()

	// lock refusals are not errors; concurrent writers retry until their X
	// table lock is granted and only then touch the record file
	done := make(chan error, 2)
	for w := 0; w < 2; w++ {
		go func(fill byte) {
			txn := db.Begin()
			for {
				granted, err := db.Lm.LockExclusiveOnTable(txn, fileID)
				if err != nil {
					done <- err
					return
				}
				if granted {
					break
				}
				runtime.Gosched()
			}
			for i := 0; i < 20; i++ {
				if _, err := db.Insert(txn, table, rec(fill)); err != nil {
					done <- err
					return
				}
			}
			done <- db.Commit(txn)
		}(byte(w + 1))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	scanner := db.Begin()
	scan, err := db.Scan(scanner, table)
	require.NoError(t, err)

	count := 0
	for !scan.IsEnd() {
		count++
		require.NoError(t, scan.Next())
	}
	assert.Equal(t, 40, count)
	require.NoError(t, db.Commit(scanner))
}
